package callout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/temsim/internal/metrics"
	"github.com/gosuda/temsim/internal/room"
)

const defaultQueueSize = 16

// Callout is one alert to be voiced.
type Callout struct {
	Room  string
	Tick  uint64
	Event string
	Text  string
}

// FileName is where the callout's audio lands inside an output directory.
func (c Callout) FileName() string {
	return fmt.Sprintf("%s-%06d-%s.mp3", c.Room, c.Tick, c.Event)
}

// AnnouncerOptions configure an announcer. Zero values select defaults.
type AnnouncerOptions struct {
	// Dir receives one MP3 per callout. Empty discards the audio.
	Dir       string
	QueueSize int
	Metrics   *metrics.Collector
}

// Announcer is a room.Broadcaster that voices alert notices on its own
// goroutine. When the queue is full the alert is dropped.
type Announcer struct {
	synth   Synthesizer
	dir     string
	metrics *metrics.Collector
	queue   chan Callout
}

func NewAnnouncer(synth Synthesizer, opts AnnouncerOptions) (*Announcer, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create callout dir: %w", err)
		}
	}
	return &Announcer{
		synth:   synth,
		dir:     opts.Dir,
		metrics: opts.Metrics,
		queue:   make(chan Callout, opts.QueueSize),
	}, nil
}

func (a *Announcer) Publish(room.Snapshot) {}

func (a *Announcer) Notify(n room.Notice) {
	if n.Kind != room.NoticeAlert {
		return
	}
	c := Callout{Room: n.Room, Tick: n.Tick, Event: n.Event, Text: phrase(n)}
	select {
	case a.queue <- c:
	default:
		a.metrics.ObserveCallout(ResultDropped)
		log.Warn().Str("room", c.Room).Str("event", c.Event).Msg("[callout] queue full, alert dropped")
	}
}

// Run synthesizes queued callouts until ctx ends.
func (a *Announcer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-a.queue:
			a.announce(ctx, c)
		}
	}
}

func (a *Announcer) announce(ctx context.Context, c Callout) {
	audio, err := a.synth.Synthesize(ctx, c.Text)
	if err == nil && a.dir != "" {
		err = os.WriteFile(filepath.Join(a.dir, c.FileName()), audio, 0o644)
	}
	result := Classify(err)
	a.metrics.ObserveCallout(result)
	if err != nil {
		log.Error().Err(err).Str("room", c.Room).Str("event", c.Event).Msg("[callout] synthesis failed")
		return
	}
	log.Debug().Str("room", c.Room).Str("event", c.Event).Int("bytes", len(audio)).Msg("[callout] voiced")
}

func phrase(n room.Notice) string {
	level := strings.TrimSpace(n.Level)
	if level == "" {
		return n.Text
	}
	return strings.ToUpper(level[:1]) + level[1:] + ". " + n.Text
}
