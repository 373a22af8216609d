package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/temsim/internal/metrics"
	"github.com/gosuda/temsim/internal/scenario"
	"github.com/gosuda/temsim/internal/sessionlog"
)

var validRoomID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// RegistryOptions configure every room the registry creates.
type RegistryOptions struct {
	Library  *scenario.Library
	Scenario string
	Tick     time.Duration
	Grace    time.Duration
	// AnomalyFactor is the tick-gap multiple treated as a stalled host.
	AnomalyFactor float64
	Broadcaster   Broadcaster
	Metrics       *metrics.Collector
	// OpenLog returns the session log for a new room. Nil logs nowhere.
	OpenLog func(room, session string, started time.Time) (sessionlog.Sink, error)
	// LogBuffer is the async log queue depth per room.
	LogBuffer int
	// OnStart runs after a room is registered, outside the registry lock.
	OnStart func(*Room)
	// Seed returns the jitter seed of a new room. Nil draws a random seed.
	Seed func() uint64
}

// Registry is the process-wide table of running rooms.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	opts   RegistryOptions
	closed bool
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Seed == nil {
		opts.Seed = rand.Uint64
	}
	return &Registry{
		rooms: make(map[string]*Room),
		opts:  opts,
	}
}

// CreateOrGet returns the room with id, starting it on first use.
func (g *Registry) CreateOrGet(id string) (*Room, error) {
	if !validRoomID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, id)
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	if r, ok := g.rooms[id]; ok {
		g.mu.Unlock()
		return r, nil
	}
	r, err := g.start(id)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.rooms[id] = r
	g.mu.Unlock()

	log.Info().Str("room", id).Str("scenario", r.Last().Scenario).Msg("[room] created")
	if g.opts.OnStart != nil {
		g.opts.OnStart(r)
	}
	return r, nil
}

func (g *Registry) start(id string) (*Room, error) {
	session := uuid.New().String()
	var sink sessionlog.Sink = sessionlog.Nop{}
	if g.opts.OpenLog != nil {
		s, err := g.opts.OpenLog(id, session, time.Now())
		if err != nil {
			log.Warn().Err(err).Str("room", id).Msg("[room] open session log, continuing without it")
		} else if s != nil {
			sink = s
		}
	}
	async := sessionlog.NewAsync(sink, g.opts.LogBuffer)
	r, err := Start(id, Config{
		Library:  g.opts.Library,
		Scenario: g.opts.Scenario,
		Seed:     g.opts.Seed(),
		Session:  session,
		Tick:     g.opts.Tick,
	}, Options{
		Grace:         g.opts.Grace,
		AnomalyFactor: g.opts.AnomalyFactor,
		Broadcaster:   g.opts.Broadcaster,
		Sink:          async,
		Metrics:       g.opts.Metrics,
		OnExit:        g.forget,
	})
	if err != nil {
		_ = async.Close()
		return nil, err
	}
	return r, nil
}

func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Do routes an action to an existing room.
func (g *Registry) Do(ctx context.Context, id string, a Action) error {
	r, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, id)
	}
	return r.Do(ctx, a)
}

// Remove stops the room, waits until its goroutine has exited and only then
// drops it from the table.
func (g *Registry) Remove(ctx context.Context, id string) error {
	r, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, id)
	}
	r.Stop()
	select {
	case <-r.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	g.forget(r)
	return nil
}

// List returns the ids of running rooms in sorted order.
func (g *Registry) List() []string {
	g.mu.RLock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close stops every room and waits for all of them.
func (g *Registry) Close() {
	g.mu.Lock()
	g.closed = true
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
	for _, r := range rooms {
		<-r.Done()
	}
}

func (g *Registry) forget(r *Room) {
	g.mu.Lock()
	if current, ok := g.rooms[r.id]; ok && current == r {
		delete(g.rooms, r.id)
	}
	g.mu.Unlock()
}
