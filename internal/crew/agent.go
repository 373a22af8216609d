package crew

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/temsim/internal/room"
)

const (
	DefaultInterval = 400 * time.Millisecond
	decideTimeout   = 2 * time.Second
)

// Seat is the part of a room an agent needs.
type Seat interface {
	ID() string
	Do(ctx context.Context, a room.Action) error
	Query(ctx context.Context, fn func(*room.State)) error
	Done() <-chan struct{}
}

// Agent seats a provider in a room under an automated identity. It receives
// snapshots like any other subscriber and acts at most once per Interval.
type Agent struct {
	seat     Seat
	provider Provider
	role     room.Role
	name     string
	interval time.Duration

	latest chan room.Snapshot
}

// AgentOptions configure an agent. Zero values select defaults.
type AgentOptions struct {
	Name     string
	Interval time.Duration
}

func NewAgent(seat Seat, role room.Role, p Provider, opts AgentOptions) *Agent {
	if opts.Name == "" {
		opts.Name = "crew-" + string(role)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Agent{
		seat:     seat,
		provider: p,
		role:     role,
		name:     opts.Name,
		interval: opts.Interval,
		latest:   make(chan room.Snapshot, 1),
	}
}

func (a *Agent) Name() string { return a.name }

// Publish keeps only the newest snapshot.
func (a *Agent) Publish(s room.Snapshot) {
	for {
		select {
		case a.latest <- s:
			return
		default:
		}
		select {
		case <-a.latest:
		default:
		}
	}
}

func (a *Agent) Notify(room.Notice) {}

// Run joins the room and acts until ctx ends, the room closes or the session
// completes. It leaves the seat on the way out.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.seat.Do(ctx, room.Join(a.role, room.Identity{Kind: room.Automated, Name: a.name})); err != nil {
		return err
	}
	defer a.leave()

	log.Info().Str("room", a.seat.ID()).Str("role", string(a.role)).Str("provider", a.provider.Name()).Msg("[crew] seated")
	var (
		minTick    uint64
		nextAction time.Time
		lastAdvice string
	)
	for {
		var snap room.Snapshot
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.seat.Done():
			return nil
		case snap = <-a.latest:
		}
		if snap.Phase == room.Complete {
			return nil
		}
		if snap.Tick < minTick || time.Now().Before(nextAction) {
			continue
		}

		dctx, cancel := context.WithTimeout(ctx, decideTimeout)
		d, err := a.provider.Decide(dctx, Observation{Snapshot: snap, Role: a.role, Name: a.name})
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("room", a.seat.ID()).Str("provider", a.provider.Name()).Msg("[crew] decide failed")
			continue
		}
		if d.Recommendation != "" && d.Recommendation != lastAdvice {
			lastAdvice = d.Recommendation
			_ = a.seat.Do(ctx, room.Chat(a.role, a.name, d.Recommendation))
		}
		if d.Action == nil {
			continue
		}
		if err := a.seat.Do(ctx, *d.Action); err != nil {
			if errors.Is(err, room.ErrClosed) {
				return nil
			}
			log.Debug().Err(err).Str("room", a.seat.ID()).Str("action", d.Action.Kind).Msg("[crew] action rejected")
		}
		nextAction = time.Now().Add(a.interval)
		// Snapshots already queued predate the action.
		_ = a.seat.Query(ctx, func(st *room.State) { minTick = st.Tick + 1 })
	}
}

func (a *Agent) leave() {
	select {
	case <-a.seat.Done():
		return
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), decideTimeout)
	defer cancel()
	if err := a.seat.Do(ctx, room.Leave(a.role, a.name)); err != nil && !errors.Is(err, room.ErrClosed) {
		log.Debug().Err(err).Str("room", a.seat.ID()).Msg("[crew] leave")
	}
}
