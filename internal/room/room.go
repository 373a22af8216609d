// Package room runs training rooms. Each room is one goroutine that owns its
// State, ticks the simulation at a fixed period and applies operator actions
// between ticks from a serialized command queue.
package room

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/temsim/internal/metrics"
	"github.com/gosuda/temsim/internal/sessionlog"
)

const (
	commandBuffer        = 256
	DefaultGrace         = 30 * time.Second
	DefaultAnomalyFactor = 5.0
)

// Room is the execution unit of one training session. A single goroutine owns
// the engine; everything else talks to it through the command channel.
type Room struct {
	id     string
	engine *Engine

	commands chan func()
	closing  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	out     Broadcaster
	sink    sessionlog.Sink
	metrics *metrics.Collector

	tick          time.Duration
	grace         time.Duration
	anomalyFactor float64

	last    atomic.Pointer[Snapshot]
	faulted atomic.Bool
	onExit  func(*Room)
}

// Options tune a room unit. Zero values select the defaults.
type Options struct {
	Grace         time.Duration
	AnomalyFactor float64
	Broadcaster   Broadcaster
	Sink          sessionlog.Sink
	Metrics       *metrics.Collector
	OnExit        func(*Room)
}

// Start builds the engine and launches the room goroutine.
func Start(id string, cfg Config, opts Options) (*Room, error) {
	r := &Room{
		id:            id,
		commands:      make(chan func(), commandBuffer),
		closing:       make(chan struct{}),
		done:          make(chan struct{}),
		out:           opts.Broadcaster,
		sink:          opts.Sink,
		metrics:       opts.Metrics,
		grace:         opts.Grace,
		anomalyFactor: opts.AnomalyFactor,
		onExit:        opts.OnExit,
	}
	if r.out == nil {
		r.out = nopBroadcaster{}
	}
	if r.sink == nil {
		r.sink = sessionlog.Nop{}
	}
	if r.grace <= 0 {
		r.grace = DefaultGrace
	}
	if r.anomalyFactor <= 1 {
		r.anomalyFactor = DefaultAnomalyFactor
	}
	engine, err := NewEngine(id, cfg, Hooks{
		Record: func(rec sessionlog.Record) { _ = r.sink.Write(rec) },
		Notify: r.out.Notify,
	})
	if err != nil {
		return nil, err
	}
	r.engine = engine
	r.tick = engine.TickDuration()
	snap := engine.Snapshot()
	r.last.Store(&snap)

	r.metrics.RoomStarted()
	go r.loop()
	return r, nil
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Faulted reports whether the room stopped on an internal error.
func (r *Room) Faulted() bool { return r.faulted.Load() }

// Last returns the most recent snapshot.
func (r *Room) Last() Snapshot { return *r.last.Load() }

// Stop asks the room to exit after the command or tick in progress.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.closing) })
}

// Do applies a on the room goroutine and waits for the result.
func (r *Room) Do(ctx context.Context, a Action) error {
	var err error
	if qerr := r.exec(ctx, func(e *Engine) { err = e.Apply(a) }); qerr != nil {
		return qerr
	}
	r.metrics.ObserveAction(a.Kind, Code(err))
	return err
}

// Query runs fn on the room goroutine with read access to the state.
func (r *Room) Query(ctx context.Context, fn func(*State)) error {
	return r.exec(ctx, func(e *Engine) { fn(e.State()) })
}

func (r *Room) exec(ctx context.Context, fn func(*Engine)) error {
	reply := make(chan struct{})
	cmd := func() {
		fn(r.engine)
		close(reply)
	}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return ErrClosed
	case <-r.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) loop() {
	defer r.exit()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	var graceTimer *time.Timer
	var graceC <-chan time.Time
	armGrace := func() {
		if r.engine.State().Connected() > 0 {
			if graceTimer != nil {
				graceTimer.Stop()
				graceTimer, graceC = nil, nil
			}
			return
		}
		if graceTimer == nil {
			graceTimer = time.NewTimer(r.grace)
			graceC = graceTimer.C
		}
	}
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()
	armGrace()

	lastTick := time.Now()
	for {
		select {
		case <-r.closing:
			return
		case cmd := <-r.commands:
			if !r.safely(cmd) {
				return
			}
		case <-ticker.C:
			now := time.Now()
			gap := now.Sub(lastTick)
			lastTick = now
			if gap < 0 || float64(gap) > r.anomalyFactor*float64(r.tick) {
				log.Warn().Str("room", r.id).Dur("gap", gap).Msg("[room] clock anomaly, resyncing")
				r.metrics.ClockAnomaly()
				if !r.safely(func() { r.engine.Resync(gap) }) {
					return
				}
			}
			start := time.Now()
			var snap Snapshot
			if !r.safely(func() { snap = r.engine.Step() }) {
				return
			}
			r.metrics.ObserveTick(time.Since(start))
			r.last.Store(&snap)
			r.out.Publish(snap)
		case <-graceC:
			if r.engine.State().Connected() == 0 {
				log.Info().Str("room", r.id).Msg("[room] empty past grace period, closing")
				return
			}
			graceTimer, graceC = nil, nil
		}
		st := r.engine.State()
		if st.Phase == Complete && st.Connected() == 0 {
			log.Info().Str("room", r.id).Str("outcome", st.Outcome).Msg("[room] session complete")
			return
		}
		armGrace()
	}
}

// safely runs fn and reports false when it panicked. A panic means the room
// state can no longer be trusted, so the room stops; other rooms carry on.
func (r *Room) safely(fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			r.faulted.Store(true)
			r.metrics.RoomFault()
			log.Error().Str("room", r.id).Str("panic", fmt.Sprint(p)).Bytes("stack", debug.Stack()).Msg("[room] invariant violation, stopping room")
			func() {
				defer func() { _ = recover() }()
				r.engine.Fault(p)
			}()
		}
	}()
	fn()
	return true
}

func (r *Room) exit() {
	r.Stop()
	if err := r.sink.Close(); err != nil {
		log.Warn().Err(err).Str("room", r.id).Msg("[room] close session log")
	}
	r.metrics.RoomStopped()
	close(r.done)
	if r.onExit != nil {
		r.onExit(r)
	}
}
