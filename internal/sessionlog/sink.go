package sessionlog

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Sink receives log records. Implementations may fail; callers never stop the
// simulation because of it.
type Sink interface {
	Write(Record) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Write(Record) error { return nil }
func (Nop) Close() error       { return nil }

type multi []Sink

// Multi fans every record out to all sinks.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Write(r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type keepOpen struct{ Sink }

// KeepOpen shields a shared sink from Close calls made by one of its users.
func KeepOpen(s Sink) Sink { return keepOpen{s} }

func (keepOpen) Close() error { return nil }

// Async moves writes off the caller's goroutine. When the buffer is full the
// record is dropped and counted.
type Async struct {
	sink    Sink
	records chan Record
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func NewAsync(sink Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:    sink,
		records: make(chan Record, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for r := range a.records {
		if err := a.sink.Write(r); err != nil {
			log.Warn().Err(err).Str("room", r.Room).Str("action", r.Action).Msg("[sessionlog] write failed")
		}
	}
}

// Write enqueues r. It never blocks.
func (a *Async) Write(r Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.records <- r:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn().Str("room", r.Room).Uint64("dropped", n).Msg("[sessionlog] buffer full, dropping records")
		}
	}
	return nil
}

// Dropped is the number of records lost to a full buffer.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close drains queued records and closes the wrapped sink.
func (a *Async) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.records)
		a.mu.Unlock()
		<-a.done
		err = a.sink.Close()
	})
	return err
}
