// Package fault tracks the lifecycle of one scheduled fault event.
package fault

import (
	"errors"
	"time"

	"github.com/gosuda/temsim/internal/gauge"
	"github.com/gosuda/temsim/internal/scenario"
)

var (
	ErrOutOfPhase     = errors.New("event not in a state that accepts this action")
	ErrWrongChecklist = errors.New("checklist not bound to this event")
	ErrUnknownItem    = errors.New("checklist item out of range")
)

// State is a lifecycle step. The order of the constants is the only legal
// forward order.
type State int

const (
	Pending State = iota
	Precursor
	Alert
	Response
	Resolved
)

var stateNames = [...]string{"pending", "precursor", "alert", "response", "resolved"}

func (s State) String() string {
	if s < Pending || s > Resolved {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcomes recorded when an event reaches Resolved.
const (
	OutcomeResolved = "resolved"
	OutcomeLapsed   = "lapsed"
)

// Transition is one state change. Award carries the reaction score when the
// event enters Alert for the first time.
type Transition struct {
	Event   string        `json:"event"`
	From    State         `json:"from"`
	To      State         `json:"to"`
	At      time.Duration `json:"at"`
	Award   int           `json:"award,omitempty"`
	Outcome string        `json:"outcome,omitempty"`
}

// Machine is the lifecycle of one event instance. It is owned by a single room
// goroutine and is not safe for concurrent use.
type Machine struct {
	ev    scenario.Event
	state State
	shift time.Duration

	detected bool
	reacted  bool

	checklist string
	correct   bool
	items     []bool
	outcome   string
	history   []State
}

func New(ev scenario.Event) *Machine {
	return &Machine{ev: ev, history: []State{Pending}}
}

func (m *Machine) Event() scenario.Event { return m.ev }
func (m *Machine) ID() string            { return m.ev.ID }
func (m *Machine) State() State          { return m.state }
func (m *Machine) Detected() bool        { return m.detected }
func (m *Machine) Outcome() string       { return m.outcome }

// History lists every state the event has been in, in order.
func (m *Machine) History() []State { return append([]State(nil), m.history...) }

// Checklist returns the bound checklist and whether it resolves the event.
func (m *Machine) Checklist() (id string, correct bool) { return m.checklist, m.correct }

// Items returns the completion flags of the bound checklist.
func (m *Machine) Items() []bool { return append([]bool(nil), m.items...) }

func (m *Machine) PrecursorAt() time.Duration { return m.ev.PrecursorStart.Duration() + m.shift }
func (m *Machine) AlertAt() time.Duration     { return m.ev.AlertStart.Duration() + m.shift }
func (m *Machine) EndAt() time.Duration       { return m.ev.End.Duration() + m.shift }

// Active reports whether the event currently drives its gauge.
func (m *Machine) Active() bool {
	return m.state >= Precursor && m.state <= Response
}

// Unresolved reports whether the event still needs the operators.
func (m *Machine) Unresolved() bool {
	return m.state == Alert || m.state == Response
}

// Advance moves the machine forward against the sim clock. A large jump emits
// every intermediate transition in order.
func (m *Machine) Advance(elapsed time.Duration) []Transition {
	var out []Transition
	for {
		switch {
		case m.state == Pending && elapsed >= m.PrecursorAt():
			out = append(out, m.move(Precursor, elapsed))
		case m.state == Precursor && elapsed >= m.AlertAt():
			t := m.move(Alert, elapsed)
			if !m.reacted {
				m.reacted = true
				t.Award = m.ev.ReactionScore
			}
			out = append(out, t)
		case m.state == Alert && elapsed >= m.EndAt():
			out = append(out, m.lapse(elapsed))
		default:
			return out
		}
	}
}

// Lapse closes an event that is still waiting for a checklist. It is a no-op
// in any other state.
func (m *Machine) Lapse(elapsed time.Duration) (Transition, bool) {
	if m.state != Alert {
		return Transition{}, false
	}
	return m.lapse(elapsed), true
}

func (m *Machine) lapse(elapsed time.Duration) Transition {
	m.outcome = OutcomeLapsed
	t := m.move(Resolved, elapsed)
	t.Outcome = OutcomeLapsed
	return t
}

// Flag reports a detection: true exactly once, and only while the target gauge
// is showing the precursor.
func (m *Machine) Flag(target string) bool {
	if m.state != Precursor || m.detected || target != m.ev.Precursor.Gauge {
		return false
	}
	m.detected = true
	return true
}

// Select binds a checklist and moves the event into Response. A wrong
// checklist can be replaced by another selection.
func (m *Machine) Select(checklist string, items int, correct bool, elapsed time.Duration) (Transition, error) {
	switch {
	case m.state == Alert:
	case m.state == Response && !m.correct:
	default:
		return Transition{}, ErrOutOfPhase
	}
	m.checklist = checklist
	m.correct = correct
	m.items = make([]bool, items)
	if m.state == Response {
		return Transition{Event: m.ev.ID, From: Response, To: Response, At: elapsed}, nil
	}
	return m.move(Response, elapsed), nil
}

// Complete marks one item of the bound checklist. The returned transition is
// set when the last item resolves the event.
func (m *Machine) Complete(checklist string, index int, elapsed time.Duration) (*Transition, error) {
	if m.state != Response {
		return nil, ErrOutOfPhase
	}
	if checklist != m.checklist {
		return nil, ErrWrongChecklist
	}
	if index < 0 || index >= len(m.items) {
		return nil, ErrUnknownItem
	}
	m.items[index] = true
	for _, done := range m.items {
		if !done {
			return nil, nil
		}
	}
	m.outcome = OutcomeResolved
	t := m.move(Resolved, elapsed)
	t.Outcome = OutcomeResolved
	return &t, nil
}

// Defer shifts a pending event's window so its precursor starts at now.
func (m *Machine) Defer(now time.Duration) {
	if m.state != Pending {
		return
	}
	if d := now - m.ev.PrecursorStart.Duration(); d > m.shift {
		m.shift = d
	}
}

// Override returns the gauge pattern while the event is active, nil otherwise.
func (m *Machine) Override(elapsed time.Duration) *gauge.Override {
	if !m.Active() {
		return nil
	}
	return &gauge.Override{
		Pattern:  m.ev.Precursor.Pattern,
		Endpoint: m.ev.Precursor.Endpoint,
		Channel:  m.ev.Precursor.Channel,
		Since:    elapsed - m.PrecursorAt(),
		Ramp:     m.AlertAt() - m.PrecursorAt(),
		Held:     m.state >= Alert,
	}
}

func (m *Machine) move(to State, elapsed time.Duration) Transition {
	t := Transition{Event: m.ev.ID, From: m.state, To: to, At: elapsed}
	m.state = to
	m.history = append(m.history, to)
	return t
}
