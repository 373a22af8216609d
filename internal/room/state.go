package room

import (
	"fmt"
	"time"

	"github.com/gosuda/temsim/internal/fault"
	"github.com/gosuda/temsim/internal/scoring"
)

const transcriptLimit = 100

type Phase int

const (
	Phase1 Phase = iota
	Phase2
	Phase3
	Complete
)

var phaseNames = [...]string{"phase1", "phase2", "phase3", "complete"}

func (p Phase) String() string {
	if p < Phase1 || p > Complete {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

type Role string

const (
	Controlling Role = "controlling"
	Monitoring  Role = "monitoring"
)

// Roles lists both roles in a stable order.
var Roles = []Role{Controlling, Monitoring}

func (r Role) Valid() bool { return r == Controlling || r == Monitoring }

// Other is the partner role.
func (r Role) Other() Role {
	if r == Controlling {
		return Monitoring
	}
	return Controlling
}

// Kind tells a human participant from an automated provider.
type Kind string

const (
	Human     Kind = "human"
	Automated Kind = "automated"
)

type Identity struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Binding is the identity holding a role. A human binding survives a
// disconnect after Phase 1 so the same person can rejoin.
type Binding struct {
	Identity
	Connected bool `json:"connected"`
}

// Proposal is a controlling-role mitigation waiting for verification.
type Proposal struct {
	Threat string `json:"threat"`
	Option string `json:"option"`
	By     string `json:"by"`
}

type ChatLine struct {
	At   time.Time `json:"at"`
	Role Role      `json:"role"`
	Name string    `json:"name"`
	Text string    `json:"text"`
}

// State is everything one room knows. It is written only by the room's
// engine.
type State struct {
	ID        string
	SessionID string
	Scenario  string
	Seed      uint64
	Phase     Phase

	Roles map[Role]*Binding
	Ready map[Role]bool

	Clock time.Duration
	Tick  uint64

	Gauges    map[string]float64
	Events    []*fault.Machine
	Monitored map[string]bool

	UsedChecklists map[string]bool
	usedOrder      []string

	Ledger scoring.Ledger

	Pending  []Proposal
	Decided  map[string]bool
	Answered map[string]bool

	Transcript []ChatLine
	Outcome    string

	// Deferred marks events already logged as waiting behind another event.
	Deferred map[string]bool
	// Seq is the sequence number of the next session log record.
	Seq uint64
}

func newState(id, session, scenarioKey string, seed uint64, events []*fault.Machine) *State {
	return &State{
		ID:             id,
		SessionID:      session,
		Scenario:       scenarioKey,
		Seed:           seed,
		Phase:          Phase1,
		Roles:          make(map[Role]*Binding, 2),
		Ready:          make(map[Role]bool, 2),
		Gauges:         make(map[string]float64),
		Events:         events,
		Monitored:      make(map[string]bool),
		UsedChecklists: make(map[string]bool),
		Decided:        make(map[string]bool),
		Answered:       make(map[string]bool),
		Deferred:       make(map[string]bool),
	}
}

// Score is the sum of the ledger.
func (s *State) Score() int { return s.Ledger.Total() }

// Used lists used checklists in the order they were selected.
func (s *State) Used() []string { return append([]string{}, s.usedOrder...) }

func (s *State) markUsed(id string) {
	s.UsedChecklists[id] = true
	s.usedOrder = append(s.usedOrder, id)
}

// Connected counts connected participants of either kind.
func (s *State) Connected() int {
	n := 0
	for _, b := range s.Roles {
		if b.Connected {
			n++
		}
	}
	return n
}

// Paused reports whether the clock is held for a disconnected human.
func (s *State) Paused() bool {
	for _, b := range s.Roles {
		if b.Kind == Human && !b.Connected {
			return true
		}
	}
	return false
}

func (s *State) addChat(line ChatLine) {
	s.Transcript = append(s.Transcript, line)
	if n := len(s.Transcript); n > transcriptLimit {
		s.Transcript = append([]ChatLine(nil), s.Transcript[n-transcriptLimit:]...)
	}
}

// front is the first event that is not resolved yet.
func (s *State) front() *fault.Machine {
	for _, m := range s.Events {
		if m.State() != fault.Resolved {
			return m
		}
	}
	return nil
}
