package room

import (
	"github.com/gosuda/temsim/internal/fault"
)

// Snapshot is the outbound view of a room after one tick.
type Snapshot struct {
	Room        string             `json:"room"`
	Session     string             `json:"session"`
	Scenario    string             `json:"scenario"`
	Tick        uint64             `json:"tick"`
	ElapsedTime float64            `json:"elapsedTime"`
	Duration    float64            `json:"duration"`
	Phase       Phase              `json:"phase"`
	Paused      bool               `json:"paused"`
	Gauges      map[string]float64 `json:"gauges"`
	ActiveEvent *EventSummary      `json:"activeEvent"`
	Score       int                `json:"score"`

	UsedChecklists  []string         `json:"usedChecklists"`
	Checklists      []string         `json:"checklists,omitempty"`
	PendingDecision *Proposal        `json:"pendingDecision,omitempty"`
	Undecided       []string         `json:"undecided,omitempty"`
	Unanswered      []string         `json:"unanswered,omitempty"`
	Checklist       *ChecklistView   `json:"checklist,omitempty"`
	Roles           map[Role]Binding `json:"roles"`
	Ready           []Role           `json:"ready,omitempty"`
	Outcome         string           `json:"outcome,omitempty"`
}

// EventSummary names the event that has formally alerted. Precursors are not
// announced; spotting them is the operators' job.
type EventSummary struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	State   fault.State `json:"state"`
	Level   string      `json:"level,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ChecklistView is the checklist being worked on.
type ChecklistView struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Event string   `json:"event"`
	Items []string `json:"items"`
	Done  []bool   `json:"done"`
}

// Notice kinds.
const (
	NoticeAlert    = "alert"
	NoticeChat     = "chat"
	NoticePhase    = "phase"
	NoticeRejected = "rejected"
	NoticeScore    = "score"
	NoticeSystem   = "system"
)

// Notice is a discrete room event, as opposed to the continuous snapshot.
type Notice struct {
	Kind   string `json:"kind"`
	Room   string `json:"room"`
	Tick   uint64 `json:"tick"`
	Role   Role   `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Text   string `json:"text,omitempty"`
	Event  string `json:"event,omitempty"`
	Level  string `json:"level,omitempty"`
	Code   string `json:"code,omitempty"`
	Points int    `json:"points,omitempty"`
}

// Broadcaster receives room output. Both methods must return promptly; a
// slow receiver drops, it never blocks the room.
type Broadcaster interface {
	Publish(Snapshot)
	Notify(Notice)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(Snapshot) {}
func (nopBroadcaster) Notify(Notice)    {}

type fanout []Broadcaster

// Fanout delivers to every non-nil broadcaster in order.
func Fanout(bs ...Broadcaster) Broadcaster {
	out := make(fanout, 0, len(bs))
	for _, b := range bs {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

func (f fanout) Publish(s Snapshot) {
	for _, b := range f {
		b.Publish(s)
	}
}

func (f fanout) Notify(n Notice) {
	for _, b := range f {
		b.Notify(n)
	}
}
