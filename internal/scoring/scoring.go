// Package scoring turns operator actions and lifecycle transitions into score
// deltas. Everything here is pure; the room keeps the ledger.
package scoring

import "time"

// Reason codes attached to every delta.
const (
	ReasonDecisionCorrectApproved   = "decision_correct_approved"
	ReasonDecisionCorrectRejected   = "decision_correct_rejected"
	ReasonDecisionIncorrectApproved = "decision_incorrect_approved"
	ReasonDecisionIncorrectRejected = "decision_incorrect_rejected"
	ReasonQuizCorrect               = "quiz_correct"
	ReasonQuizIncorrect             = "quiz_incorrect"
	ReasonDetection                 = "precursor_detected"
	ReasonReaction                  = "alert_reaction"
	ReasonChecklistCorrect          = "checklist_correct"
	ReasonChecklistIncorrect        = "checklist_incorrect"
)

// PassThreshold is the score a crew must exceed to pass.
const PassThreshold = 40

// Outcome labels.
const (
	Passed          = "Passed"
	DebriefRequired = "Debrief Required"
)

// Kind selects the rule a Trigger is evaluated against.
type Kind int

const (
	KindDecision Kind = iota
	KindQuiz
	KindDetection
	KindReaction
	KindChecklist
)

// Trigger carries the facts a rule needs. Correct is ground truth from the
// scenario content; Approved is the monitoring role's verdict; Points is the
// event-supplied score for detection, reaction and checklist rules.
type Trigger struct {
	Kind     Kind
	Correct  bool
	Approved bool
	Points   int
	Penalty  int
}

// Delta is a signed score change with its reason code.
type Delta struct {
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// Evaluate applies the scoring rules to one trigger.
func Evaluate(t Trigger) Delta {
	switch t.Kind {
	case KindDecision:
		switch {
		case t.Correct && t.Approved:
			return Delta{15, ReasonDecisionCorrectApproved}
		case t.Correct:
			return Delta{-5, ReasonDecisionCorrectRejected}
		case t.Approved:
			return Delta{-20, ReasonDecisionIncorrectApproved}
		default:
			return Delta{5, ReasonDecisionIncorrectRejected}
		}
	case KindQuiz:
		if t.Correct {
			return Delta{10, ReasonQuizCorrect}
		}
		return Delta{-5, ReasonQuizIncorrect}
	case KindDetection:
		return Delta{t.Points, ReasonDetection}
	case KindReaction:
		return Delta{t.Points, ReasonReaction}
	case KindChecklist:
		if t.Correct {
			return Delta{t.Points, ReasonChecklistCorrect}
		}
		return Delta{-t.Penalty, ReasonChecklistIncorrect}
	}
	return Delta{}
}

// Outcome maps a cumulative score to the debrief verdict.
func Outcome(score int) string {
	if score > PassThreshold {
		return Passed
	}
	return DebriefRequired
}

// Entry is one line of the score ledger. Ref names the threat, question,
// event or checklist the delta belongs to.
type Entry struct {
	Delta
	At  time.Duration `json:"at"`
	Ref string        `json:"ref,omitempty"`
}

// Ledger is the append-only score history of a room.
type Ledger []Entry

// Total sums the ledger.
func (l Ledger) Total() int {
	total := 0
	for _, e := range l {
		total += e.Points
	}
	return total
}

// Outcome is the verdict for the current total.
func (l Ledger) Outcome() string { return Outcome(l.Total()) }
