package crew

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gosuda/temsim/internal/fault"
	"github.com/gosuda/temsim/internal/gauge"
	"github.com/gosuda/temsim/internal/room"
	"github.com/gosuda/temsim/internal/scenario"
)

const (
	ScriptedName         = "scripted"
	DefaultFlagThreshold = 0.05
)

// Scripted flies by the book: it knows the library's ground truth and the
// QRH, and splits the work the way a two-person crew would. Monitoring
// verifies, answers the quiz and watches gauges; controlling proposes and
// runs checklists.
type Scripted struct {
	lib       *scenario.Library
	role      room.Role
	threshold float64
	flagged   map[string]bool
}

func NewScripted(cfg Config) (Provider, error) {
	if cfg.Library == nil {
		return nil, errors.New("scripted crew needs a scenario library")
	}
	if cfg.FlagThreshold <= 0 {
		cfg.FlagThreshold = DefaultFlagThreshold
	}
	return &Scripted{
		lib:       cfg.Library,
		role:      cfg.Role,
		threshold: cfg.FlagThreshold,
		flagged:   make(map[string]bool),
	}, nil
}

func (s *Scripted) Name() string { return ScriptedName }

func (s *Scripted) Decide(_ context.Context, obs Observation) (Decision, error) {
	snap := obs.Snapshot
	switch snap.Phase {
	case room.Phase1:
		if s.role == room.Controlling {
			return s.propose(obs), nil
		}
		return s.verifyOrAnswer(obs), nil
	case room.Phase2, room.Phase3:
		if s.role == room.Monitoring && snap.Phase == room.Phase2 {
			if d, ok := s.watch(obs); ok {
				return d, nil
			}
		}
		if s.role == room.Controlling {
			return s.respond(obs), nil
		}
	}
	return Decision{}, nil
}

func (s *Scripted) propose(obs Observation) Decision {
	if len(obs.Snapshot.Undecided) == 0 {
		return Decision{}
	}
	t, ok := s.lib.Threat(obs.Snapshot.Undecided[0])
	if !ok {
		return Decision{}
	}
	for _, o := range t.Options {
		if o.Correct {
			a := room.ProposeDecision(obs.Name, t.ID, o.ID)
			return Decision{Recommendation: fmt.Sprintf("%s: %s", t.ID, o.Text), Action: &a}
		}
	}
	return Decision{}
}

func (s *Scripted) verifyOrAnswer(obs Observation) Decision {
	snap := obs.Snapshot
	if p := snap.PendingDecision; p != nil {
		t, _ := s.lib.Threat(p.Threat)
		opt, _ := t.Option(p.Option)
		a := room.VerifyDecision(obs.Name, opt.Correct)
		verdict := "concur"
		if !opt.Correct {
			verdict = "disagree"
		}
		return Decision{Recommendation: fmt.Sprintf("%s on %s", verdict, p.Threat), Action: &a}
	}
	if len(snap.Unanswered) > 0 {
		q, ok := s.lib.Question(snap.Unanswered[0])
		if !ok {
			return Decision{}
		}
		for _, o := range q.Options {
			if o.Correct {
				a := room.AnswerQuiz(obs.Name, q.ID, o.ID)
				return Decision{Action: &a}
			}
		}
	}
	return Decision{}
}

// watch flags the first instrument that has drifted off its trend.
func (s *Scripted) watch(obs Observation) (Decision, bool) {
	snap := obs.Snapshot
	elapsed := time.Duration(snap.ElapsedTime * float64(time.Second))
	for _, g := range s.lib.Gauges {
		target := g.Target()
		if s.flagged[target] {
			continue
		}
		v, ok := snap.Gauges[g.ID]
		if !ok {
			continue
		}
		expected := gauge.Clamp(g, gauge.Trend(g, elapsed))
		if math.Abs(v-expected) <= s.threshold*g.Span()+g.Amplitude() {
			continue
		}
		s.flagged[target] = true
		a := room.FlagGauge(obs.Role, obs.Name, target)
		return Decision{Recommendation: fmt.Sprintf("%s looks abnormal", g.Name), Action: &a}, true
	}
	return Decision{}, false
}

// respond picks the checklist for the alerting event and works through it.
func (s *Scripted) respond(obs Observation) Decision {
	snap := obs.Snapshot
	ev := snap.ActiveEvent
	if ev == nil {
		return Decision{}
	}
	event, ok := s.event(snap.Scenario, ev.ID)
	if !ok {
		return Decision{}
	}
	if cl := snap.Checklist; cl != nil && ev.State == fault.Response && event.Accepts(cl.ID) {
		for i, done := range cl.Done {
			if !done {
				a := room.CompleteChecklistItem(obs.Role, obs.Name, cl.ID, i)
				return Decision{Recommendation: cl.Items[i], Action: &a}
			}
		}
		return Decision{}
	}
	used := make(map[string]bool, len(snap.UsedChecklists))
	for _, id := range snap.UsedChecklists {
		used[id] = true
	}
	for _, id := range event.RequiredChecklists {
		if used[id] {
			continue
		}
		cl, _ := s.lib.Checklist(id)
		a := room.SelectChecklist(obs.Role, obs.Name, id)
		return Decision{Recommendation: fmt.Sprintf("run %s", cl.Title), Action: &a}
	}
	return Decision{Recommendation: "no unused checklist fits " + event.Name}
}

func (s *Scripted) event(key, id string) (scenario.Event, bool) {
	sc, ok := s.lib.Scenario(key)
	if !ok {
		return scenario.Event{}, false
	}
	for _, ev := range sc.Events {
		if ev.ID == id {
			return ev, true
		}
	}
	return scenario.Event{}, false
}
