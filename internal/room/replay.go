package room

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gosuda/temsim/internal/scenario"
	"github.com/gosuda/temsim/internal/sessionlog"
)

// ReplayResult compares a re-executed session with what the log recorded.
type ReplayResult struct {
	Room          string
	Session       string
	Scenario      string
	Ticks         uint64
	Actions       int
	Score         int
	Phase         Phase
	Outcome       string
	RecordedScore int
	RecordedPhase Phase
}

// Match reports whether the replay ended where the recording did.
func (r ReplayResult) Match() bool {
	return r.Score == r.RecordedScore && r.Phase == r.RecordedPhase
}

// Replay re-executes a recorded session against a fresh engine. Accepted
// actions are applied at the tick they were recorded at; everything else in
// the log is derived state and is only used to compare the end result.
func Replay(lib *scenario.Library, records []sessionlog.Record) (ReplayResult, *Engine, error) {
	var res ReplayResult
	if len(records) == 0 {
		return res, nil, errors.New("replay: empty log")
	}
	head := records[0]
	if head.Action != sessionlog.ActionSessionCreated {
		return res, nil, fmt.Errorf("replay: first record is %q, want %q", head.Action, sessionlog.ActionSessionCreated)
	}
	var sd sessionDetails
	if err := json.Unmarshal(head.Details, &sd); err != nil {
		return res, nil, fmt.Errorf("replay: session header: %w", err)
	}
	e, err := NewEngine(head.Room, Config{
		Library:  lib,
		Scenario: sd.Scenario,
		Seed:     sd.Seed,
		Session:  head.Session,
		Tick:     sd.Tick,
	}, Hooks{})
	if err != nil {
		return res, nil, fmt.Errorf("replay: %w", err)
	}

	// Only the header's session is replayed; a log shared with a later
	// session of the same room must not leak into this one.
	own := []sessionlog.Record{head}
	for _, rec := range records[1:] {
		if rec.Session == head.Session {
			own = append(own, rec)
		}
	}
	records = own

	for _, rec := range records[1:] {
		for e.st.Tick < rec.Tick {
			e.Step()
		}
		if !replayable[rec.Action] {
			continue
		}
		var d actionDetails
		if err := json.Unmarshal(rec.Details, &d); err != nil {
			return res, nil, fmt.Errorf("replay: seq %d: %w", rec.Seq, err)
		}
		if err := e.Apply(d.Input); err != nil {
			return res, nil, fmt.Errorf("replay: seq %d %s: %w", rec.Seq, rec.Action, err)
		}
		res.Actions++
	}

	last := records[len(records)-1]
	var recorded Phase
	if err := recorded.UnmarshalText([]byte(last.Phase)); err != nil {
		return res, nil, fmt.Errorf("replay: %w", err)
	}
	st := e.State()
	res.Room = st.ID
	res.Session = st.SessionID
	res.Scenario = st.Scenario
	res.Ticks = st.Tick
	res.Score = st.Score()
	res.Phase = st.Phase
	res.Outcome = st.Outcome
	res.RecordedScore = last.Score
	res.RecordedPhase = recorded
	return res, e, nil
}
