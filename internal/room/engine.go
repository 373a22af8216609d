package room

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gosuda/temsim/internal/fault"
	"github.com/gosuda/temsim/internal/gauge"
	"github.com/gosuda/temsim/internal/scenario"
	"github.com/gosuda/temsim/internal/scoring"
	"github.com/gosuda/temsim/internal/sessionlog"
)

const (
	DefaultTick = 100 * time.Millisecond
	maxChatLen  = 500
)

// Config selects the content and timing of one room.
type Config struct {
	Library *scenario.Library
	// Scenario is a scenario key. Empty picks one from the library using Seed.
	Scenario string
	Seed     uint64
	Session  string
	Tick     time.Duration
	Now      func() time.Time
}

// Hooks receive the engine's output. Both are optional and must not block.
type Hooks struct {
	Record func(sessionlog.Record)
	Notify func(Notice)
}

// Engine is the deterministic core of a room: one Step per tick and one Apply
// per operator action. It is not safe for concurrent use; the room unit
// serialises every call.
type Engine struct {
	st    *State
	lib   *scenario.Library
	sc    scenario.Scenario
	model gauge.Model
	tick  time.Duration
	now   func() time.Time
	hooks Hooks

	later []func()
}

type sessionDetails struct {
	Scenario string        `json:"scenario"`
	Seed     uint64        `json:"seed"`
	Tick     time.Duration `json:"tick"`
}

// NewEngine builds a room in Phase 1 and writes the session header records.
func NewEngine(id string, cfg Config, hooks Hooks) (*Engine, error) {
	if cfg.Library == nil {
		return nil, errors.New("room: nil scenario library")
	}
	key := cfg.Scenario
	if key == "" {
		keys := cfg.Library.ScenarioKeys()
		if len(keys) == 0 {
			return nil, errors.New("room: scenario library has no scenarios")
		}
		key = keys[cfg.Seed%uint64(len(keys))]
	}
	sc, ok := cfg.Library.Scenario(key)
	if !ok {
		return nil, fmt.Errorf("%w: scenario %q", ErrUnknownTarget, key)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Session == "" {
		cfg.Session = uuid.New().String()
	}

	events := make([]*fault.Machine, 0, len(sc.Events))
	for _, ev := range sc.Events {
		events = append(events, fault.New(ev))
	}
	e := &Engine{
		st:    newState(id, cfg.Session, key, cfg.Seed, events),
		lib:   cfg.Library,
		sc:    sc,
		model: gauge.Model{Seed: cfg.Seed},
		tick:  cfg.Tick,
		now:   cfg.Now,
		hooks: hooks,
	}
	e.computeGauges()
	e.record("", "", sessionlog.ActionSessionCreated, sessionDetails{Scenario: key, Seed: cfg.Seed, Tick: cfg.Tick})
	e.record("", "", sessionlog.ActionScenarioSelected, map[string]any{
		"scenario": key,
		"name":     sc.Name,
		"duration": float64(sc.Duration),
		"events":   len(sc.Events),
	})
	return e, nil
}

// State exposes the room state for read access from the owning goroutine.
func (e *Engine) State() *State               { return e.st }
func (e *Engine) Scenario() scenario.Scenario { return e.sc }
func (e *Engine) Library() *scenario.Library  { return e.lib }
func (e *Engine) TickDuration() time.Duration { return e.tick }

// Step runs one tick: clock, events, gauges, transition scoring, end of
// flight, and returns the snapshot to publish.
func (e *Engine) Step() Snapshot {
	st := e.st
	st.Tick++
	var transitions []fault.Transition
	if st.Phase == Phase2 && !st.Paused() {
		st.Clock += e.tick
		transitions = e.advanceEvents()
	}
	e.computeGauges()
	for _, t := range transitions {
		e.applyTransition(t)
	}
	e.checkEnd()
	return e.Snapshot()
}

func (e *Engine) advanceEvents() []fault.Transition {
	st := e.st
	if e.sc.Concurrent {
		var out []fault.Transition
		for _, m := range st.Events {
			out = append(out, m.Advance(st.Clock)...)
		}
		return out
	}
	front := st.front()
	if front == nil {
		return nil
	}
	out := front.Advance(st.Clock)
	for _, m := range st.Events {
		if m == front || m.State() != fault.Pending || st.Clock < m.PrecursorAt() {
			continue
		}
		m.Defer(st.Clock)
		if !st.Deferred[m.ID()] {
			st.Deferred[m.ID()] = true
			e.record("", "", sessionlog.ActionEventDeferred, map[string]string{"event": m.ID(), "behind": front.ID()})
		}
	}
	return out
}

func (e *Engine) computeGauges() {
	st := e.st
	overrides := make(map[string]*gauge.Override)
	for _, m := range st.Events {
		if o := m.Override(st.Clock); o != nil {
			overrides[m.Event().Precursor.Gauge] = o
		}
	}
	st.Gauges = e.model.Readings(e.lib.Gauges, st.Tick, st.Clock, overrides)
}

func (e *Engine) applyTransition(t fault.Transition) {
	m := e.machine(t.Event)
	if m == nil {
		panic(fmt.Sprintf("transition for unknown event %q", t.Event))
	}
	ev := m.Event()
	switch t.To {
	case fault.Precursor:
		e.record("", "", sessionlog.ActionPrecursorStarted, map[string]string{"event": ev.ID, "gauge": ev.Precursor.Gauge})
	case fault.Alert:
		e.record("", "", sessionlog.ActionEventAlert, map[string]string{"event": ev.ID, "level": ev.Alert.Level, "message": ev.Alert.Message})
		e.notify(Notice{Kind: NoticeAlert, Event: ev.ID, Level: ev.Alert.Level, Text: ev.Alert.Message})
		if t.Award != 0 {
			d := scoring.Evaluate(scoring.Trigger{Kind: scoring.KindReaction, Points: t.Award})
			e.award(d, ev.ID)
			e.record("", "", sessionlog.ActionAlertReaction, map[string]any{"event": ev.ID, "points": d.Points})
		}
	case fault.Resolved:
		e.record("", "", sessionlog.ActionEventEnded, map[string]string{"event": ev.ID, "outcome": t.Outcome})
		e.notify(Notice{Kind: NoticeSystem, Event: ev.ID, Text: fmt.Sprintf("%s: %s", ev.Name, t.Outcome)})
	}
}

func (e *Engine) checkEnd() {
	st := e.st
	switch st.Phase {
	case Phase2:
		if st.Clock < e.sc.Duration.Duration() {
			return
		}
		for _, m := range st.Events {
			if t, ok := m.Lapse(st.Clock); ok {
				e.applyTransition(t)
			}
		}
		if e.sc.WrapUp {
			e.setPhase(Phase3)
			return
		}
		e.complete()
	case Phase3:
		for _, m := range st.Events {
			if m.State() == fault.Response {
				return
			}
		}
		e.complete()
	}
}

func (e *Engine) complete() {
	st := e.st
	st.Outcome = st.Ledger.Outcome()
	e.setPhase(Complete)

	events := make(map[string]string, len(st.Events))
	for _, m := range st.Events {
		outcome := m.Outcome()
		if outcome == "" {
			outcome = m.State().String()
		}
		events[m.ID()] = outcome
	}
	var missed []string
	for _, id := range e.sc.AcceptableChecklists {
		if !st.UsedChecklists[id] {
			missed = append(missed, id)
		}
	}
	e.record("", "", sessionlog.ActionMissionComplete, map[string]any{
		"outcome": st.Outcome,
		"score":   st.Score(),
		"events":  events,
		"missed":  missed,
	})
	e.notify(Notice{Kind: NoticePhase, Text: st.Outcome, Points: st.Score()})
}

func (e *Engine) setPhase(p Phase) {
	from := e.st.Phase
	e.st.Phase = p
	e.record("", "", sessionlog.ActionPhaseChanged, map[string]string{"from": from.String(), "to": p.String()})
	e.notify(Notice{Kind: NoticePhase, Text: p.String()})
}

func (e *Engine) award(d scoring.Delta, ref string) {
	e.st.Ledger = append(e.st.Ledger, scoring.Entry{Delta: d, At: e.st.Clock, Ref: ref})
	e.notify(Notice{Kind: NoticeScore, Text: d.Reason, Points: d.Points, Event: ref})
}

func (e *Engine) machine(id string) *fault.Machine {
	for _, m := range e.st.Events {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// Resync notes a wall-clock anomaly. The sim clock is unaffected; the next
// Step still advances exactly one tick.
func (e *Engine) Resync(gap time.Duration) {
	e.record("", "", sessionlog.ActionClockResync, map[string]any{"gap_ms": gap.Milliseconds(), "tick_ms": e.tick.Milliseconds()})
}

// Fault records the invariant violation that is stopping the room.
func (e *Engine) Fault(reason any) {
	e.record("", "", sessionlog.ActionRoomFault, map[string]string{"reason": fmt.Sprint(reason)})
}

// Snapshot builds the outbound view of the current state.
func (e *Engine) Snapshot() Snapshot {
	st := e.st
	snap := Snapshot{
		Room:           st.ID,
		Session:        st.SessionID,
		Scenario:       st.Scenario,
		Tick:           st.Tick,
		ElapsedTime:    st.Clock.Seconds(),
		Duration:       float64(e.sc.Duration),
		Phase:          st.Phase,
		Paused:         st.Phase == Phase2 && st.Paused(),
		Gauges:         st.Gauges,
		Score:          st.Score(),
		UsedChecklists: st.Used(),
		Roles:          make(map[Role]Binding, len(st.Roles)),
		Outcome:        st.Outcome,
	}
	for r, b := range st.Roles {
		snap.Roles[r] = *b
	}
	switch st.Phase {
	case Phase1:
		if len(st.Pending) > 0 {
			p := st.Pending[0]
			snap.PendingDecision = &p
		}
		pending := make(map[string]bool, len(st.Pending))
		for _, p := range st.Pending {
			pending[p.Threat] = true
		}
		for _, t := range e.lib.Threats {
			if !st.Decided[t.ID] && !pending[t.ID] {
				snap.Undecided = append(snap.Undecided, t.ID)
			}
		}
		for _, q := range e.lib.Quiz {
			if !st.Answered[q.ID] {
				snap.Unanswered = append(snap.Unanswered, q.ID)
			}
		}
		for _, r := range Roles {
			if st.Ready[r] {
				snap.Ready = append(snap.Ready, r)
			}
		}
	case Phase2, Phase3:
		for _, c := range e.lib.Checklists {
			snap.Checklists = append(snap.Checklists, c.ID)
		}
	}
	for _, m := range st.Events {
		if !m.Unresolved() {
			continue
		}
		ev := m.Event()
		snap.ActiveEvent = &EventSummary{ID: ev.ID, Name: ev.Name, State: m.State(), Level: ev.Alert.Level, Message: ev.Alert.Message}
		if id, _ := m.Checklist(); id != "" && m.State() == fault.Response {
			cl, _ := e.lib.Checklist(id)
			snap.Checklist = &ChecklistView{ID: cl.ID, Title: cl.Title, Event: ev.ID, Items: cl.Items, Done: m.Items()}
		}
		break
	}
	return snap
}

type actionDetails struct {
	Input  Action `json:"input"`
	Result any    `json:"result,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Apply runs one operator action. A rejected action changes nothing but the
// log.
func (e *Engine) Apply(a Action) error {
	e.later = e.later[:0]
	result, err := e.dispatch(a)
	if err != nil {
		e.later = e.later[:0]
		action := sessionlog.ActionRejected
		if errors.Is(err, ErrDuplicateChecklist) {
			action = sessionlog.ActionRejectedDuplicate
		}
		e.record(a.Role, a.Name, action, actionDetails{Input: a, Code: Code(err), Reason: err.Error()})
		e.notify(Notice{Kind: NoticeRejected, Role: a.Role, Name: a.Name, Code: Code(err), Text: err.Error()})
		return err
	}
	e.record(a.Role, a.Name, a.Kind, actionDetails{Input: a, Result: result})
	for _, fn := range e.later {
		fn()
	}
	e.later = e.later[:0]
	return nil
}

func (e *Engine) after(fn func()) { e.later = append(e.later, fn) }

func (e *Engine) dispatch(a Action) (any, error) {
	switch a.Kind {
	case ActionJoin:
		return e.join(a)
	case ActionLeave:
		return e.leave(a)
	case ActionReady:
		return e.ready(a)
	case ActionPropose:
		return e.propose(a)
	case ActionVerify:
		return e.verify(a)
	case ActionAnswerQuiz:
		return e.answerQuiz(a)
	case ActionFlagGauge:
		return e.flag(a)
	case ActionSelectChecklist:
		return e.selectChecklist(a)
	case ActionCompleteItem:
		return e.completeItem(a)
	case ActionChat:
		return e.chat(a)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
}

// authorize checks that the sender holds the role and is connected.
func (e *Engine) authorize(a Action) (*Binding, error) {
	if !a.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, a.Role)
	}
	b := e.st.Roles[a.Role]
	if b == nil || b.Name != a.Name || !b.Connected {
		return nil, fmt.Errorf("%w: %s is not bound to %s", ErrInvalidRole, a.Name, a.Role)
	}
	return b, nil
}

func (e *Engine) join(a Action) (any, error) {
	st := e.st
	if !a.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, a.Role)
	}
	if strings.TrimSpace(a.Name) == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrInvalidRole)
	}
	id := a.identity()
	if other := st.Roles[a.Role.Other()]; other != nil && other.Name == id.Name {
		return nil, fmt.Errorf("%w: %s already holds %s", ErrInvalidRole, id.Name, a.Role.Other())
	}
	b := st.Roles[a.Role]
	switch {
	case b == nil:
		st.Roles[a.Role] = &Binding{Identity: id, Connected: true}
	case b.Identity == id && b.Connected:
		return nil, fmt.Errorf("%w: %s is already connected as %s", ErrInvalidRole, id.Name, a.Role)
	case b.Identity == id:
		b.Connected = true
	default:
		return nil, fmt.Errorf("%w: %s is held by %s", ErrInvalidRole, a.Role, b.Name)
	}
	e.notify(Notice{Kind: NoticeSystem, Role: a.Role, Name: id.Name, Text: fmt.Sprintf("%s joined as %s", id.Name, a.Role)})
	e.after(e.maybeStart)
	return map[string]Kind{"kind": id.Kind}, nil
}

func (e *Engine) leave(a Action) (any, error) {
	st := e.st
	b, err := e.authorize(a)
	if err != nil {
		return nil, err
	}
	if st.Phase == Phase1 {
		delete(st.Roles, a.Role)
		delete(st.Ready, a.Role)
	} else {
		b.Connected = false
	}
	e.notify(Notice{Kind: NoticeSystem, Role: a.Role, Name: a.Name, Text: fmt.Sprintf("%s left", a.Name)})
	e.after(func() {
		if st.Connected() == 0 {
			e.record("", "", sessionlog.ActionRoomEmpty, nil)
		}
	})
	return nil, nil
}

func (e *Engine) ready(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	if e.st.Phase != Phase1 {
		return nil, ErrOutOfPhase
	}
	e.st.Ready[a.Role] = true
	e.after(e.maybeStart)
	return nil, nil
}

// maybeStart enters Phase 2 once both roles are bound, connected and ready.
// Automated roles are always ready.
func (e *Engine) maybeStart() {
	st := e.st
	if st.Phase != Phase1 {
		return
	}
	for _, r := range Roles {
		b := st.Roles[r]
		if b == nil || !b.Connected {
			return
		}
		if b.Kind != Automated && !st.Ready[r] {
			return
		}
	}
	e.setPhase(Phase2)
}

func (e *Engine) propose(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	if a.Role != Controlling {
		return nil, fmt.Errorf("%w: only the controlling role proposes", ErrInvalidRole)
	}
	st := e.st
	if st.Phase != Phase1 {
		return nil, ErrOutOfPhase
	}
	t, ok := e.lib.Threat(a.Threat)
	if !ok {
		return nil, fmt.Errorf("%w: threat %q", ErrUnknownTarget, a.Threat)
	}
	if _, ok := t.Option(a.Option); !ok {
		return nil, fmt.Errorf("%w: option %q", ErrUnknownTarget, a.Option)
	}
	if st.Decided[t.ID] {
		return nil, fmt.Errorf("%w: threat %q already decided", ErrOutOfPhase, t.ID)
	}
	for _, p := range st.Pending {
		if p.Threat == t.ID {
			return nil, fmt.Errorf("%w: threat %q already awaiting verification", ErrOutOfPhase, t.ID)
		}
	}
	st.Pending = append(st.Pending, Proposal{Threat: t.ID, Option: a.Option, By: a.Name})
	e.notify(Notice{Kind: NoticeSystem, Role: a.Role, Name: a.Name, Event: t.ID, Text: fmt.Sprintf("%s proposes %s for %s", a.Name, a.Option, t.ID)})
	return map[string]int{"queue": len(st.Pending)}, nil
}

func (e *Engine) verify(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	if a.Role != Monitoring {
		return nil, fmt.Errorf("%w: only the monitoring role verifies", ErrInvalidRole)
	}
	st := e.st
	if st.Phase != Phase1 {
		return nil, ErrOutOfPhase
	}
	if len(st.Pending) == 0 {
		return nil, fmt.Errorf("%w: no proposal awaiting verification", ErrOutOfPhase)
	}
	p := st.Pending[0]
	t, _ := e.lib.Threat(p.Threat)
	opt, ok := t.Option(p.Option)
	if !ok {
		panic(fmt.Sprintf("queued proposal references unknown option %q", p.Option))
	}
	st.Pending = st.Pending[1:]
	st.Decided[p.Threat] = true
	d := scoring.Evaluate(scoring.Trigger{Kind: scoring.KindDecision, Correct: opt.Correct, Approved: a.Approve})
	e.award(d, p.Threat)
	return map[string]any{"threat": p.Threat, "option": p.Option, "delta": d}, nil
}

func (e *Engine) answerQuiz(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	if a.Role != Monitoring {
		return nil, fmt.Errorf("%w: only the monitoring role answers the quiz", ErrInvalidRole)
	}
	st := e.st
	if st.Phase != Phase1 {
		return nil, ErrOutOfPhase
	}
	q, ok := e.lib.Question(a.Question)
	if !ok {
		return nil, fmt.Errorf("%w: question %q", ErrUnknownTarget, a.Question)
	}
	known := false
	for _, o := range q.Options {
		known = known || o.ID == a.Answer
	}
	if !known {
		return nil, fmt.Errorf("%w: answer %q", ErrUnknownTarget, a.Answer)
	}
	if st.Answered[q.ID] {
		return nil, fmt.Errorf("%w: question %q already answered", ErrOutOfPhase, q.ID)
	}
	st.Answered[q.ID] = true
	d := scoring.Evaluate(scoring.Trigger{Kind: scoring.KindQuiz, Correct: q.Correct(a.Answer)})
	e.award(d, q.ID)
	return map[string]any{"question": q.ID, "delta": d}, nil
}

func (e *Engine) flag(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	st := e.st
	if st.Phase != Phase2 {
		return nil, ErrOutOfPhase
	}
	target, ok := e.lib.TargetOf(a.Gauge)
	if !ok {
		return nil, fmt.Errorf("%w: gauge %q", ErrUnknownTarget, a.Gauge)
	}
	st.Monitored[target] = true
	var detected []string
	for _, m := range st.Events {
		if !m.Flag(target) {
			continue
		}
		ev := m.Event()
		detected = append(detected, ev.ID)
		d := scoring.Evaluate(scoring.Trigger{Kind: scoring.KindDetection, Points: ev.DetectionScore})
		e.award(d, ev.ID)
		e.after(func() {
			e.record(a.Role, a.Name, sessionlog.ActionPrecursorDetected, map[string]any{"event": ev.ID, "gauge": target, "points": d.Points})
		})
	}
	return map[string]any{"target": target, "detected": detected}, nil
}

// checklistTarget is the event a checklist selection applies to: the first
// event in Alert, or in Response under a wrong checklist.
func (e *Engine) checklistTarget() *fault.Machine {
	for _, m := range e.st.Events {
		switch m.State() {
		case fault.Alert:
			return m
		case fault.Response:
			if _, correct := m.Checklist(); !correct {
				return m
			}
		}
	}
	return nil
}

func (e *Engine) selectChecklist(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	st := e.st
	if st.Phase != Phase2 && st.Phase != Phase3 {
		return nil, ErrOutOfPhase
	}
	cl, ok := e.lib.Checklist(a.Checklist)
	if !ok {
		return nil, fmt.Errorf("%w: checklist %q", ErrUnknownTarget, a.Checklist)
	}
	if st.UsedChecklists[cl.ID] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateChecklist, cl.ID)
	}
	m := e.checklistTarget()
	if m == nil {
		return nil, fmt.Errorf("%w: no event awaiting a checklist", ErrOutOfPhase)
	}
	ev := m.Event()
	correct := ev.Accepts(cl.ID)
	if _, err := m.Select(cl.ID, len(cl.Items), correct, st.Clock); err != nil {
		return nil, err
	}
	st.markUsed(cl.ID)
	d := scoring.Evaluate(scoring.Trigger{
		Kind:    scoring.KindChecklist,
		Correct: correct,
		Points:  ev.CorrectChecklistScore,
		Penalty: ev.IncorrectChecklistPenalty,
	})
	e.award(d, cl.ID)
	return map[string]any{"event": ev.ID, "correct": correct, "delta": d}, nil
}

func (e *Engine) completeItem(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	st := e.st
	if st.Phase != Phase2 && st.Phase != Phase3 {
		return nil, ErrOutOfPhase
	}
	if _, ok := e.lib.Checklist(a.Checklist); !ok {
		return nil, fmt.Errorf("%w: checklist %q", ErrUnknownTarget, a.Checklist)
	}
	var m *fault.Machine
	for _, cand := range st.Events {
		if id, _ := cand.Checklist(); id == a.Checklist && cand.State() == fault.Response {
			m = cand
			break
		}
	}
	if m == nil {
		return nil, fmt.Errorf("%w: checklist %q is not being run", ErrOutOfPhase, a.Checklist)
	}
	t, err := m.Complete(a.Checklist, a.Index, st.Clock)
	if err != nil {
		if errors.Is(err, fault.ErrUnknownItem) {
			return nil, fmt.Errorf("%w: item %d", ErrUnknownTarget, a.Index)
		}
		return nil, err
	}
	if t != nil {
		_, correct := m.Checklist()
		e.after(func() {
			e.record(a.Role, a.Name, sessionlog.ActionChecklistComplete, map[string]any{"checklist": a.Checklist, "event": m.ID(), "correct": correct})
			e.applyTransition(*t)
		})
	}
	return map[string]any{"event": m.ID(), "resolved": t != nil}, nil
}

func (e *Engine) chat(a Action) (any, error) {
	if _, err := e.authorize(a); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidAction)
	}
	if utf8.RuneCountInString(text) > maxChatLen {
		text = string([]rune(text)[:maxChatLen])
	}
	line := ChatLine{At: e.now(), Role: a.Role, Name: a.Name, Text: text}
	e.st.addChat(line)
	e.notify(Notice{Kind: NoticeChat, Role: a.Role, Name: a.Name, Text: text})
	return nil, nil
}

func (e *Engine) record(role Role, actor, action string, details any) {
	st := e.st
	seq := st.Seq
	st.Seq++
	if e.hooks.Record == nil {
		return
	}
	e.hooks.Record(sessionlog.Record{
		Timestamp: e.now(),
		Elapsed:   st.Clock.Seconds(),
		Room:      st.ID,
		Session:   st.SessionID,
		Tick:      st.Tick,
		Seq:       seq,
		Role:      string(role),
		Actor:     actor,
		Action:    action,
		Details:   sessionlog.Detail(details),
		Phase:     st.Phase.String(),
		Score:     st.Score(),
	})
}

func (e *Engine) notify(n Notice) {
	if e.hooks.Notify == nil {
		return
	}
	n.Room = e.st.ID
	n.Tick = e.st.Tick
	e.hooks.Notify(n)
}
