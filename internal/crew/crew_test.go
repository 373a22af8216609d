package crew

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gosuda/temsim/internal/fault"
	"github.com/gosuda/temsim/internal/room"
	"github.com/gosuda/temsim/internal/scenario"
)

func library(t *testing.T) *scenario.Library {
	t.Helper()
	lib, err := scenario.Default()
	if err != nil {
		t.Fatalf("scenario.Default() error = %v", err)
	}
	return lib
}

func scripted(t *testing.T, role room.Role) Provider {
	t.Helper()
	p, err := New(ScriptedName, Config{Library: library(t), Role: role})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func decide(t *testing.T, p Provider, role room.Role, snap room.Snapshot) Decision {
	t.Helper()
	d, err := p.Decide(context.Background(), Observation{Snapshot: snap, Role: role, Name: "crew"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	return d
}

func TestRegistry(t *testing.T) {
	if _, err := New("oracle", Config{Role: room.Controlling}); err == nil {
		t.Fatalf("New(oracle) error = nil, want unknown provider")
	}
	if _, err := New(ScriptedName, Config{Library: library(t), Role: "captain"}); !errors.Is(err, room.ErrInvalidRole) {
		t.Fatalf("New() with bad role error = %v, want %v", err, room.ErrInvalidRole)
	}
	if _, err := New(ScriptedName, Config{Role: room.Controlling}); err == nil {
		t.Fatalf("New() without library error = nil, want error")
	}
	Register("idle", func(Config) (Provider, error) { return idle{}, nil })
	names := Names()
	if len(names) < 2 || names[0] != "idle" || names[len(names)-1] != ScriptedName {
		t.Fatalf("Names() = %v", names)
	}
}

type idle struct{}

func (idle) Name() string { return "idle" }
func (idle) Decide(context.Context, Observation) (Decision, error) {
	return Decision{}, nil
}

func TestScriptedPhaseOne(t *testing.T) {
	ctl := scripted(t, room.Controlling)
	d := decide(t, ctl, room.Controlling, room.Snapshot{Phase: room.Phase1, Undecided: []string{"Landing_Light_U/S"}})
	if d.Action == nil || d.Action.Kind != room.ActionPropose || d.Action.Option != "check_mel" {
		t.Fatalf("proposal = %+v, want the first correct option", d.Action)
	}

	mon := scripted(t, room.Monitoring)
	d = decide(t, mon, room.Monitoring, room.Snapshot{Phase: room.Phase1, PendingDecision: &room.Proposal{Threat: "Recovering_from_Cold", Option: "simple_flight"}})
	if d.Action == nil || d.Action.Kind != room.ActionVerify || d.Action.Approve {
		t.Fatalf("verify of an unsafe option = %+v, want a rejection", d.Action)
	}
	d = decide(t, mon, room.Monitoring, room.Snapshot{Phase: room.Phase1, Unanswered: []string{"engine_failure_turn"}})
	if d.Action == nil || d.Action.Answer != "b" {
		t.Fatalf("quiz answer = %+v, want b", d.Action)
	}
	if d := decide(t, mon, room.Monitoring, room.Snapshot{Phase: room.Phase1}); d.Action != nil {
		t.Fatalf("idle phase1 decision = %+v, want none", d.Action)
	}
}

func TestScriptedWatchFlagsDriftOnce(t *testing.T) {
	lib := library(t)
	mon := scripted(t, room.Monitoring)
	gauges := make(map[string]float64)
	for _, g := range lib.Gauges {
		gauges[g.ID] = g.Baseline - g.BurnRate*10
	}
	snap := room.Snapshot{Phase: room.Phase2, Scenario: "critical_situation", ElapsedTime: 10, Gauges: gauges}
	if d := decide(t, mon, room.Monitoring, snap); d.Action != nil {
		t.Fatalf("nominal gauges flagged: %+v", d.Action)
	}

	gauges["oil_p"] = 55
	d := decide(t, mon, room.Monitoring, snap)
	if d.Action == nil || d.Action.Kind != room.ActionFlagGauge || d.Action.Gauge != "oil_p" {
		t.Fatalf("drifting oil pressure decision = %+v, want flag oil_p", d.Action)
	}
	if d := decide(t, mon, room.Monitoring, snap); d.Action != nil {
		t.Fatalf("second look flagged again: %+v", d.Action)
	}

	gauges["fuel_qty_right"] -= 6
	d = decide(t, mon, room.Monitoring, snap)
	if d.Action == nil || d.Action.Gauge != "fuel_qty" {
		t.Fatalf("fuel split decision = %+v, want flag on the fuel_qty group", d.Action)
	}
}

func TestScriptedRunsChecklist(t *testing.T) {
	lib := library(t)
	ctl := scripted(t, room.Controlling)
	alert := &room.EventSummary{ID: "oil_pressure_loss", State: fault.Alert}
	snap := room.Snapshot{Phase: room.Phase2, Scenario: "critical_situation", ActiveEvent: alert}

	d := decide(t, ctl, room.Controlling, snap)
	if d.Action == nil || d.Action.Kind != room.ActionSelectChecklist || d.Action.Checklist != "low_oil_pressure" {
		t.Fatalf("alert decision = %+v, want low_oil_pressure", d.Action)
	}

	cl, _ := lib.Checklist("low_oil_pressure")
	snap.ActiveEvent = &room.EventSummary{ID: "oil_pressure_loss", State: fault.Response}
	snap.UsedChecklists = []string{"low_oil_pressure"}
	snap.Checklist = &room.ChecklistView{ID: cl.ID, Items: cl.Items, Done: []bool{true, false, false}}
	d = decide(t, ctl, room.Controlling, snap)
	if d.Action == nil || d.Action.Kind != room.ActionCompleteItem || d.Action.Index != 1 {
		t.Fatalf("response decision = %+v, want item 1", d.Action)
	}

	snap.Checklist = &room.ChecklistView{ID: "engine_fire", Items: []string{"x"}, Done: []bool{false}}
	snap.UsedChecklists = []string{"engine_fire"}
	d = decide(t, ctl, room.Controlling, snap)
	if d.Action == nil || d.Action.Kind != room.ActionSelectChecklist || d.Action.Checklist != "low_oil_pressure" {
		t.Fatalf("wrong checklist recovery = %+v, want reselect", d.Action)
	}

	snap.UsedChecklists = []string{"engine_fire", "low_oil_pressure"}
	if d := decide(t, ctl, room.Controlling, snap); d.Action != nil || d.Recommendation == "" {
		t.Fatalf("exhausted checklists decision = %+v", d)
	}
	if d := decide(t, ctl, room.Controlling, room.Snapshot{Phase: room.Phase2, Scenario: "critical_situation"}); d.Action != nil {
		t.Fatalf("quiet flight decision = %+v, want none", d.Action)
	}
}

func TestAgentPublishKeepsLatest(t *testing.T) {
	a := NewAgent(nil, room.Monitoring, idle{}, AgentOptions{})
	for i := uint64(1); i <= 5; i++ {
		a.Publish(room.Snapshot{Tick: i})
	}
	if got := (<-a.latest).Tick; got != 5 {
		t.Fatalf("latest tick = %d, want 5", got)
	}
	if a.Name() != "crew-monitoring" {
		t.Fatalf("Name() = %q, want crew-monitoring", a.Name())
	}
}

func TestAgentFliesWithHumanPartner(t *testing.T) {
	lib := library(t)
	agent := (*Agent)(nil)
	var mu sync.Mutex
	fanout := &lateBroadcaster{get: func() room.Broadcaster {
		mu.Lock()
		defer mu.Unlock()
		if agent == nil {
			return nil
		}
		return agent
	}}
	rm, err := room.Start("alpha", room.Config{Library: lib, Scenario: "critical_situation", Tick: time.Millisecond}, room.Options{Broadcaster: fanout})
	if err != nil {
		t.Fatalf("room.Start() error = %v", err)
	}
	defer func() {
		rm.Stop()
		<-rm.Done()
	}()

	p, err := New(ScriptedName, Config{Library: lib, Role: room.Monitoring})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mu.Lock()
	agent = NewAgent(rm, room.Monitoring, p, AgentOptions{Interval: time.Millisecond})
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- agent.Run(ctx) }()

	do := func(a room.Action) {
		t.Helper()
		if err := rm.Do(context.Background(), a); err != nil {
			t.Fatalf("Do(%s) error = %v", a.Kind, err)
		}
	}
	do(room.Join(room.Controlling, room.Identity{Kind: room.Human, Name: "kim"}))
	do(room.ProposeDecision("kim", "24015G25KT", "ignore_wind"))

	waitFor(t, "verification and quiz", func(st *room.State) bool {
		return st.Decided["24015G25KT"] && len(st.Answered) == len(lib.Quiz)
	}, rm)
	do(room.Ready(room.Controlling, "kim"))

	waitFor(t, "precursor detection", func(st *room.State) bool {
		return st.Events[0].Detected()
	}, rm)

	var score int
	if err := rm.Query(context.Background(), func(st *room.State) { score = st.Score() }); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	// rejected unsafe proposal +5, three correct answers +30, detection +25
	if score != 60 {
		t.Fatalf("score = %d, want 60", score)
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want %v", err, context.Canceled)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("agent did not stop")
	}
	waitFor(t, "agent to leave", func(st *room.State) bool {
		b := st.Roles[room.Monitoring]
		return b != nil && !b.Connected
	}, rm)
}

// lateBroadcaster forwards to a receiver that is created after the room.
type lateBroadcaster struct{ get func() room.Broadcaster }

func (l *lateBroadcaster) Publish(s room.Snapshot) {
	if b := l.get(); b != nil {
		b.Publish(s)
	}
}

func (l *lateBroadcaster) Notify(n room.Notice) {
	if b := l.get(); b != nil {
		b.Notify(n)
	}
}

func waitFor(t *testing.T, what string, cond func(*room.State) bool, rm *room.Room) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		if err := rm.Query(context.Background(), func(st *room.State) { ok = cond(st) }); err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
