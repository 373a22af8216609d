package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimal = `
gauges:
  - { id: oil_p, name: Oil Pressure, baseline: 80, min: 0, max: 115 }
  - { id: fuel_l, name: Fuel L, group: fuel, channel: left, baseline: 25, min: 0, max: 30 }
  - { id: fuel_r, name: Fuel R, group: fuel, channel: right, baseline: 25, min: 0, max: 30 }
checklists:
  - { id: oil, title: LOW OIL, items: [throttle, land] }
  - { id: fuel, title: FUEL, items: [selector] }
scenarios:
  - key: solo
    name: Solo
    duration: 60
    acceptable_checklists: [oil]
    events:
      - id: late
        name: Late
        precursor_start: 30
        alert_start: 40
        end: 50
        precursor: { gauge: fuel, pattern: asymmetric, endpoint: 5 }
        alert: { level: caution, message: FUEL }
        required_checklists: [fuel]
      - id: early
        name: Early
        precursor_start: 5
        alert_start: 10
        end: 20
        precursor: { gauge: oil_p, pattern: fluctuate_down, endpoint: 10 }
        alert: { level: failure, message: OIL }
        required_checklists: [oil]
        detection_score: 25
        incorrect_checklist_penalty: 0
`

func TestDefaultLibrary(t *testing.T) {
	lib, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	keys := lib.ScenarioKeys()
	want := []string{"critical_situation", "routine_flight", "winter_ops"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("ScenarioKeys() = %v, want %v", keys, want)
	}
	for _, key := range keys {
		sc, _ := lib.Scenario(key)
		for _, ev := range sc.Events {
			if ev.CorrectChecklistScore != 20 || ev.IncorrectChecklistPenalty != 20 {
				t.Fatalf("%s/%s checklist scores = %d/%d, want 20/20", key, ev.ID, ev.CorrectChecklistScore, ev.IncorrectChecklistPenalty)
			}
			if !lib.IsTarget(ev.Precursor.Gauge) {
				t.Fatalf("%s/%s targets unknown gauge %q", key, ev.ID, ev.Precursor.Gauge)
			}
		}
	}
	if got, ok := lib.TargetOf("fuel_qty_left"); !ok || got != "fuel_qty" {
		t.Fatalf("TargetOf(fuel_qty_left) = %q, %v, want fuel_qty", got, ok)
	}
	if got, ok := lib.TargetOf("fuel_qty"); !ok || got != "fuel_qty" {
		t.Fatalf("TargetOf(fuel_qty) = %q, %v, want fuel_qty", got, ok)
	}
	if _, ok := lib.TargetOf("egt"); ok {
		t.Fatalf("TargetOf(egt) found a target")
	}
	threat, ok := lib.Threat("Landing_Light_U/S")
	if !ok {
		t.Fatalf("Threat(Landing_Light_U/S) not found")
	}
	if opt, _ := threat.Option("daylight_ok"); opt.Correct {
		t.Fatalf("daylight_ok marked correct")
	}
	q, _ := lib.Question("fire_memory_item")
	if !q.Correct("b") || q.Correct("a") {
		t.Fatalf("fire_memory_item answer key is wrong")
	}
}

func TestLoadNormalizes(t *testing.T) {
	lib, err := Load([]byte(minimal))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sc, ok := lib.Scenario("solo")
	if !ok {
		t.Fatalf("Scenario(solo) not found")
	}
	if sc.Events[0].ID != "early" || sc.Events[1].ID != "late" {
		t.Fatalf("events = %s, %s; want sorted by precursor start", sc.Events[0].ID, sc.Events[1].ID)
	}
	late := sc.Events[1]
	if late.Precursor.Channel != "right" {
		t.Fatalf("asymmetric channel = %q, want right", late.Precursor.Channel)
	}
	if late.CorrectChecklistScore != 20 || late.IncorrectChecklistPenalty != 20 {
		t.Fatalf("checklist scores = %d/%d, want 20/20", late.CorrectChecklistScore, late.IncorrectChecklistPenalty)
	}
	early := sc.Events[0]
	if early.CorrectChecklistScore != 20 || early.IncorrectChecklistPenalty != 0 {
		t.Fatalf("explicit zero penalty: scores = %d/%d, want 20/0", early.CorrectChecklistScore, early.IncorrectChecklistPenalty)
	}
	if sc.Events[0].DetectionScore != 25 {
		t.Fatalf("detection score = %d, want 25", sc.Events[0].DetectionScore)
	}
	if got := sc.Duration.Duration().Seconds(); got != 60 {
		t.Fatalf("duration = %vs, want 60s", got)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(string) string
		wantMsg string
	}{
		{
			name: "unknown field",
			edit: func(s string) string {
				return strings.Replace(s, "    duration: 60\n", "    duration: 60\n    autopilot: true\n", 1)
			},
			wantMsg: "autopilot",
		},
		{
			name:    "unknown pattern",
			edit:    func(s string) string { return strings.Replace(s, "fluctuate_down", "wobble", 1) },
			wantMsg: "pattern",
		},
		{
			name:    "offsets out of order",
			edit:    func(s string) string { return strings.Replace(s, "alert_start: 10", "alert_start: 25", 1) },
			wantMsg: "precursor < alert < end",
		},
		{
			name:    "event past duration",
			edit:    func(s string) string { return strings.Replace(s, "end: 50", "end: 70", 1) },
			wantMsg: "ends after the scenario",
		},
		{
			name: "unknown checklist",
			edit: func(s string) string {
				return strings.Replace(s, "acceptable_checklists: [oil]", "acceptable_checklists: [oil, smoke]", 1)
			},
			wantMsg: `unknown checklist "smoke"`,
		},
		{
			name:    "unknown gauge",
			edit:    func(s string) string { return strings.Replace(s, "gauge: oil_p", "gauge: egt", 1) },
			wantMsg: `unknown gauge "egt"`,
		},
		{
			name:    "duplicate event",
			edit:    func(s string) string { return strings.Replace(s, "id: late", "id: early", 1) },
			wantMsg: "duplicate event",
		},
		{
			name:    "duplicate checklist",
			edit:    func(s string) string { return strings.Replace(s, "id: fuel, title", "id: oil, title", 1) },
			wantMsg: "duplicate checklist",
		},
		{
			name:    "baseline out of range",
			edit:    func(s string) string { return strings.Replace(s, "baseline: 80", "baseline: 180", 1) },
			wantMsg: "outside",
		},
		{
			name: "empty required set",
			edit: func(s string) string {
				return strings.Replace(s, "required_checklists: [oil]", "required_checklists: []", 1)
			},
			wantMsg: "required_checklists",
		},
		{
			name:    "not yaml",
			edit:    func(string) string { return "gauges: [" },
			wantMsg: "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.edit(minimal)
			if src == minimal {
				t.Fatalf("edit did not change the fixture")
			}
			_, err := Load([]byte(src))
			if !errors.Is(err, ErrInvalidLibrary) {
				t.Fatalf("Load() error = %v, want %v", err, ErrInvalidLibrary)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("Load() error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadQuizNeedsOneCorrectAnswer(t *testing.T) {
	src := minimal + `
quiz:
  - id: q1
    prompt: Pick one
    options:
      - { id: a, text: A, correct: true }
      - { id: b, text: B, correct: true }
`
	_, err := Load([]byte(src))
	if !errors.Is(err, ErrInvalidLibrary) || !strings.Contains(err.Error(), "exactly one correct") {
		t.Fatalf("Load() error = %v, want exactly-one-correct failure", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	lib, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if _, ok := lib.Checklist("fuel"); !ok {
		t.Fatalf("Checklist(fuel) not found")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadFile(missing) error = nil, want error")
	}
}

func TestAmplitude(t *testing.T) {
	tests := []struct {
		g    Gauge
		want float64
	}{
		{Gauge{Baseline: 80}, 0.8},
		{Gauge{Baseline: -10}, 0.1},
		{Gauge{Baseline: 25, Jitter: -1}, 0},
		{Gauge{Baseline: 0, Jitter: 0.3}, 0.3},
	}
	for _, tt := range tests {
		if got := tt.g.Amplitude(); got != tt.want {
			t.Fatalf("Amplitude(%+v) = %v, want %v", tt.g, got, tt.want)
		}
	}
}
