// Package scenario holds the static training content: instruments, checklists,
// pre-flight threats, the knowledge quiz and the fault scenarios. A Library is
// read-only once loaded and is shared by every room without locking.
package scenario

import (
	"math"
	"sort"
	"time"
)

// Precursor pattern names understood by the gauge model.
const (
	PatternFluctuateDown = "fluctuate_down"
	PatternGradualDrop   = "gradual_drop"
	PatternAsymmetric    = "asymmetric"
	PatternDischarge     = "discharge"
)

// Seconds is an offset or duration expressed in seconds in the library file.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}

// Gauge describes one simulated instrument.
type Gauge struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Unit string `yaml:"unit" json:"unit"`
	// Group joins the channels of a multi-channel instrument (left/right fuel
	// tanks) under one flaggable target.
	Group    string  `yaml:"group,omitempty" json:"group,omitempty"`
	Channel  string  `yaml:"channel,omitempty" json:"channel,omitempty"`
	Baseline float64 `yaml:"baseline" json:"baseline"`
	// Jitter is the absolute half-width of the natural fluctuation. Zero means
	// 1% of the baseline; a negative value disables fluctuation.
	Jitter   float64 `yaml:"jitter,omitempty" json:"jitter,omitempty"`
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
	BurnRate float64 `yaml:"burn_rate,omitempty" json:"burn_rate,omitempty"`
}

// Target is the identifier operators flag and events aim at.
func (g Gauge) Target() string {
	if g.Group != "" {
		return g.Group
	}
	return g.ID
}

// Amplitude is the half-width of the default fluctuation.
func (g Gauge) Amplitude() float64 {
	switch {
	case g.Jitter < 0:
		return 0
	case g.Jitter > 0:
		return g.Jitter
	default:
		return math.Abs(g.Baseline) * 0.01
	}
}

// Span is the width of the display range.
func (g Gauge) Span() float64 { return g.Max - g.Min }

// Checklist is a named, ordered set of response items. Each checklist can be
// run at most once per room.
type Checklist struct {
	ID    string   `yaml:"id" json:"id"`
	Title string   `yaml:"title" json:"title"`
	Items []string `yaml:"items" json:"items"`
}

// Option is one answer to a threat or a quiz question. Correct is scenario
// ground truth; the engine never infers it.
type Option struct {
	ID      string `yaml:"id" json:"id"`
	Text    string `yaml:"text" json:"text"`
	Correct bool   `yaml:"correct" json:"-"`
}

// Threat is a pre-flight item the controlling role proposes a mitigation for.
type Threat struct {
	ID          string   `yaml:"id" json:"id"`
	Kind        string   `yaml:"kind" json:"kind"`
	Description string   `yaml:"description" json:"description"`
	Reference   []string `yaml:"reference,omitempty" json:"reference,omitempty"`
	Options     []Option `yaml:"options" json:"options"`
}

// Option returns the option with the given id.
func (t Threat) Option(id string) (Option, bool) {
	for _, o := range t.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Question is one knowledge-check item.
type Question struct {
	ID          string   `yaml:"id" json:"id"`
	Prompt      string   `yaml:"prompt" json:"prompt"`
	Options     []Option `yaml:"options" json:"options"`
	Explanation string   `yaml:"explanation" json:"explanation"`
}

// Correct reports whether answer is the question's correct option.
func (q Question) Correct(answer string) bool {
	for _, o := range q.Options {
		if o.ID == answer {
			return o.Correct
		}
	}
	return false
}

// Precursor describes how the target gauge misbehaves before the alert.
type Precursor struct {
	Gauge   string `yaml:"gauge" json:"gauge"`
	Pattern string `yaml:"pattern" json:"pattern"`
	// Endpoint is where the pattern settles once the alert fires. For the
	// asymmetric pattern it is the extra amount drained from Channel.
	Endpoint    float64 `yaml:"endpoint" json:"endpoint"`
	Channel     string  `yaml:"channel,omitempty" json:"channel,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// Alert is the formal warning raised when the precursor window closes.
type Alert struct {
	Level   string `yaml:"level" json:"level"`
	Message string `yaml:"message" json:"message"`
}

// Event is one scheduled fault. Offsets are measured from the start of Phase 2.
type Event struct {
	ID             string    `yaml:"id" json:"id"`
	Name           string    `yaml:"name" json:"name"`
	PrecursorStart Seconds   `yaml:"precursor_start" json:"precursor_start"`
	AlertStart     Seconds   `yaml:"alert_start" json:"alert_start"`
	End            Seconds   `yaml:"end" json:"end"`
	Precursor      Precursor `yaml:"precursor" json:"precursor"`
	Alert          Alert     `yaml:"alert" json:"alert"`

	RequiredChecklists        []string `yaml:"required_checklists" json:"required_checklists"`
	DetectionScore            int      `yaml:"detection_score" json:"detection_score"`
	ReactionScore             int      `yaml:"reaction_score" json:"reaction_score"`
	CorrectChecklistScore     int      `yaml:"correct_checklist_score" json:"correct_checklist_score"`
	IncorrectChecklistPenalty int      `yaml:"incorrect_checklist_penalty" json:"incorrect_checklist_penalty"`
}

// Accepts reports whether checklist resolves this event correctly.
func (e Event) Accepts(checklist string) bool {
	for _, id := range e.RequiredChecklists {
		if id == checklist {
			return true
		}
	}
	return false
}

// Scenario is one Phase 2 flight with its ordered fault events.
type Scenario struct {
	Key                  string   `yaml:"key" json:"key"`
	Name                 string   `yaml:"name" json:"name"`
	Description          string   `yaml:"description" json:"description"`
	Duration             Seconds  `yaml:"duration" json:"duration"`
	AcceptableChecklists []string `yaml:"acceptable_checklists" json:"acceptable_checklists"`
	// Concurrent lets events overlap. Without it a due event waits until the
	// previous one is resolved.
	Concurrent bool `yaml:"concurrent,omitempty" json:"concurrent,omitempty"`
	// WrapUp ends the flight in Phase 3 so open checklists can be finished.
	WrapUp bool    `yaml:"wrap_up,omitempty" json:"wrap_up,omitempty"`
	Events []Event `yaml:"events" json:"events"`
}

// Library is the full, validated training content.
type Library struct {
	Gauges     []Gauge     `yaml:"gauges" json:"gauges"`
	Checklists []Checklist `yaml:"checklists" json:"checklists"`
	Threats    []Threat    `yaml:"threats" json:"threats"`
	Quiz       []Question  `yaml:"quiz" json:"quiz"`
	Scenarios  []Scenario  `yaml:"scenarios" json:"scenarios"`

	gauges     map[string]int
	checklists map[string]int
	threats    map[string]int
	questions  map[string]int
	scenarios  map[string]int
	targets    map[string]bool
}

func (l *Library) index() {
	l.gauges = make(map[string]int, len(l.Gauges))
	l.targets = make(map[string]bool, len(l.Gauges))
	for i, g := range l.Gauges {
		l.gauges[g.ID] = i
		l.targets[g.Target()] = true
	}
	l.checklists = make(map[string]int, len(l.Checklists))
	for i, c := range l.Checklists {
		l.checklists[c.ID] = i
	}
	l.threats = make(map[string]int, len(l.Threats))
	for i, t := range l.Threats {
		l.threats[t.ID] = i
	}
	l.questions = make(map[string]int, len(l.Quiz))
	for i, q := range l.Quiz {
		l.questions[q.ID] = i
	}
	l.scenarios = make(map[string]int, len(l.Scenarios))
	for i, s := range l.Scenarios {
		l.scenarios[s.Key] = i
	}
}

func (l *Library) Gauge(id string) (Gauge, bool) {
	i, ok := l.gauges[id]
	if !ok {
		return Gauge{}, false
	}
	return l.Gauges[i], true
}

// IsTarget reports whether id names a flaggable instrument (a gauge id or a
// channel group).
func (l *Library) IsTarget(id string) bool { return l.targets[id] }

// TargetOf maps a gauge id or group id to its flaggable target.
func (l *Library) TargetOf(id string) (string, bool) {
	if g, ok := l.Gauge(id); ok {
		return g.Target(), true
	}
	if l.targets[id] {
		return id, true
	}
	return "", false
}

func (l *Library) Checklist(id string) (Checklist, bool) {
	i, ok := l.checklists[id]
	if !ok {
		return Checklist{}, false
	}
	return l.Checklists[i], true
}

func (l *Library) Threat(id string) (Threat, bool) {
	i, ok := l.threats[id]
	if !ok {
		return Threat{}, false
	}
	return l.Threats[i], true
}

func (l *Library) Question(id string) (Question, bool) {
	i, ok := l.questions[id]
	if !ok {
		return Question{}, false
	}
	return l.Quiz[i], true
}

func (l *Library) Scenario(key string) (Scenario, bool) {
	i, ok := l.scenarios[key]
	if !ok {
		return Scenario{}, false
	}
	return l.Scenarios[i], true
}

// ScenarioKeys returns every scenario key in sorted order.
func (l *Library) ScenarioKeys() []string {
	keys := make([]string, 0, len(l.Scenarios))
	for _, s := range l.Scenarios {
		keys = append(keys, s.Key)
	}
	sort.Strings(keys)
	return keys
}
