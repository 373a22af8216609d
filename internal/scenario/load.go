package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalidLibrary wraps every load-time validation failure.
var ErrInvalidLibrary = errors.New("invalid scenario library")

const (
	defaultCorrectChecklistScore     = 20
	defaultIncorrectChecklistPenalty = 20
	schemaURL                        = "library.schema.json"
)

var (
	//go:embed library.yaml
	defaultLibrary []byte

	//go:embed library.schema.json
	librarySchema []byte

	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Default returns the built-in library.
func Default() (*Library, error) {
	return Load(defaultLibrary)
}

// LoadFile reads and validates a YAML library from disk.
func LoadFile(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario library: %w", err)
	}
	return Load(raw)
}

// Load decodes a YAML library, checks it against the JSON schema and then
// against the typed invariants (ordered offsets, known references, non-empty
// checklist sets).
func Load(raw []byte) (*Library, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var lib Library
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&lib); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidLibrary, err)
	}
	lib.normalize()
	lib.index()
	if err := lib.validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

func validateSchema(raw []byte) error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(librarySchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	if schemaErr != nil {
		return fmt.Errorf("compile library schema: %w", schemaErr)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidLibrary, err)
	}
	// Round-trip through JSON so numbers and maps have the shapes the
	// validator expects.
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	var payload any
	if err := json.Unmarshal(js, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	if err := compiledSchema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	return nil
}

// UnmarshalYAML fills the checklist score defaults before decoding so an
// explicit zero in the document is kept.
func (e *Event) UnmarshalYAML(node *yaml.Node) error {
	type plain Event
	ev := plain{
		CorrectChecklistScore:     defaultCorrectChecklistScore,
		IncorrectChecklistPenalty: defaultIncorrectChecklistPenalty,
	}
	if err := node.Decode(&ev); err != nil {
		return err
	}
	*e = Event(ev)
	return nil
}

func (l *Library) normalize() {
	for si := range l.Scenarios {
		s := &l.Scenarios[si]
		for ei := range s.Events {
			ev := &s.Events[ei]
			if ev.Precursor.Pattern == PatternAsymmetric && ev.Precursor.Channel == "" {
				ev.Precursor.Channel = "right"
			}
		}
		sort.SliceStable(s.Events, func(i, j int) bool {
			return s.Events[i].PrecursorStart < s.Events[j].PrecursorStart
		})
	}
}

func (l *Library) validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(l.gauges) != len(l.Gauges) {
		addf("duplicate gauge id")
	}
	for _, g := range l.Gauges {
		if g.Min >= g.Max {
			addf("gauge %q: min %.2f must be below max %.2f", g.ID, g.Min, g.Max)
		}
		if g.Baseline < g.Min || g.Baseline > g.Max {
			addf("gauge %q: baseline %.2f outside [%.2f, %.2f]", g.ID, g.Baseline, g.Min, g.Max)
		}
	}
	if len(l.checklists) != len(l.Checklists) {
		addf("duplicate checklist id")
	}
	for _, c := range l.Checklists {
		if len(c.Items) == 0 {
			addf("checklist %q has no items", c.ID)
		}
	}
	if len(l.threats) != len(l.Threats) {
		addf("duplicate threat id")
	}
	if len(l.questions) != len(l.Quiz) {
		addf("duplicate quiz question id")
	}
	for _, q := range l.Quiz {
		correct := 0
		for _, o := range q.Options {
			if o.Correct {
				correct++
			}
		}
		if correct != 1 {
			addf("quiz %q: want exactly one correct option, got %d", q.ID, correct)
		}
	}
	if len(l.scenarios) != len(l.Scenarios) {
		addf("duplicate scenario key")
	}
	for _, s := range l.Scenarios {
		l.validateScenario(s, addf)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLibrary, strings.Join(problems, "; "))
	}
	return nil
}

func (l *Library) validateScenario(s Scenario, addf func(string, ...any)) {
	if s.Duration <= 0 {
		addf("scenario %q: duration must be positive", s.Key)
	}
	if len(s.AcceptableChecklists) == 0 {
		addf("scenario %q: acceptable checklist set is empty", s.Key)
	}
	for _, id := range s.AcceptableChecklists {
		if _, ok := l.Checklist(id); !ok {
			addf("scenario %q: unknown checklist %q", s.Key, id)
		}
	}
	seen := make(map[string]bool, len(s.Events))
	for _, ev := range s.Events {
		if seen[ev.ID] {
			addf("scenario %q: duplicate event %q", s.Key, ev.ID)
		}
		seen[ev.ID] = true
		if !(ev.PrecursorStart < ev.AlertStart && ev.AlertStart < ev.End) {
			addf("scenario %q event %q: offsets must satisfy precursor < alert < end (%.1f, %.1f, %.1f)",
				s.Key, ev.ID, ev.PrecursorStart, ev.AlertStart, ev.End)
		}
		if ev.PrecursorStart < 0 {
			addf("scenario %q event %q: negative precursor offset", s.Key, ev.ID)
		}
		if ev.End > s.Duration {
			addf("scenario %q event %q: ends after the scenario", s.Key, ev.ID)
		}
		if !l.IsTarget(ev.Precursor.Gauge) {
			addf("scenario %q event %q: unknown gauge %q", s.Key, ev.ID, ev.Precursor.Gauge)
		}
		if len(ev.RequiredChecklists) == 0 {
			addf("scenario %q event %q: required checklist set is empty", s.Key, ev.ID)
		}
		for _, id := range ev.RequiredChecklists {
			if _, ok := l.Checklist(id); !ok {
				addf("scenario %q event %q: unknown checklist %q", s.Key, ev.ID, id)
			}
		}
	}
}
