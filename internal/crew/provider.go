// Package crew runs automated operators. A Provider looks at what a seated
// operator would see and proposes the next action; an Agent seats a provider
// in a room.
package crew

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gosuda/temsim/internal/room"
	"github.com/gosuda/temsim/internal/scenario"
)

// Observation is the provider's view of the room.
type Observation struct {
	Snapshot room.Snapshot
	Role     room.Role
	Name     string
}

// Decision is a provider's answer. Recommendation is free text for the
// partner; Action is nil when there is nothing to do.
type Decision struct {
	Recommendation string
	Action         *room.Action
}

// Provider decides on behalf of one role.
type Provider interface {
	Name() string
	Decide(ctx context.Context, obs Observation) (Decision, error)
}

// Config is what a factory gets to build a provider.
type Config struct {
	Library *scenario.Library
	Role    room.Role
	// FlagThreshold is the deviation from trend, as a fraction of the gauge
	// span, treated as a precursor. Zero means DefaultFlagThreshold.
	FlagThreshold float64
}

// Factory builds a provider for one seat.
type Factory func(cfg Config) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		ScriptedName: NewScripted,
	}
)

// Register makes a provider available by name.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New builds the provider registered under name.
func New(name string, cfg Config) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown crew provider %q", name)
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", room.ErrInvalidRole, cfg.Role)
	}
	return f(cfg)
}

// Names lists registered providers.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
