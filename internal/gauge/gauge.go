// Package gauge computes instrument readings. Every reading is a pure function
// of the gauge definition, the room tick, the elapsed sim time and an optional
// override, so a replay with the same seed shows the same needles.
package gauge

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/gosuda/temsim/internal/scenario"
)

const (
	fluctuateSpanFraction = 0.05
	dischargeSpanFraction = 0.02
)

// Override is the precursor pattern of an event that currently owns a gauge.
type Override struct {
	Pattern  string
	Endpoint float64
	// Channel selects the drained side of an asymmetric pattern.
	Channel string
	// Since is the time spent since the precursor started.
	Since time.Duration
	// Ramp is the precursor window; the pattern reaches Endpoint at its end.
	Ramp time.Duration
	// Held pins the pattern at its endpoint (event in Alert or Response).
	Held bool
}

// Progress returns how far the pattern has moved toward its endpoint, in [0, 1].
func (o *Override) Progress() float64 {
	if o.Held || o.Ramp <= 0 {
		return 1
	}
	p := float64(o.Since) / float64(o.Ramp)
	return math.Max(0, math.Min(1, p))
}

// Model produces readings. Seed makes the jitter reproducible per room.
type Model struct {
	Seed uint64
}

// Reading returns the displayed value of g at the given tick, clamped to the
// gauge range. The trend follows elapsed sim time while the jitter follows
// tick, so needles keep moving while the sim clock stands still.
func (m Model) Reading(g scenario.Gauge, tick uint64, elapsed time.Duration, o *Override) float64 {
	trend := Trend(g, elapsed)
	var v float64
	if o == nil {
		v = trend + m.noise(g.ID, tick, 0)*g.Amplitude()
	} else {
		v = m.pattern(g, trend, tick, o)
	}
	return Clamp(g, v)
}

// Readings evaluates every gauge. overrides is keyed by flaggable target.
func (m Model) Readings(gauges []scenario.Gauge, tick uint64, elapsed time.Duration, overrides map[string]*Override) map[string]float64 {
	out := make(map[string]float64, len(gauges))
	for _, g := range gauges {
		out[g.ID] = m.Reading(g, tick, elapsed, overrides[g.Target()])
	}
	return out
}

// Trend is the noise-free value of g: the baseline, less fuel burned so far.
func Trend(g scenario.Gauge, elapsed time.Duration) float64 {
	return g.Baseline - g.BurnRate*elapsed.Seconds()
}

// Clamp pins v to the gauge's hard stops.
func Clamp(g scenario.Gauge, v float64) float64 {
	switch {
	case math.IsNaN(v):
		return g.Min
	case v < g.Min:
		return g.Min
	case v > g.Max:
		return g.Max
	}
	return v
}

func (m Model) pattern(g scenario.Gauge, trend float64, tick uint64, o *Override) float64 {
	p := o.Progress()
	switch o.Pattern {
	case scenario.PatternFluctuateDown:
		mid := lerp(trend, o.Endpoint, p)
		return mid + m.noise(g.ID, tick, 1)*g.Span()*fluctuateSpanFraction
	case scenario.PatternGradualDrop:
		return lerp(trend, o.Endpoint, p) + m.noise(g.ID, tick, 0)*g.Amplitude()
	case scenario.PatternDischarge:
		return lerp(trend, o.Endpoint, p) + m.noise(g.ID, tick, 2)*g.Span()*dischargeSpanFraction
	case scenario.PatternAsymmetric:
		v := trend + m.noise(g.ID, tick, 0)*g.Amplitude()
		if g.Channel == o.Channel {
			v -= o.Endpoint * p
		}
		return v
	default:
		return trend + m.noise(g.ID, tick, 0)*g.Amplitude()
	}
}

// noise returns a uniform sample in [-1, 1) that depends only on the seed, the
// gauge, the tick and the stream.
func (m Model) noise(id string, tick uint64, stream uint64) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	r := rand.New(rand.NewPCG(m.Seed^h.Sum64(), tick^(stream<<56)))
	return r.Float64()*2 - 1
}

func lerp(from, to, p float64) float64 {
	return from + (to-from)*p
}
