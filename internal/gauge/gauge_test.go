package gauge

import (
	"math"
	"testing"
	"time"

	"github.com/gosuda/temsim/internal/scenario"
)

func library(t *testing.T) *scenario.Library {
	t.Helper()
	lib, err := scenario.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	return lib
}

func TestReadingStaysInRange(t *testing.T) {
	lib := library(t)
	m := Model{Seed: 7}
	patterns := []string{
		scenario.PatternFluctuateDown,
		scenario.PatternGradualDrop,
		scenario.PatternAsymmetric,
		scenario.PatternDischarge,
	}
	for _, g := range lib.Gauges {
		for tick := 0; tick <= 3000; tick += 7 {
			elapsed := time.Duration(tick) * 100 * time.Millisecond
			if v := m.Reading(g, uint64(tick), elapsed, nil); v < g.Min || v > g.Max {
				t.Fatalf("%s at %v = %v, outside [%v, %v]", g.ID, elapsed, v, g.Min, g.Max)
			}
			for _, p := range patterns {
				for _, endpoint := range []float64{-1e6, 0, 1e6} {
					o := &Override{Pattern: p, Endpoint: endpoint, Channel: g.Channel, Since: elapsed, Ramp: 15 * time.Second}
					if v := m.Reading(g, uint64(tick), elapsed, o); v < g.Min || v > g.Max {
						t.Fatalf("%s %s(%v) at %v = %v, outside [%v, %v]", g.ID, p, endpoint, elapsed, v, g.Min, g.Max)
					}
				}
			}
		}
	}
}

func TestReadingIsDeterministic(t *testing.T) {
	lib := library(t)
	g, _ := lib.Gauge("oil_p")
	a := Model{Seed: 42}
	b := Model{Seed: 42}
	o := &Override{Pattern: scenario.PatternFluctuateDown, Endpoint: 10, Since: 4 * time.Second, Ramp: 15 * time.Second}
	for tick, elapsed := range []time.Duration{0, 100 * time.Millisecond, 19 * time.Second} {
		if got, want := a.Reading(g, uint64(tick), elapsed, nil), b.Reading(g, uint64(tick), elapsed, nil); got != want {
			t.Fatalf("Reading(%v) = %v, want %v", elapsed, got, want)
		}
		if got, want := a.Reading(g, uint64(tick), elapsed, o), b.Reading(g, uint64(tick), elapsed, o); got != want {
			t.Fatalf("Reading(%v, override) = %v, want %v", elapsed, got, want)
		}
	}
}

func TestDefaultJitterIsBounded(t *testing.T) {
	lib := library(t)
	g, _ := lib.Gauge("rpm")
	m := Model{Seed: 3}
	distinct := map[float64]bool{}
	for tick := 0; tick < 200; tick++ {
		v := m.Reading(g, uint64(tick), time.Duration(tick)*100*time.Millisecond, nil)
		if math.Abs(v-g.Baseline) > g.Amplitude() {
			t.Fatalf("rpm tick %d = %v, want within %v of %v", tick, v, g.Amplitude(), g.Baseline)
		}
		distinct[v] = true
	}
	if len(distinct) < 10 {
		t.Fatalf("distinct readings = %d, want independent samples per tick", len(distinct))
	}
}

func TestJitterFollowsTickWhileClockStands(t *testing.T) {
	lib := library(t)
	g, _ := lib.Gauge("oil_p")
	m := Model{Seed: 17}
	frozen := 42 * time.Second
	o := &Override{Pattern: scenario.PatternFluctuateDown, Endpoint: 10, Since: 5 * time.Second, Ramp: 15 * time.Second}

	distinct := map[float64]bool{}
	moving := map[float64]bool{}
	for tick := uint64(0); tick < 50; tick++ {
		v := m.Reading(g, tick, frozen, nil)
		if again := m.Reading(g, tick, frozen, nil); again != v {
			t.Fatalf("tick %d reading = %v then %v, want a stable value", tick, v, again)
		}
		distinct[v] = true
		moving[m.Reading(g, tick, frozen, o)] = true
	}
	if len(distinct) < 10 {
		t.Fatalf("distinct readings with the clock held at %v = %d, want jitter per tick", frozen, len(distinct))
	}
	if len(moving) < 10 {
		t.Fatalf("distinct fluctuating readings = %d, want jitter per tick", len(moving))
	}
}

func TestFuelBurnsMonotonically(t *testing.T) {
	lib := library(t)
	g, _ := lib.Gauge("fuel_qty_left")
	m := Model{Seed: 1}
	prev := math.Inf(1)
	for s := 0; s <= 180; s++ {
		v := m.Reading(g, uint64(s), time.Duration(s)*time.Second, nil)
		if v > prev {
			t.Fatalf("fuel at %ds = %v, rose above %v", s, v, prev)
		}
		prev = v
	}
	if got, want := m.Reading(g, 1000, 100*time.Second, nil), 20.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("fuel at 100s = %v, want %v", got, want)
	}
}

func TestGradualDropReachesEndpoint(t *testing.T) {
	lib := library(t)
	g, _ := lib.Gauge("vacuum")
	m := Model{Seed: 9}
	ramp := 15 * time.Second

	start := m.Reading(g, 1000, 100*time.Second, &Override{Pattern: scenario.PatternGradualDrop, Endpoint: 3, Ramp: ramp})
	if math.Abs(start-g.Baseline) > g.Amplitude() {
		t.Fatalf("ramp start = %v, want near baseline %v", start, g.Baseline)
	}
	held := m.Reading(g, 1300, 130*time.Second, &Override{Pattern: scenario.PatternGradualDrop, Endpoint: 3, Since: 2 * time.Second, Ramp: ramp, Held: true})
	if math.Abs(held-3) > g.Amplitude() {
		t.Fatalf("held reading = %v, want near 3", held)
	}
}

func TestAsymmetricDrainsOneChannel(t *testing.T) {
	lib := library(t)
	left, _ := lib.Gauge("fuel_qty_left")
	right, _ := lib.Gauge("fuel_qty_right")
	m := Model{Seed: 5}
	elapsed := 35 * time.Second
	o := &Override{Pattern: scenario.PatternAsymmetric, Endpoint: 15, Channel: "right", Since: 15 * time.Second, Ramp: 15 * time.Second}

	readings := m.Readings(lib.Gauges, 350, elapsed, map[string]*Override{"fuel_qty": o})
	l, r := readings[left.ID], readings[right.ID]
	if got, want := l, Trend(left, elapsed); math.Abs(got-want) > 1e-9 {
		t.Fatalf("left = %v, want %v", got, want)
	}
	if got, want := l-r, 15.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("left-right = %v, want %v", got, want)
	}
}

func TestDischargeGoesNegative(t *testing.T) {
	lib := library(t)
	g, _ := lib.Gauge("ammeter")
	m := Model{Seed: 11}
	o := &Override{Pattern: scenario.PatternDischarge, Endpoint: -12, Ramp: 15 * time.Second, Held: true}
	v := m.Reading(g, 1250, 125*time.Second, o)
	if tol := g.Span() * dischargeSpanFraction; math.Abs(v+12) > tol {
		t.Fatalf("ammeter = %v, want -12 +/- %v", v, tol)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name string
		o    Override
		want float64
	}{
		{"before", Override{Since: -time.Second, Ramp: 10 * time.Second}, 0},
		{"half", Override{Since: 5 * time.Second, Ramp: 10 * time.Second}, 0.5},
		{"past", Override{Since: 20 * time.Second, Ramp: 10 * time.Second}, 1},
		{"held", Override{Since: 0, Ramp: 10 * time.Second, Held: true}, 1},
		{"no ramp", Override{}, 1},
	}
	for _, tt := range tests {
		if got := tt.o.Progress(); got != tt.want {
			t.Fatalf("%s: Progress() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
