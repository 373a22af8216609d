// Package metrics exposes the simulation's Prometheus collectors.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the room and tick metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	RoomsActive      prometheus.Gauge
	Ticks            prometheus.Counter
	TickDuration     prometheus.Histogram
	Actions          *prometheus.CounterVec
	SnapshotsDropped prometheus.Counter
	ClockAnomalies   prometheus.Counter
	RoomFaults       prometheus.Counter
	Callouts         *prometheus.CounterVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice returns the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}
	var err error

	if c.RoomsActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "temsim_rooms_active",
		Help: "Training rooms with a running simulation unit.",
	})); err != nil {
		return nil, err
	}
	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "temsim_ticks_total",
		Help: "Simulation ticks executed across all rooms.",
	})); err != nil {
		return nil, err
	}
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "temsim_tick_duration_seconds",
		Help:    "Wall time spent inside one tick body.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})); err != nil {
		return nil, err
	}
	if c.Actions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "temsim_actions_total",
		Help: "Operator actions applied, labeled by action and result code.",
	}, []string{"action", "result"})); err != nil {
		return nil, err
	}
	if c.SnapshotsDropped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "temsim_snapshots_dropped_total",
		Help: "Snapshots replaced before a slow receiver consumed them.",
	})); err != nil {
		return nil, err
	}
	if c.ClockAnomalies, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "temsim_clock_anomalies_total",
		Help: "Tick gaps that regressed or stalled beyond the anomaly factor.",
	})); err != nil {
		return nil, err
	}
	if c.RoomFaults, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "temsim_room_faults_total",
		Help: "Rooms stopped after an internal invariant violation.",
	})); err != nil {
		return nil, err
	}
	if c.Callouts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "temsim_callouts_total",
		Help: "Voice callouts, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %T already registered with incompatible type", c)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) RoomStarted() {
	if c != nil {
		c.RoomsActive.Inc()
	}
}

func (c *Collector) RoomStopped() {
	if c != nil {
		c.RoomsActive.Dec()
	}
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveAction(action, result string) {
	if c != nil {
		c.Actions.WithLabelValues(action, result).Inc()
	}
}

func (c *Collector) SnapshotDropped() {
	if c != nil {
		c.SnapshotsDropped.Inc()
	}
}

func (c *Collector) ClockAnomaly() {
	if c != nil {
		c.ClockAnomalies.Inc()
	}
}

func (c *Collector) RoomFault() {
	if c != nil {
		c.RoomFaults.Inc()
	}
}

func (c *Collector) ObserveCallout(result string) {
	if c != nil {
		c.Callouts.WithLabelValues(result).Inc()
	}
}
