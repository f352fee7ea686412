// Package obs provides the Prometheus metrics for the coordination core.
package obs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tessro/marquee/internal/core"
)

var modes = []core.Mode{core.ModeIdle, core.ModePolling, core.ModeDegraded, core.ModeOffline}

// Metrics holds the counters and gauges exported by the core. A nil
// *Metrics is valid everywhere: every method no-ops.
type Metrics struct {
	polls        *prometheus.CounterVec
	sourceMode   *prometheus.GaugeVec
	takeovers    prometheus.Counter
	activeSource *prometheus.GaugeVec
	registry     *prometheus.Registry
}

// New creates and registers the core metrics on the given registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marquee_polls_total",
			Help: "Total poll attempts per source and result",
		}, []string{"provider", "result"}),
		sourceMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marquee_source_mode",
			Help: "Current mode per source (1 for the active mode, 0 otherwise)",
		}, []string{"provider", "mode"}),
		takeovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marquee_takeovers_total",
			Help: "Total active-source switches committed by the coordinator",
		}),
		activeSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marquee_active_source",
			Help: "Currently active source (1 for the active provider, 0 otherwise)",
		}, []string{"provider"}),
	}

	for _, c := range []prometheus.Collector{m.polls, m.sourceMode, m.takeovers, m.activeSource} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register core metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the metrics live on, for the /metrics
// handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordPoll counts one poll attempt.
func (m *Metrics) RecordPoll(provider core.Provider, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.polls.WithLabelValues(string(provider), result).Inc()
}

// SetSourceMode reflects a source's current mode.
func (m *Metrics) SetSourceMode(provider core.Provider, mode core.Mode) {
	if m == nil {
		return
	}
	for _, md := range modes {
		v := 0.0
		if md == mode {
			v = 1
		}
		m.sourceMode.WithLabelValues(string(provider), string(md)).Set(v)
	}
}

// RecordTakeover counts one committed active-source switch.
func (m *Metrics) RecordTakeover() {
	if m == nil {
		return
	}
	m.takeovers.Inc()
}

// SetActiveSource reflects the coordinator's choice. Empty provider means
// no source is active.
func (m *Metrics) SetActiveSource(active core.Provider, known []core.Provider) {
	if m == nil {
		return
	}
	for _, p := range known {
		v := 0.0
		if p == active {
			v = 1
		}
		m.activeSource.WithLabelValues(string(p)).Set(v)
	}
}
