package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver is an Observer backed by prometheus/client_golang
// counters, grounded on the teacher's metrics pattern of registering a
// small set of labeled counters/gauges once at construction. Engine
// events never depend on this Observer existing: metrics are strictly
// additive observability, per spec §9.
type PrometheusObserver struct {
	gateOutcomes *prometheus.CounterVec
	actions      *prometheus.CounterVec
}

// NewPrometheusObserver registers its counters with reg and returns the
// Observer. Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose on the default /metrics path.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	gateOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orc",
			Name:      "gate_outcomes_total",
			Help:      "Count of gate decisions by phase, stage and decision.",
		},
		[]string{"phase", "stage", "decision"},
	)
	actions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orc",
			Name:      "actions_total",
			Help:      "Count of orchestrator actions executed, by action.",
		},
		[]string{"action"},
	)
	reg.MustRegister(gateOutcomes, actions)
	return &PrometheusObserver{gateOutcomes: gateOutcomes, actions: actions}
}

func (p *PrometheusObserver) OnEvent(ev Event) {
	switch ev.Kind {
	case EventGateOutcome:
		p.gateOutcomes.WithLabelValues(ev.Phase.String(), ev.Stage.String(), ev.Decision.String()).Inc()
	case EventActionExecuted:
		p.actions.WithLabelValues(ev.Action.String()).Inc()
	}
}

// MultiObserver fans one event out to several observers, in order. A
// panic in one delegate is recovered by Engine.emit, not by MultiObserver
// itself, so the delegates after it do not receive that event.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(ev Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(ev)
		}
	}
}
