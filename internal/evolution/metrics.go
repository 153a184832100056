package evolution

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gauges exposes evolution_metrics rows as Prometheus gauges, ambiently
// instrumented the way the teacher's pkg/telemetry/metrics.go
// instruments nearly every long-running subsystem — the evolution
// engine is SkillLite's longest-running background process, so it gets
// the same treatment.
type Gauges struct {
	FirstSuccessRate   prometheus.Gauge
	AvgReplans         prometheus.Gauge
	AvgToolCalls       prometheus.Gauge
	UserCorrectionRate prometheus.Gauge
	EGL                prometheus.Gauge
}

// NewGauges registers the evolution engine's gauges on reg.
func NewGauges(reg prometheus.Registerer) *Gauges {
	g := &Gauges{
		FirstSuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skilllite", Subsystem: "evolution", Name: "first_success_rate",
			Help: "Fraction of user turns recorded as successful, most recent day.",
		}),
		AvgReplans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skilllite", Subsystem: "evolution", Name: "avg_replans",
			Help: "Average number of replans per user turn, most recent day.",
		}),
		AvgToolCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skilllite", Subsystem: "evolution", Name: "avg_tool_calls",
			Help: "Average number of tool calls per user turn, most recent day.",
		}),
		UserCorrectionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skilllite", Subsystem: "evolution", Name: "user_correction_rate",
			Help: "Fraction of user turns with negative feedback or an implicit correction, most recent day.",
		}),
		EGL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skilllite", Subsystem: "evolution", Name: "egl",
			Help: "Evolutionary Generality Loss: new_evolution_products / triggered_tasks * 1000.",
		}),
	}
	reg.MustRegister(g.FirstSuccessRate, g.AvgReplans, g.AvgToolCalls, g.UserCorrectionRate, g.EGL)
	return g
}

// Observe updates every gauge from the latest metrics row.
func (g *Gauges) Observe(m MetricsRow) {
	g.FirstSuccessRate.Set(m.FirstSuccessRate)
	g.AvgReplans.Set(m.AvgReplans)
	g.AvgToolCalls.Set(m.AvgToolCalls)
	g.UserCorrectionRate.Set(m.UserCorrectionRate)
	g.EGL.Set(m.EGL)
}

// ComputeEGL implements the Evolutionary Generality Loss metric spec.md's
// GLOSSARY defines: new_evolution_products / triggered_tasks * 1000.
func ComputeEGL(newProducts, triggeredTasks int) float64 {
	if triggeredTasks == 0 {
		return 0
	}
	return float64(newProducts) / float64(triggeredTasks) * 1000
}
