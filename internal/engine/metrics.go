package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_sweep_duration_seconds",
		Help:    "Wall-clock duration of a full rule sweep",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	})
	RuleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_rule_outcomes_total",
			Help: "Rule evaluations by outcome",
		}, []string{"outcome"},
	)
	ActionResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_action_results_total",
			Help: "Executed actions by type and result",
		}, []string{"type", "result"},
	)
	SweepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_sweep_errors_total",
			Help: "Errors raised while sweeping, by kind",
		}, []string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SweepDuration, RuleOutcomes, ActionResults, SweepErrors)
}
