package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobOutcomesTotal) }

var jobOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "transfer_job_outcomes_total",
		Help: "Jobs removed from the store, by terminal state.",
	},
	[]string{"state"}, // 'acknowledged', 'cancelled'
)

func IncJobOutcome(state string) {
	jobOutcomesTotal.WithLabelValues(norm(state)).Inc()
}
