package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(agentRequestsTotal, agentRequestLatencyMs) }

var agentRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_requests_total",
		Help: "Job-control requests handled by the agent, by operation and outcome.",
	},
	[]string{"op", "outcome"}, // outcome: ok | invalid_argument | not_found | ...
)

var agentRequestLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_request_latency_ms",
		Help:    "Per-request dispatch latency in milliseconds.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"op", "success"},
)

func ObserveRequest(op, outcome string, latencyMs float64) {
	agentRequestsTotal.WithLabelValues(norm(op), norm(outcome)).Inc()
	agentRequestLatencyMs.WithLabelValues(norm(op), strconv.FormatBool(outcome == "ok")).
		Observe(latencyMs)
}
