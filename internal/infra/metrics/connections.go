package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(agentConnectionsOpen, agentConnectionsTotal) }

var agentConnectionsOpen = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "agent_connections_open",
		Help: "Currently open client connections on the agent.",
	},
)

var agentConnectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_connections_total",
		Help: "Accepted client connections, by how they ended.",
	},
	[]string{"result"}, // 'closed', 'auth_failed', 'protocol_error'
)

func ConnOpened() { agentConnectionsOpen.Inc() }

func ConnClosed(result string) {
	agentConnectionsOpen.Dec()
	agentConnectionsTotal.WithLabelValues(norm(result)).Inc()
}
