// Package metrics bundles the adapter's prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "wireflow"
	subsystem = "adapter"
)

// Adapter tracks connection and messaging statistics. The queue depth and
// correlation table size are observed through gauge functions because
// neither ever shrinks by eviction; watching them grow is how operators
// spot permanently lost replies.
type Adapter struct {
	ConnectAttempts prometheus.Counter
	Opens           prometheus.Counter
	SessionLosses   prometheus.Counter
	ErrorReplies    *prometheus.CounterVec
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the collectors and registers them, along with gauges backed by
// queueDepth and pendingRequests, on the given registerer.
func New(reg prometheus.Registerer, queueDepth, pendingRequests func() int) *Adapter {
	m := &Adapter{
		ConnectAttempts: newCounter("connect_attempts_total", "Connect attempts against the broker."),
		Opens:           newCounter("opens_total", "Successful connection opens."),
		SessionLosses:   newCounter("session_losses_total", "Established sessions lost."),
		ErrorReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "error_replies_total",
			Help:      "Error replies sent, by error kind.",
		}, []string{"code"}),
	}

	reg.MustRegister(
		m.ConnectAttempts,
		m.Opens,
		m.SessionLosses,
		m.ErrorReplies,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbound_queue_depth",
			Help:      "Sends buffered while disconnected.",
		}, func() float64 { return float64(queueDepth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_requests",
			Help:      "Correlated requests awaiting a reply.",
		}, func() float64 { return float64(pendingRequests()) }),
	)

	return m
}
