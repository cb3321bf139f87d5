package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connprov",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "connprov",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	accepts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connprov",
			Subsystem: "provider",
			Name:      "accepts_total",
			Help:      "Inbound connections by accept-loop outcome.",
		},
		[]string{"provider", "outcome"},
	)
	connects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connprov",
			Subsystem: "provider",
			Name:      "connects_total",
			Help:      "Outbound connect attempts by result.",
		},
		[]string{"provider", "success"},
	)
	connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "connprov",
			Subsystem: "provider",
			Name:      "connect_duration_seconds",
			Help:      "Outbound connect duration in seconds, retries included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "success"},
	)
	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connprov",
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Connect retries by reason.",
		},
		[]string{"provider", "reason"},
	)
	activeConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "connprov",
			Subsystem: "provider",
			Name:      "active_connections",
			Help:      "Connections currently open.",
		},
		[]string{"provider"},
	)
)

// Accept-loop outcomes.
const (
	OutcomeDispatched   = "dispatched"
	OutcomeAcceptError  = "accept_error"
	OutcomeHandshake    = "handshake_failed"
	OutcomeDispatchFail = "dispatch_failed"
)

// Retry reasons.
const (
	ReasonRefused = "refused"
	ReasonResolve = "resolve"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, accepts, connects, connectDuration, retries, activeConns)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordAccept(provider, outcome string) {
	RegisterMetrics()
	accepts.WithLabelValues(provider, outcome).Inc()
}

func RecordConnect(provider string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	connects.WithLabelValues(provider, successLabel).Inc()
	connectDuration.WithLabelValues(provider, successLabel).Observe(duration.Seconds())
}

func RecordRetry(provider, reason string) {
	RegisterMetrics()
	retries.WithLabelValues(provider, reason).Inc()
}

// ConnOpened and ConnClosed track the open-connection gauge.
func ConnOpened(provider string) {
	RegisterMetrics()
	activeConns.WithLabelValues(provider).Inc()
}

func ConnClosed(provider string) {
	RegisterMetrics()
	activeConns.WithLabelValues(provider).Dec()
}
