package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message directions and outcomes recorded by the bridge.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	OutcomeDelivered = "delivered"
	OutcomeQueued    = "queued"
	OutcomeFlushed   = "flushed"
	OutcomeStale     = "stale"
	OutcomeMalformed = "malformed"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

var (
	registerOnce sync.Once

	bridgeMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framebridge",
			Subsystem: "bridge",
			Name:      "messages_total",
			Help:      "Bridge channel messages by direction, kind and outcome.",
		},
		[]string{"direction", "kind", "outcome"},
	)
	handshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "framebridge",
			Subsystem: "bridge",
			Name:      "handshake_duration_seconds",
			Help:      "Time from channel creation to the embedded frame's ready acknowledgment.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	navigationSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framebridge",
			Subsystem: "navsync",
			Name:      "syncs_total",
			Help:      "Navigation sync decisions by direction and result.",
		},
		[]string{"direction", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framebridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(bridgeMessages, handshakeDuration, navigationSyncs, httpRequests)
	})
}

func RecordMessage(direction, kind, outcome string) {
	RegisterMetrics()
	bridgeMessages.WithLabelValues(direction, kind, outcome).Inc()
}

func RecordHandshake(d time.Duration) {
	RegisterMetrics()
	handshakeDuration.Observe(d.Seconds())
}

func RecordSync(direction, result string) {
	RegisterMetrics()
	navigationSyncs.WithLabelValues(direction, result).Inc()
}

func RecordHTTPRequest(method, path string, status int) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
