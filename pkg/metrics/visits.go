package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VisitMetrics records live stream, write and feed activity. A nil receiver
// or one built without a registerer records nothing.
type VisitMetrics struct {
	activeListeners prometheus.Gauge
	snapshots       prometheus.Counter
	decodeDrops     prometheus.Counter
	streamErrors    prometheus.Counter
	writes          *prometheus.CounterVec
	feedDuration    *prometheus.HistogramVec
}

// NewVisitMetrics registers the visit metrics on the provided registerer.
func NewVisitMetrics(reg prometheus.Registerer) *VisitMetrics {
	if reg == nil {
		return &VisitMetrics{}
	}
	activeListeners := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "visit_stream_active_listeners",
		Help: "Live visit queries currently registered with the document store.",
	})
	snapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visit_stream_snapshots_total",
		Help: "Visit snapshots delivered to stream consumers.",
	})
	decodeDrops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visit_stream_decode_drops_total",
		Help: "Stored visit records skipped because they could not be decoded.",
	})
	streamErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visit_stream_errors_total",
		Help: "Visit streams terminated by a document store error.",
	})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visit_writes_total",
		Help: "Visit write operations by operation and outcome.",
	}, []string{"op", "outcome"})
	feedDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visit_feed_request_duration_seconds",
		Help:    "Duration of visit feed requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(activeListeners, snapshots, decodeDrops, streamErrors, writes, feedDuration)
	return &VisitMetrics{
		activeListeners: activeListeners,
		snapshots:       snapshots,
		decodeDrops:     decodeDrops,
		streamErrors:    streamErrors,
		writes:          writes,
		feedDuration:    feedDuration,
	}
}

func (m *VisitMetrics) ListenerStarted() {
	if m == nil || m.activeListeners == nil {
		return
	}
	m.activeListeners.Inc()
}

func (m *VisitMetrics) ListenerStopped() {
	if m == nil || m.activeListeners == nil {
		return
	}
	m.activeListeners.Dec()
}

func (m *VisitMetrics) IncSnapshot() {
	if m == nil || m.snapshots == nil {
		return
	}
	m.snapshots.Inc()
}

// AddDecodeDrops counts records dropped from a single snapshot.
func (m *VisitMetrics) AddDecodeDrops(n int) {
	if m == nil || m.decodeDrops == nil || n <= 0 {
		return
	}
	m.decodeDrops.Add(float64(n))
}

func (m *VisitMetrics) IncStreamError() {
	if m == nil || m.streamErrors == nil {
		return
	}
	m.streamErrors.Inc()
}

// IncWrite counts a write; outcome is "ok" or the error code.
func (m *VisitMetrics) IncWrite(op, outcome string) {
	if m == nil || m.writes == nil {
		return
	}
	m.writes.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

// ObserveFeedRequest records a feed request's duration by outcome.
func (m *VisitMetrics) ObserveFeedRequest(outcome string, duration time.Duration) {
	if m == nil || m.feedDuration == nil {
		return
	}
	m.feedDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
