package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skytrace"

// Stream message results
const (
	ResultWritten   = "written"
	ResultConfirmed = "confirmed"
	ResultRequeued  = "requeued"
	ResultDropped   = "dropped"
)

// Queue names
const (
	QueuePending  = "pending"
	QueueInflight = "inflight"
	QueueDrained  = "drained"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Tracer metrics
	SegmentsReported prometheus.Counter
	SegmentsSkipped  *prometheus.CounterVec

	// Stream metrics
	StreamMessages      *prometheus.CounterVec
	StreamReconnects    *prometheus.CounterVec
	StreamsFinished     *prometheus.CounterVec
	StreamWriteDuration *prometheus.HistogramVec
	QueueDepth          *prometheus.GaugeVec

	// Configuration discovery metrics
	CDSPolls *prometheus.CounterVec

	// Admin HTTP metrics
	AdminRequests *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates the agent metrics and registers them with reg. A nil
// registerer creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.SegmentsReported = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_reported_total",
			Help:      "Total number of segments handed to the reporter",
		},
	)
	m.SegmentsSkipped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_skipped_total",
			Help:      "Total number of segments not reported",
		},
		[]string{"reason"},
	)
	m.StreamMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Stream messages by outcome",
		},
		[]string{"client", "result"},
	)
	m.StreamReconnects = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Total number of streams rebuilt",
		},
		[]string{"client"},
	)
	m.StreamsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finished_total",
			Help:      "Finished streams by translated status code",
		},
		[]string{"client", "status"},
	)
	m.StreamWriteDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_write_duration_seconds",
			Help:      "Duration of a single stream write",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"client"},
	)
	m.QueueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages held by a stream client",
		},
		[]string{"client", "queue"},
	)
	m.CDSPolls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cds_polls_total",
			Help:      "Configuration discovery polls by result",
		},
		[]string{"result"},
	)
	m.AdminRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_http_requests_total",
			Help:      "Requests served by the admin listener",
		},
		[]string{"method", "path", "status"},
	)
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Agent uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordSegmentReported counts a segment handed to the reporter
func (m *Metrics) RecordSegmentReported() {
	if m == nil {
		return
	}
	m.SegmentsReported.Inc()
}

// RecordSegmentSkipped counts a segment that was not reported
func (m *Metrics) RecordSegmentSkipped(reason string) {
	if m == nil {
		return
	}
	m.SegmentsSkipped.WithLabelValues(reason).Inc()
}

// RecordMessages counts n stream messages with the given result
func (m *Metrics) RecordMessages(client, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StreamMessages.WithLabelValues(client, result).Add(float64(n))
}

// RecordReconnect counts a rebuilt stream
func (m *Metrics) RecordReconnect(client string) {
	if m == nil {
		return
	}
	m.StreamReconnects.WithLabelValues(client).Inc()
}

// RecordStreamFinished counts a finished stream by status
func (m *Metrics) RecordStreamFinished(client string, status int) {
	if m == nil {
		return
	}
	m.StreamsFinished.WithLabelValues(client, itoa(status)).Inc()
}

// RecordWrite observes the duration of one stream write
func (m *Metrics) RecordWrite(client string, d time.Duration) {
	if m == nil {
		return
	}
	m.StreamWriteDuration.WithLabelValues(client).Observe(d.Seconds())
}

// SetQueueDepth sets the depth of one client queue
func (m *Metrics) SetQueueDepth(client, queue string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(client, queue).Set(float64(n))
}

// RecordCDSPoll counts a configuration discovery poll
func (m *Metrics) RecordCDSPoll(result string) {
	if m == nil {
		return
	}
	m.CDSPolls.WithLabelValues(result).Inc()
}

// RecordAdminRequest counts one admin HTTP request
func (m *Metrics) RecordAdminRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.AdminRequests.WithLabelValues(method, path, itoa(status)).Inc()
}
