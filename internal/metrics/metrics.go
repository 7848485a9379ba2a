// Package metrics exposes Prometheus metrics for dictation sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quilldict"

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Chunk metrics
	ChunksEmitted   *prometheus.CounterVec
	ChunksDiscarded prometheus.Counter
	ChunksGated     prometheus.Counter

	// Transcript metrics
	PreviewResults       prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	ParagraphBreaks      prometheus.Counter

	// Recognition metrics
	RecognitionLatency *prometheus.HistogramVec
	RecognitionErrors  *prometheus.CounterVec

	// Recording metrics
	RecorderWriteErrors prometheus.Counter
	FramesCaptured      prometheus.Counter

	registry prometheus.Gatherer
}

// DefaultMetrics is the process-wide instance registered with the default registry.
var DefaultMetrics = New(prometheus.DefaultRegisterer)

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of dictation sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of dictation sessions currently running",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Recorded audio length of completed sessions",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),

		ChunksEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total number of speech chunks handed to recognition",
		}, []string{"reason"}),
		ChunksDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_discarded_total",
			Help:      "Total number of chunks dropped for being too short",
		}),
		ChunksGated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_gated_total",
			Help:      "Total number of chunks skipped by the energy gate",
		}),

		PreviewResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_results_total",
			Help:      "Total number of preview results published",
		}),
		DuplicatesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of preview segments dropped as duplicates",
		}),
		ParagraphBreaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paragraph_breaks_total",
			Help:      "Total number of paragraph breaks published",
		}),

		RecognitionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_latency_seconds",
			Help:      "Recognition engine latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		RecognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition engine errors",
		}, []string{"mode"}),

		RecorderWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_write_errors_total",
			Help:      "Total number of failed session recording writes",
		}),
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Total audio frames delivered by the capture device",
		}),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.registry = g
	} else {
		m.registry = prometheus.DefaultGatherer
	}
	return m
}

// Handler serves the registry m was created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending with the given audio length.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordChunk(reason string) {
	m.ChunksEmitted.WithLabelValues(reason).Inc()
}

// RecordDiscarded adds the number of chunks the segmenter dropped since the last call.
func (m *Metrics) RecordDiscarded(n int) {
	if n > 0 {
		m.ChunksDiscarded.Add(float64(n))
	}
}

func (m *Metrics) RecordGated() {
	m.ChunksGated.Inc()
}

func (m *Metrics) RecordPreview() {
	m.PreviewResults.Inc()
}

func (m *Metrics) RecordDuplicate() {
	m.DuplicatesSuppressed.Inc()
}

func (m *Metrics) RecordParagraphBreak() {
	m.ParagraphBreaks.Inc()
}

// RecordRecognition records one engine call.
func (m *Metrics) RecordRecognition(mode string, err error, latencySeconds float64) {
	m.RecognitionLatency.WithLabelValues(mode).Observe(latencySeconds)
	if err != nil {
		m.RecognitionErrors.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) RecordWriteError() {
	m.RecorderWriteErrors.Inc()
}

func (m *Metrics) RecordFrame() {
	m.FramesCaptured.Inc()
}
