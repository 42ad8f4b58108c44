package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the speech service
type Metrics struct {
	// Pipeline metrics
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	RunsStale    prometheus.Counter
	RunDuration  prometheus.Histogram
	ActiveRuns   prometheus.Gauge

	// Remote API metrics
	RemoteRequests *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec
	AudioBytes     prometheus.Histogram

	// Broadcast metrics
	MessagesPublished *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	Subscribers       prometheus.Gauge

	// Playback metrics
	PlaybacksStarted  prometheus.Counter
	PlaybacksReplaced prometheus.Counter
	HandlesActive     prometheus.Gauge
	PlaybackDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg. A nil reg uses
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gspeech_runs_started_total",
			Help: "Total number of processing runs accepted",
		}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gspeech_runs_finished_total",
			Help: "Total number of processing runs finished by outcome",
		}, []string{"outcome"}),
		RunsStale: factory.NewCounter(prometheus.CounterOpts{
			Name: "gspeech_runs_stale_total",
			Help: "Total number of runs superseded by a newer request",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gspeech_run_duration_seconds",
			Help:    "Duration of processing runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gspeech_active_runs",
			Help: "Current number of runs in flight",
		}),

		// Remote API metrics
		RemoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gspeech_remote_requests_total",
			Help: "Total number of remote API requests",
		}, []string{"operation", "backend", "result"}),
		RemoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gspeech_remote_request_duration_seconds",
			Help:    "Duration of remote API requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"operation", "backend"}),
		AudioBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gspeech_synthesized_audio_bytes",
			Help:    "Size of synthesized PCM payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),

		// Broadcast metrics
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gspeech_messages_published_total",
			Help: "Total number of bus messages published by type",
		}, []string{"type"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gspeech_messages_dropped_total",
			Help: "Total number of bus messages dropped by reason",
		}, []string{"type", "reason"}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gspeech_subscribers",
			Help: "Current number of bus subscribers",
		}),

		// Playback metrics
		PlaybacksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gspeech_playbacks_started_total",
			Help: "Total number of playbacks started",
		}),
		PlaybacksReplaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "gspeech_playbacks_replaced_total",
			Help: "Total number of playbacks stopped by a newer one",
		}),
		HandlesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gspeech_audio_handles_active",
			Help: "Current number of live audio resource handles",
		}),
		PlaybackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gspeech_playback_audio_seconds",
			Help:    "Length of audio handed to playback",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gspeech_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gspeech_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gspeech_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRunStarted increments the runs counter and the in-flight gauge
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
	m.ActiveRuns.Inc()
}

// RecordRunFinished records a finished run with its outcome
func (m *Metrics) RecordRunFinished(outcome string, durationSeconds float64) {
	m.ActiveRuns.Dec()
	m.RunsFinished.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunStale increments the stale runs counter
func (m *Metrics) RecordRunStale() {
	m.RunsStale.Inc()
}

// RecordRemoteRequest records a remote API call
func (m *Metrics) RecordRemoteRequest(operation, backend, result string, durationSeconds float64) {
	m.RemoteRequests.WithLabelValues(operation, backend, result).Inc()
	m.RemoteDuration.WithLabelValues(operation, backend).Observe(durationSeconds)
}

// RecordAudioSynthesized records the size of a synthesized payload
func (m *Metrics) RecordAudioSynthesized(sizeBytes int) {
	m.AudioBytes.Observe(float64(sizeBytes))
}

// RecordMessagePublished increments the published counter for a message type
func (m *Metrics) RecordMessagePublished(msgType string) {
	m.MessagesPublished.WithLabelValues(msgType).Inc()
}

// RecordMessageDropped increments the dropped counter
func (m *Metrics) RecordMessageDropped(msgType, reason string) {
	m.MessagesDropped.WithLabelValues(msgType, reason).Inc()
}

// SetSubscribers sets the current number of subscribers
func (m *Metrics) SetSubscribers(count int) {
	m.Subscribers.Set(float64(count))
}

// RecordPlaybackStarted records a playback and the length of its audio
func (m *Metrics) RecordPlaybackStarted(audioSeconds float64, replaced bool) {
	m.PlaybacksStarted.Inc()
	m.PlaybackDuration.Observe(audioSeconds)
	if replaced {
		m.PlaybacksReplaced.Inc()
	}
}

// SetHandlesActive sets the number of live audio handles
func (m *Metrics) SetHandlesActive(count int) {
	m.HandlesActive.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
