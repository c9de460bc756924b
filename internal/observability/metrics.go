package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions       prometheus.Gauge
	SessionEvents        *prometheus.CounterVec
	WaveQueueDepth        prometheus.Gauge
	WaveInFlight          prometheus.Gauge
	WaveJobsTotal         *prometheus.CounterVec
	WaveJobLatency        prometheus.Histogram
	TurnStageLatency      *prometheus.HistogramVec
	SSEConnections        prometheus.Gauge
	PushChannelConnected  prometheus.Gauge
	PushMessagesTotal     *prometheus.CounterVec
	ProviderErrors        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of in-flight chat requests currently streaming.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WaveQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wave_queue_depth",
			Help:      "Number of wave decomposition jobs currently queued.",
		}),
		WaveInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wave_jobs_in_flight",
			Help:      "Number of wave decomposition jobs currently running.",
		}),
		WaveJobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wave_jobs_total",
			Help:      "Wave decomposition jobs by outcome.",
		}, []string{"outcome"}),
		WaveJobLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wave_job_latency_ms",
			Help:      "Wave decomposition job latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 40000, 60000},
		}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Turn-stage latency in milliseconds.",
			Buckets:   []float64{20, 50, 100, 150, 250, 400, 700, 1200, 2000, 4000, 7000, 10000},
		}, []string{"stage"}),
		SSEConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_connections",
			Help:      "Number of open /v1/chat SSE connections.",
		}),
		PushChannelConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "renderer_push_connected",
			Help:      "Whether a renderer client is currently connected to /v1/events (0 or 1).",
		}),
		PushMessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renderer_push_messages_total",
			Help:      "Renderer push messages by type and delivery result.",
		}, []string{"type", "result"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by component and class.",
		}, []string{"component", "class"}),
	}
}

func (m *Metrics) ObserveWaveJob(outcome string, d time.Duration) {
	m.WaveJobsTotal.WithLabelValues(outcome).Inc()
	m.WaveJobLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	m.TurnStageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObservePushMessage(msgType, result string) {
	m.PushMessagesTotal.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) ObserveProviderError(component string, class string) {
	m.ProviderErrors.WithLabelValues(component, class).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
