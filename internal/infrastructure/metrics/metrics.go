package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the realtime core's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can be built without it in tests.
type Metrics struct {
	Connections       prometheus.Gauge
	PresenceRecords   prometheus.Gauge
	TypingIndicators  prometheus.Gauge
	PushesTotal       *prometheus.CounterVec
	ChannelsEvicted   prometheus.Counter
	WebhookAttempts   *prometheus.CounterVec
	WebhookDuration   prometheus.Histogram
	WebhookSuspended  prometheus.Counter
	WebhookEndpoints  *prometheus.GaugeVec
	HTTPRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics registers the collectors with the default registry once and
// returns the shared instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Connections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "realtime_connections",
				Help: "Current number of registered push channels",
			}),
			PresenceRecords: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "realtime_presence_records",
				Help: "Current number of presence records held in memory",
			}),
			TypingIndicators: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "realtime_typing_indicators",
				Help: "Current number of active typing indicators",
			}),
			PushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "realtime_pushes_total",
				Help: "Events pushed to channels, by event type and result",
			}, []string{"event", "result"}),
			ChannelsEvicted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_channels_evicted_total",
				Help: "Channels unregistered after a failed send",
			}),
			WebhookAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "webhook_delivery_attempts_total",
				Help: "Webhook delivery attempts, by event type and result",
			}, []string{"event", "result"}),
			WebhookDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "webhook_delivery_duration_seconds",
				Help:    "Duration of webhook delivery attempts",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}),
			WebhookSuspended: promauto.NewCounter(prometheus.CounterOpts{
				Name: "webhook_endpoints_suspended_total",
				Help: "Endpoints suspended after consecutive failures",
			}),
			WebhookEndpoints: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "webhook_endpoints",
				Help: "Registered webhook endpoints by status",
			}, []string{"status"}),
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method and status class",
			}, []string{"method", "status"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) SetConnections(n int) {
	if m == nil || m.Connections == nil {
		return
	}
	m.Connections.Set(float64(n))
}

func (m *Metrics) SetPresenceRecords(n int) {
	if m == nil || m.PresenceRecords == nil {
		return
	}
	m.PresenceRecords.Set(float64(n))
}

func (m *Metrics) SetTypingIndicators(n int) {
	if m == nil || m.TypingIndicators == nil {
		return
	}
	m.TypingIndicators.Set(float64(n))
}

// RecordPush counts one send to one channel.
func (m *Metrics) RecordPush(eventType string, ok bool) {
	if m == nil || m.PushesTotal == nil {
		return
	}
	m.PushesTotal.WithLabelValues(eventType, resultLabel(ok)).Inc()
}

func (m *Metrics) RecordEviction() {
	if m == nil || m.ChannelsEvicted == nil {
		return
	}
	m.ChannelsEvicted.Inc()
}

// RecordWebhookAttempt counts one delivery attempt and observes its duration.
func (m *Metrics) RecordWebhookAttempt(eventType string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	if m.WebhookAttempts != nil {
		m.WebhookAttempts.WithLabelValues(eventType, resultLabel(ok)).Inc()
	}
	if m.WebhookDuration != nil {
		m.WebhookDuration.Observe(seconds)
	}
}

func (m *Metrics) RecordSuspension() {
	if m == nil || m.WebhookSuspended == nil {
		return
	}
	m.WebhookSuspended.Inc()
}

func (m *Metrics) SetWebhookEndpoints(active, suspended int) {
	if m == nil || m.WebhookEndpoints == nil {
		return
	}
	m.WebhookEndpoints.WithLabelValues("active").Set(float64(active))
	m.WebhookEndpoints.WithLabelValues("suspended").Set(float64(suspended))
}

// RecordHTTPRequest counts a served request under its status class (2xx, 4xx...).
func (m *Metrics) RecordHTTPRequest(method string, status int) {
	if m == nil || m.HTTPRequestsTotal == nil {
		return
	}
	class := "5xx"
	switch {
	case status < 200:
		class = "1xx"
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, class).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
