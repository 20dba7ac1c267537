package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics exposes counters/histograms for the relay pipeline.
type RelayMetrics struct {
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	repliesTotal   *prometheus.CounterVec
	dispatchTotal  *prometheus.CounterVec
	summariesTotal *prometheus.CounterVec
	throttleWait   prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personaflow",
			Subsystem: "relay",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound channel webhooks by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "personaflow",
			Subsystem: "relay",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of channel webhook processing",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"outcome"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personaflow",
			Subsystem: "relay",
			Name:      "replies_total",
			Help:      "Replies produced, generated or apology",
		}, []string{"outcome"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personaflow",
			Subsystem: "relay",
			Name:      "outbound_total",
			Help:      "Outbound reply dispatches by outcome",
		}, []string{"outcome"}),
		summariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "personaflow",
			Subsystem: "relay",
			Name:      "summaries_total",
			Help:      "Conversation summary attempts by outcome",
		}, []string{"outcome"}),
		throttleWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "personaflow",
			Subsystem: "crm",
			Name:      "throttle_wait_seconds",
			Help:      "Time spent waiting for a CRM rate limiter slot",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.webhookLatency, m.repliesTotal, m.dispatchTotal, m.summariesTotal, m.throttleWait)
	return m
}

func (m *RelayMetrics) ObserveWebhook(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(outcome).Inc()
	m.webhookLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *RelayMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveSummary(outcome string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveThrottleWait(seconds float64) {
	if m == nil {
		return
	}
	m.throttleWait.Observe(seconds)
}
