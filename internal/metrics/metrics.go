package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	TGIncomingUpdates  *prometheus.CounterVec
	TGOutgoingMessages *prometheus.CounterVec
	TGPollErrors       *prometheus.CounterVec
	Reconfigures       *prometheus.CounterVec
	Broadcasts         *prometheus.CounterVec
	HandlerLatency     *prometheus.HistogramVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			TGIncomingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_incoming_updates_total",
				Help:      "Total incoming Telegram updates by kind.",
			}, []string{"kind"}),
			TGOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_outgoing_messages_total",
				Help:      "Total outgoing Telegram messages sent.",
			}, []string{"type"}),
			TGPollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_poll_errors_total",
				Help:      "Long-poll errors by class.",
			}, []string{"class"}),
			Reconfigures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_reconfigures_total",
				Help:      "Reconfigure attempts by outcome.",
			}, []string{"outcome"}),
			Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcasts_total",
				Help:      "Channel broadcast attempts by outcome.",
			}, []string{"outcome"}),
			HandlerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "convo_handler_duration_seconds",
				Help:      "Latency distribution for conversation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"handler"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.TGIncomingUpdates,
			metricsInstance.TGOutgoingMessages,
			metricsInstance.TGPollErrors,
			metricsInstance.Reconfigures,
			metricsInstance.Broadcasts,
			metricsInstance.HandlerLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
