// Package metrics exposes delivery counters and latencies for the event
// subsystem. All methods are nil-safe so instrumented components can run
// without a collector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

type EventMetrics struct {
	registry *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	deliverySuccess *prometheus.CounterVec
	deliveryFailure *prometheus.CounterVec
	deliveryTimeout *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
}

func New() *EventMetrics {
	x := &EventMetrics{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soloforge_events_received_total",
			Help: "Total number of events published to the bus",
		}, []string{"kind"}),
		deliverySuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soloforge_deliveries_succeeded_total",
			Help: "Total number of acknowledged webhook deliveries",
		}, []string{"plugin"}),
		deliveryFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soloforge_deliveries_failed_total",
			Help: "Total number of failed webhook delivery attempts",
		}, []string{"plugin"}),
		deliveryTimeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soloforge_deliveries_timeout_total",
			Help: "Total number of webhook delivery attempts that timed out",
		}, []string{"plugin"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soloforge_delivery_attempt_duration_seconds",
			Help:    "Time taken by webhook delivery attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"plugin"}),
	}

	x.registry.MustRegister(
		x.eventsReceived,
		x.deliverySuccess,
		x.deliveryFailure,
		x.deliveryTimeout,
		x.attemptDuration,
	)
	return x
}

// Handler serves the collected metrics in Prometheus exposition format.
func (x *EventMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(x.registry, promhttp.HandlerOpts{})
}

func (x *EventMetrics) EventReceived(kind types.EventKind) {
	if x == nil {
		return
	}
	x.eventsReceived.WithLabelValues(string(kind)).Inc()
}

func (x *EventMetrics) DeliverySucceeded(plugin types.PluginName, elapsed time.Duration) {
	if x == nil {
		return
	}
	x.deliverySuccess.WithLabelValues(string(plugin)).Inc()
	x.attemptDuration.WithLabelValues(string(plugin)).Observe(elapsed.Seconds())
}

func (x *EventMetrics) DeliveryFailed(plugin types.PluginName, elapsed time.Duration, timedOut bool) {
	if x == nil {
		return
	}
	x.deliveryFailure.WithLabelValues(string(plugin)).Inc()
	if timedOut {
		x.deliveryTimeout.WithLabelValues(string(plugin)).Inc()
	}
	x.attemptDuration.WithLabelValues(string(plugin)).Observe(elapsed.Seconds())
}
