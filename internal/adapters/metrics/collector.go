// Package metrics exposes notification fan-out and session metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pipeline-orchestrator/internal/domain"
)

// Collector implements realtime.Metrics and tracks the live session count.
type Collector struct {
	dispatched *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	sessions   prometheus.Gauge
}

// NewCollector creates the collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_orchestrator_notifications_dispatched_total",
			Help: "Mutations fanned out to sessions, by entity kind and operation.",
		}, []string{"kind", "operation"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_orchestrator_session_deliveries_total",
			Help: "Per-session delivery outcomes.",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_orchestrator_sessions_active",
			Help: "Sessions currently registered.",
		}),
	}
	reg.MustRegister(c.dispatched, c.deliveries, c.sessions)
	return c
}

func (c *Collector) RecordDispatch(kind domain.EntityKind, operation string) {
	c.dispatched.WithLabelValues(string(kind), operation).Inc()
}

func (c *Collector) RecordDelivery(result string) {
	c.deliveries.WithLabelValues(result).Inc()
}

// SetSessions records the registry size; it is registered as the registry's
// size observer.
func (c *Collector) SetSessions(n int) {
	c.sessions.Set(float64(n))
}

// Handler serves the registry's metrics for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
