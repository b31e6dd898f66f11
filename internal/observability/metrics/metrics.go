// Package metrics exposes Prometheus instruments for the HTTP surface
// and the provisioning and billing pipelines.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	provisionTotal     *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	entitlementDenials *prometheus.CounterVec
}

// New builds the registry and registers all instruments.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardstack_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardstack_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		provisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardstack_provision_total",
			Help: "Tenant provisioning attempts by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardstack_billing_webhook_events_total",
			Help: "Billing webhook events by type and outcome.",
		}, []string{"event_type", "outcome"}),
		entitlementDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardstack_entitlement_denials_total",
			Help: "Requests denied by plan limits, by feature.",
		}, []string{"feature"}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.provisionTotal,
		m.webhookEvents,
		m.entitlementDenials,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordProvision increments provisioning attempts. Outcome is one of
// "succeeded", "rolled_back" or "failed".
func (m *Metrics) RecordProvision(outcome string) {
	if m == nil {
		return
	}
	m.provisionTotal.WithLabelValues(strings.TrimSpace(outcome)).Inc()
}

// RecordWebhookEvent increments billing webhook counts. Outcome is one
// of "applied", "ignored" or "dropped".
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(strings.TrimSpace(eventType), strings.TrimSpace(outcome)).Inc()
}

// RecordEntitlementDenial increments plan-limit denial counts.
func (m *Metrics) RecordEntitlementDenial(feature string) {
	if m == nil {
		return
	}
	m.entitlementDenials.WithLabelValues(strings.TrimSpace(feature)).Inc()
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
