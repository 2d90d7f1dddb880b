// Package metrics exposes Prometheus instrumentation for the sync layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services report to. Nop satisfies it for tests.
type Recorder interface {
	RecordCommit(outcome string)
	RecordPermissionDenied(operation string)
	RecordNotification(outcome string)
	RecordTask(name, outcome string)
	RecordHeartbeatFailure()
	SubscriptionOpened()
	SubscriptionClosed()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	commits             *prometheus.CounterVec
	permissionDenied    *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	tasks               *prometheus.CounterVec
	heartbeatFailures   prometheus.Counter
	activeSubscriptions prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_batch_commits_total",
			Help: "Batched commits by outcome.",
		}, []string{"outcome"}),
		permissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_permission_denied_total",
			Help: "Store operations rejected for authorization reasons.",
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_notifications_total",
			Help: "Notification fan-out results.",
		}, []string{"outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_background_tasks_total",
			Help: "Background tasks by name and outcome.",
		}, []string{"task", "outcome"}),
		heartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "folio_presence_heartbeat_failures_total",
			Help: "Presence writes that failed and were skipped.",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "folio_live_subscriptions",
			Help: "Live query subscriptions currently established.",
		}),
	}

	reg.MustRegister(
		c.commits,
		c.permissionDenied,
		c.notifications,
		c.tasks,
		c.heartbeatFailures,
		c.activeSubscriptions,
	)
	return c
}

func (c *Collector) RecordCommit(outcome string) {
	c.commits.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordPermissionDenied(operation string) {
	c.permissionDenied.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordNotification(outcome string) {
	c.notifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordTask(name, outcome string) {
	c.tasks.WithLabelValues(name, outcome).Inc()
}

func (c *Collector) RecordHeartbeatFailure() {
	c.heartbeatFailures.Inc()
}

func (c *Collector) SubscriptionOpened() { c.activeSubscriptions.Inc() }

func (c *Collector) SubscriptionClosed() { c.activeSubscriptions.Dec() }

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCommit(string)           {}
func (Nop) RecordPermissionDenied(string) {}
func (Nop) RecordNotification(string)     {}
func (Nop) RecordTask(string, string)     {}
func (Nop) RecordHeartbeatFailure()       {}
func (Nop) SubscriptionOpened()           {}
func (Nop) SubscriptionClosed()           {}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
