// Package metrics exposes Prometheus collectors for the daily meal view.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records view-model activity.
type Collector struct {
	snapshotsApplied     prometheus.Counter
	mappingFailures      prometheus.Counter
	subscriptionFailures prometheus.Counter
	activeSubscriptions  prometheus.Gauge
	mealsInView          prometheus.Gauge
	writes               *prometheus.CounterVec
}

// NewCollector builds a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		snapshotsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrilog_snapshots_applied_total",
			Help: "Meal snapshots applied to the daily view.",
		}),
		mappingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrilog_mapping_failures_total",
			Help: "Snapshots rejected because a document could not be mapped to a meal.",
		}),
		subscriptionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrilog_subscription_failures_total",
			Help: "Live meal subscriptions that failed to open or broke.",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nutrilog_active_subscriptions",
			Help: "Live meal subscriptions currently open.",
		}),
		mealsInView: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nutrilog_meals_in_view",
			Help: "Meals in the most recently applied snapshot.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrilog_meal_writes_total",
			Help: "Meal writes forwarded to the store by operation and result.",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		c.snapshotsApplied,
		c.mappingFailures,
		c.subscriptionFailures,
		c.activeSubscriptions,
		c.mealsInView,
		c.writes,
	)

	return c
}

// RecordSnapshot counts an applied snapshot holding n meals.
func (c *Collector) RecordSnapshot(n int) {
	c.snapshotsApplied.Inc()
	c.mealsInView.Set(float64(n))
}

// RecordMappingFailure counts a rejected snapshot.
func (c *Collector) RecordMappingFailure() {
	c.mappingFailures.Inc()
}

// RecordSubscriptionFailure counts a failed subscription.
func (c *Collector) RecordSubscriptionFailure() {
	c.subscriptionFailures.Inc()
}

// SubscriptionOpened tracks a newly opened subscription.
func (c *Collector) SubscriptionOpened() {
	c.activeSubscriptions.Inc()
}

// SubscriptionClosed tracks a torn down subscription.
func (c *Collector) SubscriptionClosed() {
	c.activeSubscriptions.Dec()
}

// RecordWrite counts an add or delete forwarded to the store.
func (c *Collector) RecordWrite(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.writes.WithLabelValues(op, result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
