// Package metrics exposes the sale pipeline's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SalesCommitted prometheus.Counter
	SaleFailures   *prometheus.CounterVec
	SaleDuration   prometheus.Histogram
	ConflictRetry  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SalesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "puntoventa_sales_committed_total",
			Help: "Sales committed to storage.",
		}),
		SaleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "puntoventa_sale_failures_total",
			Help: "Rejected or failed sale submissions, labeled by error code.",
		}, []string{"code"}),
		SaleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "puntoventa_sale_write_seconds",
			Help:    "Wall-clock duration of sale submissions, commit or reject.",
			Buckets: prometheus.DefBuckets,
		}),
		ConflictRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "puntoventa_sale_conflict_retries_total",
			Help: "Sale submissions that exhausted serialization retries.",
		}),
	}
	m.registry.MustRegister(m.SalesCommitted, m.SaleFailures, m.SaleDuration, m.ConflictRetry)
	return m
}

// Handler serves the scrape endpoint for this registry only, keeping default
// process collectors out of the export.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
