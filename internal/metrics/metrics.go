// Package metrics exposes Prometheus counters and histograms for gateway
// calls and synchronization actions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the gateway and the sync service report to.
type Recorder interface {
	ObserveRequest(operation string, err error, elapsed time.Duration)
	IncAction(action string)
}

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActionsTotal    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a fresh registry so
// that repeated construction in tests does not collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estatesync_gateway_requests_total",
				Help: "Total number of attachment gateway calls",
			},
			[]string{"operation", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estatesync_gateway_request_duration_seconds",
				Help:    "Attachment gateway call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estatesync_sync_actions_total",
				Help: "Total number of attachments kept, created, updated, deleted or reordered",
			},
			[]string{"action"},
		),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveRequest(operation string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAction(action string) {
	m.ActionsTotal.WithLabelValues(action).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type nop struct{}

func (nop) ObserveRequest(string, error, time.Duration) {}
func (nop) IncAction(string)                           {}

// Nop discards everything.
func Nop() Recorder { return nop{} }
