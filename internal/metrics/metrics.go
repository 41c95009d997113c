package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported by the engine and the HTTP layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ThetaEstimations  *prometheus.CounterVec
	ItemFits          *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ThetaEstimations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tri_theta_estimations_total",
			Help: "Theta estimations by outcome (converged or fallback reason).",
		}, []string{"outcome"}),
		ItemFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tri_item_fits_total",
			Help: "Item parameter fits by estimation method and outcome.",
		}, []string{"method", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tri_operation_duration_seconds",
			Help:    "Wall time of scoring, calibration and equating calls.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tri_http_requests_total",
			Help: "HTTP requests by route template and status code.",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.ThetaEstimations, m.ItemFits, m.OperationDuration, m.HTTPRequests)
	}
	return m
}

func (m *Metrics) ObserveTheta(outcome string) {
	if m == nil {
		return
	}
	m.ThetaEstimations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveItemFit(method, outcome string) {
	if m == nil {
		return
	}
	m.ItemFits.WithLabelValues(method, outcome).Inc()
}

// Time returns a func that records the elapsed time for operation when called.
func (m *Metrics) Time(operation string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
