package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lysyi3m/atf-feed/app/feed"
)

// Metrics records validation and archive activity for /metrics.
type Metrics struct {
	// Validation outcomes by result ("valid", "invalid")
	Validations *prometheus.CounterVec

	// Reported defects by error code
	ValidationErrors *prometheus.CounterVec

	ValidationLatency prometheus.Histogram

	// Archive requests by outcome ("queued", "rejected", "failed")
	Archives *prometheus.CounterVec
}

// NewMetrics registers all API metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atf_validations_total",
			Help: "Total feed validations by result",
		}, []string{"result"}),

		ValidationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atf_validation_errors_total",
			Help: "Total validation errors by code",
		}, []string{"code"}),

		ValidationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "atf_validation_duration_seconds",
			Help:    "Duration of a full feed validation",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		Archives: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atf_archive_requests_total",
			Help: "Total archive requests by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveValidation records one validation result and its duration.
func (m *Metrics) ObserveValidation(errs []feed.ValidationError, d time.Duration) {
	if m == nil {
		return
	}

	result := "valid"
	if len(errs) > 0 {
		result = "invalid"
	}
	m.Validations.WithLabelValues(result).Inc()
	m.ValidationLatency.Observe(d.Seconds())

	for _, e := range errs {
		m.ValidationErrors.WithLabelValues(string(e.Kind)).Inc()
	}
}

func (m *Metrics) IncrementArchive(outcome string) {
	if m != nil {
		m.Archives.WithLabelValues(outcome).Inc()
	}
}
