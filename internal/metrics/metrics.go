// Package metrics exposes Prometheus instruments for resolution,
// calculation and compliance.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks resolution outcomes, calculation durations and compliance
// decisions.
type Metrics struct {
	Resolutions         *prometheus.CounterVec
	Calculations        *prometheus.CounterVec
	CalculationErrors   prometheus.Counter
	CalculationDuration prometheus.Histogram
	ComplianceResults   *prometheus.CounterVec
	DefaultRates        prometheus.Counter
	DatasetLoads        *prometheus.CounterVec
}

// New registers all instruments with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feecli_resolutions_total",
			Help: "Entity resolutions by entity, outcome kind and tier",
		}, []string{"entity", "kind", "tier"}),
		Calculations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feecli_calculations_total",
			Help: "Successful fee calculations by direction and investor type",
		}, []string{"direction", "investor_type"}),
		CalculationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "feecli_calculation_errors_total",
			Help: "Fee calculations rejected with a calculation error",
		}),
		CalculationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "feecli_calculation_duration_seconds",
			Help:    "Duration of fee calculations including reconciliation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ComplianceResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feecli_compliance_results_total",
			Help: "Compliance evaluations by validity and risk tier",
		}, []string{"valid", "risk_tier"}),
		DefaultRates: f.NewCounter(prometheus.CounterOpts{
			Name: "feecli_default_rates_total",
			Help: "Letters prepared with the default fee structure",
		}),
		DatasetLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feecli_dataset_loads_total",
			Help: "Reference workbook loads by result",
		}, []string{"result"}),
	}
}

// ObserveResolution records one resolution outcome.
func (m *Metrics) ObserveResolution(entity, kind, tier string) {
	m.Resolutions.WithLabelValues(entity, kind, tier).Inc()
}

// ObserveCalculation records a calculation that started at start. A non-nil
// err counts as a calculation error.
func (m *Metrics) ObserveCalculation(start time.Time, direction, investorType string, err error) {
	m.CalculationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.CalculationErrors.Inc()
		return
	}
	m.Calculations.WithLabelValues(direction, investorType).Inc()
}

// ObserveCompliance records a compliance decision.
func (m *Metrics) ObserveCompliance(valid bool, riskTier string) {
	v := "false"
	if valid {
		v = "true"
	}
	m.ComplianceResults.WithLabelValues(v, riskTier).Inc()
}

// IncrementDefaultRates records a letter that used default rates.
func (m *Metrics) IncrementDefaultRates() {
	m.DefaultRates.Inc()
}

// ObserveDatasetLoad records a workbook load.
func (m *Metrics) ObserveDatasetLoad(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DatasetLoads.WithLabelValues(result).Inc()
}
