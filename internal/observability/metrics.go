// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"queueloss/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "queueloss"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ingestion metrics
	MeasurementsIngested prometheus.Counter
	IngestionErrors      *prometheus.CounterVec

	// Analysis metrics
	DayRunsTotal          *prometheus.CounterVec
	DayRunDuration        prometheus.Histogram
	LocationsAnalyzed     *prometheus.CounterVec
	DailyTotalLoss        prometheus.Gauge
	LocationLoss          *prometheus.GaugeVec
	DataCompleteness      prometheus.Gauge
	CalculationConfidence prometheus.Gauge

	// Ledger metrics
	ActionTransitions *prometheus.CounterVec
	LedgerAppends     prometheus.Counter
	ChainChecks       *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
	LastAnalyzedDay   prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		MeasurementsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "measurements_total",
			Help:      "Total number of flow measurements stored",
		}),
		IngestionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of rejected measurement rows by reason",
		}, []string{"reason"}),

		// Analysis metrics
		DayRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "day_runs_total",
			Help:      "Total number of day analyses by status",
		}, []string{"status"}),
		DayRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "day_run_duration_seconds",
			Help:      "Day analysis duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		LocationsAnalyzed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "locations_analyzed_total",
			Help:      "Total number of location analyses by queue outcome",
		}, []string{"outcome"}),
		DailyTotalLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "daily_total_loss",
			Help:      "Total conservative loss of the last analyzed day",
		}),
		LocationLoss: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "location_loss",
			Help:      "Conservative loss per location for the last analyzed day",
		}, []string{"location_id"}),
		DataCompleteness: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "data_completeness_ratio",
			Help:      "Observed vs expected measurements of the last analyzed day",
		}),
		CalculationConfidence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "calculation_confidence_ratio",
			Help:      "Fraction of locations passing Little's Law verification",
		}),

		// Ledger metrics
		ActionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "action_transitions_total",
			Help:      "Total number of action status transitions by target status",
		}, []string{"status"}),
		LedgerAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Total number of ROI entries appended",
		}),
		ChainChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "chain_checks_total",
			Help:      "Total number of chain integrity checks by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of store operation errors",
		}, []string{"store", "operation"}),

		// Health metrics
		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful day run",
		}),
		LastAnalyzedDay: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_analyzed_day_timestamp",
			Help:      "Unix timestamp of the last analyzed day",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordIngested counts stored measurements.
func (m *Metrics) RecordIngested(n int) {
	if m == nil {
		return
	}
	m.MeasurementsIngested.Add(float64(n))
}

// RecordIngestError counts a rejected input row.
func (m *Metrics) RecordIngestError(reason string) {
	if m == nil {
		return
	}
	m.IngestionErrors.WithLabelValues(reason).Inc()
}

// RecordDayRun records one day analysis attempt.
func (m *Metrics) RecordDayRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DayRunsTotal.WithLabelValues(status).Inc()
	m.DayRunDuration.Observe(elapsed.Seconds())
}

// RecordLocation counts one location analysis by queue outcome.
func (m *Metrics) RecordLocation(outcome string) {
	if m == nil {
		return
	}
	m.LocationsAnalyzed.WithLabelValues(outcome).Inc()
}

// RecordInsight publishes a day's aggregate gauges.
func (m *Metrics) RecordInsight(in *domain.DailyInsight, now time.Time) {
	if m == nil || in == nil {
		return
	}
	m.DailyTotalLoss.Set(in.TotalLoss)
	m.DataCompleteness.Set(in.DataCompleteness)
	m.CalculationConfidence.Set(in.CalculationConfidence)
	m.LocationLoss.Reset()
	for id, l := range in.LossByLocation {
		m.LocationLoss.WithLabelValues(id).Set(l)
	}
	m.LastAnalyzedDay.Set(float64(in.Date.Unix()))
	m.LastSuccessfulRun.Set(float64(now.Unix()))
}

// RecordTransition counts an action moving to status.
func (m *Metrics) RecordTransition(status domain.ActionStatus) {
	if m == nil {
		return
	}
	m.ActionTransitions.WithLabelValues(string(status)).Inc()
}

// RecordAppend counts a ledger append.
func (m *Metrics) RecordAppend() {
	if m == nil {
		return
	}
	m.LedgerAppends.Inc()
}

// RecordChainCheck counts an integrity check result.
func (m *Metrics) RecordChainCheck(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "broken"
	}
	m.ChainChecks.WithLabelValues(result).Inc()
}

// RecordDBQuery records store operation metrics.
func (m *Metrics) RecordDBQuery(store, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(store, operation).Observe(elapsed.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}
