package telemetry

import (
	"github.com/mcp-obs/mcp-server-go/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Export outcomes.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomePanic       = "panic"
	outcomeTimeout     = "timeout"
	outcomeCircuitOpen = "circuit_open"
	outcomeCancelled   = "cancelled"
)

// Metrics contains the telemetry pipeline's own Prometheus metrics.
type Metrics struct {
	ExportsTotal          *prometheus.CounterVec // Export attempts by outcome
	ExportedRecordsTotal  prometheus.Counter     // Records delivered to the sink
	DroppedRecordsTotal   *prometheus.CounterVec // Records lost, by reason
	ExportDurationSeconds prometheus.Histogram   // Duration of admitted attempts
	BreakerState          *prometheus.GaugeVec   // 0 closed, 1 open, 2 half-open
}

// NewMetrics registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ExportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_obs_telemetry_exports_total",
			Help: "Telemetry export attempts by outcome",
		}, []string{"outcome"}),

		ExportedRecordsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "mcp_obs_telemetry_exported_records_total",
			Help: "Total number of records delivered to the telemetry sink",
		}),

		DroppedRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_obs_telemetry_dropped_records_total",
			Help: "Total number of records dropped by reason",
		}, []string{"reason"}),

		ExportDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcp_obs_telemetry_export_duration_seconds",
			Help:    "Duration of telemetry export attempts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcp_obs_telemetry_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
	}
}

func (m *Metrics) recordExport(outcome string, n int, seconds float64) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(outcome).Inc()
	if outcome == outcomeOK {
		m.ExportedRecordsTotal.Add(float64(n))
	} else {
		m.DroppedRecordsTotal.WithLabelValues(outcome).Add(float64(n))
	}
	if seconds >= 0 {
		m.ExportDurationSeconds.Observe(seconds)
	}
}

func (m *Metrics) recordDropped(reason string, n int) {
	if m == nil {
		return
	}
	m.DroppedRecordsTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) setBreakerState(name string, s breaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(s))
}
