package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yourorg/metaswap-gateway/internal/circuitbreaker"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

// Stage result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics holds the gateway's prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	stageResults      *prometheus.CounterVec
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metaswap_stage_results_total",
				Help: "Quote cascade stage attempts by result",
			},
			[]string{"provider", "stage", "result"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metaswap_executions_total",
				Help: "Terminal execution outcomes by status",
			},
			[]string{"provider", "status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metaswap_execution_duration_seconds",
				Help:    "Time from validation to terminal state",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "metaswap_breaker_state",
				Help: "Cascade stage circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
	}
	reg.MustRegister(m.stageResults, m.executions, m.executionDuration, m.breakerState)
	return m
}

// ObserveStage counts one cascade stage attempt
func (m *Metrics) ObserveStage(provider, stage, result string) {
	if m == nil {
		return
	}
	m.stageResults.WithLabelValues(provider, stage, result).Inc()
}

// ObserveExecution records a terminal execution outcome
func (m *Metrics) ObserveExecution(provider string, status model.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(provider, string(status)).Inc()
	m.executionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveBreaker exports the state of a named circuit breaker
func (m *Metrics) ObserveBreaker(name string, state circuitbreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
