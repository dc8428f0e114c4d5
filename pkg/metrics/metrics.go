// Package metrics exposes batch-run gauges in the node-exporter textfile format.
// A daily job has no scrape endpoint, so the registry is flushed to a file at run end.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RunSample is what one run reports
type RunSample struct {
	Mode            string
	State           string
	DurationSeconds float64
	CircuitOpen     bool
	Predictions     int
	Coverage        float64
	PSI             float64
	ECE             float64
	OutcomeRevision int
}

// RunMetrics owns a private registry (no global default registry)
type RunMetrics struct {
	registry    *prometheus.Registry
	duration    prometheus.Gauge
	circuitOpen prometheus.Gauge
	predictions prometheus.Gauge
	coverage    prometheus.Gauge
	psi         prometheus.Gauge
	ece         prometheus.Gauge
	revision    prometheus.Gauge
	runs        *prometheus.GaugeVec
}

// NewRunMetrics registers all gauges
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_run_duration_seconds",
			Help: "Wall-clock duration of the last forecast run.",
		}),
		circuitOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_circuit_open",
			Help: "1 when the last run degraded to the last-good bundle.",
		}),
		predictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_predictions_total",
			Help: "Prediction rows emitted by the last run.",
		}),
		coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_coverage",
			Help: "Predictions over expected candidate-horizon pairs.",
		}),
		psi: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_psi",
			Help: "Population stability index of p_up against the persisted baseline.",
		}),
		ece: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_ece",
			Help: "Expected calibration error over matured outcomes.",
		}),
		revision: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_outcome_revision",
			Help: "Current outcome stream revision.",
		}),
		runs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecast_last_run_state",
			Help: "1 for the terminal state of the last run, by mode.",
		}, []string{"mode", "state"}),
	}

	m.registry.MustRegister(m.duration, m.circuitOpen, m.predictions, m.coverage, m.psi, m.ece, m.revision, m.runs)
	return m
}

// Observe records one run
func (m *RunMetrics) Observe(s RunSample) {
	m.duration.Set(s.DurationSeconds)
	if s.CircuitOpen {
		m.circuitOpen.Set(1)
	} else {
		m.circuitOpen.Set(0)
	}
	m.predictions.Set(float64(s.Predictions))
	m.coverage.Set(s.Coverage)
	m.psi.Set(s.PSI)
	m.ece.Set(s.ECE)
	m.revision.Set(float64(s.OutcomeRevision))
	m.runs.Reset()
	m.runs.WithLabelValues(s.Mode, s.State).Set(1)
}

// Registry exposes the underlying registry (tests, custom gatherers)
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes all gauges to path
func (m *RunMetrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
