package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// Failure reason codes
const (
	ReasonCoverageBelowMin = "MONITORING_COVERAGE_BELOW_MIN"
	ReasonECEAboveMax      = "MONITORING_ECE_ABOVE_MAX"
	ReasonPSIAboveMax      = "MONITORING_PSI_ABOVE_MAX"
	ReasonPSIBinsMismatch  = "MONITORING_PSI_BASELINE_BINS_MISMATCH"
	ReasonLogLossDegraded  = "MONITORING_LOGLOSS_DEGRADED"
)

// Check names in the diagnostics summary
const (
	CheckCoverage = "monitoring_coverage"
	CheckECE      = "monitoring_ece"
	CheckBrier    = "monitoring_brier"
	CheckPSI      = "monitoring_psi"
	CheckLogLoss  = "monitoring_shadow_logloss"
)

// Config holds monitoring thresholds
type Config struct {
	MinCoverage           float64
	MaxECE                float64
	MaxPSI                float64
	MaxLogLossDegradation float64
	EvalWindowDays        int
	MinEvalSamples        int
	ECEBins               int
	PSIBins               int
}

// ConfigFromPolicy merges monitoring and calibration policies
func ConfigFromPolicy(m policy.Monitoring, c policy.Calibration) Config {
	return Config{
		MinCoverage:           m.MinCoverage,
		MaxECE:                m.MaxECE,
		MaxPSI:                m.MaxPSI,
		MaxLogLossDegradation: m.MaxLogLossDegradation,
		EvalWindowDays:        m.EvalWindowDays,
		MinEvalSamples:        m.MinEvalSamples,
		ECEBins:               c.ECEBins,
		PSIBins:               c.PSIBins,
	}
}

// Input is one monitoring pass
type Input struct {
	AsOfDate    string
	Expected    int // candidates × horizons
	Predictions []contracts.PredictionRow
	Matured     []contracts.MaturedOutcome
	Baseline    *Baseline // nil → this run's histogram becomes the baseline
}

// Report is the monitoring outcome
type Report struct {
	Coverage           float64
	ECE                float64
	Brier              float64
	LogLoss            float64
	ShadowLogLoss      float64
	LogLossDegradation float64
	PSI                float64
	EvalSamples        int
	Histogram          []float64
	NewBaseline        *Baseline // set when Input.Baseline was nil
	Checks             map[string]contracts.Check
	Failure            *contracts.GateFailure
}

// Monitor computes coverage, calibration and drift and acts as a circuit breaker
type Monitor struct {
	config Config
	log    zerolog.Logger
}

// NewMonitor creates a monitor
func NewMonitor(config Config, log zerolog.Logger) *Monitor {
	return &Monitor{
		config: config,
		log:    log.With().Str("component", "monitoring.monitor").Logger(),
	}
}

// Evaluate runs every check; any breach sets Failure (MONITORING_FAIL)
func (m *Monitor) Evaluate(in Input) (*Report, error) {
	r := &Report{Checks: make(map[string]contracts.Check, 5)}
	var reasons []string

	// Coverage
	if in.Expected > 0 {
		r.Coverage = float64(len(in.Predictions)) / float64(in.Expected)
	}
	details := map[string]interface{}{"coverage": r.Coverage, "min": m.config.MinCoverage, "expected": in.Expected}
	if r.Coverage < m.config.MinCoverage {
		reason := fmt.Sprintf("%s coverage=%.4f min=%.4f", ReasonCoverageBelowMin, r.Coverage, m.config.MinCoverage)
		reasons = append(reasons, reason)
		r.Checks[CheckCoverage] = contracts.Check{Status: contracts.CheckFail, Reason: reason, Details: details}
	} else {
		r.Checks[CheckCoverage] = contracts.Check{Status: contracts.CheckPass, Details: details}
	}

	// PSI
	pups := make([]float64, len(in.Predictions))
	for i, p := range in.Predictions {
		pups[i] = p.PUp
	}
	r.Histogram = Histogram(pups, m.config.PSIBins)
	baseline := in.Baseline
	if baseline == nil {
		baseline = &Baseline{
			CreatedFor:  in.AsOfDate,
			Bins:        m.config.PSIBins,
			Samples:     len(pups),
			Proportions: r.Histogram,
		}
		r.NewBaseline = baseline
	}
	details = map[string]interface{}{
		"max":              m.config.MaxPSI,
		"baseline_for":     baseline.CreatedFor,
		"baseline_created": r.NewBaseline != nil,
	}
	if len(baseline.Proportions) != len(r.Histogram) {
		// psi_bins 정책 변경 후 기존 baseline과 비교 불가 → 회로 차단
		reason := fmt.Sprintf("%s baseline_bins=%d bins=%d", ReasonPSIBinsMismatch, len(baseline.Proportions), len(r.Histogram))
		reasons = append(reasons, reason)
		r.Checks[CheckPSI] = contracts.Check{Status: contracts.CheckFail, Reason: reason, Details: details}
	} else {
		psi, err := PSI(baseline.Proportions, r.Histogram)
		if err != nil {
			return nil, err
		}
		r.PSI = psi
		details["psi"] = psi
		if psi > m.config.MaxPSI {
			reason := fmt.Sprintf("%s psi=%.4f max=%.4f", ReasonPSIAboveMax, psi, m.config.MaxPSI)
			reasons = append(reasons, reason)
			r.Checks[CheckPSI] = contracts.Check{Status: contracts.CheckFail, Reason: reason, Details: details}
		} else {
			r.Checks[CheckPSI] = contracts.Check{Status: contracts.CheckPass, Details: details}
		}
	}

	// Calibration over matured outcomes in the eval window
	samples, err := m.evalSamples(in.AsOfDate, in.Matured)
	if err != nil {
		return nil, err
	}
	r.EvalSamples = len(samples)
	if len(samples) < m.config.MinEvalSamples {
		skip := contracts.Check{
			Status:  contracts.CheckSkip,
			Reason:  fmt.Sprintf("INSUFFICIENT_EVAL_SAMPLES n=%d min=%d", len(samples), m.config.MinEvalSamples),
			Details: map[string]interface{}{"samples": len(samples)},
		}
		r.Checks[CheckECE] = skip
		r.Checks[CheckBrier] = skip
		r.Checks[CheckLogLoss] = skip
	} else {
		reasons = append(reasons, m.calibrationChecks(r, samples)...)
	}

	if len(reasons) > 0 {
		r.Failure = &contracts.GateFailure{
			State:  contracts.StateMonitoringFail,
			Stage:  contracts.StageMonitoring,
			Reason: strings.Join(reasons, "; "),
		}
	}

	event := m.log.Info()
	if r.Failure != nil {
		event = m.log.Warn().Str("reason", r.Failure.Reason)
	}
	event.
		Str("asof", in.AsOfDate).
		Float64("coverage", r.Coverage).
		Float64("psi", r.PSI).
		Float64("ece", r.ECE).
		Int("eval_samples", r.EvalSamples).
		Msg("monitoring evaluated")

	return r, nil
}

func (m *Monitor) calibrationChecks(r *Report, samples []Sample) []string {
	var reasons []string

	r.ECE = ECE(samples, m.config.ECEBins)
	details := map[string]interface{}{"ece": r.ECE, "max": m.config.MaxECE, "samples": len(samples)}
	if r.ECE > m.config.MaxECE {
		reason := fmt.Sprintf("%s ece=%.4f max=%.4f", ReasonECEAboveMax, r.ECE, m.config.MaxECE)
		reasons = append(reasons, reason)
		r.Checks[CheckECE] = contracts.Check{Status: contracts.CheckFail, Reason: reason, Details: details}
	} else {
		r.Checks[CheckECE] = contracts.Check{Status: contracts.CheckPass, Details: details}
	}

	r.Brier = Brier(samples)
	r.Checks[CheckBrier] = contracts.Check{
		Status:  contracts.CheckPass,
		Details: map[string]interface{}{"brier": r.Brier, "samples": len(samples)},
	}

	// shadow = 상수 기저율 예측기
	base := BaseRate(samples)
	r.LogLoss = LogLoss(samples, func(s Sample) float64 { return s.PUp })
	r.ShadowLogLoss = LogLoss(samples, func(Sample) float64 { return base })
	if r.ShadowLogLoss > 0 {
		r.LogLossDegradation = (r.LogLoss - r.ShadowLogLoss) / r.ShadowLogLoss
	}
	details = map[string]interface{}{
		"champion":    r.LogLoss,
		"shadow":      r.ShadowLogLoss,
		"base_rate":   base,
		"degradation": r.LogLossDegradation,
		"max":         m.config.MaxLogLossDegradation,
	}
	if r.LogLossDegradation > m.config.MaxLogLossDegradation {
		reason := fmt.Sprintf("%s degradation=%.4f max=%.4f", ReasonLogLossDegraded, r.LogLossDegradation, m.config.MaxLogLossDegradation)
		reasons = append(reasons, reason)
		r.Checks[CheckLogLoss] = contracts.Check{Status: contracts.CheckFail, Reason: reason, Details: details}
	} else {
		r.Checks[CheckLogLoss] = contracts.Check{Status: contracts.CheckPass, Details: details}
	}
	return reasons
}

// evalSamples keeps outcomes matured within EvalWindowDays calendar days of asof
func (m *Monitor) evalSamples(asof string, matured []contracts.MaturedOutcome) ([]Sample, error) {
	end, err := time.Parse(contracts.DateLayout, asof)
	if err != nil {
		return nil, fmt.Errorf("parse asof %q: %w", asof, err)
	}
	start := end.AddDate(0, 0, -m.config.EvalWindowDays).Format(contracts.DateLayout)

	samples := make([]Sample, 0, len(matured))
	for _, o := range matured {
		if o.OutcomeDate <= start || o.OutcomeDate > asof {
			continue
		}
		samples = append(samples, Sample{PUp: o.PUp, YTrue: o.YTrue})
	}
	return samples, nil
}
