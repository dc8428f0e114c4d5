package monitoring

import (
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

func testConfig() Config {
	return Config{
		MinCoverage:           0.95,
		MaxECE:                0.25,
		MaxPSI:                0.25,
		MaxLogLossDegradation: 0.10,
		EvalWindowDays:        60,
		MinEvalSamples:        4,
		ECEBins:               10,
		PSIBins:               10,
	}
}

func preds(pups ...float64) []contracts.PredictionRow {
	out := make([]contracts.PredictionRow, len(pups))
	for i, p := range pups {
		out[i] = contracts.PredictionRow{Symbol: string(rune('A' + i)), HorizonDays: 5, PUp: p}
	}
	return out
}

func matured(date string, pUp float64, y int) contracts.MaturedOutcome {
	return contracts.MaturedOutcome{OutcomeDate: date, PUp: pUp, YTrue: y}
}

func TestCalibrationMetrics(t *testing.T) {
	samples := []Sample{{0.05, 0}, {0.15, 0}, {0.95, 1}, {0.85, 1}}

	bins := CalculateCalibrationBins(samples, 10)
	require.Len(t, bins, 4)
	assert.Equal(t, 0, bins[0].Bin)
	assert.Equal(t, 9, bins[3].Bin)

	assert.InDelta(t, 0.1, ECE(samples, 10), 1e-12)
	assert.InDelta(t, (0.0025+0.0225+0.0025+0.0225)/4, Brier(samples), 1e-12)
	assert.Equal(t, 0.5, BaseRate(samples))

	// 상수 0.5 예측기의 log-loss = ln 2
	assert.InDelta(t, math.Ln2, LogLoss(samples, func(Sample) float64 { return 0.5 }), 1e-12)
	// p=1, y=0 도 유한값
	assert.False(t, math.IsInf(LogLoss([]Sample{{1, 0}}, func(s Sample) float64 { return s.PUp }), 0))

	assert.Nil(t, CalculateCalibrationBins(nil, 10))
	assert.Equal(t, 0.0, ECE(nil, 10))
}

func TestHistogramAndPSI(t *testing.T) {
	h := Histogram([]float64{0, 0.05, 0.55, 1.0}, 10)
	assert.Equal(t, 0.5, h[0])
	assert.Equal(t, 0.25, h[5])
	assert.Equal(t, 0.25, h[9])

	psi, err := PSI(h, h)
	require.NoError(t, err)
	assert.Equal(t, 0.0, psi)

	shifted := Histogram([]float64{0.95, 0.95, 0.95, 0.95}, 10)
	psi, err = PSI(h, shifted)
	require.NoError(t, err)
	assert.Greater(t, psi, 0.25)

	_, err = PSI(h, h[:5])
	assert.Error(t, err)
}

func TestBaselineStore_NeverOverwrites(t *testing.T) {
	store := NewBaselineStore(t.TempDir())
	b, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, b)

	first := &Baseline{CreatedFor: "2026-10-14", Bins: 2, Samples: 2, Proportions: []float64{0.5, 0.5}}
	created, err := store.Create(first)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Create(&Baseline{CreatedFor: "2026-10-15", Bins: 2, Proportions: []float64{1, 0}})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestMonitor_FirstRunPasses(t *testing.T) {
	m := NewMonitor(testConfig(), zerolog.Nop())
	r, err := m.Evaluate(Input{
		AsOfDate:    "2026-10-15",
		Expected:    3,
		Predictions: preds(0.55, 0.62, 0.48),
	})
	require.NoError(t, err)

	assert.Nil(t, r.Failure)
	assert.Equal(t, 1.0, r.Coverage)
	require.NotNil(t, r.NewBaseline)
	assert.Equal(t, "2026-10-15", r.NewBaseline.CreatedFor)
	assert.Equal(t, 0.0, r.PSI)
	assert.Equal(t, contracts.CheckPass, r.Checks[CheckCoverage].Status)
	assert.Equal(t, contracts.CheckSkip, r.Checks[CheckECE].Status)
	assert.Equal(t, contracts.CheckSkip, r.Checks[CheckLogLoss].Status)
}

func TestMonitor_Breaches(t *testing.T) {
	baseline := &Baseline{CreatedFor: "2026-09-01", Bins: 10, Proportions: Histogram([]float64{0.05, 0.05}, 10)}

	tests := []struct {
		name    string
		in      Input
		reasons []string
	}{
		{
			name:    "coverage",
			in:      Input{AsOfDate: "2026-10-15", Expected: 4, Predictions: preds(0.05, 0.05), Baseline: baseline},
			reasons: []string{ReasonCoverageBelowMin + " coverage=0.5000 min=0.9500"},
		},
		{
			name:    "psi",
			in:      Input{AsOfDate: "2026-10-15", Expected: 2, Predictions: preds(0.95, 0.95), Baseline: baseline},
			reasons: []string{ReasonPSIAboveMax},
		},
		{
			name: "ece and logloss",
			in: Input{
				AsOfDate:    "2026-10-15",
				Expected:    2,
				Predictions: preds(0.05, 0.05),
				Baseline:    baseline,
				Matured: []contracts.MaturedOutcome{
					matured("2026-10-01", 0.95, 0),
					matured("2026-10-02", 0.95, 0),
					matured("2026-10-05", 0.05, 1),
					matured("2026-10-06", 0.05, 1),
					matured("2026-01-02", 0.5, 1), // 평가 구간 밖
				},
			},
			reasons: []string{ReasonECEAboveMax, ReasonLogLossDegraded},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(testConfig(), zerolog.Nop())
			r, err := m.Evaluate(tt.in)
			require.NoError(t, err)
			require.NotNil(t, r.Failure)
			assert.Equal(t, contracts.StateMonitoringFail, r.Failure.State)
			for _, want := range tt.reasons {
				assert.True(t, strings.Contains(r.Failure.Reason, want), "%q missing %q", r.Failure.Reason, want)
			}
			assert.Nil(t, r.NewBaseline)
		})
	}
}

func TestMonitor_BaselineBinsChangedFailsGate(t *testing.T) {
	// 20-bin baseline, policy now 10 bins
	baseline := &Baseline{CreatedFor: "2026-09-01", Bins: 20, Proportions: Histogram([]float64{0.5}, 20)}

	m := NewMonitor(testConfig(), zerolog.Nop())
	r, err := m.Evaluate(Input{AsOfDate: "2026-10-15", Expected: 2, Predictions: preds(0.5, 0.5), Baseline: baseline})
	require.NoError(t, err)

	require.NotNil(t, r.Failure)
	assert.Equal(t, contracts.StateMonitoringFail, r.Failure.State)
	assert.Equal(t, contracts.StageMonitoring, r.Failure.Stage)
	assert.Contains(t, r.Failure.Reason, ReasonPSIBinsMismatch+" baseline_bins=20 bins=10")
	assert.Equal(t, contracts.CheckFail, r.Checks[CheckPSI].Status)
	assert.Equal(t, contracts.CheckPass, r.Checks[CheckCoverage].Status)
	assert.Nil(t, r.NewBaseline)
}

func TestMonitor_EvalWindow(t *testing.T) {
	cfg := testConfig()
	cfg.MinEvalSamples = 1
	m := NewMonitor(cfg, zerolog.Nop())

	r, err := m.Evaluate(Input{
		AsOfDate:    "2026-10-15",
		Expected:    1,
		Predictions: preds(0.5),
		Matured: []contracts.MaturedOutcome{
			matured("2026-08-16", 0.6, 1), // 정확히 60일 전 → 제외
			matured("2026-08-17", 0.6, 1),
			matured("2026-10-16", 0.6, 1), // 미래 → 제외
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.EvalSamples)
	assert.Equal(t, contracts.CheckPass, r.Checks[CheckBrier].Status)
}
