package s2_signals

import (
	"fmt"
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// Feature names of the closed set
const (
	FeatureRet1D          = "ret_1d"
	FeatureRet5D          = "ret_5d"
	FeatureRet20D         = "ret_20d"
	FeatureVol20D         = "vol_20d"
	FeatureVolumeZ20      = "volume_z_20"
	FeatureDistSMA50ATR14 = "dist_sma50_atr14"
)

const (
	smaPeriod = 50
	atrPeriod = 14
	volWindow = 20
	// MinFeatureBars is the shortest history every feature can be computed from
	MinFeatureBars = policy.MinFeatureHistoryDays
	// 계산에 필요한 꼬리 구간만 사용 (메모리 상한)
	featureWindow = smaPeriod + atrPeriod
)

// FeatureConfig holds feature build parameters
type FeatureConfig struct {
	Names              []string
	Winsorize          policy.Winsorize
	MaxSymbolsPerChunk int
}

// FeatureConfigFromPolicy maps feature and memory policies
func FeatureConfigFromPolicy(b *policy.Bundle) FeatureConfig {
	return FeatureConfig{
		Names:              append([]string(nil), b.Feature.AllowedFeatures...),
		Winsorize:          b.Feature.Winsorize,
		MaxSymbolsPerChunk: b.Memory.MaxSymbolsPerChunk,
	}
}

// FeatureBuilder computes trailing-window features per candidate
// ⭐ SSOT: 피처 계산은 여기서만 (look-ahead 금지: asof 이하 바만 사용)
type FeatureBuilder struct {
	config FeatureConfig
	logger *logger.Logger
}

// NewFeatureBuilder creates a new FeatureBuilder
func NewFeatureBuilder(config FeatureConfig, log *logger.Logger) *FeatureBuilder {
	if config.MaxSymbolsPerChunk < 1 {
		config.MaxSymbolsPerChunk = 1
	}
	return &FeatureBuilder{
		config: config,
		logger: log.WithField("module", "feature_builder"),
	}
}

// Build returns one row per candidate with enough history, sorted by symbol.
// Candidates are processed in chunks of MaxSymbolsPerChunk.
func (b *FeatureBuilder) Build(asof string, candidates []contracts.Candidate, series map[string]*contracts.BarSeries) ([]contracts.FeatureRow, []string) {
	rows := make([]contracts.FeatureRow, 0, len(candidates))
	var warnings []string

	chunks := 0
	for start := 0; start < len(candidates); start += b.config.MaxSymbolsPerChunk {
		end := start + b.config.MaxSymbolsPerChunk
		if end > len(candidates) {
			end = len(candidates)
		}
		chunks++

		for _, c := range candidates[start:end] {
			values, err := b.compute(series[c.Symbol])
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("FEATURE_SKIPPED symbol=%s err=%v", c.Symbol, err))
				continue
			}
			rows = append(rows, contracts.FeatureRow{
				Symbol:    c.Symbol,
				Date:      asof,
				IsControl: c.IsControl,
				Features:  values,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })

	if b.config.Winsorize.Enabled {
		Winsorize(rows, b.config.Names, b.config.Winsorize.LowerPct, b.config.Winsorize.UpperPct)
	}

	b.logger.WithFields(map[string]interface{}{
		"asof":       asof,
		"candidates": len(candidates),
		"rows":       len(rows),
		"chunks":     chunks,
	}).Info("Features built")

	return rows, warnings
}

// compute evaluates every configured feature on the trailing window
func (b *FeatureBuilder) compute(s *contracts.BarSeries) (map[string]float64, error) {
	if s == nil || len(s.Bars) < MinFeatureBars {
		return nil, fmt.Errorf("history below %d bars", MinFeatureBars)
	}
	bars := s.Bars
	if len(bars) > featureWindow {
		bars = bars[len(bars)-featureWindow:]
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, bar := range bars {
		closes[i] = bar.Close
		highs[i] = math.Max(bar.High, bar.Close)
		lows[i] = math.Min(bar.Low, bar.Close)
		if bar.Low <= 0 {
			lows[i] = bar.Close
		}
		volumes[i] = bar.Volume
	}
	last := n - 1

	out := make(map[string]float64, len(b.config.Names))
	for _, name := range b.config.Names {
		var v float64
		switch name {
		case FeatureRet1D:
			v = closes[last]/closes[last-1] - 1
		case FeatureRet5D:
			v = closes[last]/closes[last-5] - 1
		case FeatureRet20D:
			v = closes[last]/closes[last-20] - 1
		case FeatureVol20D:
			rets := make([]float64, volWindow)
			for i := 0; i < volWindow; i++ {
				j := last - volWindow + 1 + i
				rets[i] = closes[j]/closes[j-1] - 1
			}
			v = talib.StdDev(rets, volWindow, 1.0)[volWindow-1]
		case FeatureVolumeZ20:
			mean := talib.Sma(volumes, volWindow)[last]
			std := talib.StdDev(volumes, volWindow, 1.0)[last]
			if std > 0 {
				v = (volumes[last] - mean) / std
			}
		case FeatureDistSMA50ATR14:
			sma := talib.Sma(closes, smaPeriod)[last]
			atr := talib.Atr(highs, lows, closes, atrPeriod)[last]
			if atr > 0 {
				v = (closes[last] - sma) / atr
			}
		default:
			// 정책 게이트가 먼저 거부함; 여기 도달 시 계산 불가
			return nil, fmt.Errorf("unknown feature %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite %s", name)
		}
		out[name] = v
	}
	return out, nil
}

// Winsorize clips each named column to its [lower, upper] percentiles over rows
func Winsorize(rows []contracts.FeatureRow, names []string, lowerPct, upperPct float64) {
	if len(rows) < 2 {
		return
	}
	for _, name := range names {
		col := make([]float64, 0, len(rows))
		for _, r := range rows {
			if v, ok := r.Features[name]; ok {
				col = append(col, v)
			}
		}
		if len(col) < 2 {
			continue
		}
		sort.Float64s(col)
		lo := percentile(col, lowerPct)
		hi := percentile(col, upperPct)
		for i := range rows {
			v, ok := rows[i].Features[name]
			if !ok {
				continue
			}
			rows[i].Features[name] = math.Min(math.Max(v, lo), hi)
		}
	}
}

// percentile uses linear interpolation between closest ranks on a sorted slice
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := pct / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
