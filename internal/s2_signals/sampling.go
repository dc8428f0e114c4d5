package s2_signals

import (
	"fmt"
	"math"
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// liquidityLookback is the median-volume window (trading days)
const liquidityLookback = 20

// SamplerConfig holds control-group sampling parameters
type SamplerConfig struct {
	Seed            string
	ControlFraction float64
	MinBucketSize   int
	LowMax          float64 // 20일 중앙값 거래량 < LowMax → LIQ_LOW
	HighMin         float64 // >= HighMin → LIQ_HIGH
	ControlWeights  policy.LossWeights
	DefaultWeights  policy.LossWeights
}

// SamplerConfigFromPolicy maps split and stratification policies
func SamplerConfigFromPolicy(b *policy.Bundle) SamplerConfig {
	return SamplerConfig{
		Seed:            b.Split.Seed,
		ControlFraction: b.Split.ControlFraction,
		MinBucketSize:   b.Split.MinBucketSize,
		LowMax:          b.StratificationFallback.LiquidityThresholds.LowMax,
		HighMin:         b.StratificationFallback.LiquidityThresholds.HighMin,
		ControlWeights:  b.Split.ControlWeights,
		DefaultWeights:  b.Split.DefaultWeights,
	}
}

// Sampler assigns liquidity buckets and a deterministic control group
// ⭐ SSOT: control 여부는 seed+date+bucket+symbol 해시로만 결정 (난수 금지)
type Sampler struct {
	config SamplerConfig
}

// NewSampler creates a new Sampler
func NewSampler(config SamplerConfig) *Sampler {
	return &Sampler{config: config}
}

// Sample returns candidates sorted by symbol, plus warnings for buckets too small to sample.
// The result depends only on the symbol set, never on its order.
func (s *Sampler) Sample(asof string, regime *contracts.MarketRegime, symbols []string, series map[string]*contracts.BarSeries) ([]contracts.Candidate, []string) {
	candidates := make([]contracts.Candidate, 0, len(symbols))
	for _, sym := range symbols {
		candidates = append(candidates, contracts.Candidate{
			Symbol:          sym,
			AsOfDate:        asof,
			LiquidityBucket: s.LiquidityBucket(series[sym]),
			RegimeBucket:    regime.Bucket,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Symbol < candidates[j].Symbol })

	buckets := make(map[string][]int)
	for i, c := range candidates {
		buckets[c.Bucket()] = append(buckets[c.Bucket()], i)
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var warnings []string
	for _, key := range keys {
		members := buckets[key]
		n := len(members)
		if n < s.config.MinBucketSize {
			warnings = append(warnings, fmt.Sprintf("CONTROL_BUCKET_TOO_SMALL bucket=%s size=%d min=%d",
				key, n, s.config.MinBucketSize))
			continue
		}

		k := int(math.Round(s.config.ControlFraction * float64(n)))
		ranked := make([]int, n)
		copy(ranked, members)
		scores := make(map[int]string, n)
		for _, idx := range ranked {
			scores[idx] = canonical.HashParts(s.config.Seed, asof, key, candidates[idx].Symbol)
		}
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if scores[a] != scores[b] {
				return scores[a] < scores[b]
			}
			return candidates[a].Symbol < candidates[b].Symbol
		})
		for _, idx := range ranked[:k] {
			candidates[idx].IsControl = true
		}
	}

	for i := range candidates {
		w := s.config.DefaultWeights
		if candidates[i].IsControl {
			w = s.config.ControlWeights
		}
		candidates[i].SampleWeight = w.Sample
		candidates[i].ExpertLossWeight = w.Expert
		candidates[i].RouterLossWeight = w.Router
		candidates[i].CalibrationLossWeight = w.Calibration
	}

	return candidates, warnings
}

// LiquidityBucket tiers a series by its 20-day median volume
func (s *Sampler) LiquidityBucket(series *contracts.BarSeries) string {
	med := medianVolume(series, liquidityLookback)
	switch {
	case med < s.config.LowMax:
		return contracts.LiquidityLow
	case med >= s.config.HighMin:
		return contracts.LiquidityHigh
	default:
		return contracts.LiquidityMid
	}
}

func medianVolume(series *contracts.BarSeries, n int) float64 {
	if series == nil || len(series.Bars) == 0 {
		return 0
	}
	bars := series.Bars
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	sort.Float64s(vols)
	mid := len(vols) / 2
	if len(vols)%2 == 1 {
		return vols[mid]
	}
	return (vols[mid-1] + vols[mid]) / 2
}
