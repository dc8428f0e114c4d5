package s2_signals

import (
	"fmt"
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// Regime sources other than a proxy symbol
const (
	RegimeSourceEqualWeight = "equal_weight_universe"
	RegimeSourceNone        = "none"
)

// regimeLookback is the market proxy return window (trading days)
const regimeLookback = 20

// RegimeDetector buckets the broad-market proxy return
type RegimeDetector struct {
	threshold float64
}

// NewRegimeDetector creates a detector; |return| above threshold leaves NEUTRAL
func NewRegimeDetector(threshold float64) *RegimeDetector {
	return &RegimeDetector{threshold: threshold}
}

// Detect uses the proxy series when it has enough history, otherwise the
// equal-weight mean 20-day return of the universe series
func (d *RegimeDetector) Detect(asof, proxySymbol string, proxy *contracts.BarSeries, universe map[string]*contracts.BarSeries) (*contracts.MarketRegime, error) {
	regime := &contracts.MarketRegime{AsOfDate: asof, Source: RegimeSourceNone}

	if r, ok := trailingReturn(proxy, regimeLookback); ok {
		regime.Source = proxySymbol
		regime.Return20D = r
	} else {
		symbols := make([]string, 0, len(universe))
		for s := range universe {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)

		sum, n := 0.0, 0
		for _, s := range symbols {
			if r, ok := trailingReturn(universe[s], regimeLookback); ok {
				sum += r
				n++
			}
		}
		if n > 0 {
			regime.Source = RegimeSourceEqualWeight
			regime.Return20D = sum / float64(n)
		}
	}

	switch {
	case regime.Return20D > d.threshold:
		regime.Bucket = contracts.RegimeRiskOn
	case regime.Return20D < -d.threshold:
		regime.Bucket = contracts.RegimeRiskOff
	default:
		regime.Bucket = contracts.RegimeNeutral
	}

	hash, err := canonical.HashArtifact(canonical.ArtifactRegime, regime)
	if err != nil {
		return nil, fmt.Errorf("hash regime: %w", err)
	}
	regime.StateHash = hash
	return regime, nil
}

// trailingReturn is close[t]/close[t-n]-1 over the last n+1 bars
func trailingReturn(s *contracts.BarSeries, n int) (float64, bool) {
	if s == nil || len(s.Bars) < n+1 {
		return 0, false
	}
	last := s.Bars[len(s.Bars)-1].Close
	base := s.Bars[len(s.Bars)-1-n].Close
	if base <= 0 {
		return 0, false
	}
	return last/base - 1, true
}
