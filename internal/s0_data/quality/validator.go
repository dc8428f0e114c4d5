package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// Reason codes (prefix of DataQualitySnapshot.Reason)
const (
	ReasonCoverageBelowMin = "DQ_COVERAGE_BELOW_MIN"
	ReasonStaleSymbols     = "DQ_STALE_SYMBOLS"
	ReasonSplitSuspect     = "DQ_SPLIT_SUSPECT"
)

// maxListedSymbols bounds symbol lists embedded in reason strings
const maxListedSymbols = 10

// TradingDays counts trading days in (from, to]
type TradingDays interface {
	TradingDaysBetween(from, to string) (int, error)
}

// QualityGate validates bar coverage and staleness
type QualityGate struct {
	cal    TradingDays
	config Config
}

// Config holds quality gate thresholds
type Config struct {
	MinCoverage             float64 // covered / total
	MaxStalenessTradingDays int     // latest bar age limit
	SplitSuspectAbsReturn   float64 // |1-day return| treated as an unadjusted split
	ScanWindowDays          int
	BlockOnSuspect          bool
}

// ConfigFromPolicy maps the root and corporate-actions policies to gate thresholds
func ConfigFromPolicy(b *policy.Bundle) Config {
	return Config{
		MinCoverage:             b.Root.DQ.MinCoverage,
		MaxStalenessTradingDays: b.Root.DQ.MaxStalenessTradingDays,
		SplitSuspectAbsReturn:   b.CorporateActions.SplitSuspectAbsReturn,
		ScanWindowDays:          b.CorporateActions.ScanWindowDays,
		BlockOnSuspect:          b.CorporateActions.BlockOnSuspect,
	}
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(cal TradingDays, config Config) *QualityGate {
	return &QualityGate{
		cal:    cal,
		config: config,
	}
}

// Check validates data quality for a manifest and its loaded series
// ⭐ SSOT: S0 → S1 품질 검증
func (g *QualityGate) Check(manifest *contracts.BarsManifest, series map[string]*contracts.BarSeries) *contracts.DataQualitySnapshot {
	snapshot := &contracts.DataQualitySnapshot{
		AsOfDate:       manifest.AsOfDate,
		TotalSymbols:   len(manifest.Partitions) + len(manifest.Missing),
		CoveredSymbols: len(manifest.Partitions),
		MinCoverage:    g.config.MinCoverage,
		Missing:        append([]string{}, manifest.Missing...),
		StaleSymbols:   []string{},
		SplitSuspects:  []string{},
	}

	// 1. 커버리지
	if snapshot.TotalSymbols > 0 {
		snapshot.Coverage = float64(snapshot.CoveredSymbols) / float64(snapshot.TotalSymbols)
	}

	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	// 2. 최신 바 누락/미래/지연 체크
	for _, sym := range symbols {
		if g.isStale(series[sym], manifest.AsOfDate) {
			snapshot.StaleSymbols = append(snapshot.StaleSymbols, sym)
		}
		if g.isSplitSuspect(series[sym]) {
			snapshot.SplitSuspects = append(snapshot.SplitSuspects, sym)
		}
	}

	// 3. 사유 문자열 (구조화)
	var reasons []string
	if snapshot.Coverage < g.config.MinCoverage {
		reasons = append(reasons, fmt.Sprintf("%s coverage=%.4f min=%.4f",
			ReasonCoverageBelowMin, snapshot.Coverage, g.config.MinCoverage))
	}
	if len(snapshot.StaleSymbols) > 0 {
		reasons = append(reasons, fmt.Sprintf("%s count=%d symbols=%s",
			ReasonStaleSymbols, len(snapshot.StaleSymbols), listSymbols(snapshot.StaleSymbols)))
	}
	if g.config.BlockOnSuspect && len(snapshot.SplitSuspects) > 0 {
		reasons = append(reasons, fmt.Sprintf("%s count=%d symbols=%s",
			ReasonSplitSuspect, len(snapshot.SplitSuspects), listSymbols(snapshot.SplitSuspects)))
	}

	snapshot.Passed = len(reasons) == 0
	snapshot.Reason = strings.Join(reasons, "; ")
	return snapshot
}

// isStale: latest bar missing, after asof, or older than the staleness limit
func (g *QualityGate) isStale(s *contracts.BarSeries, asof string) bool {
	latest := s.Latest()
	if latest == nil || latest.Date > asof {
		return true
	}
	age, err := g.cal.TradingDaysBetween(latest.Date, asof)
	if err != nil {
		return true
	}
	return age > g.config.MaxStalenessTradingDays
}

// isSplitSuspect scans the trailing window for a 1-day move beyond the threshold
func (g *QualityGate) isSplitSuspect(s *contracts.BarSeries) bool {
	if g.config.SplitSuspectAbsReturn <= 0 || len(s.Bars) < 2 {
		return false
	}
	start := len(s.Bars) - g.config.ScanWindowDays
	if start < 1 {
		start = 1
	}
	for i := start; i < len(s.Bars); i++ {
		prev := s.Bars[i-1].Close
		if prev <= 0 {
			continue
		}
		if math.Abs(s.Bars[i].Close/prev-1) > g.config.SplitSuspectAbsReturn {
			return true
		}
	}
	return false
}

func listSymbols(symbols []string) string {
	if len(symbols) <= maxListedSymbols {
		return strings.Join(symbols, ",")
	}
	return strings.Join(symbols[:maxListedSymbols], ",") + ",..."
}
