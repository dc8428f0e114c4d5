package s1_universe

import (
	"fmt"
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// Universe gate reasons
const (
	ReasonGapCircuitOpen     = "UNIVERSE_GAP_CIRCUIT_OPEN"
	ReasonEmpty              = "UNIVERSE_EMPTY"
	ReasonExceedsFeasibility = "UNIVERSE_EXCEEDS_FEASIBILITY"
	WarningEventsMissing     = "UNIVERSE_EVENTS_MISSING source=static_baseline"
	FallbackNone             = "NONE"
)

// Builder reconstructs the point-in-time universe
type Builder struct {
	config Config
}

// Config holds universe fallback and sizing criteria
type Config struct {
	Strategy         string  // RESTRICT | HYBRID | CIRCUIT_OPEN
	FallbackGapRatio float64 // gap 초과 시 fallback 적용
	MaxGapRatio      float64 // HYBRID: 이 이하면 restrict, 초과면 circuit open
	MaxUniverseSize  int     // feasibility 상한
	MinHistoryDays   int     // 미만이면 cold start
}

// ConfigFromPolicy maps policies to builder criteria
func ConfigFromPolicy(b *policy.Bundle) Config {
	fb := b.StratificationFallback.UniverseFallback
	return Config{
		Strategy:         fb.Strategy,
		FallbackGapRatio: fb.FallbackGapRatio,
		MaxGapRatio:      fb.MaxGapRatio,
		MaxUniverseSize:  b.Feasibility.MaxUniverseSize,
		MinHistoryDays:   b.Feature.MinHistoryDays,
	}
}

// NewBuilder creates a new Universe Builder
func NewBuilder(config Config) *Builder {
	return &Builder{config: config}
}

// Reconstruct replays events up to asof and applies the gap fallback.
// ⭐ SSOT: S1 → S2 유니버스 생성 (오늘의 유니버스를 과거에 소급 적용 금지)
func (b *Builder) Reconstruct(asof string, baseline []string, log *EventLog) *contracts.Universe {
	u := &contracts.Universe{
		AsOfDate:      asof,
		BaselineCount: len(baseline),
		Fallback:      FallbackNone,
		Warnings:      append([]string(nil), log.Warnings...),
	}

	// 이벤트 로그 없음 → 정적 기준 유니버스 사용
	if !log.Found {
		u.Warnings = append(u.Warnings, WarningEventsMissing)
		for _, s := range baseline {
			u.Rows = append(u.Rows, contracts.PITUniverseRow{Symbol: s, Source: contracts.SourceStaticBaseline})
		}
		b.finish(u)
		return u
	}

	active, delisted := replay(asof, log.Events)

	// gap = |baseline \ reconstructed| / |baseline|
	gap := 0
	for _, s := range baseline {
		if _, ok := active[s]; ok {
			continue
		}
		if _, ok := delisted[s]; ok {
			continue
		}
		gap++
	}
	if len(baseline) > 0 {
		u.GapRatio = float64(gap) / float64(len(baseline))
	}

	for s := range active {
		u.Rows = append(u.Rows, contracts.PITUniverseRow{Symbol: s, Source: contracts.SourcePITEvents})
	}
	for s := range delisted {
		u.Rows = append(u.Rows, contracts.PITUniverseRow{Symbol: s, Source: contracts.SourcePITEvents, DelistedFlag: true})
	}

	if u.GapRatio > b.config.FallbackGapRatio {
		b.applyFallback(u)
	}
	b.finish(u)
	return u
}

func (b *Builder) applyFallback(u *contracts.Universe) {
	u.Fallback = b.config.Strategy
	switch b.config.Strategy {
	case policy.FallbackRestrict:
		u.Warnings = append(u.Warnings, fmt.Sprintf("UNIVERSE_GAP_RESTRICTED gap=%.4f", u.GapRatio))
	case policy.FallbackHybrid:
		if u.GapRatio <= b.config.MaxGapRatio {
			u.Warnings = append(u.Warnings, fmt.Sprintf("UNIVERSE_GAP_RESTRICTED gap=%.4f", u.GapRatio))
			return
		}
		u.CircuitOpen = true
	default:
		u.CircuitOpen = true
	}
	if u.CircuitOpen {
		u.Reason = fmt.Sprintf("%s gap=%.4f max=%.4f strategy=%s",
			ReasonGapCircuitOpen, u.GapRatio, b.config.MaxGapRatio, b.config.Strategy)
	}
}

// finish sorts rows and applies the empty and feasibility gates
func (b *Builder) finish(u *contracts.Universe) {
	sort.Slice(u.Rows, func(i, j int) bool { return u.Rows[i].Symbol < u.Rows[j].Symbol })
	if u.CircuitOpen {
		return
	}
	switch n := u.Count(); {
	case n == 0:
		u.CircuitOpen = true
		u.Reason = ReasonEmpty
	case b.config.MaxUniverseSize > 0 && n > b.config.MaxUniverseSize:
		u.CircuitOpen = true
		u.Reason = fmt.Sprintf("%s size=%d max=%d", ReasonExceedsFeasibility, n, b.config.MaxUniverseSize)
	}
}

// Symbols returns the non-delisted symbols whose bars must be loaded
func Symbols(u *contracts.Universe) []string {
	out := make([]string, 0, len(u.Rows))
	for _, r := range u.Rows {
		if !r.DelistedFlag {
			out = append(out, r.Symbol)
		}
	}
	return out
}

// Annotate fills history depth and cold-start flags from loaded bars,
// then re-checks that something tradable remains.
func (b *Builder) Annotate(u *contracts.Universe, series map[string]*contracts.BarSeries) {
	for i := range u.Rows {
		row := &u.Rows[i]
		row.HistoryDays = 0
		if s, ok := series[row.Symbol]; ok {
			row.HistoryDays = len(s.Bars)
		}
		row.ColdStart = row.HistoryDays < b.config.MinHistoryDays
	}
	if !u.CircuitOpen && len(u.Tradable()) == 0 {
		u.CircuitOpen = true
		u.Reason = fmt.Sprintf("%s tradable=0 cold_start=%d", ReasonEmpty, coldStarts(u))
	}
}

func coldStarts(u *contracts.Universe) int {
	n := 0
	for _, r := range u.Rows {
		if r.ColdStart && !r.DelistedFlag {
			n++
		}
	}
	return n
}

// replay applies events with date <= asof in (date, file order)
func replay(asof string, events []contracts.UniverseEvent) (active, delisted map[string]struct{}) {
	ordered := make([]contracts.UniverseEvent, 0, len(events))
	for _, ev := range events {
		if ev.Date <= asof {
			ordered = append(ordered, ev)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date < ordered[j].Date })

	active = make(map[string]struct{})
	delisted = make(map[string]struct{})
	for _, ev := range ordered {
		switch ev.Action {
		case contracts.UniverseAdd:
			active[ev.Symbol] = struct{}{}
			delete(delisted, ev.Symbol)
		case contracts.UniverseRemove:
			delete(active, ev.Symbol)
			delete(delisted, ev.Symbol)
		case contracts.UniverseDelist:
			delete(active, ev.Symbol)
			delisted[ev.Symbol] = struct{}{}
		}
	}
	return active, delisted
}
