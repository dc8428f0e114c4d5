package selection

import (
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// PackBuilder derives the TriggerPack read-model from predictions.
// Pure: nothing is persisted here.
type PackBuilder struct {
	ranker   *Ranker
	screener *Screener
}

// NewPackBuilder wires ranker and screener from root.selection
func NewPackBuilder(sel policy.SelectionPolicy, log *logger.Logger) *PackBuilder {
	log = log.WithField("module", "selection")
	return &PackBuilder{
		ranker:   NewRanker(RankConfigFromPolicy(sel), log),
		screener: NewScreener(ScreenerConfigFromPolicy(sel), log),
	}
}

// Build returns hotset, watchlist, triggers and scorecard
func (b *PackBuilder) Build(predictions []contracts.PredictionRow) *contracts.TriggerPack {
	hotset, watchlist := b.ranker.Rank(predictions)
	triggers := b.screener.Screen(predictions)
	return &contracts.TriggerPack{
		Hotset:    hotset,
		Watchlist: watchlist,
		Triggers:  triggers,
		Scorecard: BuildScorecard(predictions, triggers),
	}
}

// BuildScorecard aggregates mean p_up/score and trigger counts per horizon
func BuildScorecard(predictions []contracts.PredictionRow, triggers []contracts.Trigger) contracts.Scorecard {
	byHorizon := make(map[int]*contracts.HorizonScore)
	get := func(h int) *contracts.HorizonScore {
		hs, ok := byHorizon[h]
		if !ok {
			hs = &contracts.HorizonScore{HorizonDays: h}
			byHorizon[h] = hs
		}
		return hs
	}

	for _, p := range predictions {
		hs := get(p.HorizonDays)
		hs.Count++
		hs.MeanPUp += p.PUp
		hs.MeanScore += p.Score
	}
	for _, t := range triggers {
		hs := get(t.HorizonDays)
		if t.Direction == DirectionUp {
			hs.UpTriggers++
		} else {
			hs.DownTriggers++
		}
	}

	horizons := make([]int, 0, len(byHorizon))
	for h := range byHorizon {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)

	card := contracts.Scorecard{
		TotalPredictions: len(predictions),
		Horizons:         make([]contracts.HorizonScore, 0, len(horizons)),
	}
	for _, h := range horizons {
		hs := byHorizon[h]
		if hs.Count > 0 {
			hs.MeanPUp /= float64(hs.Count)
			hs.MeanScore /= float64(hs.Count)
		}
		card.Horizons = append(card.Horizons, *hs)
	}
	return card
}
