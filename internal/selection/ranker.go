package selection

import (
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// Ranker implements S4: hotset/watchlist ranking on the primary horizon
// ⭐ SSOT: S4 랭킹 로직은 여기서만
type Ranker struct {
	config RankConfig
	logger *logger.Logger
}

// RankConfig bounds the ranked lists
type RankConfig struct {
	HotsetSize         int
	WatchlistSize      int
	PrimaryHorizonDays int
}

// RankConfigFromPolicy reads root.selection
func RankConfigFromPolicy(sel policy.SelectionPolicy) RankConfig {
	return RankConfig{
		HotsetSize:         sel.HotsetSize,
		WatchlistSize:      sel.WatchlistSize,
		PrimaryHorizonDays: sel.PrimaryHorizonDays,
	}
}

// NewRanker creates a new ranker
func NewRanker(config RankConfig, logger *logger.Logger) *Ranker {
	return &Ranker{
		config: config,
		logger: logger,
	}
}

// Rank sorts primary-horizon predictions by score (desc, then symbol asc) and
// splits them into the hotset and the following watchlist
func (r *Ranker) Rank(predictions []contracts.PredictionRow) (hotset, watchlist []contracts.RankedPrediction) {
	primary := make([]contracts.PredictionRow, 0, len(predictions))
	for _, p := range predictions {
		if p.HorizonDays == r.config.PrimaryHorizonDays {
			primary = append(primary, p)
		}
	}

	// Sort by score (descending), symbol for ties
	sort.SliceStable(primary, func(i, j int) bool {
		if primary[i].Score != primary[j].Score {
			return primary[i].Score > primary[j].Score
		}
		return primary[i].Symbol < primary[j].Symbol
	})

	hotset = make([]contracts.RankedPrediction, 0, r.config.HotsetSize)
	watchlist = make([]contracts.RankedPrediction, 0, r.config.WatchlistSize)
	for i, p := range primary {
		ranked := toRanked(i+1, p)
		switch {
		case i < r.config.HotsetSize:
			hotset = append(hotset, ranked)
		case i < r.config.HotsetSize+r.config.WatchlistSize:
			watchlist = append(watchlist, ranked)
		}
	}

	fields := map[string]interface{}{
		"primary_horizon": r.config.PrimaryHorizonDays,
		"ranked":          len(primary),
		"hotset":          len(hotset),
		"watchlist":       len(watchlist),
	}
	if len(hotset) > 0 {
		fields["top_symbol"] = hotset[0].Symbol
		fields["top_score"] = hotset[0].Score
	}
	r.logger.WithFields(fields).Info("Ranking completed")

	return hotset, watchlist
}

func toRanked(rank int, p contracts.PredictionRow) contracts.RankedPrediction {
	return contracts.RankedPrediction{
		Rank:         rank,
		Symbol:       p.Symbol,
		HorizonDays:  p.HorizonDays,
		Score:        p.Score,
		PUp:          p.PUp,
		LoggedExpert: p.LoggedExpert,
		Confidence:   p.Confidence,
		PredictionID: p.PredictionID,
	}
}
