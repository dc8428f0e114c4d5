package selection

import (
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// Trigger directions
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// Screener implements S4 trigger filtering: probability threshold crossings
// ⭐ SSOT: 트리거 판정은 여기서만
type Screener struct {
	config ScreenerConfig
	logger *logger.Logger
}

// ScreenerConfig defines trigger thresholds
type ScreenerConfig struct {
	UpThreshold   float64 // p_up ≥ 이면 UP (기본: 0.6)
	DownThreshold float64 // p_up ≤ 이면 DOWN (기본: 0.4)
}

// ScreenerConfigFromPolicy reads root.selection
func ScreenerConfigFromPolicy(sel policy.SelectionPolicy) ScreenerConfig {
	return ScreenerConfig{
		UpThreshold:   sel.UpThreshold,
		DownThreshold: sel.DownThreshold,
	}
}

// NewScreener creates a new screener
func NewScreener(config ScreenerConfig, logger *logger.Logger) *Screener {
	return &Screener{
		config: config,
		logger: logger,
	}
}

// Screen returns triggers for every horizon, sorted by (symbol, horizon)
func (s *Screener) Screen(predictions []contracts.PredictionRow) []contracts.Trigger {
	triggers := make([]contracts.Trigger, 0)
	filtered := 0

	for _, p := range predictions {
		direction := s.Direction(p.PUp)
		if direction == "" {
			filtered++
			continue
		}
		triggers = append(triggers, contracts.Trigger{
			Symbol:       p.Symbol,
			HorizonDays:  p.HorizonDays,
			Direction:    direction,
			PUp:          p.PUp,
			Score:        p.Score,
			PredictionID: p.PredictionID,
		})
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Symbol != triggers[j].Symbol {
			return triggers[i].Symbol < triggers[j].Symbol
		}
		return triggers[i].HorizonDays < triggers[j].HorizonDays
	})

	s.logger.WithFields(map[string]interface{}{
		"total":    len(predictions),
		"triggers": len(triggers),
		"filtered": filtered,
	}).Info("Trigger screening completed")

	return triggers
}

// Direction classifies p_up; "" when inside the neutral band
func (s *Screener) Direction(pUp float64) string {
	switch {
	case pUp >= s.config.UpThreshold:
		return DirectionUp
	case pUp <= s.config.DownThreshold:
		return DirectionDown
	default:
		return ""
	}
}
