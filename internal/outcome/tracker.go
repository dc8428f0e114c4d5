package outcome

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
)

// WarningExpired marks pending rows dropped after max_pending_age_days without prices
const WarningExpired = "OUTCOME_EXPIRED"

// Tracker 전방 성과 추적기
// 호라이즌 경과 후 as-of 종가 대비 결과일 종가로 y_true 계산
type Tracker struct {
	inputDir      string
	maxPendingAge int
	log           zerolog.Logger
}

// NewTracker 새 추적기 생성
func NewTracker(inputDir string, maxPendingAgeDays int, log zerolog.Logger) *Tracker {
	return &Tracker{
		inputDir:      inputDir,
		maxPendingAge: maxPendingAgeDays,
		log:           log.With().Str("component", "outcome.tracker").Logger(),
	}
}

// MatureResult splits the queue after one maturation pass
type MatureResult struct {
	Matured  []contracts.MaturedOutcome
	Pending  []contracts.PendingOutcome
	Expired  int
	Warnings []string
}

// OutcomeID is the content id of a realized outcome
func OutcomeID(predictionID, outcomeDate string) string {
	return canonical.HashParts("outcome", predictionID, outcomeDate)
}

// Mature realizes every pending row whose outcome date is on or before asof.
// y_true = 1 when the outcome-date close exceeds the as-of close.
func (t *Tracker) Mature(asof string, revision int, pending []contracts.PendingOutcome) (*MatureResult, error) {
	res := &MatureResult{}
	series := make(map[string][]contracts.Bar)

	for _, p := range pending {
		if p.OutcomeDate > asof {
			res.Pending = append(res.Pending, p)
			continue
		}

		bars, ok := series[p.Symbol]
		if !ok {
			var err error
			bars, err = s0_data.ReadBars(t.inputDir, s0_data.PartitionFor(p.Symbol), asof)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read bars %s: %w", p.Symbol, err)
			}
			series[p.Symbol] = bars
		}
		s := &contracts.BarSeries{Symbol: p.Symbol, Bars: bars}
		start, okStart := s.CloseOn(p.AsOfDate)
		end, okEnd := s.CloseOn(p.OutcomeDate)

		if !okStart || !okEnd {
			age, err := daysBetween(p.OutcomeDate, asof)
			if err != nil {
				return nil, err
			}
			if age > t.maxPendingAge {
				res.Expired++
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s prediction=%s symbol=%s outcome_date=%s",
					WarningExpired, p.PredictionID, p.Symbol, p.OutcomeDate))
				continue
			}
			res.Pending = append(res.Pending, p)
			continue
		}

		y := 0
		if end > start {
			y = 1
		}
		res.Matured = append(res.Matured, contracts.MaturedOutcome{
			OutcomeID:    OutcomeID(p.PredictionID, p.OutcomeDate),
			PredictionID: p.PredictionID,
			Symbol:       p.Symbol,
			AsOfDate:     p.AsOfDate,
			OutcomeDate:  p.OutcomeDate,
			HorizonDays:  p.HorizonDays,
			PUp:          p.PUp,
			StartClose:   start,
			EndClose:     end,
			YTrue:        y,
			ModelID:      p.ModelID,
			IsControl:    p.IsControl,
			Revision:     revision,
			MaturedOn:    asof,
		})
	}

	t.log.Info().
		Str("asof", asof).
		Int("matured", len(res.Matured)).
		Int("pending", len(res.Pending)).
		Int("expired", res.Expired).
		Msg("maturation pass complete")
	return res, nil
}

func daysBetween(from, to string) (int, error) {
	a, err := time.Parse(contracts.DateLayout, from)
	if err != nil {
		return 0, err
	}
	b, err := time.Parse(contracts.DateLayout, to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}
