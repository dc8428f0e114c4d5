package forecast

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// PredictInput is everything one inference pass needs
type PredictInput struct {
	AsOfDate         string
	Card             *contracts.ModelCard
	Candidates       []contracts.Candidate
	Features         []contracts.FeatureRow
	Regime           *contracts.MarketRegime
	BarsManifestHash string
	PolicyHashes     map[string]string
	PrevRouter       *contracts.MoeRouterState
}

// PredictOutput carries routed predictions and the date-level router state
type PredictOutput struct {
	Predictions []contracts.PredictionRow
	Router      *contracts.MoeRouterState
	InputHash   string
}

// Predictor 예측 생성기
// score → p_up → soft weights → hysteretic logged expert
type Predictor struct {
	source PredictionSource
	router *Router
	log    zerolog.Logger
}

// NewPredictor 새 예측기 생성
func NewPredictor(source PredictionSource, router *Router, log zerolog.Logger) *Predictor {
	return &Predictor{
		source: source,
		router: router,
		log:    log.With().Str("component", "forecast.predictor").Logger(),
	}
}

// Predict scores every feature row for every card horizon.
// Errors wrapping ErrPredictionsMissing are gate failures, not fatal.
func (p *Predictor) Predict(ctx context.Context, in PredictInput) (*PredictOutput, error) {
	raw, err := p.source.Scores(ctx, ScoreRequest{
		AsOfDate: in.AsOfDate,
		Horizons: in.Card.Horizons,
		Features: in.Features,
	})
	if err != nil {
		return nil, err
	}

	regimeBucket, regimeHash := contracts.RegimeNeutral, ""
	if in.Regime != nil {
		regimeBucket, regimeHash = in.Regime.Bucket, in.Regime.StateHash
	}

	featureHash := make(map[string]string, len(in.Features))
	for _, row := range in.Features {
		h, err := canonical.Hash(row)
		if err != nil {
			return nil, fmt.Errorf("hash features %s: %w", row.Symbol, err)
		}
		featureHash[row.Symbol] = h
	}
	isControl := make(map[string]bool, len(in.Candidates))
	for _, c := range in.Candidates {
		isControl[c.Symbol] = c.IsControl
	}

	soft := make([]map[string]float64, len(raw))
	for i, s := range raw {
		soft[i] = p.router.SoftWeights(s.Score, regimeBucket)
	}
	state, err := p.router.Decide(in.AsOfDate, soft, in.PrevRouter)
	if err != nil {
		return nil, err
	}

	inputHash := p.source.InputHash()
	inputKey := "weights"
	if p.source.Mode() == contracts.ModeCI {
		inputKey = "predictions_input"
	}

	rows := make([]contracts.PredictionRow, 0, len(raw))
	for i, s := range raw {
		fh, ok := featureHash[s.Symbol]
		if !ok {
			continue
		}
		expert, conf := p.router.RowExpert(soft[i], state)
		row := contracts.PredictionRow{
			Symbol:           s.Symbol,
			AsOfDate:         in.AsOfDate,
			HorizonDays:      s.HorizonDays,
			Mode:             p.source.Mode().String(),
			ModelID:          in.Card.ModelID,
			BarsManifestHash: in.BarsManifestHash,
			Score:            s.Score,
			PUp:              s.PUp,
			LoggedExpert:     expert,
			SoftWeights:      soft[i],
			Confidence:       conf,
			PolicyHashes:     in.PolicyHashes,
			InputHashes: map[string]string{
				"features":     fh,
				"market_proxy": regimeHash,
				inputKey:       inputHash,
			},
			IsControl: isControl[s.Symbol],
		}
		id, err := PredictionID(row)
		if err != nil {
			return nil, err
		}
		row.PredictionID = id
		rows = append(rows, row)
	}
	SortPredictions(rows)

	p.log.Info().
		Str("asof", in.AsOfDate).
		Str("mode", p.source.Mode().String()).
		Int("predictions", len(rows)).
		Str("logged_expert", state.LoggedExpert).
		Bool("inherited", state.Inherited).
		Int("streak", state.StreakTradingDays).
		Msg("inference complete")

	return &PredictOutput{Predictions: rows, Router: state, InputHash: inputHash}, nil
}

// PredictionID is the content hash of the row's core fields
func PredictionID(row contracts.PredictionRow) (string, error) {
	return canonical.Hash(map[string]interface{}{
		"symbol":             row.Symbol,
		"asof_date":          row.AsOfDate,
		"horizon_days":       row.HorizonDays,
		"mode":               row.Mode,
		"model_id":           row.ModelID,
		"bars_manifest_hash": row.BarsManifestHash,
		"score":              row.Score,
		"p_up":               row.PUp,
	})
}

// SortPredictions orders rows by (symbol, horizon)
func SortPredictions(rows []contracts.PredictionRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		return rows[i].HorizonDays < rows[j].HorizonDays
	})
}
