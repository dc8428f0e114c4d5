// Package determinism materializes a synthetic input tree and checks that two
// runs over it produce byte-identical hashes.
package determinism

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/creasty/defaults"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/calendar"
	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/forecast"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s1_universe"
)

// FrozenDate is the default as-of of the materialized fixture
const FrozenDate = "2026-10-14"

// FixtureOptions shape the synthetic market. Zero fields take the tag defaults.
type FixtureOptions struct {
	Symbols        []string `default:"[\"AAA\",\"BBB\",\"CCC\"]" validate:"min=1,dive,required"`
	ProxySymbol    string   `default:"SPY"`
	Days           int      `default:"200" validate:"gte=80"`
	PredictionDays int      `default:"5" validate:"gte=1"`
	Horizons       []int    `default:"[1,5,20]" validate:"min=1,dive,gt=0"`
	BaseClose      float64  `default:"100" validate:"gt=0"`
	DailyDrift     float64  `default:"0.002"`
	BaseVolume     float64  `default:"2000000" validate:"gt=0"`
	ModelID        string   `default:"fixture-linear-v1"`
	WeightsFile    string   `default:"champion.weights.json"`
}

// Fixture describes a materialized input tree
type Fixture struct {
	InputDir string
	Dates    []string // trading days with bars, oldest first
	Card     *contracts.ModelCard
	Weights  []byte // never written under InputDir
	Options  FixtureOptions
}

// PredictionDates returns the dates that have a CI predictions file
func (f *Fixture) PredictionDates() []string {
	n := f.Options.PredictionDays
	if n > len(f.Dates) {
		n = len(f.Dates)
	}
	return f.Dates[len(f.Dates)-n:]
}

// WriteWeights writes the weight blob to <dir>/<weights_file> for LOCAL runs
func (f *Fixture) WriteWeights(dir string) error {
	return atomicio.WriteFile(filepath.Join(dir, f.Card.WeightsFile), f.Weights, 0o600)
}

// Materialize writes policies, model card, universe, bars and CI predictions
// under dir. The bar history ends on end, which must be a trading day.
func Materialize(dir, end string, opts FixtureOptions) (*Fixture, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("fixture defaults: %w", err)
	}
	if err := policy.ValidateStruct(&opts); err != nil {
		return nil, fmt.Errorf("fixture options: %w", err)
	}

	docs := policy.Defaults()
	if err := policy.WriteSigned(filepath.Join(dir, "policies"), docs); err != nil {
		return nil, err
	}
	cal, err := calendar.New(docs[policy.NameCalendar].(policy.Calendar))
	if err != nil {
		return nil, err
	}
	if !cal.IsTradingDay(end) {
		return nil, fmt.Errorf("fixture end %s is not a trading day", end)
	}
	start, err := cal.Offset(end, -(opts.Days - 1))
	if err != nil {
		return nil, fmt.Errorf("fixture start: %w", err)
	}
	dates, err := cal.TradingDays(start, end)
	if err != nil {
		return nil, err
	}

	f := &Fixture{InputDir: dir, Dates: dates, Options: opts}

	// 1. 바 (universe 종목 + 시장 프록시)
	series := append(append([]string{}, opts.Symbols...), opts.ProxySymbol)
	for i, sym := range series {
		if sym == "" {
			continue
		}
		bars := synthBars(dates, opts, i)
		if err := atomicio.WriteJSON(filepath.Join(dir, filepath.FromSlash(s0_data.PartitionFor(sym))), bars); err != nil {
			return nil, err
		}
	}

	// 2. universe 기준 + 이벤트 로그
	if err := atomicio.WriteJSON(filepath.Join(dir, filepath.FromSlash(s1_universe.BaselineFile)),
		map[string]interface{}{"symbols": opts.Symbols}); err != nil {
		return nil, err
	}
	events := make([]contracts.UniverseEvent, 0, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		events = append(events, contracts.UniverseEvent{Date: dates[0], Action: contracts.UniverseAdd, Symbol: sym})
	}
	if err := writeNDJSON(filepath.Join(dir, filepath.FromSlash(s1_universe.EventsFile)), events); err != nil {
		return nil, err
	}

	// 3. 가중치 + 모델 카드
	if f.Weights, err = synthWeights(opts.Horizons); err != nil {
		return nil, err
	}
	f.Card = &contracts.ModelCard{
		ModelID:       opts.ModelID,
		WeightsFile:   opts.WeightsFile,
		WeightsSHA256: canonical.HashBytes(f.Weights),
		FeatureNames:  append([]string(nil), policy.FeatureNames...),
		Horizons:      append([]int(nil), opts.Horizons...),
	}
	promotion := docs[policy.NamePromotion].(policy.Promotion)
	cardPath := filepath.Join(dir, forecast.ModelCardDir, filepath.FromSlash(promotion.ChampionCard))
	if err := atomicio.WriteJSON(cardPath, f.Card); err != nil {
		return nil, err
	}

	// 4. CI 예측 파일
	for _, date := range f.PredictionDates() {
		if err := writeNDJSON(filepath.Join(dir, forecast.PredictionsDir, date+".ndjson"), synthPredictions(date, opts)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// synthBars is a drifting close with a deterministic wiggle; High/Low sit at ±1%
func synthBars(dates []string, opts FixtureOptions, k int) []contracts.Bar {
	drift := opts.DailyDrift * (1 + 0.5*float64(k))
	base := opts.BaseClose * (1 + 0.1*float64(k))
	phase := float64(k) * 0.9

	bars := make([]contracts.Bar, len(dates))
	prev := base
	for i, d := range dates {
		t := float64(i)
		closePx := round4(base * math.Exp(drift*t+0.01*math.Sin(0.7*t+phase)))
		bars[i] = contracts.Bar{
			Date:   d,
			Open:   round4(prev),
			High:   round4(closePx * 1.01),
			Low:    round4(closePx * 0.99),
			Close:  closePx,
			Volume: math.Round(opts.BaseVolume * (1 + 0.2*math.Sin(0.3*t+phase))),
		}
		prev = closePx
	}
	return bars
}

func synthWeights(horizons []int) ([]byte, error) {
	w := forecast.Weights{Horizons: make(map[string]forecast.Coefficients, len(horizons))}
	for _, h := range horizons {
		scale := 1 / math.Sqrt(float64(h))
		w.Horizons[strconv.Itoa(h)] = forecast.Coefficients{
			Intercept: 0.01,
			Coefficients: map[string]float64{
				"ret_1d":           2.0 * scale,
				"ret_5d":           1.5 * scale,
				"ret_20d":          1.0 * scale,
				"vol_20d":          -3.0 * scale,
				"volume_z_20":      0.05,
				"dist_sma50_atr14": 0.1 * scale,
			},
		}
	}
	return json.MarshalIndent(w, "", "  ")
}

type predictionLine struct {
	Symbol      string  `json:"symbol"`
	HorizonDays int     `json:"horizon_days"`
	Score       float64 `json:"score"`
}

// synthPredictions derives each score from a content hash, so reruns see the same file
func synthPredictions(date string, opts FixtureOptions) []predictionLine {
	out := make([]predictionLine, 0, len(opts.Symbols)*len(opts.Horizons))
	for _, sym := range opts.Symbols {
		for _, h := range opts.Horizons {
			digest := canonical.HashParts(opts.ModelID, date, sym, strconv.Itoa(h))
			v, _ := strconv.ParseUint(digest[len(canonical.HashPrefix):len(canonical.HashPrefix)+8], 16, 32)
			unit := float64(v) / float64(math.MaxUint32)
			out = append(out, predictionLine{Symbol: sym, HorizonDays: h, Score: round4((unit*2 - 1) * 1.5)})
		}
	}
	return out
}

func writeNDJSON[T any](path string, rows []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	return atomicio.WriteFile(path, buf.Bytes(), 0o644)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
