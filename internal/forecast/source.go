package forecast

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// PredictionsDir holds CI pre-computed predictions under the input root
const PredictionsDir = "predictions"

// ErrPredictionsMissing means CI mode found no usable predictions file for the date
var ErrPredictionsMissing = errors.New("predictions file missing")

// RawScore is one (symbol, horizon) score before routing
type RawScore struct {
	Symbol      string
	HorizonDays int
	Score       float64
	PUp         float64
}

// ScoreRequest is what a source scores
type ScoreRequest struct {
	AsOfDate string
	Horizons []int
	Features []contracts.FeatureRow
}

// PredictionSource produces raw scores for a run.
// Exactly one implementation is chosen per run from the mode.
type PredictionSource interface {
	Mode() contracts.Mode
	Scores(ctx context.Context, req ScoreRequest) ([]RawScore, error)
	// InputHash identifies the scoring input: the weight blob (LOCAL) or predictions file (CI)
	InputHash() string
}

// NewSource dispatches once on mode.
// LOCAL requires the weights directory; CI forbids it.
func NewSource(mode contracts.Mode, weightsDir, inputDir string, card *contracts.ModelCard, log zerolog.Logger) (PredictionSource, error) {
	switch mode {
	case contracts.ModeLocal:
		if weightsDir == "" {
			return nil, contracts.NewFatal(contracts.FatalModeContradiction, nil,
				"LOCAL mode requires FORECAST_MODEL_WEIGHTS_DIR")
		}
		weights, hash, err := LoadWeights(weightsDir, card)
		if err != nil {
			return nil, err
		}
		return NewLocalSource(card, weights, hash, log), nil
	case contracts.ModeCI:
		if weightsDir != "" {
			return nil, contracts.NewFatal(contracts.FatalModeContradiction, nil,
				"CI mode must not see FORECAST_MODEL_WEIGHTS_DIR")
		}
		return NewCISource(inputDir, log), nil
	default:
		return nil, contracts.NewFatal(contracts.FatalModeContradiction, nil, "unknown mode %d", int(mode))
	}
}

// LocalSource scores features on-box with the verified linear-logistic weights
type LocalSource struct {
	card        *contracts.ModelCard
	weights     *Weights
	weightsHash string
	log         zerolog.Logger
}

// NewLocalSource creates a LOCAL source
func NewLocalSource(card *contracts.ModelCard, weights *Weights, weightsHash string, log zerolog.Logger) *LocalSource {
	return &LocalSource{
		card:        card,
		weights:     weights,
		weightsHash: weightsHash,
		log:         log.With().Str("component", "forecast.local_source").Logger(),
	}
}

// Mode returns LOCAL
func (s *LocalSource) Mode() contracts.Mode { return contracts.ModeLocal }

// InputHash returns the verified weight hash
func (s *LocalSource) InputHash() string { return s.weightsHash }

// Scores computes one score per feature row per horizon
func (s *LocalSource) Scores(ctx context.Context, req ScoreRequest) ([]RawScore, error) {
	out := make([]RawScore, 0, len(req.Features)*len(req.Horizons))
	for _, row := range req.Features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, h := range req.Horizons {
			head, ok := s.weights.For(h)
			if !ok {
				return nil, fmt.Errorf("no weights for horizon %d", h)
			}
			score := head.Score(s.card.FeatureNames, row.Features)
			out = append(out, RawScore{
				Symbol:      row.Symbol,
				HorizonDays: h,
				Score:       score,
				PUp:         Sigmoid(score),
			})
		}
	}

	s.log.Info().
		Int("rows", len(req.Features)).
		Int("scores", len(out)).
		Msg("local scoring complete")
	return out, nil
}

// CISource reads pre-computed predictions; it never has access to weights
type CISource struct {
	inputDir string
	fileHash string
	log      zerolog.Logger
}

// NewCISource creates a CI source rooted at inputDir
func NewCISource(inputDir string, log zerolog.Logger) *CISource {
	return &CISource{
		inputDir: inputDir,
		log:      log.With().Str("component", "forecast.ci_source").Logger(),
	}
}

// Mode returns CI
func (s *CISource) Mode() contracts.Mode { return contracts.ModeCI }

// InputHash returns the hash of the last predictions file read
func (s *CISource) InputHash() string { return s.fileHash }

type ciRow struct {
	Symbol      string   `json:"symbol"`
	HorizonDays int      `json:"horizon_days"`
	Score       *float64 `json:"score"`
	PUp         *float64 `json:"p_up"`
}

// PredictionFiles returns the candidate file names for a date in lookup order
func PredictionFiles(date string) []string {
	return []string{
		date + ".ndjson.gz",
		date + ".ndjson",
		date + ".json",
	}
}

// Scores reads predictions/<date>.{ndjson.gz,ndjson,json} and keeps rows for
// requested symbols and horizons. Missing file or no matching rows → ErrPredictionsMissing.
func (s *CISource) Scores(ctx context.Context, req ScoreRequest) ([]RawScore, error) {
	name, raw, err := s.read(req.AsOfDate)
	if err != nil {
		return nil, err
	}
	s.fileHash = canonical.HashBytes(raw)

	rows, err := decodeCIRows(name, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPredictionsMissing, name, err)
	}

	wanted := make(map[string]bool, len(req.Features))
	for _, f := range req.Features {
		wanted[f.Symbol] = true
	}
	horizons := make(map[int]bool, len(req.Horizons))
	for _, h := range req.Horizons {
		horizons[h] = true
	}

	byKey := make(map[string]RawScore, len(rows))
	skipped := 0
	for _, r := range rows {
		if !wanted[r.Symbol] || !horizons[r.HorizonDays] || r.Score == nil || math.IsNaN(*r.Score) || math.IsInf(*r.Score, 0) {
			skipped++
			continue
		}
		p := Sigmoid(*r.Score)
		if r.PUp != nil && *r.PUp >= 0 && *r.PUp <= 1 {
			p = *r.PUp
		}
		// 중복 키는 마지막 행 우선
		byKey[fmt.Sprintf("%s|%d", r.Symbol, r.HorizonDays)] = RawScore{
			Symbol:      r.Symbol,
			HorizonDays: r.HorizonDays,
			Score:       *r.Score,
			PUp:         p,
		}
	}
	if len(byKey) == 0 {
		return nil, fmt.Errorf("%w: %s has no rows for the requested candidates", ErrPredictionsMissing, name)
	}

	out := make([]RawScore, 0, len(byKey))
	for _, v := range byKey {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].HorizonDays < out[j].HorizonDays
	})

	s.log.Info().
		Str("file", name).
		Int("rows", len(rows)).
		Int("kept", len(out)).
		Int("skipped", skipped).
		Msg("ci predictions loaded")
	return out, nil
}

func (s *CISource) read(date string) (string, []byte, error) {
	for _, name := range PredictionFiles(date) {
		data, err := os.ReadFile(filepath.Join(s.inputDir, PredictionsDir, name))
		if err == nil {
			return name, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("read predictions %s: %w", name, err)
		}
	}
	return "", nil, fmt.Errorf("%w: %s/%s.{ndjson.gz,ndjson,json}", ErrPredictionsMissing, PredictionsDir, date)
}

func decodeCIRows(name string, raw []byte) ([]ciRow, error) {
	var r io.Reader = bytes.NewReader(raw)
	if strings.HasSuffix(name, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	if strings.HasSuffix(name, ".json") {
		var rows []ciRow
		if err := json.NewDecoder(r).Decode(&rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var rows []ciRow
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var row ciRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}
