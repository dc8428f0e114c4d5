package forecast

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// ModelCardDir is where champion cards live under the policy root
const ModelCardDir = "policies"

// LoadModelCard reads the champion card named by the promotion policy
// 실패 시 MODEL_CARD_UNAVAILABLE (프로그램 중단)
func LoadModelCard(inputDir, cardPath string) (*contracts.ModelCard, error) {
	path := filepath.Join(inputDir, ModelCardDir, filepath.FromSlash(cardPath))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contracts.NewFatal(contracts.FatalModelCardUnavailable, err, "read model card %s", cardPath)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var card contracts.ModelCard
	if err := dec.Decode(&card); err != nil {
		return nil, contracts.NewFatal(contracts.FatalModelCardUnavailable, err, "decode model card %s", cardPath)
	}
	if err := policy.ValidateStruct(&card); err != nil {
		return nil, contracts.NewFatal(contracts.FatalModelCardUnavailable, err, "invalid model card %s", cardPath)
	}
	if filepath.Base(card.WeightsFile) != card.WeightsFile {
		return nil, contracts.NewFatal(contracts.FatalModelCardUnavailable, nil,
			"weights_file %q must be a plain file name", card.WeightsFile)
	}

	card.Horizons = uniqueSortedInts(card.Horizons)
	return &card, nil
}

// Coefficients is one linear-logistic head
type Coefficients struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// Score returns intercept + Σ coef·x over the named features
func (c Coefficients) Score(names []string, features map[string]float64) float64 {
	s := c.Intercept
	for _, name := range names {
		s += c.Coefficients[name] * features[name]
	}
	return s
}

// Weights is the decoded weight blob: one head per horizon, with an optional default
type Weights struct {
	Horizons map[string]Coefficients `json:"horizons"`
	Default  *Coefficients           `json:"default,omitempty"`
}

// For returns the head for a horizon
func (w *Weights) For(horizon int) (Coefficients, bool) {
	if c, ok := w.Horizons[strconv.Itoa(horizon)]; ok {
		return c, true
	}
	if w.Default != nil {
		return *w.Default, true
	}
	return Coefficients{}, false
}

// LoadWeights reads <weightsDir>/<card.weights_file> and verifies its content hash.
// Returns the verified "sha256:<hex>" of the blob.
func LoadWeights(weightsDir string, card *contracts.ModelCard) (*Weights, string, error) {
	path := filepath.Join(weightsDir, card.WeightsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", contracts.NewFatal(contracts.FatalModelCardUnavailable, err,
			"read weights %s", card.WeightsFile)
	}

	got := canonical.HashBytes(data)
	want := card.WeightsSHA256
	if !strings.HasPrefix(want, canonical.HashPrefix) {
		want = canonical.HashPrefix + want
	}
	if got != strings.ToLower(want) {
		return nil, "", contracts.NewFatal(contracts.FatalWeightsHashMismatch, nil,
			"weights %s: declared %s, computed %s", card.WeightsFile, card.WeightsSHA256, got)
	}

	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, "", contracts.NewFatal(contracts.FatalModelCardUnavailable, err,
			"decode weights %s", card.WeightsFile)
	}
	for _, h := range card.Horizons {
		if _, ok := w.For(h); !ok {
			return nil, "", contracts.NewFatal(contracts.FatalModelCardUnavailable, nil,
				"weights %s have no head for horizon %d", card.WeightsFile, h)
		}
	}
	return &w, got, nil
}

// Sigmoid maps a score to a probability
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func uniqueSortedInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// ModelIDs returns the meta.model_ids block for a card
func ModelIDs(card *contracts.ModelCard, shadow string) map[string]string {
	ids := map[string]string{}
	if card != nil {
		ids["champion"] = card.ModelID
	}
	if shadow != "" {
		ids["shadow"] = shadow
	}
	return ids
}
