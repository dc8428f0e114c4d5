package forecast

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// RouterConfig holds MoE routing parameters
type RouterConfig struct {
	Temperature         float64
	ConfidenceThreshold float64
	RegimeNudge         float64
}

// RouterConfigFromPolicy builds the router config from moe_routing policy
func RouterConfigFromPolicy(p policy.MoeRouting) RouterConfig {
	return RouterConfig{
		Temperature:         p.Temperature,
		ConfidenceThreshold: p.ConfidenceThreshold,
		RegimeNudge:         p.RegimeNudge,
	}
}

// Router converts scores to soft expert weights and makes the hysteretic hard choice
type Router struct {
	config RouterConfig
}

// NewRouter creates a router
func NewRouter(config RouterConfig) *Router {
	if config.Temperature <= 0 {
		config.Temperature = 1
	}
	return &Router{config: config}
}

// SoftWeights returns the temperature softmax over expert logits.
// bull=score, bear=-score, neutral=-|score|; the regime's expert gets the nudge.
func (r *Router) SoftWeights(score float64, regimeBucket string) map[string]float64 {
	logits := map[string]float64{
		contracts.ExpertBull:    score,
		contracts.ExpertBear:    -score,
		contracts.ExpertNeutral: -math.Abs(score),
	}
	switch regimeBucket {
	case contracts.RegimeRiskOn:
		logits[contracts.ExpertBull] += r.config.RegimeNudge
	case contracts.RegimeRiskOff:
		logits[contracts.ExpertBear] += r.config.RegimeNudge
	default:
		logits[contracts.ExpertNeutral] += r.config.RegimeNudge
	}

	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, v)
	}
	sum := 0.0
	out := make(map[string]float64, len(logits))
	for _, e := range contracts.Experts() {
		w := math.Exp((logits[e] - maxLogit) / r.config.Temperature)
		out[e] = w
		sum += w
	}
	for e := range out {
		out[e] /= sum
	}
	return out
}

// Argmax returns the top expert and its weight; ties resolve in canonical expert order
func Argmax(weights map[string]float64) (string, float64) {
	best, bestW := "", -1.0
	for _, e := range contracts.Experts() {
		if w := weights[e]; w > bestW {
			best, bestW = e, w
		}
	}
	return best, bestW
}

// Decide computes the date-level router state from per-row soft weights.
// Below the confidence threshold the previous trading day's logged expert is kept.
func (r *Router) Decide(asof string, rows []map[string]float64, prev *contracts.MoeRouterState) (*contracts.MoeRouterState, error) {
	mean := make(map[string]float64, 3)
	for _, e := range contracts.Experts() {
		mean[e] = 0
	}
	for _, w := range rows {
		for _, e := range contracts.Experts() {
			mean[e] += w[e]
		}
	}
	if len(rows) > 0 {
		for e := range mean {
			mean[e] /= float64(len(rows))
		}
	} else {
		for e := range mean {
			mean[e] = 1.0 / 3.0
		}
	}

	expert, conf := Argmax(mean)
	state := &contracts.MoeRouterState{
		AsOfDate:          asof,
		LoggedExpert:      expert,
		SoftWeights:       mean,
		Confidence:        conf,
		StreakTradingDays: 1,
	}
	if prev != nil && prev.LoggedExpert != "" && conf < r.config.ConfidenceThreshold {
		state.LoggedExpert = prev.LoggedExpert
		state.Inherited = true
	}
	if prev != nil && prev.LoggedExpert == state.LoggedExpert {
		state.StreakTradingDays = prev.StreakTradingDays + 1
	}

	hash, err := canonical.HashArtifact(canonical.ArtifactRouterState, state)
	if err != nil {
		return nil, fmt.Errorf("hash router state: %w", err)
	}
	state.StateHash = hash
	return state, nil
}

// RowExpert is the per-row logged expert: its own argmax when confident,
// otherwise the date-level decision
func (r *Router) RowExpert(weights map[string]float64, state *contracts.MoeRouterState) (string, float64) {
	expert, conf := Argmax(weights)
	if conf < r.config.ConfidenceThreshold && state != nil {
		return state.LoggedExpert, conf
	}
	return expert, conf
}

// RouterStore persists router state by date under <state>/router/
type RouterStore struct {
	dir string
}

// NewRouterStore creates a store
func NewRouterStore(stateRoot string) *RouterStore {
	return &RouterStore{dir: filepath.Join(stateRoot, "router")}
}

// Load returns the state for date; (nil, nil) when absent
func (s *RouterStore) Load(date string) (*contracts.MoeRouterState, error) {
	var st contracts.MoeRouterState
	if err := atomicio.ReadJSON(filepath.Join(s.dir, date+".json"), &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load router state %s: %w", date, err)
	}
	return &st, nil
}

// Save writes the state atomically
func (s *RouterStore) Save(st *contracts.MoeRouterState) error {
	return atomicio.WriteJSON(filepath.Join(s.dir, st.AsOfDate+".json"), st)
}
