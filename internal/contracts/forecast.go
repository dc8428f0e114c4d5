package contracts

// Expert names for MoE routing
const (
	ExpertBull    = "bull"
	ExpertBear    = "bear"
	ExpertNeutral = "neutral"
)

// Experts returns expert names in canonical order
func Experts() []string {
	return []string{ExpertBear, ExpertBull, ExpertNeutral}
}

// PredictionRow is one score per candidate per horizon.
// PredictionID is the content hash of the row's core fields.
type PredictionRow struct {
	PredictionID     string             `json:"prediction_id"`
	Symbol           string             `json:"symbol"`
	AsOfDate         string             `json:"asof_date"`
	HorizonDays      int                `json:"horizon_days"`
	Mode             string             `json:"mode"`
	ModelID          string             `json:"model_id"`
	BarsManifestHash string             `json:"bars_manifest_hash"`
	Score            float64            `json:"score"`
	PUp              float64            `json:"p_up"`
	LoggedExpert     string             `json:"logged_expert"`
	SoftWeights      map[string]float64 `json:"soft_weights"`
	Confidence       float64            `json:"confidence"`
	PolicyHashes     map[string]string  `json:"policy_hashes"`
	InputHashes      map[string]string  `json:"input_hashes"`
	IsControl        bool               `json:"is_control"`
	YTrue            *int               `json:"y_true"`
}

// ModelCard describes the champion model; weights are referenced by content hash only
type ModelCard struct {
	ModelID       string   `json:"model_id" validate:"required"`
	WeightsFile   string   `json:"weights_file" validate:"required"`
	WeightsSHA256 string   `json:"weights_sha256" validate:"required"`
	FeatureNames  []string `json:"feature_names" validate:"required,min=1"`
	Horizons      []int    `json:"horizons" validate:"required,min=1,dive,gt=0"`
}

// MoeRouterState is the per-date hard routing decision with hysteresis
type MoeRouterState struct {
	AsOfDate          string             `json:"asof_date"`
	LoggedExpert      string             `json:"logged_expert"`
	SoftWeights       map[string]float64 `json:"soft_weights"`
	Confidence        float64            `json:"confidence"`
	StreakTradingDays int                `json:"streak_trading_days"`
	Inherited         bool               `json:"inherited"`
	StateHash         string             `json:"state_hash"`
}
