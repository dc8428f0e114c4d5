package contracts

// Liquidity tiers (20-day median volume)
const (
	LiquidityLow  = "LIQ_LOW"
	LiquidityMid  = "LIQ_MID"
	LiquidityHigh = "LIQ_HIGH"
)

// Regime buckets (market proxy 20-trading-day return)
const (
	RegimeRiskOn  = "RISK_ON"
	RegimeNeutral = "NEUTRAL"
	RegimeRiskOff = "RISK_OFF"
)

// MarketRegime is the broad-market proxy state for a date
type MarketRegime struct {
	AsOfDate  string  `json:"asof_date"`
	Source    string  `json:"source"` // proxy symbol, or "equal_weight_universe"
	Return20D float64 `json:"return_20d"`
	Bucket    string  `json:"bucket"`
	StateHash string  `json:"state_hash"`
}

// Candidate is a universe member selected for scoring.
// IsControl is assigned from a seeded hash, never a random draw.
type Candidate struct {
	Symbol                string  `json:"symbol"`
	AsOfDate              string  `json:"asof_date"`
	LiquidityBucket       string  `json:"liquidity_bucket"`
	RegimeBucket          string  `json:"regime_bucket"`
	IsControl             bool    `json:"is_control"`
	SampleWeight          float64 `json:"sample_weight"`
	ExpertLossWeight      float64 `json:"expert_loss_weight"`
	RouterLossWeight      float64 `json:"router_loss_weight"`
	CalibrationLossWeight float64 `json:"calibration_loss_weight"`
}

// Bucket returns the stratification key "<liquidity>|<regime>"
func (c Candidate) Bucket() string {
	return c.LiquidityBucket + "|" + c.RegimeBucket
}

// FeatureRow is the closed, policy-enforced feature vector of one candidate
type FeatureRow struct {
	Symbol    string             `json:"symbol"`
	Date      string             `json:"date"`
	IsControl bool               `json:"is_control"`
	Features  map[string]float64 `json:"features"`
}
