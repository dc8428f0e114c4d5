package contracts

// RankedPrediction is the published view of one prediction
type RankedPrediction struct {
	Rank         int     `json:"rank"`
	Symbol       string  `json:"symbol"`
	HorizonDays  int     `json:"horizon_days"`
	Score        float64 `json:"score"`
	PUp          float64 `json:"p_up"`
	LoggedExpert string  `json:"logged_expert"`
	Confidence   float64 `json:"confidence"`
	PredictionID string  `json:"prediction_id"`
}

// Trigger is a threshold-crossing prediction
type Trigger struct {
	Symbol       string  `json:"symbol"`
	HorizonDays  int     `json:"horizon_days"`
	Direction    string  `json:"direction"` // UP | DOWN
	PUp          float64 `json:"p_up"`
	Score        float64 `json:"score"`
	PredictionID string  `json:"prediction_id"`
}

// HorizonScore aggregates one horizon
type HorizonScore struct {
	HorizonDays  int     `json:"horizon_days"`
	Count        int     `json:"count"`
	MeanPUp      float64 `json:"mean_p_up"`
	MeanScore    float64 `json:"mean_score"`
	UpTriggers   int     `json:"up_triggers"`
	DownTriggers int     `json:"down_triggers"`
}

// Scorecard aggregates predictions per horizon
type Scorecard struct {
	TotalPredictions int            `json:"total_predictions"`
	Horizons         []HorizonScore `json:"horizons"`
}

// TriggerPack is the read-model derived from predictions; recomputed every run
type TriggerPack struct {
	Hotset    []RankedPrediction `json:"hotset"`
	Watchlist []RankedPrediction `json:"watchlist"`
	Triggers  []Trigger          `json:"triggers"`
	Scorecard Scorecard          `json:"scorecard"`
}
