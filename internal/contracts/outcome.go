package contracts

// PendingOutcome is a prediction waiting for its horizon to elapse
type PendingOutcome struct {
	PredictionID string  `json:"prediction_id"`
	Symbol       string  `json:"symbol"`
	AsOfDate     string  `json:"asof_date"`
	HorizonDays  int     `json:"horizon_days"`
	OutcomeDate  string  `json:"outcome_date"`
	PUp          float64 `json:"p_up"`
	ModelID      string  `json:"model_id"`
	IsControl    bool    `json:"is_control"`
}

// MaturedOutcome is an appended, revision-labelled realized outcome
type MaturedOutcome struct {
	OutcomeID    string  `json:"outcome_id"`
	PredictionID string  `json:"prediction_id"`
	Symbol       string  `json:"symbol"`
	AsOfDate     string  `json:"asof_date"`
	OutcomeDate  string  `json:"outcome_date"`
	HorizonDays  int     `json:"horizon_days"`
	PUp          float64 `json:"p_up"`
	StartClose   float64 `json:"start_close"`
	EndClose     float64 `json:"end_close"`
	YTrue        int     `json:"y_true"`
	ModelID      string  `json:"model_id"`
	IsControl    bool    `json:"is_control"`
	Revision     int     `json:"revision"`
	MaturedOn    string  `json:"matured_on"`
}

// RevisionCorrection records one detected upstream restatement
type RevisionCorrection struct {
	Date      string `json:"date"`
	Partition string `json:"partition"`
	OldHash   string `json:"old_hash"`
	NewHash   string `json:"new_hash"`
	Revision  int    `json:"revision"`
}

// OutcomeRevisionState is the durable revision counter and acknowledged partition hashes
type OutcomeRevisionState struct {
	Revision    int                          `json:"revision"`
	Observed    map[string]map[string]string `json:"observed"` // date → partition → hash
	Corrections []RevisionCorrection         `json:"corrections"`
}
