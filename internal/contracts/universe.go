package contracts

// UniverseEventAction is an entry kind in the append-only universe log
type UniverseEventAction string

const (
	UniverseAdd    UniverseEventAction = "add"
	UniverseRemove UniverseEventAction = "remove"
	UniverseDelist UniverseEventAction = "delist"
)

// UniverseEvent is one line of universe/events.ndjson
type UniverseEvent struct {
	Date   string              `json:"date"`
	Action UniverseEventAction `json:"action"`
	Symbol string              `json:"symbol"`
}

// UniverseSource names where the tradable set came from
type UniverseSource string

const (
	SourcePITEvents      UniverseSource = "pit_events"
	SourceStaticBaseline UniverseSource = "static_baseline"
)

// PITUniverseRow is one symbol of the reconstructed point-in-time universe
type PITUniverseRow struct {
	Symbol       string         `json:"symbol"`
	Source       UniverseSource `json:"source"`
	ColdStart    bool           `json:"cold_start"`
	HistoryDays  int            `json:"history_days"`
	DelistedFlag bool           `json:"delisted_flag"`
}

// Universe represents the tradable set passed from S1 to S2
// ⭐ SSOT: S1 → S2 투자 가능 종목 전달
type Universe struct {
	AsOfDate      string           `json:"asof_date"`
	Rows          []PITUniverseRow `json:"rows"`
	BaselineCount int              `json:"baseline_count"`
	GapRatio      float64          `json:"gap_ratio"`
	Fallback      string           `json:"fallback"`
	CircuitOpen   bool             `json:"circuit_open"`
	Reason        string           `json:"reason,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// Tradable returns the symbols eligible for candidacy (not delisted, not cold start)
func (u *Universe) Tradable() []string {
	out := make([]string, 0, len(u.Rows))
	for _, r := range u.Rows {
		if r.DelistedFlag || r.ColdStart {
			continue
		}
		out = append(out, r.Symbol)
	}
	return out
}

// Contains checks if a symbol is in the universe (delisted rows excluded)
func (u *Universe) Contains(symbol string) bool {
	for _, r := range u.Rows {
		if r.Symbol == symbol && !r.DelistedFlag {
			return true
		}
	}
	return false
}

// Count returns the number of non-delisted rows
func (u *Universe) Count() int {
	n := 0
	for _, r := range u.Rows {
		if !r.DelistedFlag {
			n++
		}
	}
	return n
}
