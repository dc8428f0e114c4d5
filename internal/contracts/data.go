package contracts

// DateLayout is the only date format used in artifacts and file names
const DateLayout = "2006-01-02"

// Bar is a single daily OHLCV row
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BarSeries is the as-of-filtered history of one symbol, oldest first
type BarSeries struct {
	Symbol string `json:"symbol"`
	Path   string `json:"path"`
	Bars   []Bar  `json:"bars"`
}

// Latest returns the most recent bar, or nil when empty
func (s *BarSeries) Latest() *Bar {
	if s == nil || len(s.Bars) == 0 {
		return nil
	}
	return &s.Bars[len(s.Bars)-1]
}

// CloseOn returns the close on the given date
func (s *BarSeries) CloseOn(date string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for i := len(s.Bars) - 1; i >= 0; i-- {
		if s.Bars[i].Date == date {
			return s.Bars[i].Close, true
		}
		if s.Bars[i].Date < date {
			break
		}
	}
	return 0, false
}

// BarsManifest records exactly which bar partitions a run consumed
// ⭐ SSOT: S0 산출물. 누락 종목은 Missing에 기록 (대체 금지)
type BarsManifest struct {
	AsOfDate         string            `json:"asof_date"`
	Provider         string            `json:"provider"`
	ProviderRevision string            `json:"provider_revision"`
	Partitions       []string          `json:"partitions"`
	Hashes           map[string]string `json:"hashes"`
	Missing          []string          `json:"missing"`
	BarsManifestHash string            `json:"bars_manifest_hash"`
}

// DataQualitySnapshot represents the DQ gate outcome passed from S0 to S1
type DataQualitySnapshot struct {
	AsOfDate       string   `json:"asof_date"`
	TotalSymbols   int      `json:"total_symbols"`
	CoveredSymbols int      `json:"covered_symbols"`
	Coverage       float64  `json:"coverage"`
	MinCoverage    float64  `json:"min_coverage"`
	Missing        []string `json:"missing"`
	StaleSymbols   []string `json:"stale_symbols"`
	SplitSuspects  []string `json:"split_suspects"`
	Passed         bool     `json:"passed"`
	Reason         string   `json:"reason,omitempty"`
}
