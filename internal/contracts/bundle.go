package contracts

// Published bundle file names (exactly six per date)
const (
	FileHotset             = "hotset.json"
	FileWatchlist          = "watchlist.json"
	FileTriggers           = "triggers.json"
	FileScorecard          = "scorecard.json"
	FileModelCard          = "model_card.json"
	FileDiagnosticsSummary = "diagnostics_summary.json"
)

// BundleFiles returns the six bundle file names in canonical order
func BundleFiles() []string {
	return []string{
		FileHotset,
		FileWatchlist,
		FileTriggers,
		FileScorecard,
		FileModelCard,
		FileDiagnosticsSummary,
	}
}

// BundleMeta is the shared meta block carried by every published file
type BundleMeta struct {
	AsOfDate         string            `json:"asof_date"`
	Mode             string            `json:"mode"`
	PolicyHashes     map[string]string `json:"policy_hashes"`
	ModelIDs         map[string]string `json:"model_ids"`
	BarsManifestHash string            `json:"bars_manifest_hash"`
	OutcomeRevision  int               `json:"outcome_revision"`
	CircuitOpen      bool              `json:"circuitOpen"`
	Reason           string            `json:"reason"`
	LastGoodDateUsed *string           `json:"last_good_date_used"`
	GeneratedAt      string            `json:"generated_at"`
}

// Check status values
const (
	CheckPass = "PASS"
	CheckFail = "FAIL"
	CheckWarn = "WARN"
	CheckSkip = "SKIP"
)

// Check is one named gate result inside the diagnostics summary
type Check struct {
	Status  string                 `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DiagnosticsSummary is the operator-facing run report
// ⭐ SSOT: 운영자 가시성은 checks 와 meta.reason 으로만 제공
type DiagnosticsSummary struct {
	Meta         BundleMeta        `json:"meta"`
	RunID        string            `json:"run_id"`
	State        RunState          `json:"state"`
	FailureState RunState          `json:"failure_state,omitempty"`
	FailureStage Stage             `json:"failure_stage,omitempty"`
	Checks       map[string]Check  `json:"checks"`
	Counts       map[string]int    `json:"counts"`
	Hashes       map[string]string `json:"hashes"`
	Warnings     []string          `json:"warnings"`
}

// Bundle is the in-memory form of the six published documents
type Bundle struct {
	AsOfDate string
	Docs     map[string][]byte // file name → document bytes
}

// LastGoodEntry is the current pointer target
type LastGoodEntry struct {
	Date          string `json:"date"`
	ArtifactsHash string `json:"artifacts_hash"`
	SetAt         string `json:"set_at"`
	Reason        string `json:"reason"`
	ReplacedDate  string `json:"replaced_date"`
}

// History entry kinds
const (
	LastGoodSet      = "set"
	LastGoodRollback = "rollback"
)

// LastGoodHistoryEntry is an append-only pointer event
type LastGoodHistoryEntry struct {
	Kind             string `json:"kind"`
	Date             string `json:"date"`
	ArtifactsHash    string `json:"artifacts_hash,omitempty"`
	SetAt            string `json:"set_at"`
	Reason           string `json:"reason"`
	ReplacedDate     string `json:"replaced_date,omitempty"`
	LastGoodDateUsed string `json:"last_good_date_used,omitempty"`
}

// RollbackStats are recomputed from history over a trailing window
type RollbackStats struct {
	WindowDays          int     `json:"window_days"`
	RollbackCount       int     `json:"rollback_count"`
	AvgRollbackDays     float64 `json:"avg_rollback_days"`
	LongestRollbackDays int     `json:"longest_rollback_days"`
}

// LastGoodPointer tracks the most recent fully successful publish
type LastGoodPointer struct {
	CurrentLastGood *LastGoodEntry         `json:"current_last_good"`
	History         []LastGoodHistoryEntry `json:"history"`
	Stats           RollbackStats          `json:"stats"`
}
