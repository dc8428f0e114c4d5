// Package policy loads the versioned JSON policy documents that drive every run.
// Each document declares its own integrity hash; a mismatch aborts the run.
package policy

// Policy document names (one file per name under <input>/policies/)
const (
	NameRoot                   = "root"
	NameFeature                = "feature"
	NameFeatureStore           = "feature_store"
	NameSplit                  = "split"
	NameOutcome                = "outcome"
	NameCorporateActions       = "corporate_actions"
	NameCalibration            = "calibration"
	NameMoeRouting             = "moe_routing"
	NameMonitoring             = "monitoring"
	NamePromotion              = "promotion"
	NameFeasibility            = "feasibility"
	NameSecrecy                = "secrecy"
	NameMemory                 = "memory"
	NameDisasterRecovery       = "disaster_recovery"
	NameCalendar               = "calendar"
	NameStratificationFallback = "stratification_fallback"
)

// Names returns all policy names in load order
func Names() []string {
	return []string{
		NameRoot,
		NameFeature,
		NameFeatureStore,
		NameSplit,
		NameOutcome,
		NameCorporateActions,
		NameCalibration,
		NameMoeRouting,
		NameMonitoring,
		NamePromotion,
		NameFeasibility,
		NameSecrecy,
		NameMemory,
		NameDisasterRecovery,
		NameCalendar,
		NameStratificationFallback,
	}
}

// Header is carried by every policy document
type Header struct {
	Version    string `json:"version" validate:"required"`
	PolicyHash string `json:"policy_hash" validate:"required,startswith=sha256:"`
}

// Root 파이프라인 전역 설정
type Root struct {
	Header
	Provider         string          `json:"provider" validate:"required"`
	ProviderRevision string          `json:"provider_revision" validate:"required"`
	DQ               DQ              `json:"dq"`
	Selection        SelectionPolicy `json:"selection"`
}

// DQ S0 품질 게이트 임계값
type DQ struct {
	MinCoverage             float64 `json:"min_coverage" validate:"gt=0,lte=1"`
	MaxStalenessTradingDays int     `json:"max_staleness_trading_days" validate:"gte=0"`
}

// SelectionPolicy S4 hotset/watchlist/trigger 설정
type SelectionPolicy struct {
	HotsetSize         int     `json:"hotset_size" validate:"gt=0"`
	WatchlistSize      int     `json:"watchlist_size" validate:"gt=0"`
	PrimaryHorizonDays int     `json:"primary_horizon_days" validate:"gt=0"`
	UpThreshold        float64 `json:"up_threshold" validate:"gt=0,lt=1"`
	DownThreshold      float64 `json:"down_threshold" validate:"gt=0,lt=1"`
}

// Feature S2 피처 정책 (닫힌 집합)
type Feature struct {
	Header
	AllowedFeatures []string  `json:"allowed_features" validate:"required,min=1,dive,required"`
	ForbiddenGlobs  []string  `json:"forbidden_globs" validate:"dive,required"`
	MinHistoryDays  int       `json:"min_history_days" validate:"gt=0"`
	Winsorize       Winsorize `json:"winsorize"`
}

// Winsorize clips each feature column at batch percentiles
type Winsorize struct {
	Enabled  bool    `json:"enabled"`
	LowerPct float64 `json:"lower_pct" validate:"gte=0,lt=50"`
	UpperPct float64 `json:"upper_pct" validate:"gt=50,lte=100"`
}

// FeatureStore by-date SSOT cache
type FeatureStore struct {
	Header
	Enabled       bool `json:"enabled"`
	RetentionDays int  `json:"retention_days" validate:"gte=0"`
}

// Split control-group sampling
type Split struct {
	Header
	Seed            string      `json:"seed" validate:"required"`
	ControlFraction float64     `json:"control_fraction" validate:"gte=0,lte=1"`
	MinBucketSize   int         `json:"min_bucket_size" validate:"gte=1"`
	ControlWeights  LossWeights `json:"control_weights"`
	DefaultWeights  LossWeights `json:"default_weights"`
}

// LossWeights per candidate group
type LossWeights struct {
	Sample      float64 `json:"sample" validate:"gte=0"`
	Expert      float64 `json:"expert" validate:"gte=0"`
	Router      float64 `json:"router" validate:"gte=0"`
	Calibration float64 `json:"calibration" validate:"gte=0"`
}

// Outcome maturation and revision detection
type Outcome struct {
	Header
	RevisionLookbackManifests int `json:"revision_lookback_manifests" validate:"gte=1"`
	MaxPendingAgeDays         int `json:"max_pending_age_days" validate:"gte=1"`
}

// CorporateActions split-suspect detection
type CorporateActions struct {
	Header
	SplitSuspectAbsReturn float64 `json:"split_suspect_abs_return" validate:"gt=0"`
	ScanWindowDays        int     `json:"scan_window_days" validate:"gte=1"`
	BlockOnSuspect        bool    `json:"block_on_suspect"`
}

// Calibration bins
type Calibration struct {
	Header
	ECEBins int `json:"ece_bins" validate:"gte=2"`
	PSIBins int `json:"psi_bins" validate:"gte=2"`
}

// MoeRouting soft routing and hysteresis
type MoeRouting struct {
	Header
	Temperature         float64 `json:"temperature" validate:"gt=0"`
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"gte=0,lte=1"`
	RegimeNudge         float64 `json:"regime_nudge" validate:"gte=0"`
}

// Monitoring thresholds (circuit breaker, not warnings)
type Monitoring struct {
	Header
	MinCoverage           float64 `json:"min_coverage" validate:"gte=0,lte=1"`
	MaxECE                float64 `json:"max_ece" validate:"gt=0"`
	MaxPSI                float64 `json:"max_psi" validate:"gt=0"`
	MaxLogLossDegradation float64 `json:"max_logloss_degradation" validate:"gte=0"`
	EvalWindowDays        int     `json:"eval_window_days" validate:"gte=1"`
	MinEvalSamples        int     `json:"min_eval_samples" validate:"gte=1"`
}

// Promotion names the champion card
type Promotion struct {
	Header
	ChampionCard string `json:"champion_card" validate:"required"`
	Shadow       string `json:"shadow" validate:"oneof=constant_base_rate"`
}

// Feasibility caps the run size
type Feasibility struct {
	Header
	MaxUniverseSize int `json:"max_universe_size" validate:"gte=1"`
}

// Secrecy forbidden-artifact scan
type Secrecy struct {
	Header
	HardBlockExtensions []string `json:"hard_block_extensions" validate:"dive,startswith=."`
	ForbiddenGlobs      []string `json:"forbidden_globs" validate:"dive,required"`
	AllowlistGlobs      []string `json:"allowlist_globs" validate:"dive,required"`
	SkipDirs            []string `json:"skip_dirs" validate:"dive,required"`
}

// Memory bounds peak feature-build memory
type Memory struct {
	Header
	MaxSymbolsPerChunk int `json:"max_symbols_per_chunk" validate:"gte=1"`
}

// DisasterRecovery last-good limits
type DisasterRecovery struct {
	Header
	MaxLastGoodAgeDays int `json:"max_last_good_age_days" validate:"gte=1"`
	RollbackWindowDays int `json:"rollback_window_days" validate:"gte=1"`
}

// Calendar trading-day definition
type Calendar struct {
	Header
	Timezone        string   `json:"timezone" validate:"required"`
	Holidays        []string `json:"holidays" validate:"dive,datetime=2006-01-02"`
	YearsCovered    []int    `json:"years_covered" validate:"required,min=1,dive,gte=1900"`
	MaxLookbackDays int      `json:"max_lookback_days" validate:"gte=1"`
}

// StratificationFallback regime proxy, liquidity tiers, PIT fallback
type StratificationFallback struct {
	Header
	MarketProxySymbol   string              `json:"market_proxy_symbol"`
	RegimeThreshold     float64             `json:"regime_threshold" validate:"gt=0"`
	LiquidityThresholds LiquidityThresholds `json:"liquidity_thresholds"`
	UniverseFallback    UniverseFallback    `json:"universe_fallback"`
}

// LiquidityThresholds on 20-day median volume
type LiquidityThresholds struct {
	LowMax  float64 `json:"low_max" validate:"gte=0"`
	HighMin float64 `json:"high_min" validate:"gtfield=LowMax"`
}

// PIT fallback strategies
const (
	FallbackRestrict    = "RESTRICT"
	FallbackHybrid      = "HYBRID"
	FallbackCircuitOpen = "CIRCUIT_OPEN"
)

// UniverseFallback applies when the PIT set diverges from the static baseline.
// gap > fallback_gap_ratio triggers the strategy; HYBRID restricts up to max_gap_ratio.
type UniverseFallback struct {
	Strategy         string  `json:"strategy" validate:"oneof=RESTRICT HYBRID CIRCUIT_OPEN"`
	FallbackGapRatio float64 `json:"fallback_gap_ratio" validate:"gte=0,ltefield=MaxGapRatio"`
	MaxGapRatio      float64 `json:"max_gap_ratio" validate:"gte=0,lte=1"`
}

// Bundle is the immutable, hash-verified set of all policies for one run
// ⭐ SSOT: 실행 중 정책은 이 구조체로만 참조
type Bundle struct {
	Root                   Root
	Feature                Feature
	FeatureStore           FeatureStore
	Split                  Split
	Outcome                Outcome
	CorporateActions       CorporateActions
	Calibration            Calibration
	MoeRouting             MoeRouting
	Monitoring             Monitoring
	Promotion              Promotion
	Feasibility            Feasibility
	Secrecy                Secrecy
	Memory                 Memory
	DisasterRecovery       DisasterRecovery
	Calendar               Calendar
	StratificationFallback StratificationFallback

	Dir    string
	Hashes map[string]string // name → verified policy_hash
}

// targets maps each name to the struct it decodes into
func (b *Bundle) targets() map[string]interface{} {
	return map[string]interface{}{
		NameRoot:                   &b.Root,
		NameFeature:                &b.Feature,
		NameFeatureStore:           &b.FeatureStore,
		NameSplit:                  &b.Split,
		NameOutcome:                &b.Outcome,
		NameCorporateActions:       &b.CorporateActions,
		NameCalibration:            &b.Calibration,
		NameMoeRouting:             &b.MoeRouting,
		NameMonitoring:             &b.Monitoring,
		NamePromotion:              &b.Promotion,
		NameFeasibility:            &b.Feasibility,
		NameSecrecy:                &b.Secrecy,
		NameMemory:                 &b.Memory,
		NameDisasterRecovery:       &b.DisasterRecovery,
		NameCalendar:               &b.Calendar,
		NameStratificationFallback: &b.StratificationFallback,
	}
}

// HashesCopy returns a copy safe to embed in rows
func (b *Bundle) HashesCopy() map[string]string {
	out := make(map[string]string, len(b.Hashes))
	for k, v := range b.Hashes {
		out[k] = v
	}
	return out
}
