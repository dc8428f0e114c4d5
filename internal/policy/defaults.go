package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
)

// DefaultVersion is stamped on generated documents
const DefaultVersion = "v6.0"

// FeatureNames is the closed feature set the builder knows how to compute
var FeatureNames = []string{
	"ret_1d",
	"ret_5d",
	"ret_20d",
	"vol_20d",
	"volume_z_20",
	"dist_sma50_atr14",
}

// HardBlockExtensions are serialized model formats that never pass the secrecy scan
var HardBlockExtensions = []string{".pt", ".pth", ".onnx", ".pkl", ".joblib", ".h5", ".safetensors", ".ckpt"}

// Defaults returns the unsigned default document for every policy name
func Defaults() map[string]interface{} {
	h := Header{Version: DefaultVersion}
	return map[string]interface{}{
		NameRoot: Root{
			Header:           h,
			Provider:         "eod-files",
			ProviderRevision: "r1",
			DQ:               DQ{MinCoverage: 0.9, MaxStalenessTradingDays: 3},
			Selection: SelectionPolicy{
				HotsetSize:         10,
				WatchlistSize:      25,
				PrimaryHorizonDays: 5,
				UpThreshold:        0.6,
				DownThreshold:      0.4,
			},
		},
		NameFeature: Feature{
			Header:          h,
			AllowedFeatures: append([]string(nil), FeatureNames...),
			ForbiddenGlobs:  []string{"future_*", "*_fwd_*", "label*", "y_*"},
			MinHistoryDays:  60,
			Winsorize:       Winsorize{Enabled: true, LowerPct: 1, UpperPct: 99},
		},
		NameFeatureStore: FeatureStore{Header: h, Enabled: true, RetentionDays: 120},
		NameSplit: Split{
			Header:          h,
			Seed:            "forecast-v6-control",
			ControlFraction: 0.2,
			MinBucketSize:   3,
			ControlWeights:  LossWeights{Sample: 1, Expert: 0, Router: 0, Calibration: 1},
			DefaultWeights:  LossWeights{Sample: 1, Expert: 1, Router: 1, Calibration: 1},
		},
		NameOutcome:          Outcome{Header: h, RevisionLookbackManifests: 20, MaxPendingAgeDays: 90},
		NameCorporateActions: CorporateActions{Header: h, SplitSuspectAbsReturn: 0.45, ScanWindowDays: 20},
		NameCalibration:      Calibration{Header: h, ECEBins: 10, PSIBins: 10},
		NameMoeRouting:       MoeRouting{Header: h, Temperature: 1.0, ConfidenceThreshold: 0.5, RegimeNudge: 0.25},
		NameMonitoring: Monitoring{
			Header:                h,
			MinCoverage:           0.95,
			MaxECE:                0.25,
			MaxPSI:                0.25,
			MaxLogLossDegradation: 0.10,
			EvalWindowDays:        60,
			MinEvalSamples:        50,
		},
		NamePromotion:   Promotion{Header: h, ChampionCard: "models/champion.json", Shadow: "constant_base_rate"},
		NameFeasibility: Feasibility{Header: h, MaxUniverseSize: 5000},
		NameSecrecy: Secrecy{
			Header:              h,
			HardBlockExtensions: append([]string(nil), HardBlockExtensions...),
			ForbiddenGlobs:      []string{"**/*.weights.json", "**/secrets/**", "**/*.pem"},
			AllowlistGlobs:      []string{"testdata/**"},
			SkipDirs:            []string{".git", "node_modules", "vendor"},
		},
		NameMemory:           Memory{Header: h, MaxSymbolsPerChunk: 500},
		NameDisasterRecovery: DisasterRecovery{Header: h, MaxLastGoodAgeDays: 10, RollbackWindowDays: 30},
		NameCalendar: Calendar{
			Header:          h,
			Timezone:        "America/New_York",
			Holidays:        usHolidays(),
			YearsCovered:    []int{2024, 2025, 2026, 2027},
			MaxLookbackDays: 10,
		},
		NameStratificationFallback: StratificationFallback{
			Header:              h,
			MarketProxySymbol:   "SPY",
			RegimeThreshold:     0.02,
			LiquidityThresholds: LiquidityThresholds{LowMax: 100_000, HighMin: 1_000_000},
			UniverseFallback:    UniverseFallback{Strategy: FallbackHybrid, FallbackGapRatio: 0.05, MaxGapRatio: 0.2},
		},
	}
}

// WriteSigned signs each document and writes it to dir/<name>.json
func WriteSigned(dir string, docs map[string]interface{}) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	for _, name := range Names() {
		doc, ok := docs[name]
		if !ok {
			continue
		}
		data, err := Sign(doc)
		if err != nil {
			return fmt.Errorf("sign policy %s: %w", name, err)
		}
		if err := atomicio.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// NYSE full-day closures
func usHolidays() []string {
	return []string{
		"2024-01-01", "2024-01-15", "2024-02-19", "2024-03-29", "2024-05-27",
		"2024-06-19", "2024-07-04", "2024-09-02", "2024-11-28", "2024-12-25",
		"2025-01-01", "2025-01-09", "2025-01-20", "2025-02-17", "2025-04-18",
		"2025-05-26", "2025-06-19", "2025-07-04", "2025-09-01", "2025-11-27",
		"2025-12-25",
		"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03", "2026-05-25",
		"2026-06-19", "2026-07-03", "2026-09-07", "2026-11-26", "2026-12-25",
		"2027-01-01", "2027-01-18", "2027-02-15", "2027-03-26", "2027-05-31",
		"2027-06-18", "2027-07-05", "2027-09-06", "2027-11-25", "2027-12-24",
	}
}
