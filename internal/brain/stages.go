package brain

import (
	"context"
	"errors"
	"fmt"

	"github.com/RubikVault/rubikvault-site-sub000/internal/audit"
	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/forecast"
	"github.com/RubikVault/rubikvault-site-sub000/internal/monitoring"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data/quality"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s1_universe"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s2_signals"
	"github.com/RubikVault/rubikvault-site-sub000/internal/selection"
)

// Check names owned by the orchestrator
const (
	CheckDataQuality   = "data_quality"
	CheckUniverse      = "universe"
	CheckFeaturePolicy = "feature_policy"
	CheckInference     = "inference"
	CheckCorpActions   = "corporate_actions"
)

// runS0 loads bars for the reconstructed universe and applies the DQ gate
func (o *Orchestrator) runS0(ctx context.Context, r *run) (*contracts.GateFailure, error) {
	symbols := s1_universe.Symbols(r.universe)

	loader := s0_data.NewBarsLoader(o.paths.InputDir, o.paths.Workers, o.logger)
	bars, err := loader.Load(ctx, symbols, r.asof, r.pol.Root.Provider, r.pol.Root.ProviderRevision)
	if err != nil {
		return nil, err
	}
	r.bars = bars
	r.warnings = append(r.warnings, bars.Warnings...)
	r.counts["bars_covered"] = len(bars.Manifest.Partitions)
	r.counts["bars_missing"] = len(bars.Manifest.Missing)

	// 빈 universe 판정은 S1 게이트 소관
	if len(symbols) == 0 {
		r.checks[CheckDataQuality] = contracts.Check{Status: contracts.CheckSkip, Reason: "EMPTY_UNIVERSE"}
		return nil, nil
	}

	gate := quality.NewQualityGate(r.cal, quality.ConfigFromPolicy(r.pol))
	r.dq = gate.Check(bars.Manifest, bars.Series)

	details := map[string]interface{}{
		"coverage":       r.dq.Coverage,
		"min_coverage":   r.dq.MinCoverage,
		"covered":        r.dq.CoveredSymbols,
		"total":          r.dq.TotalSymbols,
		"missing":        len(r.dq.Missing),
		"stale":          len(r.dq.StaleSymbols),
		"split_suspects": len(r.dq.SplitSuspects),
	}
	if len(r.dq.SplitSuspects) > 0 && !r.pol.CorporateActions.BlockOnSuspect {
		r.checks[CheckCorpActions] = contracts.Check{
			Status:  contracts.CheckWarn,
			Reason:  quality.ReasonSplitSuspect,
			Details: map[string]interface{}{"symbols": r.dq.SplitSuspects},
		}
	}
	if !r.dq.Passed {
		r.checks[CheckDataQuality] = contracts.Check{Status: contracts.CheckFail, Reason: r.dq.Reason, Details: details}
		return &contracts.GateFailure{State: contracts.StateDQFail, Stage: contracts.StageDataQuality, Reason: r.dq.Reason}, nil
	}
	r.checks[CheckDataQuality] = contracts.Check{Status: contracts.CheckPass, Details: details}
	return nil, nil
}

// runS1 annotates history depth and applies the universe circuit breaker
func (o *Orchestrator) runS1(_ context.Context, r *run) (*contracts.GateFailure, error) {
	builder := s1_universe.NewBuilder(s1_universe.ConfigFromPolicy(r.pol))
	builder.Annotate(r.universe, r.bars.Series)
	r.warnings = append(r.warnings, r.universe.Warnings...)

	r.counts["universe"] = r.universe.Count()
	r.counts["tradable"] = len(r.universe.Tradable())

	details := map[string]interface{}{
		"baseline_count": r.universe.BaselineCount,
		"gap_ratio":      r.universe.GapRatio,
		"fallback":       r.universe.Fallback,
		"tradable":       r.counts["tradable"],
	}
	if r.universe.CircuitOpen {
		r.checks[CheckUniverse] = contracts.Check{Status: contracts.CheckFail, Reason: r.universe.Reason, Details: details}
		return &contracts.GateFailure{State: contracts.StateUniverseFail, Stage: contracts.StageUniverse, Reason: r.universe.Reason}, nil
	}
	r.checks[CheckUniverse] = contracts.Check{Status: contracts.CheckPass, Details: details}
	return nil, nil
}

// runS2 detects the regime, samples candidates and builds policy-checked features
func (o *Orchestrator) runS2(_ context.Context, r *run) (*contracts.GateFailure, error) {
	gate := s2_signals.NewPolicyGate(r.pol.Feature.ForbiddenGlobs)
	if f := gate.CheckNames(r.pol.Feature.AllowedFeatures, r.card.FeatureNames); f != nil {
		return o.featureFailure(r, f), nil
	}

	strat := r.pol.StratificationFallback
	proxy := r.bars.Series[strat.MarketProxySymbol]
	if proxy == nil && strat.MarketProxySymbol != "" {
		proxy = o.readProxy(r, strat.MarketProxySymbol)
	}
	regime, err := s2_signals.NewRegimeDetector(strat.RegimeThreshold).Detect(r.asof, strat.MarketProxySymbol, proxy, r.bars.Series)
	if err != nil {
		return nil, fmt.Errorf("regime: %w", err)
	}
	r.regime = regime

	candidates, warnings := s2_signals.NewSampler(s2_signals.SamplerConfigFromPolicy(r.pol)).
		Sample(r.asof, regime, r.universe.Tradable(), r.bars.Series)
	r.warnings = append(r.warnings, warnings...)
	r.candidates = nonNilCandidates(candidates)

	rows, warnings := s2_signals.NewFeatureBuilder(s2_signals.FeatureConfigFromPolicy(r.pol), o.logger).
		Build(r.asof, r.candidates, r.bars.Series)
	r.warnings = append(r.warnings, warnings...)
	r.features = nonNilFeatures(rows)

	if f := gate.CheckRows(r.features); f != nil {
		return o.featureFailure(r, f), nil
	}

	if r.hashes["candidates"], err = canonical.HashArtifact(canonical.ArtifactCandidates, r.candidates); err != nil {
		return nil, err
	}
	if r.hashes["features"], err = canonical.HashArtifact(canonical.ArtifactFeatures, r.features); err != nil {
		return nil, err
	}
	r.hashes["regime"] = regime.StateHash

	controls := 0
	for _, c := range r.candidates {
		if c.IsControl {
			controls++
		}
	}
	r.counts["candidates"] = len(r.candidates)
	r.counts["controls"] = controls
	r.counts["features"] = len(r.features)
	r.checks[CheckFeaturePolicy] = contracts.Check{
		Status: contracts.CheckPass,
		Details: map[string]interface{}{
			"regime":        regime.Bucket,
			"regime_source": regime.Source,
			"names":         len(r.pol.Feature.AllowedFeatures),
		},
	}
	return nil, nil
}

func (o *Orchestrator) featureFailure(r *run, f *contracts.GateFailure) *contracts.GateFailure {
	r.checks[CheckFeaturePolicy] = contracts.Check{Status: contracts.CheckFail, Reason: f.Reason}
	f.State, f.Stage = contracts.StateFeaturePolicyFail, contracts.StageFeatures
	return f
}

// readProxy reads the market proxy outside the universe; it is not a manifest partition
func (o *Orchestrator) readProxy(r *run, symbol string) *contracts.BarSeries {
	bars, err := s0_data.ReadBars(o.paths.InputDir, s0_data.PartitionFor(symbol), r.asof)
	if err != nil || len(bars) == 0 {
		if err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("REGIME_PROXY_UNAVAILABLE symbol=%s", symbol))
		}
		return nil
	}
	return &contracts.BarSeries{Symbol: symbol, Path: s0_data.PartitionFor(symbol), Bars: bars}
}

// runS3 scores features and routes experts with hysteresis
func (o *Orchestrator) runS3(ctx context.Context, r *run) (*contracts.GateFailure, error) {
	routers := forecast.NewRouterStore(o.paths.StateRoot)
	var prev *contracts.MoeRouterState
	if prevDate, err := r.cal.Previous(r.asof); err == nil {
		if prev, err = routers.Load(prevDate); err != nil {
			return nil, err
		}
	}

	predictor := forecast.NewPredictor(r.source, forecast.NewRouter(forecast.RouterConfigFromPolicy(r.pol.MoeRouting)), o.logger.Zerolog())
	out, err := predictor.Predict(ctx, forecast.PredictInput{
		AsOfDate:         r.asof,
		Card:             r.card,
		Candidates:       r.candidates,
		Features:         r.features,
		Regime:           r.regime,
		BarsManifestHash: r.bars.Manifest.BarsManifestHash,
		PolicyHashes:     r.pol.HashesCopy(),
		PrevRouter:       prev,
	})
	if err != nil {
		if errors.Is(err, forecast.ErrPredictionsMissing) {
			reason := fmt.Sprintf("%s %v", contracts.StateMissingPredictions, err)
			r.checks[CheckInference] = contracts.Check{Status: contracts.CheckFail, Reason: reason}
			return &contracts.GateFailure{State: contracts.StateMissingPredictions, Stage: contracts.StageInference, Reason: reason}, nil
		}
		return nil, err
	}
	r.predicted = out

	if r.hashes["predictions"], err = canonical.HashArtifact(canonical.ArtifactPredictions, out.Predictions); err != nil {
		return nil, err
	}
	r.hashes["router_state"] = out.Router.StateHash
	r.counts["predictions"] = len(out.Predictions)
	r.checks[CheckInference] = contracts.Check{
		Status: contracts.CheckPass,
		Details: map[string]interface{}{
			"logged_expert": out.Router.LoggedExpert,
			"confidence":    out.Router.Confidence,
			"inherited":     out.Router.Inherited,
			"streak":        out.Router.StreakTradingDays,
		},
	}
	return nil, nil
}

// runS4 derives the trigger pack; pure, never fails
func (o *Orchestrator) runS4(_ context.Context, r *run) (*contracts.GateFailure, error) {
	r.pack = selection.NewPackBuilder(r.pol.Root.Selection, o.logger).Build(r.predicted.Predictions)
	r.counts["hotset"] = len(r.pack.Hotset)
	r.counts["watchlist"] = len(r.pack.Watchlist)
	r.counts["triggers"] = len(r.pack.Triggers)
	return nil, nil
}

// runS5 evaluates coverage, calibration and drift against matured outcomes
func (o *Orchestrator) runS5(_ context.Context, r *run) (*contracts.GateFailure, error) {
	matured, err := r.ledger.Outcomes(r.revision)
	if err != nil {
		return nil, fmt.Errorf("matured outcomes: %w", err)
	}
	if matured == nil {
		matured = []contracts.MaturedOutcome{}
	}
	r.matured = matured

	baseline, err := monitoring.NewBaselineStore(o.paths.StateRoot).Load()
	if err != nil {
		return nil, err
	}

	monitor := monitoring.NewMonitor(monitoring.ConfigFromPolicy(r.pol.Monitoring, r.pol.Calibration), o.logger.Zerolog())
	report, err := monitor.Evaluate(monitoring.Input{
		AsOfDate:    r.asof,
		Expected:    len(r.candidates) * len(r.card.Horizons),
		Predictions: r.predicted.Predictions,
		Matured:     matured,
		Baseline:    baseline,
	})
	if err != nil {
		return nil, err
	}
	r.report = report
	for name, c := range report.Checks {
		r.checks[name] = c
	}
	r.counts["eval_samples"] = report.EvalSamples
	return report.Failure, nil
}

// runS6 runs the secrecy scan and validates every artifact against its schema
func (o *Orchestrator) runS6(_ context.Context, r *run) (*contracts.GateFailure, error) {
	findings, err := audit.NewSecrecyScanner(r.pol.Secrecy, o.logger.Zerolog()).Scan(o.paths.ScanRoot)
	if err != nil {
		return nil, err
	}
	check, failure := audit.SecrecyGate(findings)
	r.checks[audit.CheckSecrecy] = check
	if failure != nil {
		return failure, nil
	}

	validator, err := audit.NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	check, failure = validator.ValidateAll(map[string]interface{}{
		audit.SchemaBarsManifest:       r.bars.Manifest,
		audit.SchemaCandidates:         r.candidates,
		audit.SchemaFeatures:           r.features,
		audit.SchemaPredictions:        r.predicted.Predictions,
		audit.SchemaOutcomes:           r.matured,
		audit.SchemaModelCard:          r.card,
		audit.SchemaDiagnosticsSummary: o.summary(r, o.meta(r, nil), nil),
	})
	r.checks[audit.CheckSchema] = check
	return failure, nil
}

func nonNilCandidates(in []contracts.Candidate) []contracts.Candidate {
	if in == nil {
		return []contracts.Candidate{}
	}
	return in
}

func nonNilFeatures(in []contracts.FeatureRow) []contracts.FeatureRow {
	if in == nil {
		return []contracts.FeatureRow{}
	}
	return in
}
