package brain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/calendar"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/forecast"
	"github.com/RubikVault/rubikvault-site-sub000/internal/monitoring"
	"github.com/RubikVault/rubikvault-site-sub000/internal/outcome"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/internal/publish"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s1_universe"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/config"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/metrics"
)

// PoliciesDir is the policy root under the input directory
const PoliciesDir = "policies"

// Paths are the filesystem roots of one deployment
type Paths struct {
	InputDir        string // policies/, universe/, bars/, predictions/
	PublishRoot     string
	LedgerRoot      string
	StateRoot       string
	ScanRoot        string // secrecy scan root; empty = InputDir
	WeightsDir      string // LOCAL credential; must be empty in CI
	MetricsTextfile string
	Workers         int
}

// PathsFromConfig maps the environment config to pipeline roots
func PathsFromConfig(cfg *config.Config) Paths {
	return Paths{
		InputDir:        cfg.InputDir,
		PublishRoot:     cfg.PublishRoot,
		LedgerRoot:      cfg.LedgerRoot,
		StateRoot:       cfg.StateRoot,
		ScanRoot:        cfg.ScanRoot(),
		WeightsDir:      cfg.ModelWeightsDir,
		MetricsTextfile: cfg.MetricsTextfile,
		Workers:         cfg.Workers,
	}
}

// SourceFactory builds the prediction source for a run's mode
type SourceFactory func(mode contracts.Mode, weightsDir, inputDir string, card *contracts.ModelCard, log zerolog.Logger) (forecast.PredictionSource, error)

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithClock overrides wall-clock time (date resolution, generated_at)
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSourceFactory overrides how the prediction source is built
func WithSourceFactory(f SourceFactory) Option {
	return func(o *Orchestrator) { o.sources = f }
}

// WithMetrics sets the gauges written after each non-dry run
func WithMetrics(m *metrics.RunMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator coordinates the entire 8-stage pipeline
// ⭐ SSOT: 파이프라인 조율과 상태 전이는 여기서만
type Orchestrator struct {
	paths   Paths
	now     func() time.Time
	sources SourceFactory
	metrics *metrics.RunMetrics
	logger  *logger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(paths Paths, log *logger.Logger, opts ...Option) *Orchestrator {
	if paths.ScanRoot == "" {
		paths.ScanRoot = paths.InputDir
	}
	o := &Orchestrator{
		paths:   paths,
		now:     time.Now,
		sources: forecast.NewSource,
		metrics: metrics.NewRunMetrics(),
		logger:  log.WithField("module", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	Date   string // requested as-of; "" = today in the calendar timezone
	Mode   contracts.Mode
	DryRun bool   // compute everything, write nothing
	RunID  string // "" = new uuid
}

// RunHashes are the reproducibility hashes compared by the determinism harness
type RunHashes struct {
	Candidates         string `json:"candidates"`
	Features           string `json:"features"`
	Predictions        string `json:"predictions"`
	DiagnosticsSummary string `json:"diagnostics_summary"`
	PublishInputs      string `json:"publish_inputs"`
}

// Map returns the hashes keyed by artifact name
func (h RunHashes) Map() map[string]string {
	return map[string]string{
		"candidates":          h.Candidates,
		"features":            h.Features,
		"predictions":         h.Predictions,
		"diagnostics_summary": h.DiagnosticsSummary,
		"publish_inputs":      h.PublishInputs,
	}
}

// RunResult holds the results of a complete pipeline run
type RunResult struct {
	RunID            string
	AsOfDate         string
	Mode             contracts.Mode
	DryRun           bool
	State            contracts.RunState // PUBLISHED or DEGRADED
	Failure          *contracts.GateFailure
	CircuitOpen      bool
	LastGoodDateUsed string
	Hashes           RunHashes
	ArtifactsHash    string // empty on dry runs
	OutcomeRevision  int
	CompletedStages  []contracts.Stage
	Diagnostics      *contracts.DiagnosticsSummary
	Bundle           *contracts.Bundle
	Ledger           *outcome.UpdateResult
	Duration         time.Duration
}

// run carries one execution's intermediate state between stages
type run struct {
	cfg     RunConfig
	runID   string
	started time.Time
	asof    string

	pol      *policy.Bundle
	cal      *calendar.Calendar
	card     *contracts.ModelCard
	source   forecast.PredictionSource
	ledger   *outcome.Ledger
	revision int

	universe   *contracts.Universe
	bars       *s0_data.LoadResult
	dq         *contracts.DataQualitySnapshot
	regime     *contracts.MarketRegime
	candidates []contracts.Candidate
	features   []contracts.FeatureRow
	predicted  *forecast.PredictOutput
	pack       *contracts.TriggerPack
	matured    []contracts.MaturedOutcome
	report     *monitoring.Report
	fallback   *publish.RepublishSource

	checks   map[string]contracts.Check
	counts   map[string]int
	hashes   map[string]string
	warnings []string
	stages   []contracts.Stage
}

// Run executes the pipeline for one as-of date.
// Fatal errors (*contracts.FatalError) are returned before any write; gate failures
// degrade and still return a result.
// S0 → S1 → S2 → S3 → S4 → S5 → S6 → S7
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	r, err := o.prepare(cfg)
	if err != nil {
		o.logger.WithError(err).WithField("mode", cfg.Mode.String()).Error("Run aborted before any write")
		return nil, err
	}

	runLog := o.logger.ForRun(r.runID, r.asof, cfg.Mode.String())
	runLog.WithFields(map[string]interface{}{
		"dry_run":  cfg.DryRun,
		"revision": r.revision,
	}).Info("Starting pipeline run")

	failure, err := o.compute(ctx, r)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		runLog.WithFields(map[string]interface{}{
			"state":  string(failure.State),
			"stage":  failure.Stage.ShortName(),
			"reason": failure.Reason,
		}).Warn("Gate failed, degrading")
	}

	result, err := o.finish(r, failure)
	if err != nil {
		return nil, err
	}

	runLog.WithFields(map[string]interface{}{
		"state":        string(result.State),
		"circuit_open": result.CircuitOpen,
		"duration":     result.Duration.Seconds(),
		"stages":       len(result.CompletedStages),
	}).Info("Pipeline run completed")

	return result, nil
}

// prepare performs every fatal check. Nothing is written here.
func (o *Orchestrator) prepare(cfg RunConfig) (*run, error) {
	r := &run{
		cfg:     cfg,
		runID:   cfg.RunID,
		started: o.now(),
		checks:  make(map[string]contracts.Check),
		counts:  make(map[string]int),
		hashes:  make(map[string]string),
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}

	pol, err := policy.Load(filepath.Join(o.paths.InputDir, PoliciesDir))
	if err != nil {
		return nil, err
	}
	r.pol = pol

	cal, err := calendar.New(pol.Calendar)
	if err != nil {
		return nil, contracts.NewFatal(contracts.FatalCalendarUnresolved, err, "calendar policy")
	}
	r.cal = cal
	if r.asof, err = cal.Resolve(cfg.Date, r.started); err != nil {
		return nil, err
	}

	if r.card, err = forecast.LoadModelCard(o.paths.InputDir, pol.Promotion.ChampionCard); err != nil {
		return nil, err
	}
	if err := policy.ValidateHorizons(pol, r.card.Horizons); err != nil {
		return nil, contracts.NewFatal(contracts.FatalPolicyInvalid, err, "selection policy vs model card %s", r.card.ModelID)
	}
	if r.source, err = o.sources(cfg.Mode, o.paths.WeightsDir, o.paths.InputDir, r.card, o.logger.Zerolog()); err != nil {
		return nil, err
	}

	baseline, err := s1_universe.LoadBaseline(o.paths.InputDir)
	if err != nil {
		return nil, err
	}
	events, err := s1_universe.LoadEvents(o.paths.InputDir)
	if err != nil {
		return nil, fmt.Errorf("universe events: %w", err)
	}
	r.universe = s1_universe.NewBuilder(s1_universe.ConfigFromPolicy(pol)).Reconstruct(r.asof, baseline, events)

	r.ledger = outcome.NewLedger(o.paths.InputDir, o.paths.LedgerRoot, cal, pol.Outcome, o.logger.Zerolog())
	if r.revision, err = r.ledger.CurrentRevision(); err != nil {
		return nil, fmt.Errorf("outcome revision: %w", err)
	}
	return r, nil
}

// compute runs S0–S6; the first gate failure short-circuits the rest
func (o *Orchestrator) compute(ctx context.Context, r *run) (*contracts.GateFailure, error) {
	steps := []struct {
		stage contracts.Stage
		fn    func(context.Context, *run) (*contracts.GateFailure, error)
	}{
		{contracts.StageDataQuality, o.runS0},
		{contracts.StageUniverse, o.runS1},
		{contracts.StageFeatures, o.runS2},
		{contracts.StageInference, o.runS3},
		{contracts.StageTriggers, o.runS4},
		{contracts.StageMonitoring, o.runS5},
		{contracts.StageGates, o.runS6},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		failure, err := step.fn(ctx, r)
		if err != nil {
			var fatal *contracts.FatalError
			if errors.As(err, &fatal) {
				return nil, err
			}
			return nil, fmt.Errorf("%s failed: %w", step.stage.ShortName(), err)
		}
		if failure != nil {
			if failure.Stage == "" {
				failure.Stage = step.stage
			}
			return failure, nil
		}
		r.stages = append(r.stages, step.stage)
	}
	return nil, nil
}
