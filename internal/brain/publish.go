package brain

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/forecast"
	"github.com/RubikVault/rubikvault-site-sub000/internal/monitoring"
	"github.com/RubikVault/rubikvault-site-sub000/internal/outcome"
	"github.com/RubikVault/rubikvault-site-sub000/internal/publish"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s1_universe"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s2_signals"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/metrics"
)

// ReasonOK is meta.reason of a published run
const ReasonOK = "OK"

// DiagnosticsDir holds one diagnostics summary per run date under the ledger root
const DiagnosticsDir = "diagnostics"

// DiagnosticsPath returns <ledger>/diagnostics/YYYY/MM/<date>.json
func DiagnosticsPath(ledgerRoot, date string) string {
	if len(date) < 7 {
		return filepath.Join(ledgerRoot, DiagnosticsDir, date+".json")
	}
	return filepath.Join(ledgerRoot, DiagnosticsDir, date[:4], date[5:7], date+".json")
}

// meta builds the shared meta block; last_good_date_used is set by the degrade path
func (o *Orchestrator) meta(r *run, failure *contracts.GateFailure) contracts.BundleMeta {
	m := contracts.BundleMeta{
		AsOfDate:        r.asof,
		Mode:            r.cfg.Mode.String(),
		PolicyHashes:    r.pol.HashesCopy(),
		ModelIDs:        forecast.ModelIDs(r.card, r.pol.Promotion.Shadow),
		OutcomeRevision: r.revision,
		Reason:          ReasonOK,
		GeneratedAt:     r.started.UTC().Format(time.RFC3339),
	}
	if r.bars != nil {
		m.BarsManifestHash = r.bars.Manifest.BarsManifestHash
	}
	if failure != nil {
		m.CircuitOpen = true
		m.Reason = failure.Reason
	}
	return m
}

// summary snapshots the run's checks, counts and hashes
func (o *Orchestrator) summary(r *run, meta contracts.BundleMeta, failure *contracts.GateFailure) *contracts.DiagnosticsSummary {
	diag := &contracts.DiagnosticsSummary{
		Meta:     meta,
		RunID:    r.runID,
		State:    contracts.StatePublished,
		Checks:   make(map[string]contracts.Check, len(r.checks)),
		Counts:   make(map[string]int, len(r.counts)),
		Hashes:   make(map[string]string, len(r.hashes)+2),
		Warnings: append([]string{}, r.warnings...),
	}
	for k, v := range r.checks {
		diag.Checks[k] = v
	}
	for k, v := range r.counts {
		diag.Counts[k] = v
	}
	for k, v := range r.hashes {
		diag.Hashes[k] = v
	}
	if meta.BarsManifestHash != "" {
		diag.Hashes["bars_manifest"] = meta.BarsManifestHash
	}
	if failure != nil {
		diag.State = contracts.StateDegraded
		diag.FailureState = failure.State
		diag.FailureStage = failure.Stage
	}
	return diag
}

// finish renders the bundle (fresh or degraded) and, unless dry-run, commits it
// S7: publish → last-good pointer → ledgers → metrics
func (o *Orchestrator) finish(r *run, failure *contracts.GateFailure) (*RunResult, error) {
	zl := o.logger.Zerolog()
	meta := o.meta(r, failure)
	diag := o.summary(r, meta, failure)

	publisher := publish.NewPublisher(o.paths.PublishRoot, zl)
	store := publish.NewLastGoodStore(o.paths.StateRoot, r.pol.DisasterRecovery.RollbackWindowDays)

	var (
		build    func() (*contracts.Bundle, error)
		lastGood string
	)
	if failure == nil {
		build = func() (*contracts.Bundle, error) {
			return publish.Assemble(meta, publish.Contents{Pack: r.pack, ModelCard: r.card, Diagnostics: diag})
		}
	} else {
		degrader := publish.NewDegrader(publisher, store, r.pol.DisasterRecovery.MaxLastGoodAgeDays, zl)
		src, warnings, err := degrader.Resolve(r.asof)
		if err != nil {
			return nil, fmt.Errorf("resolve last-good: %w", err)
		}
		diag.Warnings = append(diag.Warnings, warnings...)
		if src != nil {
			lastGood = src.Date
		}
		r.fallback = src
		build = func() (*contracts.Bundle, error) {
			return publish.BuildDegraded(meta, src, r.card, diag)
		}
	}

	// publish_inputs 해시는 렌더된 payload 기준 → 두 번 렌더
	bundle, err := build()
	if err != nil {
		return nil, err
	}
	inputsHash, err := publish.PublishInputsHash(bundle)
	if err != nil {
		return nil, err
	}
	diag.Hashes["publish_inputs"] = inputsHash
	if bundle, err = build(); err != nil {
		return nil, err
	}

	var published contracts.DiagnosticsSummary
	if err := json.Unmarshal(bundle.Docs[contracts.FileDiagnosticsSummary], &published); err != nil {
		return nil, fmt.Errorf("decode diagnostics: %w", err)
	}
	diagHash, err := canonical.HashArtifact(canonical.ArtifactDiagnosticsSummary, json.RawMessage(bundle.Docs[contracts.FileDiagnosticsSummary]))
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:            r.runID,
		AsOfDate:         r.asof,
		Mode:             r.cfg.Mode,
		DryRun:           r.cfg.DryRun,
		State:            published.State,
		Failure:          failure,
		CircuitOpen:      published.Meta.CircuitOpen,
		LastGoodDateUsed: lastGood,
		Hashes: RunHashes{
			Candidates:         r.hashes["candidates"],
			Features:           r.hashes["features"],
			Predictions:        r.hashes["predictions"],
			DiagnosticsSummary: diagHash,
			PublishInputs:      inputsHash,
		},
		OutcomeRevision: r.revision,
		CompletedStages: append([]contracts.Stage{}, r.stages...),
		Diagnostics:     &published,
		Bundle:          bundle,
	}

	if !r.cfg.DryRun {
		if err := o.commit(r, failure, result, publisher, store); err != nil {
			return nil, err
		}
		result.CompletedStages = append(result.CompletedStages, contracts.StagePublish)
	}
	result.Duration = o.now().Sub(r.started)

	if !r.cfg.DryRun {
		o.observe(r, result)
	}
	return result, nil
}

// commit performs every write of the run, publish first
func (o *Orchestrator) commit(r *run, failure *contracts.GateFailure, result *RunResult, publisher *publish.Publisher, store *publish.LastGoodStore) error {
	now := o.now()

	var hash string
	if r.fallback.SameDate(r.asof) {
		// asof의 정상 번들이 이미 last-good → 디렉터리를 덮어쓰지 않음 (포인터 해시 유지)
		hash = r.fallback.ArtifactsHash
		o.logger.WithFields(map[string]interface{}{
			"asof":           r.asof,
			"artifacts_hash": hash,
		}).Warn("Last-good bundle for this date kept in place")
	} else {
		var err error
		if hash, err = publisher.Publish(result.Bundle); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	result.ArtifactsHash = hash

	var err error
	if failure == nil {
		_, err = store.Set(r.asof, hash, now)
	} else {
		_, err = store.RecordRollback(r.asof, result.LastGoodDateUsed, failure.Reason, now)
	}
	if err != nil {
		return fmt.Errorf("last-good pointer: %w", err)
	}

	if err := atomicio.WriteFile(DiagnosticsPath(o.paths.LedgerRoot, r.asof), result.Bundle.Docs[contracts.FileDiagnosticsSummary], 0o644); err != nil {
		return fmt.Errorf("diagnostics ledger: %w", err)
	}

	manifests := s0_data.NewManifestStore(o.paths.LedgerRoot)
	if r.bars != nil {
		if err := manifests.Save(r.bars.Manifest); err != nil {
			return err
		}
	}
	if err := s1_universe.NewSnapshotStore(o.paths.LedgerRoot).Save(r.universe); err != nil {
		return err
	}
	if r.predicted != nil {
		if err := forecast.NewRouterStore(o.paths.StateRoot).Save(r.predicted.Router); err != nil {
			return err
		}
	}
	if err := o.syncFeatureStore(r); err != nil {
		return err
	}
	if failure == nil && r.report != nil && r.report.NewBaseline != nil {
		if _, err := monitoring.NewBaselineStore(o.paths.StateRoot).Create(r.report.NewBaseline); err != nil {
			return err
		}
	}

	ledger, err := o.updateLedger(r, failure, manifests)
	if err != nil {
		return err
	}
	result.Ledger = ledger

	o.logger.WithFields(map[string]interface{}{
		"asof":           r.asof,
		"artifacts_hash": hash,
		"revision":       ledger.Revision,
		"matured":        ledger.Matured,
		"pending":        ledger.Pending,
	}).Info("Run committed")
	return nil
}

func (o *Orchestrator) syncFeatureStore(r *run) error {
	fs := r.pol.FeatureStore
	if !fs.Enabled || len(r.features) == 0 {
		return nil
	}
	featureStore := s2_signals.NewFeatureStore(o.paths.StateRoot)
	if _, err := featureStore.Sync(r.asof, r.features); err != nil {
		return fmt.Errorf("feature store: %w", err)
	}
	removed, err := featureStore.Prune(r.asof, fs.RetentionDays)
	if err != nil {
		return fmt.Errorf("feature store prune: %w", err)
	}
	if len(removed) > 0 {
		o.logger.WithField("removed", len(removed)).Debug("Feature partitions pruned")
	}
	return nil
}

// updateLedger enqueues fresh predictions and matures pending ones against
// the recent manifests plus today's
func (o *Orchestrator) updateLedger(r *run, failure *contracts.GateFailure, manifests *s0_data.ManifestStore) (*outcome.UpdateResult, error) {
	recent, err := manifests.Recent(r.asof, r.pol.Outcome.RevisionLookbackManifests)
	if err != nil {
		return nil, fmt.Errorf("recent manifests: %w", err)
	}
	if r.bars != nil {
		recent = append(recent, r.bars.Manifest)
	}

	var preds []contracts.PredictionRow
	if failure == nil && r.predicted != nil {
		preds = r.predicted.Predictions
	}
	res, err := r.ledger.Update(r.asof, preds, recent)
	if err != nil {
		return nil, fmt.Errorf("outcome ledger: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) observe(r *run, result *RunResult) {
	sample := metrics.RunSample{
		Mode:            r.cfg.Mode.String(),
		State:           string(result.State),
		DurationSeconds: result.Duration.Seconds(),
		CircuitOpen:     result.CircuitOpen,
		OutcomeRevision: r.revision,
	}
	if result.Ledger != nil {
		sample.OutcomeRevision = result.Ledger.Revision
	}
	if r.predicted != nil {
		sample.Predictions = len(r.predicted.Predictions)
	}
	if r.report != nil {
		sample.Coverage, sample.PSI, sample.ECE = r.report.Coverage, r.report.PSI, r.report.ECE
	}
	o.metrics.Observe(sample)
	if err := o.metrics.WriteTextfile(o.paths.MetricsTextfile); err != nil {
		o.logger.WithError(err).Warn("Metrics textfile not written")
	}
}
