package determinism

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// CompareKeys are the hashes that must match byte for byte across runs
var CompareKeys = []string{
	"candidates",
	"features",
	"predictions",
	"diagnostics_summary",
	"publish_inputs",
}

// Runs is how many executions the harness compares
const Runs = 2

// Report is the outcome of one harness invocation
type Report struct {
	AsOfDate   string
	States     [Runs]contracts.RunState
	Hashes     [Runs]map[string]string
	Mismatches []string // keys whose hashes differ, in CompareKeys order
}

// Passed reports whether every compared hash matched
func (r *Report) Passed() bool {
	return len(r.Mismatches) == 0
}

// Err returns a named-key diff error when the runs diverged
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	return fmt.Errorf("determinism check failed for %s: hash mismatch in %v", r.AsOfDate, r.Mismatches)
}

// Render writes the per-key comparison table
func (r *Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("determinism " + r.AsOfDate)
	t.AppendHeader(table.Row{"artifact", "run 1", "run 2", "match"})
	for _, key := range CompareKeys {
		a, b := r.Hashes[0][key], r.Hashes[1][key]
		match := "OK"
		if a != b {
			match = "DIFF"
		}
		t.AppendRow(table.Row{key, shortHash(a), shortHash(b), match})
	}
	t.AppendFooter(table.Row{"state", r.States[0], r.States[1], ""})
	t.SetStyle(table.StyleLight)
	t.Render()
}

// Harness runs the pipeline twice in CI dry-run mode over the same inputs
type Harness struct {
	paths  brain.Paths
	logger *logger.Logger
	opts   []brain.Option
}

// NewHarness creates a harness. WeightsDir is cleared: CI never sees weights.
func NewHarness(paths brain.Paths, log *logger.Logger, opts ...brain.Option) *Harness {
	paths.WeightsDir = ""
	return &Harness{
		paths:  paths,
		logger: log.WithField("module", "determinism"),
		opts:   opts,
	}
}

// Run executes both runs and compares CompareKeys
func (h *Harness) Run(ctx context.Context, date string) (*Report, error) {
	report := &Report{}
	for i := 0; i < Runs; i++ {
		orch := brain.NewOrchestrator(h.paths, h.logger, h.opts...)
		res, err := orch.Run(ctx, brain.RunConfig{
			Date:   date,
			Mode:   contracts.ModeCI,
			DryRun: true,
			RunID:  fmt.Sprintf("determinism-%d", i+1),
		})
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		report.AsOfDate = res.AsOfDate
		report.States[i] = res.State
		report.Hashes[i] = res.Hashes.Map()
	}

	for _, key := range CompareKeys {
		if report.Hashes[0][key] != report.Hashes[1][key] {
			report.Mismatches = append(report.Mismatches, key)
		}
	}

	log := h.logger.WithFields(map[string]interface{}{
		"asof":       report.AsOfDate,
		"state":      string(report.States[0]),
		"mismatches": len(report.Mismatches),
	})
	if report.Passed() {
		log.Info("Determinism check passed")
	} else {
		log.Warn("Determinism check failed")
	}
	return report, nil
}

func shortHash(h string) string {
	if len(h) > 19 {
		return h[:19] + "…"
	}
	if h == "" {
		return "-"
	}
	return h
}
