package outcome

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// TradingCalendar offsets as-of dates by horizon
type TradingCalendar interface {
	Offset(date string, n int) (string, error)
}

// Ledger owns the pending queue, the revision state and the outcome stream
type Ledger struct {
	inputDir  string
	cal       TradingCalendar
	queue     *PendingQueue
	revisions *RevisionStore
	stream    *Stream
	tracker   *Tracker
	log       zerolog.Logger
}

// NewLedger creates a ledger rooted at ledgerRoot reading bars from inputDir
func NewLedger(inputDir, ledgerRoot string, cal TradingCalendar, p policy.Outcome, log zerolog.Logger) *Ledger {
	return &Ledger{
		inputDir:  inputDir,
		cal:       cal,
		queue:     NewPendingQueue(ledgerRoot),
		revisions: NewRevisionStore(ledgerRoot),
		stream:    NewStream(ledgerRoot),
		tracker:   NewTracker(inputDir, p.MaxPendingAgeDays, log),
		log:       log.With().Str("component", "outcome.ledger").Logger(),
	}
}

// UpdateResult summarizes one ledger update
type UpdateResult struct {
	Revision    int
	Corrections []contracts.RevisionCorrection
	Enqueued    int
	Matured     int
	Appended    int
	Expired     int
	Pending     int
	Warnings    []string
}

// CurrentRevision reads the revision without mutating anything
func (l *Ledger) CurrentRevision() (int, error) {
	st, err := l.revisions.Load()
	if err != nil {
		return 0, err
	}
	return st.Revision, nil
}

// Outcomes returns the matured outcomes of a revision stream
func (l *Ledger) Outcomes(revision int) ([]contracts.MaturedOutcome, error) {
	return l.stream.Load(revision)
}

// Pending builds queue rows for new predictions
func (l *Ledger) Pending(predictions []contracts.PredictionRow) ([]contracts.PendingOutcome, error) {
	out := make([]contracts.PendingOutcome, 0, len(predictions))
	for _, p := range predictions {
		outcomeDate, err := l.cal.Offset(p.AsOfDate, p.HorizonDays)
		if err != nil {
			return nil, fmt.Errorf("outcome date %s+%d: %w", p.AsOfDate, p.HorizonDays, err)
		}
		out = append(out, contracts.PendingOutcome{
			PredictionID: p.PredictionID,
			Symbol:       p.Symbol,
			AsOfDate:     p.AsOfDate,
			HorizonDays:  p.HorizonDays,
			OutcomeDate:  outcomeDate,
			PUp:          p.PUp,
			ModelID:      p.ModelID,
			IsControl:    p.IsControl,
		})
	}
	return out, nil
}

// Update runs revision detection, enqueues predictions, matures due rows and appends them.
// Every write is read-modify-atomic-write; re-running with the same inputs is a no-op.
func (l *Ledger) Update(asof string, predictions []contracts.PredictionRow, manifests []*contracts.BarsManifest) (*UpdateResult, error) {
	prev, err := l.revisions.Load()
	if err != nil {
		return nil, err
	}
	state, corrections, err := DetectRevision(l.inputDir, prev, manifests)
	if err != nil {
		return nil, err
	}
	if err := l.revisions.Save(state); err != nil {
		return nil, fmt.Errorf("save revision state: %w", err)
	}
	if len(corrections) > 0 {
		l.log.Warn().
			Int("revision", state.Revision).
			Int("corrections", len(corrections)).
			Msg("upstream restatement detected, outcome revision bumped")
	}

	incoming, err := l.Pending(predictions)
	if err != nil {
		return nil, err
	}
	existing, err := l.queue.Load()
	if err != nil {
		return nil, fmt.Errorf("load pending queue: %w", err)
	}
	merged, added := Merge(existing, incoming)

	matured, err := l.tracker.Mature(asof, state.Revision, merged)
	if err != nil {
		return nil, err
	}
	appended, err := l.stream.Append(state.Revision, matured.Matured)
	if err != nil {
		return nil, err
	}
	if err := l.queue.Save(matured.Pending); err != nil {
		return nil, fmt.Errorf("save pending queue: %w", err)
	}

	res := &UpdateResult{
		Revision:    state.Revision,
		Corrections: corrections,
		Enqueued:    added,
		Matured:     len(matured.Matured),
		Appended:    appended,
		Expired:     matured.Expired,
		Pending:     len(matured.Pending),
		Warnings:    matured.Warnings,
	}
	l.log.Info().
		Str("asof", asof).
		Int("revision", res.Revision).
		Int("enqueued", res.Enqueued).
		Int("appended", res.Appended).
		Int("pending", res.Pending).
		Msg("outcome ledger updated")
	return res, nil
}
