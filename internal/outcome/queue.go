package outcome

import (
	"path/filepath"
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// PendingQueue is the idempotent-merge queue of predictions awaiting maturity.
// Read, merge by prediction_id, atomic rewrite.
type PendingQueue struct {
	path string
}

// NewPendingQueue creates a queue at <ledger>/outcomes/pending.ndjson
func NewPendingQueue(ledgerRoot string) *PendingQueue {
	return &PendingQueue{path: filepath.Join(ledgerRoot, "outcomes", "pending.ndjson")}
}

// Load returns the queued rows
func (q *PendingQueue) Load() ([]contracts.PendingOutcome, error) {
	return readLines[contracts.PendingOutcome](q.path)
}

// Save rewrites the queue in canonical order
func (q *PendingQueue) Save(rows []contracts.PendingOutcome) error {
	SortPending(rows)
	return writeLines(q.path, rows)
}

// Merge adds incoming rows; an existing prediction_id is never duplicated or replaced
func Merge(existing, incoming []contracts.PendingOutcome) ([]contracts.PendingOutcome, int) {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]contracts.PendingOutcome, 0, len(existing)+len(incoming))
	for _, p := range existing {
		if seen[p.PredictionID] {
			continue
		}
		seen[p.PredictionID] = true
		out = append(out, p)
	}
	added := 0
	for _, p := range incoming {
		if seen[p.PredictionID] {
			continue
		}
		seen[p.PredictionID] = true
		out = append(out, p)
		added++
	}
	SortPending(out)
	return out, added
}

// SortPending orders by (outcome_date, symbol, horizon, prediction_id)
func SortPending(rows []contracts.PendingOutcome) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.OutcomeDate != b.OutcomeDate {
			return a.OutcomeDate < b.OutcomeDate
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.HorizonDays != b.HorizonDays {
			return a.HorizonDays < b.HorizonDays
		}
		return a.PredictionID < b.PredictionID
	})
}
