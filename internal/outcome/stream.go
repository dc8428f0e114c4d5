package outcome

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// Stream is the revision-labelled, month-partitioned outcome log:
// <ledger>/outcomes/rev-<NNNN>/<YYYY>/<MM>.ndjson
type Stream struct {
	dir string
}

// NewStream creates a stream under <ledger>/outcomes
func NewStream(ledgerRoot string) *Stream {
	return &Stream{dir: filepath.Join(ledgerRoot, "outcomes")}
}

// RevisionDir returns the directory name of a revision
func RevisionDir(revision int) string {
	return fmt.Sprintf("rev-%04d", revision)
}

func (s *Stream) monthPath(revision int, date string) string {
	return filepath.Join(s.dir, RevisionDir(revision), date[:4], date[5:7]+".ndjson")
}

// revisions lists existing revision numbers ascending
func (s *Stream) revisions() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var revs []int
	for _, e := range entries {
		var n int
		if e.IsDir() && strings.HasPrefix(e.Name(), "rev-") {
			if _, err := fmt.Sscanf(e.Name(), "rev-%d", &n); err == nil {
				revs = append(revs, n)
			}
		}
	}
	sort.Ints(revs)
	return revs, nil
}

// KnownIDs returns outcome ids already recorded for the month of date, across all revisions
func (s *Stream) KnownIDs(date string) (map[string]bool, error) {
	revs, err := s.revisions()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, rev := range revs {
		rows, err := readLines[contracts.MaturedOutcome](s.monthPath(rev, date))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			ids[r.OutcomeID] = true
		}
	}
	return ids, nil
}

// Append writes outcomes into their month partitions of the given revision,
// skipping any outcome_id already present in that month. Returns rows written.
func (s *Stream) Append(revision int, outcomes []contracts.MaturedOutcome) (int, error) {
	byMonth := make(map[string][]contracts.MaturedOutcome)
	for _, o := range outcomes {
		key := o.OutcomeDate[:7]
		byMonth[key] = append(byMonth[key], o)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	written := 0
	for _, month := range months {
		date := month + "-01"
		known, err := s.KnownIDs(date)
		if err != nil {
			return written, err
		}
		path := s.monthPath(revision, date)
		rows, err := readLines[contracts.MaturedOutcome](path)
		if err != nil {
			return written, err
		}
		added := 0
		for _, o := range byMonth[month] {
			if known[o.OutcomeID] {
				continue
			}
			known[o.OutcomeID] = true
			rows = append(rows, o)
			added++
		}
		if added == 0 {
			continue
		}
		if err := writeLines(path, rows); err != nil {
			return written, fmt.Errorf("append outcomes %s: %w", path, err)
		}
		written += added
	}
	return written, nil
}

// Load returns every outcome of one revision, ordered by (outcome_date, outcome_id)
func (s *Stream) Load(revision int) ([]contracts.MaturedOutcome, error) {
	root := filepath.Join(s.dir, RevisionDir(revision))
	var out []contracts.MaturedOutcome
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".ndjson") {
			return nil
		}
		rows, err := readLines[contracts.MaturedOutcome](p)
		if err != nil {
			return err
		}
		out = append(out, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OutcomeDate != out[j].OutcomeDate {
			return out[i].OutcomeDate < out[j].OutcomeDate
		}
		return out[i].OutcomeID < out[j].OutcomeID
	})
	return out, nil
}
