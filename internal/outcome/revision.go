package outcome

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
)

// RevisionStore persists the revision counter and acknowledged partition hashes
type RevisionStore struct {
	path string
}

// NewRevisionStore creates a store at <ledger>/outcomes/revision.json
func NewRevisionStore(ledgerRoot string) *RevisionStore {
	return &RevisionStore{path: filepath.Join(ledgerRoot, "outcomes", "revision.json")}
}

// Load returns the state; a fresh state (revision 0) when absent
func (s *RevisionStore) Load() (*contracts.OutcomeRevisionState, error) {
	st := &contracts.OutcomeRevisionState{}
	if err := atomicio.ReadJSON(s.path, st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &contracts.OutcomeRevisionState{
				Observed:    map[string]map[string]string{},
				Corrections: []contracts.RevisionCorrection{},
			}, nil
		}
		return nil, fmt.Errorf("load revision state: %w", err)
	}
	if st.Observed == nil {
		st.Observed = map[string]map[string]string{}
	}
	if st.Corrections == nil {
		st.Corrections = []contracts.RevisionCorrection{}
	}
	return st, nil
}

// Save writes the state atomically
func (s *RevisionStore) Save(st *contracts.OutcomeRevisionState) error {
	return atomicio.WriteJSON(s.path, st)
}

// DetectRevision replays recent manifests against the current bar files.
// A partition whose recomputed hash differs from the last acknowledged one (initially the
// manifest's recorded hash) is a restatement; any restatement bumps the revision once.
// Passing time alone never changes a hash because partitions are re-read as of their own date.
func DetectRevision(inputDir string, prev *contracts.OutcomeRevisionState, manifests []*contracts.BarsManifest) (*contracts.OutcomeRevisionState, []contracts.RevisionCorrection, error) {
	next := &contracts.OutcomeRevisionState{
		Revision:    prev.Revision,
		Observed:    make(map[string]map[string]string, len(manifests)),
		Corrections: append([]contracts.RevisionCorrection{}, prev.Corrections...),
	}

	var found []contracts.RevisionCorrection
	for _, m := range manifests {
		observed := make(map[string]string, len(m.Partitions))
		for _, p := range m.Partitions {
			known, ok := prev.Observed[m.AsOfDate][p]
			if !ok {
				known = m.Hashes[p]
			}
			current, present, err := s0_data.PartitionHash(inputDir, p, m.AsOfDate)
			if err != nil {
				return nil, nil, fmt.Errorf("rehash %s@%s: %w", p, m.AsOfDate, err)
			}
			if !present {
				// 파일 삭제는 정정이 아니라 DQ 문제
				observed[p] = known
				continue
			}
			observed[p] = current
			if known != "" && current != known {
				found = append(found, contracts.RevisionCorrection{
					Date:      m.AsOfDate,
					Partition: p,
					OldHash:   known,
					NewHash:   current,
				})
			}
		}
		next.Observed[m.AsOfDate] = observed
	}

	if len(found) > 0 {
		next.Revision++
		sort.Slice(found, func(i, j int) bool {
			if found[i].Date != found[j].Date {
				return found[i].Date < found[j].Date
			}
			return found[i].Partition < found[j].Partition
		})
		for i := range found {
			found[i].Revision = next.Revision
		}
		next.Corrections = append(next.Corrections, found...)
	}
	return next, found, nil
}
