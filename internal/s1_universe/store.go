package s1_universe

import (
	"fmt"
	"path/filepath"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// SnapshotStore writes the date-stamped diagnostic snapshot of the PIT universe
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates a store under <ledger>/universe/
func NewSnapshotStore(ledgerRoot string) *SnapshotStore {
	return &SnapshotStore{dir: filepath.Join(ledgerRoot, "universe")}
}

// Save writes the universe snapshot for its as-of date
func (s *SnapshotStore) Save(u *contracts.Universe) error {
	if err := atomicio.WriteJSON(filepath.Join(s.dir, u.AsOfDate+".json"), u); err != nil {
		return fmt.Errorf("save universe snapshot %s: %w", u.AsOfDate, err)
	}
	return nil
}

// Load reads a snapshot
func (s *SnapshotStore) Load(date string) (*contracts.Universe, error) {
	var u contracts.Universe
	if err := atomicio.ReadJSON(filepath.Join(s.dir, date+".json"), &u); err != nil {
		return nil, err
	}
	return &u, nil
}
