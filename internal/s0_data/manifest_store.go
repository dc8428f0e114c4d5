package s0_data

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// ManifestStore persists one bars manifest per as-of date under <ledger>/manifests/
type ManifestStore struct {
	dir string
}

// NewManifestStore creates a store rooted at the ledger root
func NewManifestStore(ledgerRoot string) *ManifestStore {
	return &ManifestStore{dir: filepath.Join(ledgerRoot, "manifests")}
}

// Save writes the manifest atomically (same-date reruns replace it)
func (s *ManifestStore) Save(m *contracts.BarsManifest) error {
	if err := atomicio.WriteJSON(filepath.Join(s.dir, m.AsOfDate+".json"), m); err != nil {
		return fmt.Errorf("save manifest %s: %w", m.AsOfDate, err)
	}
	return nil
}

// Load reads the manifest for date; (nil, nil) when absent
func (s *ManifestStore) Load(date string) (*contracts.BarsManifest, error) {
	var m contracts.BarsManifest
	if err := atomicio.ReadJSON(filepath.Join(s.dir, date+".json"), &m); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Dates lists stored manifest dates ascending
func (s *ManifestStore) Dates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(dates)
	return dates, nil
}

// Recent returns up to n manifests dated strictly before `before`, oldest first
func (s *ManifestStore) Recent(before string, n int) ([]*contracts.BarsManifest, error) {
	dates, err := s.Dates()
	if err != nil {
		return nil, err
	}
	var eligible []string
	for _, d := range dates {
		if d < before {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) > n {
		eligible = eligible[len(eligible)-n:]
	}

	out := make([]*contracts.BarsManifest, 0, len(eligible))
	for _, d := range eligible {
		m, err := s.Load(d)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}
