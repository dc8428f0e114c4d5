package monitoring

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
)

// psiFloor keeps empty bins from producing infinite terms
const psiFloor = 1e-4

// Histogram returns the per-bin proportions of values in [0,1]
func Histogram(values []float64, numBins int) []float64 {
	out := make([]float64, numBins)
	if len(values) == 0 || numBins <= 0 {
		return out
	}
	for _, v := range values {
		out[binIndex(v, numBins)]++
	}
	for i := range out {
		out[i] /= float64(len(values))
	}
	return out
}

// PSI is Σ (cur - base) · ln(cur / base) with both proportions floored
func PSI(baseline, current []float64) (float64, error) {
	if len(baseline) != len(current) {
		return 0, fmt.Errorf("psi: baseline has %d bins, current %d", len(baseline), len(current))
	}
	total := 0.0
	for i := range baseline {
		b := math.Max(baseline[i], psiFloor)
		c := math.Max(current[i], psiFloor)
		total += (c - b) * math.Log(c/b)
	}
	return total, nil
}

// Baseline is the persisted reference p_up histogram.
// ⭐ SSOT: 최초 1회 생성, 이후 덮어쓰기 금지
type Baseline struct {
	CreatedFor  string    `json:"created_for"`
	Bins        int       `json:"bins"`
	Samples     int       `json:"samples"`
	Proportions []float64 `json:"proportions"`
}

// BaselineStore reads/creates <state>/monitoring/baseline_p_up.json
type BaselineStore struct {
	path string
}

// NewBaselineStore creates a store
func NewBaselineStore(stateRoot string) *BaselineStore {
	return &BaselineStore{path: filepath.Join(stateRoot, "monitoring", "baseline_p_up.json")}
}

// Path returns the baseline file path
func (s *BaselineStore) Path() string {
	return s.path
}

// Load returns the baseline; (nil, nil) when none exists yet
func (s *BaselineStore) Load() (*Baseline, error) {
	var b Baseline
	if err := atomicio.ReadJSON(s.path, &b); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load psi baseline: %w", err)
	}
	if b.Bins != len(b.Proportions) {
		return nil, fmt.Errorf("psi baseline: bins=%d but %d proportions", b.Bins, len(b.Proportions))
	}
	return &b, nil
}

// Create writes b only when no baseline exists; an existing one is never replaced
func (s *BaselineStore) Create(b *Baseline) (bool, error) {
	existing, err := s.Load()
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := atomicio.WriteJSON(s.path, b); err != nil {
		return false, fmt.Errorf("write psi baseline: %w", err)
	}
	return true, nil
}
