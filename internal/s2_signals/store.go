package s2_signals

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

const featureStoreExt = ".ndjson.gz"

// FeatureStore is the by-date SSOT cache of feature rows
// ⭐ SSOT: 날짜별 피처 파티션은 여기서만 기록
type FeatureStore struct {
	dir string
}

// NewFeatureStore creates a store under <state>/feature_store/by_date/
func NewFeatureStore(stateRoot string) *FeatureStore {
	return &FeatureStore{dir: filepath.Join(stateRoot, "feature_store", "by_date")}
}

func (s *FeatureStore) path(date string) string {
	return filepath.Join(s.dir, date+featureStoreExt)
}

// Sync writes the partition for date when absent or different; reports whether it wrote
func (s *FeatureStore) Sync(date string, rows []contracts.FeatureRow) (bool, error) {
	data, err := encodeRows(rows)
	if err != nil {
		return false, err
	}

	existing, err := os.ReadFile(s.path(date))
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read feature partition %s: %w", date, err)
	}

	if err := atomicio.WriteFile(s.path(date), data, 0o644); err != nil {
		return false, fmt.Errorf("write feature partition %s: %w", date, err)
	}
	return true, nil
}

// Load reads the partition for date; (nil, nil) when absent
func (s *FeatureStore) Load(date string) ([]contracts.FeatureRow, error) {
	f, err := os.Open(s.path(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", date, err)
	}
	defer zr.Close()

	var rows []contracts.FeatureRow
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var row contracts.FeatureRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("decode feature row %s: %w", date, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scan feature partition %s: %w", date, err)
	}
	return rows, nil
}

// Prune removes partitions older than retentionDays before asof; returns removed dates
func (s *FeatureStore) Prune(asof string, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	t, err := time.Parse(contracts.DateLayout, asof)
	if err != nil {
		return nil, err
	}
	cutoff := t.AddDate(0, 0, -retentionDays).Format(contracts.DateLayout)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, featureStoreExt) {
			continue
		}
		date := strings.TrimSuffix(name, featureStoreExt)
		if date < cutoff {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				return removed, err
			}
			removed = append(removed, date)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// encodeRows produces deterministic gzip bytes: canonical JSON lines, fixed header
func encodeRows(rows []contracts.FeatureRow) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		line, err := canonical.Marshal(r)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(append(line, '\n')); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
