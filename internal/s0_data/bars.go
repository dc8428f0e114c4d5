package s0_data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// BarsDir is the bars root under the input directory
const BarsDir = "bars"

// BarsLoader reads per-symbol bar files with a bounded worker pool
// ⭐ SSOT: 가격 바 데이터 로딩은 여기서만
type BarsLoader struct {
	inputDir string
	workers  int
	logger   *logger.Logger
}

// NewBarsLoader creates a new BarsLoader
func NewBarsLoader(inputDir string, workers int, log *logger.Logger) *BarsLoader {
	if workers < 1 {
		workers = 1
	}
	return &BarsLoader{
		inputDir: inputDir,
		workers:  workers,
		logger:   log.WithField("module", "bars_loader"),
	}
}

// LoadResult is the S0 output consumed by the DQ gate and later stages
type LoadResult struct {
	Series   map[string]*contracts.BarSeries
	Manifest *contracts.BarsManifest
	Warnings []string
}

type loadItem struct {
	symbol    string
	partition string
	series    *contracts.BarSeries
	hash      string
	warning   string
}

// Load reads bars for every symbol, filtered to date <= asof.
// Symbols without a usable history are recorded in Manifest.Missing, never substituted.
func (l *BarsLoader) Load(ctx context.Context, symbols []string, asof, provider, revision string) (*LoadResult, error) {
	items := make([]loadItem, len(symbols))

	// 심볼별 파일 읽기는 서로 독립적 → 인덱스별 슬롯에만 기록 (락 불필요)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = l.loadOne(sym, asof)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	result := &LoadResult{Series: make(map[string]*contracts.BarSeries, len(symbols))}
	manifest := &contracts.BarsManifest{
		AsOfDate:         asof,
		Provider:         provider,
		ProviderRevision: revision,
		Partitions:       []string{},
		Hashes:           make(map[string]string),
		Missing:          []string{},
	}

	for _, it := range items {
		if it.warning != "" {
			result.Warnings = append(result.Warnings, it.warning)
		}
		if it.series == nil {
			manifest.Missing = append(manifest.Missing, it.symbol)
			continue
		}
		result.Series[it.symbol] = it.series
		manifest.Partitions = append(manifest.Partitions, it.partition)
		manifest.Hashes[it.partition] = it.hash
	}

	// 반복 순서와 무관하게 재현 가능하도록 정렬
	sort.Strings(manifest.Partitions)
	sort.Strings(manifest.Missing)
	sort.Strings(result.Warnings)

	hash, err := canonical.HashArtifact(canonical.ArtifactBarsManifest, manifest)
	if err != nil {
		return nil, fmt.Errorf("hash bars manifest: %w", err)
	}
	manifest.BarsManifestHash = hash
	result.Manifest = manifest

	l.logger.WithFields(map[string]interface{}{
		"asof":     asof,
		"symbols":  len(symbols),
		"covered":  len(manifest.Partitions),
		"missing":  len(manifest.Missing),
		"manifest": hash,
	}).Info("Bars loaded")

	return result, nil
}

func (l *BarsLoader) loadOne(symbol, asof string) loadItem {
	it := loadItem{symbol: symbol, partition: PartitionFor(symbol)}
	if !validSymbol(symbol) {
		it.warning = fmt.Sprintf("BARS_INVALID_SYMBOL symbol=%q", symbol)
		return it
	}

	bars, err := ReadBars(l.inputDir, it.partition, asof)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			it.warning = fmt.Sprintf("BARS_UNREADABLE symbol=%s err=%v", symbol, err)
		}
		return it
	}
	if len(bars) == 0 {
		return it
	}

	hash, err := canonical.Hash(bars)
	if err != nil {
		it.warning = fmt.Sprintf("BARS_UNHASHABLE symbol=%s err=%v", symbol, err)
		return it
	}

	it.series = &contracts.BarSeries{Symbol: symbol, Path: it.partition, Bars: bars}
	it.hash = hash
	return it
}

// PartitionFor returns the slash-separated partition path of a symbol
func PartitionFor(symbol string) string {
	return path.Join(BarsDir, symbol+".json")
}

// ReadBars reads one partition and keeps rows with date <= asof and a finite, positive close,
// sorted by date. A repeated date keeps its last occurrence.
func ReadBars(inputDir, partition, asof string) ([]contracts.Bar, error) {
	data, err := os.ReadFile(filepath.Join(inputDir, filepath.FromSlash(partition)))
	if err != nil {
		return nil, err
	}

	var raw []contracts.Bar
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", partition, err)
	}

	byDate := make(map[string]contracts.Bar, len(raw))
	for _, b := range raw {
		if b.Date == "" || b.Date > asof {
			continue
		}
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
			continue
		}
		byDate[b.Date] = b
	}

	out := make([]contracts.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// PartitionHash recomputes the hash a manifest dated asof would record for partition.
// ok=false when the partition no longer has any usable rows.
func PartitionHash(inputDir, partition, asof string) (hash string, ok bool, err error) {
	bars, err := ReadBars(inputDir, partition, asof)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(bars) == 0 {
		return "", false, nil
	}
	hash, err = canonical.Hash(bars)
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func validSymbol(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
