package s0_data

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

func writeBars(t *testing.T, dir, symbol string, bars []contracts.Bar) {
	t.Helper()
	data, err := json.Marshal(bars)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, BarsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, BarsDir, symbol+".json"), data, 0o644))
}

func sampleBars() []contracts.Bar {
	return []contracts.Bar{
		{Date: "2026-10-13", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{Date: "2026-10-15", Open: 11, High: 12, Low: 10, Close: 11.5, Volume: 1200},
		{Date: "2026-10-14", Open: 10, High: 12, Low: 10, Close: 11, Volume: 1100},
		{Date: "2026-10-16", Open: 12, High: 13, Low: 11, Close: 12.5, Volume: 1300}, // after asof
		{Date: "2026-10-12", Open: 9, High: 10, Low: 8, Close: 0, Volume: 900},       // non-positive close
	}
}

func TestBarsLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeBars(t, dir, "A", sampleBars())
	writeBars(t, dir, "B", sampleBars())
	writeBars(t, dir, "EMPTY", []contracts.Bar{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, BarsDir, "BAD.json"), []byte("{"), 0o644))

	loader := NewBarsLoader(dir, 2, logger.Nop())
	res, err := loader.Load(context.Background(), []string{"B", "MISSING", "A", "EMPTY", "BAD", "../x"}, "2026-10-15", "eod-files", "r1")
	require.NoError(t, err)

	m := res.Manifest
	assert.Equal(t, []string{"bars/A.json", "bars/B.json"}, m.Partitions)
	assert.Equal(t, []string{"../x", "BAD", "EMPTY", "MISSING"}, m.Missing)
	assert.Len(t, res.Warnings, 2) // BAD + invalid symbol
	assert.NotEmpty(t, m.BarsManifestHash)
	assert.Equal(t, m.Hashes["bars/A.json"], m.Hashes["bars/B.json"])

	a := res.Series["A"]
	require.NotNil(t, a)
	require.Len(t, a.Bars, 3)
	assert.Equal(t, "2026-10-13", a.Bars[0].Date)
	assert.Equal(t, "2026-10-15", a.Latest().Date)

	c, ok := a.CloseOn("2026-10-14")
	assert.True(t, ok)
	assert.Equal(t, 11.0, c)
}

func TestBarsLoader_HashIndependentOfOrder(t *testing.T) {
	dir := t.TempDir()
	for _, s := range []string{"A", "B", "C"} {
		writeBars(t, dir, s, sampleBars())
	}

	loader := NewBarsLoader(dir, 3, logger.Nop())
	r1, err := loader.Load(context.Background(), []string{"A", "B", "C"}, "2026-10-15", "p", "r")
	require.NoError(t, err)
	r2, err := loader.Load(context.Background(), []string{"C", "A", "B"}, "2026-10-15", "p", "r")
	require.NoError(t, err)

	assert.Equal(t, r1.Manifest.BarsManifestHash, r2.Manifest.BarsManifestHash)
}

func TestBarsLoader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBarsLoader(t.TempDir(), 1, logger.Nop()).Load(ctx, []string{"A"}, "2026-10-15", "p", "r")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitionHash(t *testing.T) {
	dir := t.TempDir()
	writeBars(t, dir, "A", sampleBars())

	before, ok, err := PartitionHash(dir, "bars/A.json", "2026-10-14")
	require.NoError(t, err)
	require.True(t, ok)

	// 미래 바 추가는 과거 날짜 해시에 영향 없음
	appended := append(sampleBars(), contracts.Bar{Date: "2026-10-19", Close: 13, Volume: 1})
	writeBars(t, dir, "A", appended)
	same, _, err := PartitionHash(dir, "bars/A.json", "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, before, same)

	// 과거 바 정정은 해시 변경
	restated := sampleBars()
	restated[0].Close = 10.4
	writeBars(t, dir, "A", restated)
	changed, _, err := PartitionHash(dir, "bars/A.json", "2026-10-14")
	require.NoError(t, err)
	assert.NotEqual(t, before, changed)

	_, ok, err = PartitionHash(dir, "bars/NOPE.json", "2026-10-14")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManifestStore(t *testing.T) {
	store := NewManifestStore(t.TempDir())

	none, err := store.Load("2026-10-14")
	require.NoError(t, err)
	assert.Nil(t, none)

	for _, d := range []string{"2026-10-13", "2026-10-14", "2026-10-15"} {
		require.NoError(t, store.Save(&contracts.BarsManifest{AsOfDate: d, Hashes: map[string]string{}}))
	}

	recent, err := store.Recent("2026-10-15", 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2026-10-13", recent[0].AsOfDate)

	recent, err = store.Recent("2026-10-16", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2026-10-15", recent[0].AsOfDate)
}
