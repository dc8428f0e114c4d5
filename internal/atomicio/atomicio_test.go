package atomicio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	require.NoError(t, WriteFile(path, []byte("one"), 0o644))
	require.NoError(t, WriteFile(path, []byte("two"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	// 임시 파일이 남지 않아야 함
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteJSON_ReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.json")
	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}))

	var got map[string]int
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 1, got["a"])

	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &got)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStaging_CommitNewTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "2025-01-02")

	st, err := NewStaging(target)
	require.NoError(t, err)
	defer st.Cleanup()

	require.NoError(t, st.WriteFile("a.json", []byte("A")))
	require.NoError(t, st.Commit())

	got, err := os.ReadFile(filepath.Join(target, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))
}

func TestStaging_CommitReplacesExisting(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "2025-01-02")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "old.json"), []byte("old"), 0o644))

	st, err := NewStaging(target)
	require.NoError(t, err)
	require.NoError(t, st.WriteFile("new.json", []byte("new")))
	require.NoError(t, st.Commit())
	st.Cleanup()

	_, err = os.Stat(filepath.Join(target, "old.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	got, err := os.ReadFile(filepath.Join(target, "new.json"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "displaced version must be removed")
}

func TestStaging_InterruptedBeforeCommitLeavesTargetIntact(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "2025-01-02")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "hotset.json"), []byte("prior"), 0o644))

	st, err := NewStaging(target)
	require.NoError(t, err)
	require.NoError(t, st.WriteFile("hotset.json", []byte("partial")))
	// 교체 직전 중단
	st.Cleanup()

	got, err := os.ReadFile(filepath.Join(target, "hotset.json"))
	require.NoError(t, err)
	assert.Equal(t, "prior", string(got))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStaging_RejectsNestedNames(t *testing.T) {
	st, err := NewStaging(filepath.Join(t.TempDir(), "d"))
	require.NoError(t, err)
	defer st.Cleanup()
	assert.Error(t, st.WriteFile("../escape.json", []byte("x")))
}

func TestStaging_SyncsMembersBeforeCommit(t *testing.T) {
	var synced []string
	orig := syncFile
	syncFile = func(f *os.File) error {
		synced = append(synced, filepath.Base(f.Name()))
		return orig(f)
	}
	t.Cleanup(func() { syncFile = orig })

	target := filepath.Join(t.TempDir(), "2026-10-14")
	st, err := NewStaging(target)
	require.NoError(t, err)
	defer st.Cleanup()

	require.NoError(t, st.WriteFile("hotset.json", []byte(`{"a":1}`)))
	require.NoError(t, st.WriteFile("watchlist.json", []byte(`{"b":2}`)))
	assert.Equal(t, []string{"hotset.json", "watchlist.json"}, synced)
	require.NoError(t, st.Commit())

	data, err := os.ReadFile(filepath.Join(target, "hotset.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestStaging_SyncFailureAbortsWrite(t *testing.T) {
	orig := syncFile
	syncFile = func(*os.File) error { return errors.New("disk gone") }
	t.Cleanup(func() { syncFile = orig })

	target := filepath.Join(t.TempDir(), "2026-10-14")
	st, err := NewStaging(target)
	require.NoError(t, err)
	defer st.Cleanup()

	err = st.WriteFile("hotset.json", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestSweepStale_RemovesOnlyOldStagingDirs(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, StagingPrefix+"2025-01-02-111")
	fresh := filepath.Join(root, StagingPrefix+"2025-01-03-222")
	bundle := filepath.Join(root, "2025-01-02")
	for _, d := range []string{old, fresh, bundle} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	now := time.Now()
	past := now.Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(bundle, past, past))

	removed, err := SweepStale(root, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(old)}, removed)

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, bundle)

	removed, err = SweepStale(filepath.Join(root, "missing"), time.Hour, now)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
