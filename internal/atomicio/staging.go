package atomicio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StagingPrefix marks staging directories created by NewStaging
const StagingPrefix = ".staging-"

// Staging is a scoped temporary directory that replaces Target in one step on Commit.
//
//	st, err := atomicio.NewStaging(target)
//	defer st.Cleanup()
//	... st.WriteFile(...)
//	return st.Commit()
//
// Cleanup is safe to call on every path; after a successful Commit it only removes
// the displaced previous version.
type Staging struct {
	target    string
	dir       string
	committed bool
}

// NewStaging creates the staging directory next to target (same filesystem)
func NewStaging(target string) (*Staging, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create parent %s: %w", parent, err)
	}
	dir, err := os.MkdirTemp(parent, StagingPrefix+filepath.Base(target)+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging for %s: %w", target, err)
	}
	return &Staging{target: target, dir: dir}, nil
}

// Dir returns the staging directory path
func (s *Staging) Dir() string {
	return s.dir
}

// Target returns the final directory path
func (s *Staging) Target() string {
	return s.target
}

// WriteFile writes one member into the staging directory
func (s *Staging) WriteFile(name string, data []byte) error {
	if s.committed {
		return errors.New("staging already committed")
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("staging member %q must be a plain file name", name)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create staging member %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write staging member %s: %w", name, err)
	}
	// 디렉터리 교체 전에 내용이 디스크에 있어야 함
	if err := syncFile(f); err != nil {
		f.Close()
		return fmt.Errorf("sync staging member %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staging member %s: %w", name, err)
	}
	return nil
}

// syncFile is replaced in tests
var syncFile = (*os.File).Sync

// Commit atomically replaces target with the staged directory
func (s *Staging) Commit() error {
	if s.committed {
		return errors.New("staging already committed")
	}
	if err := syncDir(s.dir); err != nil {
		return err
	}

	if _, err := os.Stat(s.target); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(s.dir, s.target); err != nil {
			return fmt.Errorf("rename staging into %s: %w", s.target, err)
		}
		s.committed = true
		s.dir = ""
		return syncDir(filepath.Dir(s.target))
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", s.target, err)
	}

	// target 존재: 교환 후 staging 경로에는 이전 버전이 남음
	if err := exchange(s.dir, s.target); err != nil {
		return fmt.Errorf("replace %s: %w", s.target, err)
	}
	s.committed = true
	return syncDir(filepath.Dir(s.target))
}

// Cleanup removes the staging directory (or the displaced old version after Commit)
func (s *Staging) Cleanup() {
	if s.dir == "" {
		return
	}
	_ = os.RemoveAll(s.dir)
	s.dir = ""
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer f.Close()
	// 일부 파일시스템은 디렉터리 fsync 미지원
	_ = f.Sync()
	return nil
}

// SweepStale removes staging directories under parent last modified before
// now-olderThan. They are left behind only when a process died mid-publish.
func SweepStale(parent string, olderThan time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", parent, err)
	}

	cutoff := now.Add(-olderThan)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), StagingPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(parent, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
