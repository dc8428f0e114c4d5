// Package publish assembles the six-file bundle, swaps it into place atomically,
// and maintains the last-good pointer used by the degrade path.
package publish

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// ErrBundleIncomplete means a published date directory is missing one of the six files
var ErrBundleIncomplete = errors.New("published bundle incomplete")

// Publisher writes bundles under <root>/<date>/
type Publisher struct {
	root string
	log  zerolog.Logger

	// beforeCommit runs after staging, before the directory swap
	beforeCommit func(stagingDir string) error
}

// NewPublisher creates a publisher rooted at the publish root
func NewPublisher(root string, log zerolog.Logger) *Publisher {
	return &Publisher{
		root: root,
		log:  log.With().Str("component", "publish.publisher").Logger(),
	}
}

// Dir returns the bundle directory for a date
func (p *Publisher) Dir(date string) string {
	return filepath.Join(p.root, date)
}

// Publish stages all six files and replaces <root>/<date> in one step.
// Returns the artifacts hash of the committed bundle.
func (p *Publisher) Publish(b *contracts.Bundle) (string, error) {
	for _, name := range contracts.BundleFiles() {
		if _, ok := b.Docs[name]; !ok {
			return "", fmt.Errorf("%w: %s", ErrBundleIncomplete, name)
		}
	}
	if len(b.Docs) != len(contracts.BundleFiles()) {
		return "", fmt.Errorf("bundle for %s has %d files, want %d", b.AsOfDate, len(b.Docs), len(contracts.BundleFiles()))
	}

	hash, err := ArtifactsHash(b.Docs)
	if err != nil {
		return "", fmt.Errorf("hash bundle: %w", err)
	}

	st, err := atomicio.NewStaging(p.Dir(b.AsOfDate))
	if err != nil {
		return "", err
	}
	defer st.Cleanup()

	for _, name := range contracts.BundleFiles() {
		if err := st.WriteFile(name, b.Docs[name]); err != nil {
			return "", err
		}
	}
	if p.beforeCommit != nil {
		if err := p.beforeCommit(st.Dir()); err != nil {
			return "", fmt.Errorf("publish %s interrupted: %w", b.AsOfDate, err)
		}
	}
	if err := st.Commit(); err != nil {
		return "", fmt.Errorf("commit bundle %s: %w", b.AsOfDate, err)
	}

	p.log.Info().
		Str("asof", b.AsOfDate).
		Str("dir", st.Target()).
		Str("artifacts_hash", hash).
		Msg("bundle published")
	return hash, nil
}

// Read loads a published bundle; all six files must be present
func (p *Publisher) Read(date string) (map[string][]byte, error) {
	docs := make(map[string][]byte, len(contracts.BundleFiles()))
	for _, name := range contracts.BundleFiles() {
		data, err := os.ReadFile(filepath.Join(p.Dir(date), name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s/%s", ErrBundleIncomplete, date, name)
			}
			return nil, fmt.Errorf("read bundle %s/%s: %w", date, name, err)
		}
		docs[name] = data
	}
	return docs, nil
}
