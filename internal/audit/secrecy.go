package audit

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// Secrecy reason codes
const (
	ReasonHardBlock = "SECRECY_HARD_BLOCK"
	ReasonForbidden = "SECRECY_FORBIDDEN"
)

// CheckSecrecy is the diagnostics check name
const CheckSecrecy = "secrecy_scan"

// maxReportedFindings bounds the reason string
const maxReportedFindings = 5

// Finding is one forbidden file
type Finding struct {
	Path      string `json:"path"`
	Rule      string `json:"rule"`
	HardBlock bool   `json:"hard_block"`
}

// SecrecyScanner walks a tree for forbidden artifact classes.
// Hard-blocked extensions ignore the allowlist; forbidden globs honor it.
type SecrecyScanner struct {
	config policy.Secrecy
	log    zerolog.Logger
}

// NewSecrecyScanner creates a scanner from the secrecy policy
func NewSecrecyScanner(config policy.Secrecy, log zerolog.Logger) *SecrecyScanner {
	return &SecrecyScanner{
		config: config,
		log:    log.With().Str("component", "audit.secrecy").Logger(),
	}
}

// Scan walks root (tracked and untracked files alike) and returns findings sorted by path
func (s *SecrecyScanner) Scan(root string) ([]Finding, error) {
	skip := make(map[string]bool, len(s.config.SkipDirs))
	for _, d := range s.config.SkipDirs {
		skip[d] = true
	}

	var findings []Finding
	scanned := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		scanned++
		if f, ok := s.Classify(filepath.ToSlash(rel)); ok {
			findings = append(findings, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("secrecy scan %s: %w", root, err)
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Path < findings[j].Path })
	s.log.Info().
		Str("root", root).
		Int("scanned", scanned).
		Int("findings", len(findings)).
		Msg("secrecy scan complete")
	return findings, nil
}

// Classify checks one slash-separated relative path
func (s *SecrecyScanner) Classify(rel string) (Finding, bool) {
	lower := strings.ToLower(rel)
	for _, ext := range s.config.HardBlockExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return Finding{Path: rel, Rule: ext, HardBlock: true}, true
		}
	}
	pattern, ok := MatchAny(s.config.ForbiddenGlobs, rel)
	if !ok {
		return Finding{}, false
	}
	if _, allowed := MatchAny(s.config.AllowlistGlobs, rel); allowed {
		return Finding{}, false
	}
	return Finding{Path: rel, Rule: pattern}, true
}

// SecrecyGate turns findings into a check and an optional SECRECY_FAIL
func SecrecyGate(findings []Finding) (contracts.Check, *contracts.GateFailure) {
	if len(findings) == 0 {
		return contracts.Check{Status: contracts.CheckPass}, nil
	}

	parts := make([]string, 0, maxReportedFindings+1)
	for i, f := range findings {
		if i == maxReportedFindings {
			parts = append(parts, fmt.Sprintf("... %d more", len(findings)-maxReportedFindings))
			break
		}
		code := ReasonForbidden
		if f.HardBlock {
			code = ReasonHardBlock
		}
		parts = append(parts, fmt.Sprintf("%s path=%s rule=%s", code, f.Path, f.Rule))
	}
	reason := strings.Join(parts, "; ")

	paths := make([]string, len(findings))
	for i, f := range findings {
		paths[i] = f.Path
	}
	check := contracts.Check{
		Status:  contracts.CheckFail,
		Reason:  reason,
		Details: map[string]interface{}{"findings": len(findings), "paths": paths},
	}
	return check, &contracts.GateFailure{
		State:  contracts.StateSecrecyFail,
		Stage:  contracts.StageGates,
		Reason: reason,
	}
}
