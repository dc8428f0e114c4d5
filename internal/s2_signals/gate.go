package s2_signals

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// Feature policy gate reasons
const (
	ReasonForbiddenFeature = "FEATURE_FORBIDDEN"
	ReasonUnknownFeature   = "FEATURE_UNKNOWN"
	ReasonModelMismatch    = "FEATURE_MODEL_MISMATCH"
	ReasonNoFeatureRows    = "FEATURE_NO_ROWS"
)

// knownFeatures is the closed set the builder can compute
var knownFeatures = map[string]bool{
	FeatureRet1D:          true,
	FeatureRet5D:          true,
	FeatureRet20D:         true,
	FeatureVol20D:         true,
	FeatureVolumeZ20:      true,
	FeatureDistSMA50ATR14: true,
}

// PolicyGate rejects the run instead of dropping offending columns
type PolicyGate struct {
	forbidden []string
}

// NewPolicyGate creates a gate over forbidden name globs
func NewPolicyGate(forbiddenGlobs []string) *PolicyGate {
	return &PolicyGate{forbidden: forbiddenGlobs}
}

// CheckNames validates configured names before any computation.
// modelFeatures must be a subset of names.
func (g *PolicyGate) CheckNames(names, modelFeatures []string) *contracts.GateFailure {
	configured := make(map[string]bool, len(names))
	for _, n := range names {
		if reason := g.checkName(n); reason != "" {
			return failure(reason)
		}
		configured[n] = true
	}
	var missing []string
	for _, n := range modelFeatures {
		if !configured[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return failure(fmt.Sprintf("%s missing=%s", ReasonModelMismatch, strings.Join(missing, ",")))
	}
	return nil
}

// CheckRows validates every computed column name
func (g *PolicyGate) CheckRows(rows []contracts.FeatureRow) *contracts.GateFailure {
	if len(rows) == 0 {
		return failure(ReasonNoFeatureRows)
	}
	seen := make(map[string]bool)
	for _, r := range rows {
		for name := range r.Features {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if reason := g.checkName(n); reason != "" {
			return failure(reason)
		}
	}
	return nil
}

func (g *PolicyGate) checkName(name string) string {
	for _, pattern := range g.forbidden {
		if ok, _ := path.Match(pattern, name); ok {
			return fmt.Sprintf("%s name=%s pattern=%s", ReasonForbiddenFeature, name, pattern)
		}
	}
	if !knownFeatures[name] {
		return fmt.Sprintf("%s name=%s", ReasonUnknownFeature, name)
	}
	return ""
}

func failure(reason string) *contracts.GateFailure {
	return &contracts.GateFailure{
		State:  contracts.StateFeaturePolicyFail,
		Stage:  contracts.StageFeatures,
		Reason: reason,
	}
}
