package canonical

import (
	"fmt"
	"strings"
)

// Projection declares which part of an artifact is hash-relevant.
// Keep (when set) selects top-level keys; Drop removes dotted paths afterwards.
type Projection struct {
	Name string
	Keep []string
	Drop []string
}

// Artifact names with a declared projection
const (
	ArtifactCandidates         = "candidates"
	ArtifactFeatures           = "features"
	ArtifactPredictions        = "predictions"
	ArtifactBarsManifest       = "bars_manifest"
	ArtifactDiagnosticsSummary = "diagnostics_summary"
	ArtifactPublishInputs      = "publish_inputs"
	ArtifactPolicy             = "policy"
	ArtifactRouterState        = "router_state"
	ArtifactRegime             = "regime"
)

// Projections is the single registry of hash projections
// ⭐ SSOT: 어떤 필드가 해시에 포함되는지는 여기서만 결정
var Projections = map[string]Projection{
	ArtifactCandidates:   {Name: ArtifactCandidates},
	ArtifactFeatures:     {Name: ArtifactFeatures},
	ArtifactPredictions:  {Name: ArtifactPredictions},
	ArtifactBarsManifest: {Name: ArtifactBarsManifest, Drop: []string{"bars_manifest_hash"}},
	ArtifactDiagnosticsSummary: {
		Name: ArtifactDiagnosticsSummary,
		Drop: []string{"meta.generated_at", "run_id"},
	},
	ArtifactPublishInputs: {
		Name: ArtifactPublishInputs,
		Keep: []string{"hotset", "watchlist", "triggers", "scorecard"},
		Drop: []string{"hotset.meta", "watchlist.meta", "triggers.meta", "scorecard.meta"},
	},
	ArtifactPolicy:      {Name: ArtifactPolicy, Drop: []string{"policy_hash"}},
	ArtifactRouterState: {Name: ArtifactRouterState, Drop: []string{"state_hash"}},
	ArtifactRegime:      {Name: ArtifactRegime, Drop: []string{"state_hash"}},
}

// HashArtifact hashes v through the named projection
func HashArtifact(artifact string, v interface{}) (string, error) {
	p, ok := Projections[artifact]
	if !ok {
		return "", fmt.Errorf("canonical: no projection for artifact %q", artifact)
	}
	tree, err := ToTree(v)
	if err != nil {
		return "", err
	}
	projected := p.Apply(tree)
	b, err := Marshal(projected)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// Apply returns the projected tree; the input is not modified
func (p Projection) Apply(tree interface{}) interface{} {
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return tree
	}
	out := copyMap(obj)
	if len(p.Keep) > 0 {
		kept := make(map[string]interface{}, len(p.Keep))
		for _, k := range p.Keep {
			if v, exists := out[k]; exists {
				kept[k] = v
			}
		}
		out = kept
	}
	for _, path := range p.Drop {
		dropPath(out, strings.Split(path, "."))
	}
	return out
}

func dropPath(obj map[string]interface{}, parts []string) {
	if len(parts) == 1 {
		delete(obj, parts[0])
		return
	}
	child, ok := obj[parts[0]].(map[string]interface{})
	if !ok {
		return
	}
	cp := copyMap(child)
	dropPath(cp, parts[1:])
	obj[parts[0]] = cp
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
