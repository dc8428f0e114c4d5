package publish

import (
	"encoding/json"
	"fmt"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// payloadKey maps each bundle file to the key holding its payload
var payloadKey = map[string]string{
	contracts.FileHotset:    "hotset",
	contracts.FileWatchlist: "watchlist",
	contracts.FileTriggers:  "triggers",
	contracts.FileScorecard: "scorecard",
	contracts.FileModelCard: "model_card",
}

// Contents are the computed payloads of a fresh bundle
type Contents struct {
	Pack        *contracts.TriggerPack
	ModelCard   *contracts.ModelCard
	Diagnostics *contracts.DiagnosticsSummary
}

// EmptyContents is the explicit degraded bundle used when nothing can be republished
func EmptyContents(card *contracts.ModelCard, diag *contracts.DiagnosticsSummary) Contents {
	return Contents{
		Pack: &contracts.TriggerPack{
			Hotset:    []contracts.RankedPrediction{},
			Watchlist: []contracts.RankedPrediction{},
			Triggers:  []contracts.Trigger{},
			Scorecard: contracts.Scorecard{Horizons: []contracts.HorizonScore{}},
		},
		ModelCard:   card,
		Diagnostics: diag,
	}
}

// Assemble renders the six documents; every file carries meta
func Assemble(meta contracts.BundleMeta, c Contents) (*contracts.Bundle, error) {
	payloads := map[string]interface{}{
		contracts.FileHotset:    c.Pack.Hotset,
		contracts.FileWatchlist: c.Pack.Watchlist,
		contracts.FileTriggers:  c.Pack.Triggers,
		contracts.FileScorecard: c.Pack.Scorecard,
		contracts.FileModelCard: c.ModelCard,
	}

	b := &contracts.Bundle{AsOfDate: meta.AsOfDate, Docs: make(map[string][]byte, 6)}
	for name, payload := range payloads {
		data, err := render(map[string]interface{}{
			"meta":           meta,
			payloadKey[name]: payload,
		})
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		b.Docs[name] = data
	}

	diag := *c.Diagnostics
	diag.Meta = meta
	data, err := render(diag)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", contracts.FileDiagnosticsSummary, err)
	}
	b.Docs[contracts.FileDiagnosticsSummary] = data
	return b, nil
}

// Rewrap replaces only the meta block of a previously published document
func Rewrap(doc []byte, meta contracts.BundleMeta) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	m["meta"] = raw
	return render(m)
}

func render(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// PublishInputsHash hashes hotset/watchlist/triggers/scorecard payloads without meta
func PublishInputsHash(b *contracts.Bundle) (string, error) {
	tree := make(map[string]interface{}, 4)
	for _, name := range []string{contracts.FileHotset, contracts.FileWatchlist, contracts.FileTriggers, contracts.FileScorecard} {
		var doc interface{}
		if err := json.Unmarshal(b.Docs[name], &doc); err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}
		tree[payloadKey[name]] = doc
	}
	return canonical.HashArtifact(canonical.ArtifactPublishInputs, tree)
}

// ArtifactsHash is the content hash of a bundle: file name → sha256 of its bytes
func ArtifactsHash(docs map[string][]byte) (string, error) {
	files := make(map[string]string, len(docs))
	for name, data := range docs {
		files[name] = canonical.HashBytes(data)
	}
	return canonical.Hash(files)
}
