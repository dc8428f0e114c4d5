package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// ErrHashMismatch is wrapped when a declared policy_hash does not match the content
var ErrHashMismatch = errors.New("policy hash mismatch")

// Load reads every policy under dir, verifies its self-hash, decodes and validates it.
// Any failure is a *contracts.FatalError; nothing has been written at this point.
// SSOT 핵심: DisallowUnknownFields로 오타/미사용 필드 즉시 실패
func Load(dir string) (*Bundle, error) {
	b := &Bundle{Dir: dir, Hashes: make(map[string]string, len(Names()))}
	targets := b.targets()

	for _, name := range Names() {
		path := filepath.Join(dir, name+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, contracts.NewFatal(contracts.FatalPolicyMissing, nil, "policy %s not found at %s", name, path)
			}
			return nil, contracts.NewFatal(contracts.FatalPolicyMissing, err, "read policy %s", name)
		}

		hash, err := Verify(data)
		if err != nil {
			if errors.Is(err, ErrHashMismatch) {
				return nil, contracts.NewFatal(contracts.FatalPolicyHashMismatch, err, "policy %s", name)
			}
			return nil, contracts.NewFatal(contracts.FatalPolicyInvalid, err, "policy %s", name)
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(targets[name]); err != nil {
			return nil, contracts.NewFatal(contracts.FatalPolicyInvalid, err, "decode policy %s", name)
		}
		if err := ValidateStruct(targets[name]); err != nil {
			return nil, contracts.NewFatal(contracts.FatalPolicyInvalid, err, "policy %s", name)
		}

		b.Hashes[name] = hash
	}

	if err := Validate(b); err != nil {
		return nil, contracts.NewFatal(contracts.FatalPolicyInvalid, err, "policy bundle")
	}

	return b, nil
}

// Verify recomputes the canonical hash of a policy document (minus policy_hash)
// and compares it to the declared value. Returns the verified hash.
func Verify(data []byte) (string, error) {
	tree, err := canonical.ToTree(data)
	if err != nil {
		return "", err
	}
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("policy document must be a JSON object")
	}
	declared, _ := obj["policy_hash"].(string)

	computed, err := canonical.HashArtifact(canonical.ArtifactPolicy, tree)
	if err != nil {
		return "", err
	}
	if declared != computed {
		return "", fmt.Errorf("%w: declared=%q computed=%q", ErrHashMismatch, declared, computed)
	}
	return computed, nil
}

// Sign sets policy_hash on doc and returns the indented document bytes.
// Used when authoring policies and by fixture materialization.
func Sign(doc interface{}) ([]byte, error) {
	tree, err := canonical.ToTree(doc)
	if err != nil {
		return nil, err
	}
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("policy document must be a JSON object")
	}
	hash, err := canonical.HashArtifact(canonical.ArtifactPolicy, obj)
	if err != nil {
		return nil, err
	}
	obj["policy_hash"] = hash

	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
