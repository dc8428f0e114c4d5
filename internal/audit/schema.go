package audit

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// Validated artifact names
const (
	SchemaBarsManifest       = "bars_manifest"
	SchemaCandidates         = "candidates"
	SchemaFeatures           = "features"
	SchemaPredictions        = "predictions"
	SchemaOutcomes           = "outcomes"
	SchemaModelCard          = "model_card"
	SchemaDiagnosticsSummary = "diagnostics_summary"
)

// CheckSchema is the diagnostics check name
const CheckSchema = "schema_validation"

const schemaBaseURL = "https://forecast.local/schemas/"

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// SchemaNames returns every validated artifact in canonical order
func SchemaNames() []string {
	return []string{
		SchemaBarsManifest,
		SchemaCandidates,
		SchemaFeatures,
		SchemaPredictions,
		SchemaOutcomes,
		SchemaModelCard,
		SchemaDiagnosticsSummary,
	}
}

// SchemaValidator checks artifacts against their structural contracts
type SchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator compiles the embedded schemas
func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, e := range entries {
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		if err := compiler.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", e.Name(), err)
		}
	}

	v := &SchemaValidator{schemas: make(map[string]*jsonschema.Schema)}
	for _, name := range SchemaNames() {
		schema, err := compiler.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks one artifact value (any JSON-marshalable form)
func (v *SchemaValidator) Validate(artifact string, doc interface{}) error {
	schema, ok := v.schemas[artifact]
	if !ok {
		return fmt.Errorf("no schema for artifact %q", artifact)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", artifact, err)
	}
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

// ValidateAll checks every provided artifact; failures are reported in artifact order
func (v *SchemaValidator) ValidateAll(docs map[string]interface{}) (contracts.Check, *contracts.GateFailure) {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	for _, name := range names {
		if err := v.Validate(name, docs[name]); err != nil {
			failures = append(failures, fmt.Sprintf("SCHEMA_INVALID artifact=%s error=%s", name, firstLine(err)))
		}
	}

	if len(failures) == 0 {
		return contracts.Check{
			Status:  contracts.CheckPass,
			Details: map[string]interface{}{"artifacts": names},
		}, nil
	}
	reason := strings.Join(failures, "; ")
	check := contracts.Check{
		Status:  contracts.CheckFail,
		Reason:  reason,
		Details: map[string]interface{}{"artifacts": names, "failed": len(failures)},
	}
	return check, &contracts.GateFailure{
		State:  contracts.StateSchemaFail,
		Stage:  contracts.StageGates,
		Reason: reason,
	}
}

// firstLine keeps the leaf cause of a jsonschema error chain
func firstLine(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return fmt.Sprintf("%s: %s", leaf.InstanceLocation, leaf.Message)
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
