package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

func writeDefaults(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "policies")
	require.NoError(t, WriteSigned(dir, Defaults()))
	return dir
}

func fatalCode(t *testing.T, err error) contracts.FatalCode {
	t.Helper()
	var fe *contracts.FatalError
	require.True(t, errors.As(err, &fe), "expected FatalError, got %v", err)
	return fe.Code
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeDefaults(t)

	b, err := Load(dir)
	require.NoError(t, err)

	assert.Len(t, b.Hashes, len(Names()))
	for _, name := range Names() {
		assert.True(t, strings.HasPrefix(b.Hashes[name], "sha256:"), name)
	}
	assert.Equal(t, 0.9, b.Root.DQ.MinCoverage)
	assert.Equal(t, FeatureNames, b.Feature.AllowedFeatures)
	assert.Equal(t, FallbackHybrid, b.StratificationFallback.UniverseFallback.Strategy)
	assert.Equal(t, 10, b.Calibration.ECEBins)
}

func TestLoad_DeterministicHashes(t *testing.T) {
	a, err := Load(writeDefaults(t))
	require.NoError(t, err)
	b, err := Load(writeDefaults(t))
	require.NoError(t, err)

	assert.Equal(t, a.Hashes, b.Hashes)
}

func TestLoad_Fatal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, dir string)
		want   contracts.FatalCode
	}{
		{
			name: "missing file",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, "monitoring.json")))
			},
			want: contracts.FatalPolicyMissing,
		},
		{
			name: "edited without re-signing",
			mutate: func(t *testing.T, dir string) {
				path := filepath.Join(dir, "root.json")
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				edited := strings.Replace(string(data), `"min_coverage": 0.9`, `"min_coverage": 0.5`, 1)
				require.NotEqual(t, string(data), edited)
				require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))
			},
			want: contracts.FatalPolicyHashMismatch,
		},
		{
			name: "unknown field",
			mutate: func(t *testing.T, dir string) {
				data, err := Sign(map[string]interface{}{
					"version":           DefaultVersion,
					"max_universe_size": 10,
					"typo_field":        true,
				})
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(filepath.Join(dir, "feasibility.json"), data, 0o644))
			},
			want: contracts.FatalPolicyInvalid,
		},
		{
			name: "struct validation",
			mutate: func(t *testing.T, dir string) {
				docs := Defaults()
				m := docs[NameMoeRouting].(MoeRouting)
				m.Temperature = 0
				docs[NameMoeRouting] = m
				require.NoError(t, WriteSigned(dir, docs))
			},
			want: contracts.FatalPolicyInvalid,
		},
		{
			name: "cross-field validation",
			mutate: func(t *testing.T, dir string) {
				docs := Defaults()
				r := docs[NameRoot].(Root)
				r.Selection.DownThreshold = 0.7
				docs[NameRoot] = r
				require.NoError(t, WriteSigned(dir, docs))
			},
			want: contracts.FatalPolicyInvalid,
		},
		{
			name: "feature history shorter than feature windows",
			mutate: func(t *testing.T, dir string) {
				docs := Defaults()
				f := docs[NameFeature].(Feature)
				f.MinHistoryDays = MinFeatureHistoryDays - 1
				docs[NameFeature] = f
				require.NoError(t, WriteSigned(dir, docs))
			},
			want: contracts.FatalPolicyInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeDefaults(t)
			tt.mutate(t, dir)

			b, err := Load(dir)
			assert.Nil(t, b)
			require.Error(t, err)
			assert.Equal(t, tt.want, fatalCode(t, err))
		})
	}
}

func TestVerify(t *testing.T) {
	signed, err := Sign(map[string]interface{}{"version": "v1", "b": 2, "a": []int{1, 2}})
	require.NoError(t, err)

	hash, err := Verify(signed)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "sha256:"))

	_, err = Verify([]byte(`{"version":"v1","policy_hash":"sha256:00"}`))
	assert.ErrorIs(t, err, ErrHashMismatch)

	_, err = Verify([]byte(`{"version":"v1"}`))
	assert.ErrorIs(t, err, ErrHashMismatch)

	_, err = Verify([]byte(`[1,2]`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrHashMismatch)
}

func TestSign_KeyOrderIndependent(t *testing.T) {
	a, err := Sign(map[string]interface{}{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := Sign(struct {
		Y string `json:"y"`
		X int    `json:"x"`
	}{Y: "z", X: 1})
	require.NoError(t, err)

	ha, err := Verify(a)
	require.NoError(t, err)
	hb, err := Verify(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestValidateHorizons(t *testing.T) {
	b, err := Load(writeDefaults(t))
	require.NoError(t, err)

	assert.NoError(t, ValidateHorizons(b, []int{1, 5, 20}))

	err = ValidateHorizons(b, []int{1, 20})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary_horizon_days")
}
