package brain_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/audit"
	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/determinism"
	"github.com/RubikVault/rubikvault-site-sub000/internal/forecast"
	"github.com/RubikVault/rubikvault-site-sub000/internal/monitoring"
	"github.com/RubikVault/rubikvault-site-sub000/internal/publish"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

const (
	testDate     = "2026-10-14"
	testPrevDate = "2026-10-13"
)

var testClock = func() time.Time { return time.Date(2026, 10, 14, 22, 30, 0, 0, time.UTC) }

type env struct {
	root    string
	fixture *determinism.Fixture
	paths   brain.Paths
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	fx, err := determinism.Materialize(filepath.Join(root, "input"), testDate, determinism.FixtureOptions{})
	require.NoError(t, err)
	return &env{
		root:    root,
		fixture: fx,
		paths: brain.Paths{
			InputDir:    fx.InputDir,
			PublishRoot: filepath.Join(root, "publish"),
			LedgerRoot:  filepath.Join(root, "ledger"),
			StateRoot:   filepath.Join(root, "state"),
			Workers:     2,
		},
	}
}

func (e *env) run(t *testing.T, cfg brain.RunConfig, opts ...brain.Option) (*brain.RunResult, error) {
	t.Helper()
	opts = append([]brain.Option{brain.WithClock(testClock)}, opts...)
	return brain.NewOrchestrator(e.paths, logger.Nop(), opts...).Run(context.Background(), cfg)
}

func readDoc(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func fatalCode(t *testing.T, err error) contracts.FatalCode {
	t.Helper()
	var fe *contracts.FatalError
	require.True(t, errors.As(err, &fe), "expected fatal error, got %v", err)
	return fe.Code
}

// spySource counts scoring calls
type spySource struct {
	forecast.PredictionSource
	calls int
}

func (s *spySource) Scores(ctx context.Context, req forecast.ScoreRequest) ([]forecast.RawScore, error) {
	s.calls++
	return s.PredictionSource.Scores(ctx, req)
}

func withSpy(spy *spySource) brain.Option {
	return brain.WithSourceFactory(func(mode contracts.Mode, weightsDir, inputDir string, card *contracts.ModelCard, log zerolog.Logger) (forecast.PredictionSource, error) {
		src, err := forecast.NewSource(mode, weightsDir, inputDir, card, log)
		if err != nil {
			return nil, err
		}
		spy.PredictionSource = src
		return spy, nil
	})
}

func TestRun_PublishesFreshBundle(t *testing.T) {
	e := newEnv(t)

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)

	assert.Equal(t, contracts.StatePublished, res.State)
	assert.False(t, res.CircuitOpen)
	assert.Nil(t, res.Failure)
	assert.Empty(t, res.LastGoodDateUsed)
	assert.Equal(t, contracts.AllStages(), res.CompletedStages)
	assert.NotEmpty(t, res.ArtifactsHash)

	// 3 symbols × 3 horizons
	assert.Equal(t, 3, res.Diagnostics.Counts["candidates"])
	assert.Equal(t, 9, res.Diagnostics.Counts["predictions"])
	coverage := res.Diagnostics.Checks["monitoring_coverage"]
	assert.Equal(t, contracts.CheckPass, coverage.Status)
	assert.InDelta(t, 1.0, coverage.Details["coverage"], 1e-9)

	dir := filepath.Join(e.paths.PublishRoot, testDate)
	for _, name := range contracts.BundleFiles() {
		doc := readDoc(t, filepath.Join(dir, name))
		meta := doc["meta"].(map[string]interface{})
		assert.Equal(t, testDate, meta["asof_date"], name)
		assert.Equal(t, "CI", meta["mode"], name)
		assert.Equal(t, false, meta["circuitOpen"], name)
		assert.Nil(t, meta["last_good_date_used"], name)
		assert.Equal(t, brain.ReasonOK, meta["reason"], name)
	}

	ptr, err := publish.NewLastGoodStore(e.paths.StateRoot, 30).Load()
	require.NoError(t, err)
	require.NotNil(t, ptr.CurrentLastGood)
	assert.Equal(t, testDate, ptr.CurrentLastGood.Date)
	assert.Equal(t, res.ArtifactsHash, ptr.CurrentLastGood.ArtifactsHash)

	assert.FileExists(t, brain.DiagnosticsPath(e.paths.LedgerRoot, testDate))
	assert.FileExists(t, filepath.Join(e.paths.LedgerRoot, "manifests", testDate+".json"))
	assert.FileExists(t, filepath.Join(e.paths.StateRoot, "router", testDate+".json"))
	assert.FileExists(t, filepath.Join(e.paths.StateRoot, "monitoring", "baseline_p_up.json"))
	require.NotNil(t, res.Ledger)
	assert.Equal(t, 9, res.Ledger.Enqueued)
}

func TestRun_LocalModeScoresWithVerifiedWeights(t *testing.T) {
	e := newEnv(t)
	e.paths.WeightsDir = filepath.Join(e.root, "vault")
	require.NoError(t, e.fixture.WriteWeights(e.paths.WeightsDir))

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeLocal, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, contracts.StatePublished, res.State)
	assert.Equal(t, 9, res.Diagnostics.Counts["predictions"])
	assert.Equal(t, "LOCAL", res.Diagnostics.Meta.Mode)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	e := newEnv(t)

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, contracts.StatePublished, res.State)
	assert.Empty(t, res.ArtifactsHash)
	assert.NotContains(t, res.CompletedStages, contracts.StagePublish)
	require.NotNil(t, res.Bundle)
	assert.Len(t, res.Bundle.Docs, 6)

	for _, dir := range []string{e.paths.PublishRoot, e.paths.LedgerRoot, e.paths.StateRoot} {
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err), dir)
	}
}

func TestRun_DQFailureRepublishesLastGood(t *testing.T) {
	e := newEnv(t)

	first, err := e.run(t, brain.RunConfig{Date: testPrevDate, Mode: contracts.ModeCI})
	require.NoError(t, err)
	require.Equal(t, contracts.StatePublished, first.State)

	// 3종목 중 1종목 누락 → coverage 0.6667 < 0.9
	require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, "bars", "CCC.json")))

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)

	assert.Equal(t, contracts.StateDegraded, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, contracts.StateDQFail, res.Failure.State)
	assert.Equal(t, contracts.StageDataQuality, res.Failure.Stage)
	assert.True(t, strings.HasPrefix(res.Failure.Reason, "DQ_COVERAGE_BELOW_MIN"), res.Failure.Reason)
	assert.True(t, res.CircuitOpen)
	assert.Equal(t, testPrevDate, res.LastGoodDateUsed)

	today := filepath.Join(e.paths.PublishRoot, testDate)
	prior := filepath.Join(e.paths.PublishRoot, testPrevDate)
	hot := readDoc(t, filepath.Join(today, contracts.FileHotset))
	meta := hot["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["circuitOpen"])
	assert.Equal(t, testPrevDate, meta["last_good_date_used"])
	assert.Equal(t, testDate, meta["asof_date"])
	assert.Equal(t, readDoc(t, filepath.Join(prior, contracts.FileHotset))["hotset"], hot["hotset"])

	diag := readDoc(t, filepath.Join(today, contracts.FileDiagnosticsSummary))
	assert.Equal(t, string(contracts.StateDegraded), diag["state"])
	assert.Equal(t, string(contracts.StateDQFail), diag["failure_state"])

	// 포인터는 이동하지 않고 rollback 이력만 추가
	ptr, err := publish.NewLastGoodStore(e.paths.StateRoot, 30).Load()
	require.NoError(t, err)
	assert.Equal(t, testPrevDate, ptr.CurrentLastGood.Date)
	last := ptr.History[len(ptr.History)-1]
	assert.Equal(t, contracts.LastGoodRollback, last.Kind)
	assert.Equal(t, testDate, last.Date)
	assert.Equal(t, 1, ptr.Stats.RollbackCount)
}

func TestRun_DegradedBackfillNeverUsesLaterBundle(t *testing.T) {
	e := newEnv(t)
	early := e.fixture.Dates[len(e.fixture.Dates)-3]

	for _, date := range []string{early, testDate} {
		// 날짜마다 새 PSI baseline (소표본 drift로 게이트가 열리지 않도록)
		require.NoError(t, os.RemoveAll(filepath.Join(e.paths.StateRoot, "monitoring")))
		res, err := e.run(t, brain.RunConfig{Date: date, Mode: contracts.ModeCI})
		require.NoError(t, err)
		require.Equal(t, contracts.StatePublished, res.State, date)
	}
	require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, "bars", "CCC.json")))

	// testPrevDate 재실행: testDate 번들(이후 날짜)이 아니라 early 번들을 사용
	res, err := e.run(t, brain.RunConfig{Date: testPrevDate, Mode: contracts.ModeCI})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateDegraded, res.State)
	assert.Equal(t, early, res.LastGoodDateUsed)

	hot := readDoc(t, filepath.Join(e.paths.PublishRoot, testPrevDate, contracts.FileHotset))
	meta := hot["meta"].(map[string]interface{})
	assert.Equal(t, early, meta["last_good_date_used"])
	assert.Equal(t, testPrevDate, meta["asof_date"])

	ptr, err := publish.NewLastGoodStore(e.paths.StateRoot, 30).Load()
	require.NoError(t, err)
	assert.Equal(t, testDate, ptr.CurrentLastGood.Date)
}

func TestRun_DegradedBackfillWithOnlyLaterBundlePublishesEmpty(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, "bars", "CCC.json")))

	res, err := e.run(t, brain.RunConfig{Date: testPrevDate, Mode: contracts.ModeCI})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateDegraded, res.State)
	assert.Empty(t, res.LastGoodDateUsed)

	found := false
	for _, w := range res.Diagnostics.Warnings {
		if strings.HasPrefix(w, publish.WarningNoPriorLastGood) {
			found = true
		}
	}
	assert.True(t, found, res.Diagnostics.Warnings)

	hot := readDoc(t, filepath.Join(e.paths.PublishRoot, testPrevDate, contracts.FileHotset))
	assert.Equal(t, []interface{}{}, hot["hotset"])
	assert.Nil(t, hot["meta"].(map[string]interface{})["last_good_date_used"])
}

func TestRun_DegradeOnLastGoodDateKeepsPublishedBundle(t *testing.T) {
	e := newEnv(t)

	first, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)
	dir := filepath.Join(e.paths.PublishRoot, testDate)
	before, err := os.ReadFile(filepath.Join(dir, contracts.FileHotset))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, "bars", "CCC.json")))
	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateDegraded, res.State)
	assert.Equal(t, testDate, res.LastGoodDateUsed)
	assert.Equal(t, first.ArtifactsHash, res.ArtifactsHash)

	after, err := os.ReadFile(filepath.Join(dir, contracts.FileHotset))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// 포인터 해시와 디스크 내용이 일치
	docs, err := publish.NewPublisher(e.paths.PublishRoot, zerolog.Nop()).Read(testDate)
	require.NoError(t, err)
	onDisk, err := publish.ArtifactsHash(docs)
	require.NoError(t, err)
	ptr, err := publish.NewLastGoodStore(e.paths.StateRoot, 30).Load()
	require.NoError(t, err)
	assert.Equal(t, onDisk, ptr.CurrentLastGood.ArtifactsHash)
	assert.Equal(t, contracts.LastGoodRollback, ptr.History[len(ptr.History)-1].Kind)
}

// assertLateGateDegrade checks a failure after inference: nothing learned from the run is kept
func assertLateGateDegrade(t *testing.T, e *env, res *brain.RunResult, state contracts.RunState, stage contracts.Stage) {
	t.Helper()
	assert.Equal(t, contracts.StateDegraded, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, state, res.Failure.State)
	assert.Equal(t, stage, res.Failure.Stage)
	assert.True(t, res.CircuitOpen)
	assert.NotContains(t, res.CompletedStages, stage)
	assert.Contains(t, res.CompletedStages, contracts.StageInference)
	assert.Contains(t, res.CompletedStages, contracts.StagePublish)

	diag := readDoc(t, filepath.Join(e.paths.PublishRoot, testDate, contracts.FileDiagnosticsSummary))
	assert.Equal(t, string(state), diag["failure_state"])
	assert.Equal(t, res.Failure.Reason, diag["meta"].(map[string]interface{})["reason"])

	assert.NoFileExists(t, filepath.Join(e.paths.StateRoot, "monitoring", "baseline_p_up.json"))
	require.NotNil(t, res.Ledger)
	assert.Equal(t, 0, res.Ledger.Enqueued)
	assert.Equal(t, 0, res.Ledger.Pending)
}

func TestRun_MonitoringFailureDegrades(t *testing.T) {
	e := newEnv(t)

	// 9개 예측 중 1개만 남김 → coverage 0.1111 < 0.95
	path := filepath.Join(e.fixture.InputDir, forecast.PredictionsDir, testDate+".ndjson")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	first := strings.SplitN(string(data), "\n", 2)[0] + "\n"
	require.NoError(t, os.WriteFile(path, []byte(first), 0o644))

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)

	assertLateGateDegrade(t, e, res, contracts.StateMonitoringFail, contracts.StageMonitoring)
	assert.True(t, strings.HasPrefix(res.Failure.Reason, monitoring.ReasonCoverageBelowMin), res.Failure.Reason)
	assert.Equal(t, contracts.CheckFail, res.Diagnostics.Checks[monitoring.CheckCoverage].Status)
	// S3 완료 → 라우터 상태는 저장
	assert.FileExists(t, filepath.Join(e.paths.StateRoot, "router", testDate+".json"))
}

func TestRun_SecrecyFailureDegrades(t *testing.T) {
	e := newEnv(t)

	leak := filepath.Join(e.fixture.InputDir, "export", "champion.pt")
	require.NoError(t, os.MkdirAll(filepath.Dir(leak), 0o755))
	require.NoError(t, os.WriteFile(leak, []byte("weights"), 0o600))

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)

	assertLateGateDegrade(t, e, res, contracts.StateSecrecyFail, contracts.StageGates)
	assert.True(t, strings.HasPrefix(res.Failure.Reason, audit.ReasonHardBlock), res.Failure.Reason)
	assert.Contains(t, res.Failure.Reason, "champion.pt")
	assert.Contains(t, res.CompletedStages, contracts.StageMonitoring)
}

func TestRun_SchemaFailureDegrades(t *testing.T) {
	e := newEnv(t)

	// CI 모드는 가중치를 읽지 않으므로 카드 로드는 통과, 스키마에서 거부
	path := filepath.Join(e.fixture.InputDir, "policies", "models", "champion.json")
	var card map[string]interface{}
	require.NoError(t, json.Unmarshal(mustRead(t, path), &card))
	card["weights_sha256"] = "not-a-digest"
	data, err := json.Marshal(card)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI})
	require.NoError(t, err)

	assertLateGateDegrade(t, e, res, contracts.StateSchemaFail, contracts.StageGates)
	assert.Contains(t, res.Failure.Reason, "artifact="+audit.SchemaModelCard)
	assert.Equal(t, contracts.CheckPass, res.Diagnostics.Checks[audit.CheckSecrecy].Status)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestRun_GateFailureSkipsInference(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, "bars", "CCC.json")))

	spy := &spySource{}
	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI}, withSpy(spy))
	require.NoError(t, err)

	assert.Equal(t, 0, spy.calls)
	assert.Equal(t, contracts.StateDegraded, res.State)
	assert.Equal(t, []contracts.Stage{contracts.StagePublish}, res.CompletedStages)
	assert.Empty(t, res.LastGoodDateUsed)
	assert.Contains(t, res.Diagnostics.Warnings, publish.WarningNoLastGood)

	hot := readDoc(t, filepath.Join(e.paths.PublishRoot, testDate, contracts.FileHotset))
	assert.Equal(t, []interface{}{}, hot["hotset"])
	assert.Nil(t, hot["meta"].(map[string]interface{})["last_good_date_used"])

	ptr, err := publish.NewLastGoodStore(e.paths.StateRoot, 30).Load()
	require.NoError(t, err)
	assert.Nil(t, ptr.CurrentLastGood)
}

func TestRun_MissingPredictionsDegrades(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, forecast.PredictionsDir, testDate+".ndjson")))

	spy := &spySource{}
	res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: contracts.ModeCI, DryRun: true}, withSpy(spy))
	require.NoError(t, err)

	assert.Equal(t, 1, spy.calls)
	require.NotNil(t, res.Failure)
	assert.Equal(t, contracts.StateMissingPredictions, res.Failure.State)
	assert.Equal(t, contracts.StageInference, res.Failure.Stage)
	assert.Equal(t, []contracts.Stage{contracts.StageDataQuality, contracts.StageUniverse, contracts.StageFeatures}, res.CompletedStages)
}

func TestRun_DeterministicHashes(t *testing.T) {
	e := newEnv(t)
	cfg := brain.RunConfig{Date: testDate, Mode: contracts.ModeCI, DryRun: true}

	a, err := e.run(t, cfg)
	require.NoError(t, err)
	b, err := e.run(t, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Hashes, b.Hashes)
	for key, h := range a.Hashes.Map() {
		assert.True(t, strings.HasPrefix(h, "sha256:"), key)
	}
}

func TestRun_FatalAbortsBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, e *env)
		mode  contracts.Mode
		want  contracts.FatalCode
	}{
		{
			name: "tampered policy",
			setup: func(t *testing.T, e *env) {
				path := filepath.Join(e.fixture.InputDir, "policies", "root.json")
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data = []byte(strings.Replace(string(data), `"eod-files"`, `"other-feed"`, 1))
				require.NoError(t, os.WriteFile(path, data, 0o644))
			},
			mode: contracts.ModeCI,
			want: contracts.FatalPolicyHashMismatch,
		},
		{
			name: "missing universe",
			setup: func(t *testing.T, e *env) {
				require.NoError(t, os.Remove(filepath.Join(e.fixture.InputDir, "universe", "universe.json")))
			},
			mode: contracts.ModeCI,
			want: contracts.FatalUniverseMissing,
		},
		{
			name: "CI with weights credential",
			setup: func(t *testing.T, e *env) {
				e.paths.WeightsDir = filepath.Join(e.root, "vault")
			},
			mode: contracts.ModeCI,
			want: contracts.FatalModeContradiction,
		},
		{
			name:  "LOCAL without weights credential",
			setup: func(t *testing.T, e *env) {},
			mode:  contracts.ModeLocal,
			want:  contracts.FatalModeContradiction,
		},
		{
			name: "weights hash mismatch",
			setup: func(t *testing.T, e *env) {
				e.paths.WeightsDir = filepath.Join(e.root, "vault")
				require.NoError(t, os.MkdirAll(e.paths.WeightsDir, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(e.paths.WeightsDir, e.fixture.Card.WeightsFile), []byte(`{"horizons":{}}`), 0o600))
			},
			mode: contracts.ModeLocal,
			want: contracts.FatalWeightsHashMismatch,
		},
		{
			name: "primary horizon not scored by the card",
			setup: func(t *testing.T, e *env) {
				path := filepath.Join(e.fixture.InputDir, "policies", "models", "champion.json")
				var card map[string]interface{}
				require.NoError(t, json.Unmarshal(mustRead(t, path), &card))
				card["horizons"] = []int{1, 20}
				data, err := json.Marshal(card)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, data, 0o644))
			},
			mode: contracts.ModeCI,
			want: contracts.FatalPolicyInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			tt.setup(t, e)

			res, err := e.run(t, brain.RunConfig{Date: testDate, Mode: tt.mode})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.want, fatalCode(t, err))

			_, statErr := os.Stat(e.paths.PublishRoot)
			assert.True(t, os.IsNotExist(statErr))
			_, statErr = os.Stat(e.paths.StateRoot)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestRun_UnresolvableDateIsFatal(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, brain.RunConfig{Date: "2031-01-02", Mode: contracts.ModeCI})
	require.Error(t, err)
	assert.Equal(t, contracts.FatalCalendarUnresolved, fatalCode(t, err))
}

func TestDiagnosticsPath(t *testing.T) {
	assert.Equal(t, filepath.Join("ledger", "diagnostics", "2026", "10", "2026-10-14.json"),
		brain.DiagnosticsPath("ledger", "2026-10-14"))
}
