package outcome

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/internal/s0_data"
)

// weekdayCalendar offsets by n weekdays (test double)
type weekdayCalendar struct{}

func (weekdayCalendar) Offset(date string, n int) (string, error) {
	dates := []string{"2026-10-12", "2026-10-13", "2026-10-14", "2026-10-15", "2026-10-16", "2026-10-19", "2026-10-20"}
	for i, d := range dates {
		if d == date && i+n < len(dates) {
			return dates[i+n], nil
		}
	}
	return "", os.ErrNotExist
}

func writeBars(t *testing.T, dir, symbol string, closes map[string]float64) {
	t.Helper()
	bars := make([]contracts.Bar, 0, len(closes))
	for d, c := range closes {
		bars = append(bars, contracts.Bar{Date: d, Open: c, High: c, Low: c, Close: c, Volume: 1000})
	}
	data, err := json.Marshal(bars)
	require.NoError(t, err)
	p := filepath.Join(dir, "bars", symbol+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func prediction(symbol, asof string, horizon int, pUp float64) contracts.PredictionRow {
	return contracts.PredictionRow{
		PredictionID: canonical.HashParts(symbol, asof, string(rune('0'+horizon))),
		Symbol:       symbol,
		AsOfDate:     asof,
		HorizonDays:  horizon,
		PUp:          pUp,
		ModelID:      "champion-v1",
	}
}

func TestMerge_Idempotent(t *testing.T) {
	a := contracts.PendingOutcome{PredictionID: "p1", Symbol: "A", OutcomeDate: "2026-10-16"}
	b := contracts.PendingOutcome{PredictionID: "p2", Symbol: "B", OutcomeDate: "2026-10-15"}
	changed := a
	changed.PUp = 0.9

	merged, added := Merge([]contracts.PendingOutcome{a}, []contracts.PendingOutcome{b, changed, b})
	assert.Equal(t, 1, added)
	require.Len(t, merged, 2)
	assert.Equal(t, "p2", merged[0].PredictionID)
	assert.Equal(t, 0.0, merged[1].PUp, "existing row is never replaced")

	again, added := Merge(merged, []contracts.PendingOutcome{a, b})
	assert.Equal(t, 0, added)
	assert.Equal(t, merged, again)
}

func TestPendingQueue_RoundTrip(t *testing.T) {
	q := NewPendingQueue(t.TempDir())
	rows, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, rows)

	in := []contracts.PendingOutcome{
		{PredictionID: "p2", Symbol: "B", AsOfDate: "2026-10-12", HorizonDays: 1, OutcomeDate: "2026-10-13"},
		{PredictionID: "p1", Symbol: "A", AsOfDate: "2026-10-12", HorizonDays: 1, OutcomeDate: "2026-10-13"},
	}
	require.NoError(t, q.Save(in))
	rows, err = q.Load()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].Symbol)
}

func TestTracker_Mature(t *testing.T) {
	dir := t.TempDir()
	writeBars(t, dir, "A", map[string]float64{"2026-10-12": 100, "2026-10-13": 101})
	writeBars(t, dir, "B", map[string]float64{"2026-10-12": 100, "2026-10-13": 99})

	tr := NewTracker(dir, 5, zerolog.Nop())
	pending := []contracts.PendingOutcome{
		{PredictionID: "pa", Symbol: "A", AsOfDate: "2026-10-12", HorizonDays: 1, OutcomeDate: "2026-10-13", PUp: 0.7},
		{PredictionID: "pb", Symbol: "B", AsOfDate: "2026-10-12", HorizonDays: 1, OutcomeDate: "2026-10-13", PUp: 0.7},
		{PredictionID: "pc", Symbol: "C", AsOfDate: "2026-10-12", HorizonDays: 1, OutcomeDate: "2026-10-13"},
		{PredictionID: "pd", Symbol: "A", AsOfDate: "2026-10-13", HorizonDays: 5, OutcomeDate: "2026-10-20"},
		{PredictionID: "pe", Symbol: "C", AsOfDate: "2026-09-01", HorizonDays: 1, OutcomeDate: "2026-09-02"},
	}

	res, err := tr.Mature("2026-10-15", 2, pending)
	require.NoError(t, err)
	require.Len(t, res.Matured, 2)
	assert.Equal(t, 1, res.Matured[0].YTrue)
	assert.Equal(t, 0, res.Matured[1].YTrue)
	assert.Equal(t, 2, res.Matured[0].Revision)
	assert.Equal(t, "2026-10-15", res.Matured[0].MaturedOn)
	assert.Equal(t, OutcomeID("pa", "2026-10-13"), res.Matured[0].OutcomeID)

	// C 가격 없음: 최근 건은 대기 유지, 오래된 건은 만료
	require.Len(t, res.Pending, 2)
	assert.Equal(t, "pc", res.Pending[0].PredictionID)
	assert.Equal(t, "pd", res.Pending[1].PredictionID)
	assert.Equal(t, 1, res.Expired)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], WarningExpired)
}

func TestStream_AppendDedup(t *testing.T) {
	s := NewStream(t.TempDir())
	o := contracts.MaturedOutcome{OutcomeID: "o1", OutcomeDate: "2026-10-13", StartClose: 1, EndClose: 2, YTrue: 1}
	o2 := contracts.MaturedOutcome{OutcomeID: "o2", OutcomeDate: "2026-11-02", StartClose: 1, EndClose: 2, YTrue: 1}

	n, err := s.Append(0, []contracts.MaturedOutcome{o, o2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 같은 outcome_id 는 다른 리비전에도 다시 쓰지 않음
	n, err = s.Append(1, []contracts.MaturedOutcome{o, o2})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows, err := s.Load(0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "o1", rows[0].OutcomeID)

	rows, err = s.Load(1)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = os.Stat(filepath.Join(s.dir, "rev-0000", "2026", "11.ndjson"))
	assert.NoError(t, err)
}

func TestDetectRevision(t *testing.T) {
	dir := t.TempDir()
	writeBars(t, dir, "A", map[string]float64{"2026-10-12": 100, "2026-10-13": 101})

	hash, ok, err := s0_data.PartitionHash(dir, "bars/A.json", "2026-10-12")
	require.NoError(t, err)
	require.True(t, ok)
	manifests := []*contracts.BarsManifest{{
		AsOfDate:   "2026-10-12",
		Partitions: []string{"bars/A.json"},
		Hashes:     map[string]string{"bars/A.json": hash},
	}}

	store := NewRevisionStore(t.TempDir())
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Revision)

	// 새 날짜 데이터 추가는 정정이 아님
	writeBars(t, dir, "A", map[string]float64{"2026-10-12": 100, "2026-10-13": 101, "2026-10-14": 103})
	st, found, err := DetectRevision(dir, st, manifests)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, 0, st.Revision)

	// 과거 종가 정정 → 리비전 증가 (1회)
	writeBars(t, dir, "A", map[string]float64{"2026-10-12": 100.5, "2026-10-13": 101, "2026-10-14": 103})
	st, found, err = DetectRevision(dir, st, manifests)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, st.Revision)
	assert.Equal(t, hash, found[0].OldHash)
	assert.Equal(t, 1, found[0].Revision)

	// 같은 정정은 다시 세지 않음 (단조 증가, 중복 없음)
	st, found, err = DetectRevision(dir, st, manifests)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, 1, st.Revision)
	assert.Len(t, st.Corrections, 1)

	require.NoError(t, store.Save(st))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Revision)
}

func TestLedger_UpdateIdempotent(t *testing.T) {
	input := t.TempDir()
	ledgerRoot := t.TempDir()
	writeBars(t, input, "A", map[string]float64{"2026-10-12": 100, "2026-10-13": 101, "2026-10-14": 102})

	l := NewLedger(input, ledgerRoot, weekdayCalendar{}, policy.Outcome{MaxPendingAgeDays: 90}, zerolog.Nop())
	preds := []contracts.PredictionRow{
		prediction("A", "2026-10-12", 1, 0.6),
		prediction("A", "2026-10-12", 5, 0.6),
	}

	res, err := l.Update("2026-10-12", preds, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enqueued)
	assert.Equal(t, 0, res.Appended)
	assert.Equal(t, 2, res.Pending)

	res, err = l.Update("2026-10-14", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Appended)
	assert.Equal(t, 1, res.Pending)

	// 같은 날짜 재실행 + 동일 예측 재투입 → 중복 없음
	for i := 0; i < 2; i++ {
		res, err = l.Update("2026-10-14", preds, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Appended)
	}

	outcomes, err := l.Outcomes(0)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "2026-10-13", outcomes[0].OutcomeDate)
	assert.Equal(t, 1, outcomes[0].YTrue)

	rev, err := l.CurrentRevision()
	require.NoError(t, err)
	assert.Equal(t, 0, rev)
}
