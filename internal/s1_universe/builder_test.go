package s1_universe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

func testConfig(strategy string) Config {
	return Config{
		Strategy:         strategy,
		FallbackGapRatio: 0.05,
		MaxGapRatio:      0.3,
		MaxUniverseSize:  100,
		MinHistoryDays:   3,
	}
}

func ev(date string, action contracts.UniverseEventAction, symbol string) contracts.UniverseEvent {
	return contracts.UniverseEvent{Date: date, Action: action, Symbol: symbol}
}

func symbolsOf(u *contracts.Universe) []string {
	out := make([]string, 0, len(u.Rows))
	for _, r := range u.Rows {
		out = append(out, r.Symbol)
	}
	return out
}

func TestBuilder_Reconstruct_NoEvents(t *testing.T) {
	b := NewBuilder(testConfig(policy.FallbackHybrid))
	u := b.Reconstruct("2026-10-15", []string{"A", "B", "C"}, &EventLog{})

	assert.False(t, u.CircuitOpen)
	assert.Equal(t, []string{"A", "B", "C"}, symbolsOf(u))
	assert.Equal(t, contracts.SourceStaticBaseline, u.Rows[0].Source)
	assert.Contains(t, u.Warnings, WarningEventsMissing)
}

func TestBuilder_Reconstruct_PointInTime(t *testing.T) {
	b := NewBuilder(testConfig(policy.FallbackHybrid))
	log := &EventLog{Found: true, Events: []contracts.UniverseEvent{
		ev("2026-01-02", contracts.UniverseAdd, "A"),
		ev("2026-01-02", contracts.UniverseAdd, "B"),
		ev("2026-01-02", contracts.UniverseAdd, "C"),
		ev("2026-06-01", contracts.UniverseDelist, "C"),
		ev("2026-12-01", contracts.UniverseAdd, "D"), // future, must not leak
		ev("2026-03-01", contracts.UniverseRemove, "B"),
		ev("2026-04-01", contracts.UniverseAdd, "B"),
	}}

	u := b.Reconstruct("2026-10-15", []string{"A", "B", "C"}, log)

	assert.False(t, u.CircuitOpen)
	assert.Equal(t, []string{"A", "B", "C"}, symbolsOf(u))
	assert.True(t, u.Rows[2].DelistedFlag)
	assert.Equal(t, 0.0, u.GapRatio)
	assert.Equal(t, []string{"A", "B"}, Symbols(u))
	assert.Equal(t, FallbackNone, u.Fallback)

	// 과거 시점에는 B가 제거된 상태
	past := b.Reconstruct("2026-03-15", []string{"A", "B", "C"}, log)
	assert.Equal(t, []string{"A", "C"}, symbolsOf(past))
}

func TestBuilder_Reconstruct_Fallback(t *testing.T) {
	baseline := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	events := func(n int) *EventLog {
		log := &EventLog{Found: true}
		for _, s := range baseline[:n] {
			log.Events = append(log.Events, ev("2026-01-02", contracts.UniverseAdd, s))
		}
		return log
	}

	tests := []struct {
		name          string
		strategy      string
		reconstructed int
		wantOpen      bool
		wantFallback  string
	}{
		{"small gap no fallback", policy.FallbackCircuitOpen, 10, false, FallbackNone},
		{"restrict", policy.FallbackRestrict, 2, false, policy.FallbackRestrict},
		{"hybrid small gap restricts", policy.FallbackHybrid, 8, false, policy.FallbackHybrid},
		{"hybrid large gap opens", policy.FallbackHybrid, 5, true, policy.FallbackHybrid},
		{"circuit open", policy.FallbackCircuitOpen, 9, true, policy.FallbackCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewBuilder(testConfig(tt.strategy)).Reconstruct("2026-10-15", baseline, events(tt.reconstructed))
			assert.Equal(t, tt.wantOpen, u.CircuitOpen)
			assert.Equal(t, tt.wantFallback, u.Fallback)
			assert.Len(t, u.Rows, tt.reconstructed)
			if tt.wantOpen {
				assert.True(t, strings.HasPrefix(u.Reason, ReasonGapCircuitOpen), u.Reason)
			}
		})
	}
}

func TestBuilder_Gates(t *testing.T) {
	empty := NewBuilder(testConfig(policy.FallbackHybrid)).Reconstruct("2026-10-15", nil, &EventLog{})
	assert.True(t, empty.CircuitOpen)
	assert.Equal(t, ReasonEmpty, empty.Reason)

	cfg := testConfig(policy.FallbackHybrid)
	cfg.MaxUniverseSize = 2
	big := NewBuilder(cfg).Reconstruct("2026-10-15", []string{"A", "B", "C"}, &EventLog{})
	assert.True(t, big.CircuitOpen)
	assert.Equal(t, "UNIVERSE_EXCEEDS_FEASIBILITY size=3 max=2", big.Reason)
}

func TestBuilder_Annotate(t *testing.T) {
	b := NewBuilder(testConfig(policy.FallbackHybrid))
	u := b.Reconstruct("2026-10-15", []string{"A", "B"}, &EventLog{})

	b.Annotate(u, map[string]*contracts.BarSeries{
		"A": {Symbol: "A", Bars: make([]contracts.Bar, 5)},
		"B": {Symbol: "B", Bars: make([]contracts.Bar, 2)},
	})
	assert.False(t, u.CircuitOpen)
	assert.Equal(t, []string{"A"}, u.Tradable())
	assert.True(t, u.Rows[1].ColdStart)

	b.Annotate(u, map[string]*contracts.BarSeries{})
	assert.True(t, u.CircuitOpen)
	assert.True(t, strings.HasPrefix(u.Reason, ReasonEmpty))
}

func TestLoadBaselineAndEvents(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadBaseline(dir)
	assert.True(t, contracts.IsFatal(err))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "universe"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "universe", "universe.json"),
		[]byte(`{"symbols":["C","A"," B ","A",""]}`), 0o644))

	symbols, err := LoadBaseline(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, symbols)

	log, err := LoadEvents(dir)
	require.NoError(t, err)
	assert.False(t, log.Found)

	lines := strings.Join([]string{
		`{"date":"2026-01-02","action":"add","symbol":"A"}`,
		`not json`,
		``,
		`{"date":"2026-01-02","action":"split","symbol":"A"}`,
		`{"date":"2026-01-03","action":"delist","symbol":""}`,
		`{"date":"2026-01-04","action":"remove","symbol":"A"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "universe", "events.ndjson"), []byte(lines), 0o644))

	log, err = LoadEvents(dir)
	require.NoError(t, err)
	assert.True(t, log.Found)
	assert.Len(t, log.Events, 2)
	assert.Len(t, log.Warnings, 3)
}

func TestSnapshotStore(t *testing.T) {
	store := NewSnapshotStore(t.TempDir())
	u := &contracts.Universe{AsOfDate: "2026-10-15", Rows: []contracts.PITUniverseRow{{Symbol: "A"}}}
	require.NoError(t, store.Save(u))

	got, err := store.Load("2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, u.Rows, got.Rows)
}
