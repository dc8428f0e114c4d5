package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/scheduler"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

type stubJob struct {
	name  string
	errs  []error
	calls int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return "0 30 18 * * 1-5" }

func (j *stubJob) Run(ctx context.Context) error {
	j.calls++
	if j.calls <= len(j.errs) {
		return j.errs[j.calls-1]
	}
	return nil
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, ny) }
	return scheduler.New(logger.Nop(),
		scheduler.WithLocation(ny),
		scheduler.WithRetry(2, time.Millisecond),
		scheduler.WithClock(clock),
	)
}

func TestScheduler_RetriesTransientErrors(t *testing.T) {
	s := newScheduler(t)
	job := &stubJob{name: "flaky", errs: []error{errors.New("disk busy")}}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, job.calls)

	h, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	require.NotNil(t, h.Latest())
	assert.True(t, h.Latest().Success)
}

func TestScheduler_DoesNotRetryFatal(t *testing.T) {
	s := newScheduler(t)
	fatal := contracts.NewFatal(contracts.FatalUniverseMissing, nil, "universe baseline missing")
	job := &stubJob{name: "fatal", errs: []error{fatal, nil}}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob(context.Background(), "fatal")
	require.Error(t, err)
	assert.True(t, contracts.IsFatal(err))
	assert.False(t, res.Success)
	assert.Equal(t, 1, job.calls)

	stats := s.GetJobStats()["fatal"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestScheduler_GivesUpAfterRetryBudget(t *testing.T) {
	s := newScheduler(t)
	boom := errors.New("boom")
	job := &stubJob{name: "broken", errs: []error{boom, boom, boom, boom}}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob(context.Background(), "broken")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "boom", res.Error)
}

func TestScheduler_RejectsDuplicatesAndBadSchedules(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.AddJob(&stubJob{name: "a"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a"}))

	_, err := s.RunJob(context.Background(), "missing")
	assert.Error(t, err)

	assert.Equal(t, []string{"a"}, s.GetAllJobs())
}

func TestScheduler_NextUsesLocation(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.AddJob(&stubJob{name: "daily"}))

	next := s.Next()["daily"]
	assert.Equal(t, 18, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, 14, next.Day())
}

func TestJobHistory_KeepsLastHundred(t *testing.T) {
	h := &scheduler.JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(scheduler.JobResult{JobName: "x", Success: i%2 == 0})
	}
	assert.Len(t, h.Results, 100)
	stats := h.Stats("x", "@daily")
	assert.Equal(t, 100, stats.TotalRuns)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}
