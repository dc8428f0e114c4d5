// Package scheduler runs pipeline jobs on cron schedules with bounded retries.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithLocation evaluates schedules in loc (the calendar timezone)
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithRetry sets the retry budget for failed runs
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// WithClock overrides wall-clock time for results
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	logger   *logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	history map[string]*JobHistory

	// Retry configuration
	maxRetries int
	retryDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler
func New(log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		location:   time.Local,
		logger:     log.WithField("module", "scheduler"),
		now:        time.Now,
		jobs:       make(map[string]Job),
		history:    make(map[string]*JobHistory),
		maxRetries: 2,
		retryDelay: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{log: s.logger}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(s.location),
		cron.WithLogger(cl),
		// 이전 실행이 끝나지 않았으면 이번 tick은 건너뜀
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// AddJob adds a job to the scheduler
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	_, err := s.cron.AddFunc(job.Schedule(), func() {
		_, _ = s.execute(s.ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
		"timezone": s.location.String(),
	}).Info("Job added to scheduler")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels in-flight retries and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Next returns the next activation time per job
func (s *Scheduler) Next() map[string]time.Time {
	out := make(map[string]time.Time)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, job := range s.jobs {
		sched, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(job.Schedule())
		if err != nil {
			continue
		}
		out[name] = sched.Next(s.now().In(s.location))
	}
	return out
}

// RunJob runs a job immediately and synchronously (outside of schedule)
func (s *Scheduler) RunJob(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}
	return s.execute(ctx, job)
}

// execute runs a job with retry logic. Fatal pipeline errors are not retried:
// the inputs will not change between attempts.
func (s *Scheduler) execute(ctx context.Context, job Job) (JobResult, error) {
	name := job.Name()
	result := JobResult{JobName: name, StartTime: s.now()}
	log := s.logger.WithField("job", name)
	log.Info("Job started")

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts = attempt + 1
		lastErr = job.Run(ctx)
		if lastErr == nil || contracts.IsFatal(lastErr) || ctx.Err() != nil {
			break
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		}).Warn("Job execution failed, retrying")

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
		}
	}

	result.EndTime = s.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = lastErr == nil
	if lastErr != nil {
		result.Error = lastErr.Error()
	}

	s.mu.Lock()
	if h, ok := s.history[name]; ok {
		h.AddResult(result)
	}
	s.mu.Unlock()

	fields := map[string]interface{}{
		"job":      name,
		"duration": result.Duration.String(),
		"attempts": result.Attempts,
	}
	if result.Success {
		log.WithFields(fields).Info("Job completed successfully")
	} else {
		log.WithFields(fields).WithError(lastErr).Error("Job failed")
	}
	return result, lastErr
}

// GetJobHistory returns the history for a specific job
func (s *Scheduler) GetJobHistory(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return h, nil
}

// GetAllJobs returns all registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.history))
	for name, h := range s.history {
		stats[name] = h.Stats(name, s.jobs[name].Schedule())
	}
	return stats
}

// cronLogger routes robfig/cron's own logging through our logger
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(kv(keysAndValues)).Debug("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithFields(kv(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kv(pairs []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return out
}
