package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job once
	Run(ctx context.Context) error

	// Schedule returns the cron expression (with seconds)
	// Examples: "0 30 18 * * 1-5" (weekdays 18:30), "@hourly"
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit bounds the per-job result history
const historyLimit = 100

// JobHistory stores the most recent results of one job
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, keeping the last historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns the most recent result, or nil
func (h *JobHistory) Latest() *JobResult {
	if len(h.Results) == 0 {
		return nil
	}
	r := h.Results[len(h.Results)-1]
	return &r
}

// Stats summarizes the history
func (h *JobHistory) Stats(name, schedule string) JobStats {
	stats := JobStats{JobName: name, Schedule: schedule, TotalRuns: len(h.Results)}
	for i := range h.Results {
		r := h.Results[i]
		if r.Success {
			stats.SuccessCount++
			stats.LastSuccess = &h.Results[i].StartTime
		} else {
			stats.FailureCount++
			stats.LastFailure = &h.Results[i].StartTime
		}
		stats.LastRun = &h.Results[i].StartTime
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalRuns)
	}
	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}
