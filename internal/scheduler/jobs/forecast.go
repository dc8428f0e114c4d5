package jobs

import (
	"context"
	"fmt"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// Runner is the part of the orchestrator a job needs
type Runner interface {
	Run(ctx context.Context, cfg brain.RunConfig) (*brain.RunResult, error)
}

// ForecastJob runs the daily pipeline for the current as-of date
// Schedule: weekdays after the close (configurable)
type ForecastJob struct {
	runner   Runner
	mode     contracts.Mode
	schedule string
	logger   *logger.Logger

	last *brain.RunResult
}

// NewForecastJob creates a new forecast job
func NewForecastJob(runner Runner, mode contracts.Mode, schedule string, log *logger.Logger) *ForecastJob {
	return &ForecastJob{
		runner:   runner,
		mode:     mode,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ForecastJob) Name() string {
	return "forecast_pipeline"
}

// Schedule returns the cron schedule (with seconds)
func (j *ForecastJob) Schedule() string {
	return j.schedule
}

// Last returns the result of the most recent completed run
func (j *ForecastJob) Last() *brain.RunResult {
	return j.last
}

// Run executes the pipeline. A degraded run is a success: the bundle was
// still published. Only fatal or infrastructure errors fail the job.
func (j *ForecastJob) Run(ctx context.Context) error {
	res, err := j.runner.Run(ctx, brain.RunConfig{Mode: j.mode})
	if err != nil {
		return fmt.Errorf("forecast pipeline: %w", err)
	}
	j.last = res

	log := j.logger.WithFields(map[string]interface{}{
		"asof":   res.AsOfDate,
		"state":  string(res.State),
		"run_id": res.RunID,
	})
	if res.Failure != nil {
		log.WithField("reason", res.Failure.Reason).Warn("Scheduled run degraded")
		return nil
	}
	log.Info("Scheduled run published")
	return nil
}
