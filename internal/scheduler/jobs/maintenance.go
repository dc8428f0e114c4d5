package jobs

import (
	"context"
	"time"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// StagingCleanupJob removes staging directories abandoned under the publish root
type StagingCleanupJob struct {
	root      string
	olderThan time.Duration
	now       func() time.Time
	logger    *logger.Logger
}

// NewStagingCleanupJob creates a new staging cleanup job
func NewStagingCleanupJob(publishRoot string, olderThan time.Duration, log *logger.Logger) *StagingCleanupJob {
	return &StagingCleanupJob{
		root:      publishRoot,
		olderThan: olderThan,
		now:       time.Now,
		logger:    log,
	}
}

// Name returns the job name
func (j *StagingCleanupJob) Name() string {
	return "staging_cleanup"
}

// Schedule returns the cron schedule (hourly)
func (j *StagingCleanupJob) Schedule() string {
	return "0 15 * * * *"
}

// Run executes the cleanup
func (j *StagingCleanupJob) Run(ctx context.Context) error {
	removed, err := atomicio.SweepStale(j.root, j.olderThan, j.now())
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		j.logger.WithField("removed", len(removed)).Info("Staging cleanup completed")
	}
	return nil
}
