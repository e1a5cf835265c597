package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/bankstar/internal/ingest"
	"github.com/wonny/bankstar/pkg/logger"
)

// DropIngestJob loads the CSV drop directory through the raw write path
type DropIngestJob struct {
	loader     *ingest.Loader
	dropDir    string
	archiveDir string
	schedule   string
	logger     *logger.Logger
}

// NewDropIngestJob creates a new drop ingest job.
// With an archive dir, loaded files move there so the next run sees only new drops.
func NewDropIngestJob(loader *ingest.Loader, dropDir, archiveDir, schedule string, log *logger.Logger) *DropIngestJob {
	return &DropIngestJob{
		loader:     loader,
		dropDir:    dropDir,
		archiveDir: archiveDir,
		schedule:   schedule,
		logger:     log,
	}
}

// Name returns the job name
func (j *DropIngestJob) Name() string {
	return "drop_ingest"
}

// Schedule returns the cron schedule
func (j *DropIngestJob) Schedule() string {
	return j.schedule
}

// Run ingests every drop file currently in the directory
func (j *DropIngestJob) Run(ctx context.Context) error {
	files, err := ingest.Discover(j.dropDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		j.logger.WithField("dir", j.dropDir).Debug("No drop files")
		return nil
	}

	rep, err := j.loader.Load(ctx, files)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", j.dropDir, err)
	}

	if j.archiveDir != "" && len(rep.Processed) > 0 {
		if err := ingest.MoveProcessed(j.archiveDir, rep.RunID, rep.Processed); err != nil {
			return fmt.Errorf("archive drops: %w", err)
		}
	}
	return nil
}
