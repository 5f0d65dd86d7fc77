package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// JobStore defines the driven port for workflow job and step persistence.
// The provider's job ID is the primary key. Steps have no natural key of
// their own, so the job upsert replaces them wholesale in the same
// transaction: re-ingesting a job can never duplicate its steps.
type JobStore interface {
	// UpsertJob inserts or overwrites the job row and replaces its steps
	// atomically.
	UpsertJob(ctx context.Context, job model.WorkflowJob) error
	// HasJobsForRun reports whether any job has been recorded for the run.
	// The ingestion engine uses this to detect a first-time failure
	// sighting on a run that was previously observed in progress.
	HasJobsForRun(ctx context.Context, runID int64) (bool, error)
	// GetByRun returns the run's jobs with their steps, ordered by job ID.
	GetByRun(ctx context.Context, runID int64) ([]model.WorkflowJob, error)
}
