// Package driven defines the driven ports (outbound interfaces) of the
// ingestion core: the CI provider client, the entity stores, the log blob
// store, and the alert notifier.
package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// CIClient defines the driven port for the CI provider's REST API. All
// methods are pure I/O: no retries, no local state. A non-2xx provider
// response surfaces as an error and is handled by the caller's
// try-again-next-tick policy.
type CIClient interface {
	// ListRepositories returns every repository the credential can see.
	// Pagination is followed to exhaustion.
	ListRepositories(ctx context.Context) ([]model.Repository, error)

	// ListWorkflowRuns returns the most recent workflow runs for a
	// repository, at most perPage of them. History beyond the provider's
	// page limit is not backfilled.
	ListWorkflowRuns(ctx context.Context, owner, name string, perPage int) ([]model.WorkflowRun, error)

	// ListWorkflowJobs returns all jobs for a run, each with its ordered
	// steps embedded. Pagination is followed to exhaustion.
	ListWorkflowJobs(ctx context.Context, owner, name string, runID int64) ([]model.WorkflowJob, error)

	// DownloadJobLog fetches the raw log for a job, following the
	// provider's signed redirect URL transparently.
	DownloadJobLog(ctx context.Context, owner, name string, jobID int64) ([]byte, error)
}
