package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// RunFilter narrows run queries. Zero values mean "no constraint".
type RunFilter struct {
	RepoFullName string
	Branch       string
	Since        time.Time // Runs with started_at >= Since.
	Limit        int
}

// RunStore defines the driven port for workflow run persistence. The
// provider's run ID is the primary key; Get returns nil, nil when the run
// has not been seen before.
type RunStore interface {
	Get(ctx context.Context, id int64) (*model.WorkflowRun, error)
	Insert(ctx context.Context, run model.WorkflowRun) error
	// Update overwrites the mutable fields (status, conclusion, timing,
	// url) of an existing run, last-writer-wins.
	Update(ctx context.Context, run model.WorkflowRun) error
	// List returns runs matching the filter, newest started_at first.
	List(ctx context.Context, filter RunFilter) ([]model.WorkflowRun, error)
}
