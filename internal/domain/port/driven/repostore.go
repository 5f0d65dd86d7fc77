package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// RepoStore defines the driven port for repository persistence.
// Upsert keys on full_name: unseen repositories are inserted active, seen
// ones have default_branch refreshed and are re-marked active. Repositories
// are never deleted.
type RepoStore interface {
	Upsert(ctx context.Context, repo model.Repository) error
	GetByFullName(ctx context.Context, fullName string) (*model.Repository, error)
	// ListActive returns active repositories in insertion order, the
	// stable key the shard selector slices on.
	ListActive(ctx context.Context) ([]model.Repository, error)
	SetLastChecked(ctx context.Context, id int64, checkedAt time.Time) error
}
