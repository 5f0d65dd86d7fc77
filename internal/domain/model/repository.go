package model

import "time"

// Repository represents a GitHub repository mirrored by the ingestor.
// Repositories are discovered at startup and never deleted; a repository
// that disappears from the provider stays active until manually disabled.
type Repository struct {
	ID            int64
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	IsActive      bool
	LastCheckedAt time.Time // Zero until the first ingestion pass touches it.
	CreatedAt     time.Time
}
