package model

import "time"

// Run status values as reported by the GitHub Actions API.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
)

// Run conclusion values. The provider reports more (neutral, skipped,
// timed_out, ...); only these two drive behavior here.
const (
	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
)

// WorkflowRun represents one execution of a CI pipeline for a repository at
// a commit. The provider's run ID is globally unique and serves as the
// primary key. A run is mutable until its status reaches "completed"; every
// sighting overwrites status, conclusion, timing, and URL last-writer-wins.
type WorkflowRun struct {
	ID           int64 // GitHub run ID, used as primary key.
	RepoID       int64
	WorkflowName string
	HeadBranch   string
	HeadSHA      string
	Event        string
	Status       string
	Conclusion   string    // Empty while the run has not concluded.
	StartedAt    time.Time // run_started_at, falling back to created_at.
	CompletedAt  time.Time // Zero unless status is "completed".
	DurationSecs *float64  // Defined only when completed with a known start.
	URL          string
	Actor        string
}

// IsFailure reports whether the run concluded in failure.
func (r WorkflowRun) IsFailure() bool {
	return r.Conclusion == ConclusionFailure
}
