package model

import "time"

// WorkflowJob represents one execution unit within a run (e.g. one matrix
// leg). The provider's job ID is the primary key; re-ingestion overwrites in
// place, never duplicates.
type WorkflowJob struct {
	ID           int64 // GitHub job ID, used as primary key.
	RunID        int64
	Name         string
	Status       string
	Conclusion   string
	StartedAt    time.Time
	CompletedAt  time.Time
	DurationSecs *float64
	Steps        []WorkflowStep
}

// WorkflowStep is the smallest reported unit of work within a job, ordered
// by Number. Steps are replaced wholesale whenever their job is upserted.
type WorkflowStep struct {
	ID          int64
	JobID       int64
	Number      int
	Name        string
	Status      string
	Conclusion  string
	StartedAt   time.Time
	CompletedAt time.Time
}
