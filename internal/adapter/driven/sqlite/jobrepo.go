package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

// JobRepo is the SQLite implementation of the JobStore port interface.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

// UpsertJob inserts or overwrites the job row by provider job id and
// replaces its steps in the same transaction. Steps carry no natural key of
// their own, so full replacement is what makes job re-ingestion idempotent.
func (r *JobRepo) UpsertJob(ctx context.Context, job model.WorkflowJob) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const jobQuery = `
		INSERT INTO workflow_jobs (id, run_id, name, status, conclusion, started_at, completed_at, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			conclusion = excluded.conclusion,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_secs = excluded.duration_secs
	`

	if _, err := tx.ExecContext(ctx, jobQuery,
		job.ID, job.RunID, job.Name, job.Status, job.Conclusion,
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt), job.DurationSecs,
	); err != nil {
		return fmt.Errorf("upsert job %d: %w", job.ID, err)
	}

	const deleteSteps = `DELETE FROM workflow_steps WHERE job_id = ?`
	if _, err := tx.ExecContext(ctx, deleteSteps, job.ID); err != nil {
		return fmt.Errorf("delete steps for job %d: %w", job.ID, err)
	}

	const insertStep = `
		INSERT INTO workflow_steps (job_id, number, name, status, conclusion, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for _, step := range job.Steps {
		if _, err := tx.ExecContext(ctx, insertStep,
			job.ID, step.Number, step.Name, step.Status, step.Conclusion,
			nullableTime(step.StartedAt), nullableTime(step.CompletedAt),
		); err != nil {
			return fmt.Errorf("insert step %d for job %d: %w", step.Number, job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job %d: %w", job.ID, err)
	}

	return nil
}

// HasJobsForRun reports whether any job has been recorded for the run.
func (r *JobRepo) HasJobsForRun(ctx context.Context, runID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM workflow_jobs WHERE run_id = ?)`

	var exists int
	if err := r.db.Reader.QueryRowContext(ctx, query, runID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check jobs for run %d: %w", runID, err)
	}

	return exists != 0, nil
}

// GetByRun returns all jobs for the run with their steps, ordered by job id.
func (r *JobRepo) GetByRun(ctx context.Context, runID int64) ([]model.WorkflowJob, error) {
	const query = `
		SELECT id, run_id, name, status, conclusion, started_at, completed_at, duration_secs
		FROM workflow_jobs
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs for run %d: %w", runID, err)
	}
	defer rows.Close()

	var jobs []model.WorkflowJob
	for rows.Next() {
		job, err := scanWorkflowJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	for i := range jobs {
		steps, err := r.stepsForJob(ctx, jobs[i].ID)
		if err != nil {
			return nil, err
		}
		jobs[i].Steps = steps
	}

	return jobs, nil
}

func (r *JobRepo) stepsForJob(ctx context.Context, jobID int64) ([]model.WorkflowStep, error) {
	const query = `
		SELECT id, job_id, number, name, status, conclusion, started_at, completed_at
		FROM workflow_steps
		WHERE job_id = ?
		ORDER BY number
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query steps for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var steps []model.WorkflowStep
	for rows.Next() {
		var step model.WorkflowStep
		var startedAt, completedAt sql.NullString

		err := rows.Scan(&step.ID, &step.JobID, &step.Number, &step.Name,
			&step.Status, &step.Conclusion, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		if step.StartedAt, err = scanNullableTime(startedAt, "started_at"); err != nil {
			return nil, err
		}
		if step.CompletedAt, err = scanNullableTime(completedAt, "completed_at"); err != nil {
			return nil, err
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	return steps, nil
}

func scanWorkflowJob(s scanner) (*model.WorkflowJob, error) {
	var job model.WorkflowJob
	var startedAt, completedAt sql.NullString
	var duration sql.NullFloat64

	err := s.Scan(&job.ID, &job.RunID, &job.Name, &job.Status, &job.Conclusion,
		&startedAt, &completedAt, &duration)
	if err != nil {
		return nil, err
	}

	if job.StartedAt, err = scanNullableTime(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = scanNullableTime(completedAt, "completed_at"); err != nil {
		return nil, err
	}

	if duration.Valid {
		d := duration.Float64
		job.DurationSecs = &d
	}

	return &job, nil
}
