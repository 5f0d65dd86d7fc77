package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Get retrieves a run by its provider run id. Returns nil, nil if the run
// has not been ingested.
func (r *RunRepo) Get(ctx context.Context, id int64) (*model.WorkflowRun, error) {
	const query = `
		SELECT id, repo_id, workflow_name, head_branch, head_sha, event, status,
		       conclusion, started_at, completed_at, duration_secs, url, actor
		FROM workflow_runs
		WHERE id = ?
	`

	run, err := scanWorkflowRun(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}

	return run, nil
}

// Insert creates a new run row keyed by the provider run id.
func (r *RunRepo) Insert(ctx context.Context, run model.WorkflowRun) error {
	const query = `
		INSERT INTO workflow_runs (
			id, repo_id, workflow_name, head_branch, head_sha, event, status,
			conclusion, started_at, completed_at, duration_secs, url, actor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		run.ID, run.RepoID, run.WorkflowName, run.HeadBranch, run.HeadSHA,
		run.Event, run.Status, run.Conclusion,
		nullableTime(run.StartedAt), nullableTime(run.CompletedAt),
		run.DurationSecs, run.URL, run.Actor, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run %d: %w", run.ID, err)
	}

	return nil
}

// Update overwrites the mutable fields of an existing run, last-writer-wins.
// A provider timestamp regression is written as-is, no conflict detection.
func (r *RunRepo) Update(ctx context.Context, run model.WorkflowRun) error {
	const query = `
		UPDATE workflow_runs SET
			status = ?, conclusion = ?, started_at = ?, completed_at = ?,
			duration_secs = ?, url = ?
		WHERE id = ?
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		run.Status, run.Conclusion,
		nullableTime(run.StartedAt), nullableTime(run.CompletedAt),
		run.DurationSecs, run.URL, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %d: %w", run.ID, err)
	}

	return nil
}

// List returns runs matching the filter, newest started_at first. Runs with
// no started_at sort last.
func (r *RunRepo) List(ctx context.Context, filter driven.RunFilter) ([]model.WorkflowRun, error) {
	query := `
		SELECT wr.id, wr.repo_id, wr.workflow_name, wr.head_branch, wr.head_sha,
		       wr.event, wr.status, wr.conclusion, wr.started_at, wr.completed_at,
		       wr.duration_secs, wr.url, wr.actor
		FROM workflow_runs wr
		JOIN repositories r ON r.id = wr.repo_id
	`

	var conds []string
	var args []any

	if filter.RepoFullName != "" {
		conds = append(conds, "r.full_name = ?")
		args = append(args, filter.RepoFullName)
	}
	if filter.Branch != "" {
		conds = append(conds, "wr.head_branch = ?")
		args = append(args, filter.Branch)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "wr.started_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY wr.started_at IS NULL, wr.started_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		run, err := scanWorkflowRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

func scanWorkflowRun(s scanner) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	var startedAt, completedAt sql.NullString
	var duration sql.NullFloat64

	err := s.Scan(&run.ID, &run.RepoID, &run.WorkflowName, &run.HeadBranch,
		&run.HeadSHA, &run.Event, &run.Status, &run.Conclusion,
		&startedAt, &completedAt, &duration, &run.URL, &run.Actor)
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = scanNullableTime(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = scanNullableTime(completedAt, "completed_at"); err != nil {
		return nil, err
	}

	if duration.Valid {
		d := duration.Float64
		run.DurationSecs = &d
	}

	return &run, nil
}
