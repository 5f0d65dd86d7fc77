package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LogRecordStore = (*LogRecordRepo)(nil)

// LogRecordRepo is the SQLite implementation of the LogRecordStore port interface.
type LogRecordRepo struct {
	db *DB
}

// NewLogRecordRepo creates a new LogRecordRepo backed by the given DB.
func NewLogRecordRepo(db *DB) *LogRecordRepo {
	return &LogRecordRepo{db: db}
}

// Upsert inserts or replaces the log record for a job. A log fetched twice
// for the same job replaces the prior record.
func (r *LogRecordRepo) Upsert(ctx context.Context, rec model.LogRecord) error {
	const query = `
		INSERT INTO run_logs (job_id, storage, path, size_bytes, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			storage = excluded.storage,
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			fetched_at = excluded.fetched_at
	`

	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		rec.JobID, rec.Storage, rec.Path, rec.SizeBytes, fetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert log record for job %d: %w", rec.JobID, err)
	}

	return nil
}

// GetByJobID retrieves the log record for a job. Returns nil, nil if no log
// has been fetched for the job.
func (r *LogRecordRepo) GetByJobID(ctx context.Context, jobID int64) (*model.LogRecord, error) {
	const query = `
		SELECT id, job_id, storage, path, size_bytes, fetched_at
		FROM run_logs
		WHERE job_id = ?
	`

	var rec model.LogRecord
	var fetchedAt string

	err := r.db.Reader.QueryRowContext(ctx, query, jobID).Scan(
		&rec.ID, &rec.JobID, &rec.Storage, &rec.Path, &rec.SizeBytes, &fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get log record for job %d: %w", jobID, err)
	}

	rec.FetchedAt, err = parseTime(fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse fetched_at: %w", err)
	}

	return &rec, nil
}
