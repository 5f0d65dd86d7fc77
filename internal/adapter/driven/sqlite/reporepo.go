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
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Upsert inserts a repository or, when the full_name is already known,
// refreshes its default branch and re-marks it active. Repositories are
// never deleted here; a repository absent from the provider's listing keeps
// its row and its active flag.
func (r *RepoRepo) Upsert(ctx context.Context, repo model.Repository) error {
	const query = `
		INSERT INTO repositories (owner, name, full_name, default_branch, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(full_name) DO UPDATE SET
			default_branch = excluded.default_branch,
			is_active = 1
	`

	createdAt := repo.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		repo.Owner, repo.Name, repo.FullName, repo.DefaultBranch, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert repository %s: %w", repo.FullName, err)
	}

	return nil
}

// GetByFullName retrieves a repository by its full name. Returns nil, nil if
// the repository does not exist.
func (r *RepoRepo) GetByFullName(ctx context.Context, fullName string) (*model.Repository, error) {
	const query = `
		SELECT id, owner, name, full_name, default_branch, is_active, last_checked_at, created_at
		FROM repositories
		WHERE full_name = ?
	`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, fullName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", fullName, err)
	}

	return repo, nil
}

// ListActive returns all active repositories ordered by id, the insertion
// order the shard selector relies on.
func (r *RepoRepo) ListActive(ctx context.Context) ([]model.Repository, error) {
	const query = `
		SELECT id, owner, name, full_name, default_branch, is_active, last_checked_at, created_at
		FROM repositories
		WHERE is_active = 1
		ORDER BY id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// SetLastChecked stamps the repository's last_checked_at. Called after every
// ingestion pass, whether or not any run changed.
func (r *RepoRepo) SetLastChecked(ctx context.Context, id int64, checkedAt time.Time) error {
	const query = `UPDATE repositories SET last_checked_at = ? WHERE id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, checkedAt.UTC(), id); err != nil {
		return fmt.Errorf("set last_checked_at for repository %d: %w", id, err)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var isActive int
	var lastChecked sql.NullString
	var createdAt string

	err := s.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.FullName,
		&repo.DefaultBranch, &isActive, &lastChecked, &createdAt)
	if err != nil {
		return nil, err
	}

	repo.IsActive = isActive != 0

	if lastChecked.Valid {
		repo.LastCheckedAt, err = parseTime(lastChecked.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_checked_at: %w", err)
		}
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &repo, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// nullableTime converts a possibly-zero time into a bindable value: nil for
// zero times, UTC otherwise.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// scanNullableTime parses an optional datetime column into a time.Time,
// leaving it zero for NULL.
func scanNullableTime(v sql.NullString, column string) (time.Time, error) {
	if !v.Valid {
		return time.Time{}, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", column, err)
	}
	return t, nil
}
