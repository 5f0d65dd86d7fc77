package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// addTestRepo upserts a repository and returns its database ID.
func addTestRepo(t *testing.T, db *DB, owner, name string) int64 {
	t.Helper()
	repoRepo := NewRepoRepo(db)
	ctx := context.Background()

	require.NoError(t, repoRepo.Upsert(ctx, model.Repository{
		Owner:         owner,
		Name:          name,
		FullName:      owner + "/" + name,
		DefaultBranch: "main",
	}))

	got, err := repoRepo.GetByFullName(ctx, owner+"/"+name)
	require.NoError(t, err)
	require.NotNil(t, got)

	return got.ID
}

// makeRun builds a completed run with a computed duration for store tests.
func makeRun(id, repoID int64, branch, conclusion string) model.WorkflowRun {
	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(5 * time.Minute)
	duration := completed.Sub(started).Seconds()

	return model.WorkflowRun{
		ID:           id,
		RepoID:       repoID,
		WorkflowName: "CI",
		HeadBranch:   branch,
		HeadSHA:      "abc123",
		Event:        "push",
		Status:       model.RunStatusCompleted,
		Conclusion:   conclusion,
		StartedAt:    started,
		CompletedAt:  completed,
		DurationSecs: &duration,
		URL:          fmt.Sprintf("https://github.com/acme/widgets/actions/runs/%d", id),
		Actor:        "alice",
	}
}
