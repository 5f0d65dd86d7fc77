package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// insertTestRun creates a repository and a run, returning the run id for job tests.
func insertTestRun(t *testing.T, db *DB, runID int64) int64 {
	t.Helper()
	repoID := addTestRepo(t, db, "acme", "widgets")
	runRepo := NewRunRepo(db)

	run := makeRun(runID, repoID, "main", model.ConclusionFailure)
	require.NoError(t, runRepo.Insert(context.Background(), run))

	return runID
}

func makeJob(jobID, runID int64, conclusion string, steps ...model.WorkflowStep) model.WorkflowJob {
	started := time.Date(2026, 8, 1, 10, 0, 10, 0, time.UTC)
	completed := started.Add(4 * time.Minute)
	duration := completed.Sub(started).Seconds()

	return model.WorkflowJob{
		ID:           jobID,
		RunID:        runID,
		Name:         "build",
		Status:       model.RunStatusCompleted,
		Conclusion:   conclusion,
		StartedAt:    started,
		CompletedAt:  completed,
		DurationSecs: &duration,
		Steps:        steps,
	}
}

func TestJobRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	jobRepo := NewJobRepo(db)
	ctx := context.Background()

	runID := insertTestRun(t, db, 9001)
	job := makeJob(501, runID, model.ConclusionFailure,
		model.WorkflowStep{Number: 1, Name: "Checkout", Status: "completed", Conclusion: "success"},
		model.WorkflowStep{Number: 2, Name: "Test", Status: "completed", Conclusion: "failure"},
	)

	require.NoError(t, jobRepo.UpsertJob(ctx, job))

	jobs, err := jobRepo.GetByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(501), jobs[0].ID)
	assert.Equal(t, "build", jobs[0].Name)
	assert.Equal(t, model.ConclusionFailure, jobs[0].Conclusion)
	require.NotNil(t, jobs[0].DurationSecs)
	assert.Equal(t, 240.0, *jobs[0].DurationSecs)

	require.Len(t, jobs[0].Steps, 2)
	assert.Equal(t, 1, jobs[0].Steps[0].Number)
	assert.Equal(t, "Checkout", jobs[0].Steps[0].Name)
	assert.Equal(t, 2, jobs[0].Steps[1].Number)
	assert.Equal(t, "failure", jobs[0].Steps[1].Conclusion)
}

func TestJobRepo_ReingestReplacesStepsInPlace(t *testing.T) {
	db := setupTestDB(t)
	jobRepo := NewJobRepo(db)
	ctx := context.Background()

	runID := insertTestRun(t, db, 9001)
	job := makeJob(501, runID, model.ConclusionFailure,
		model.WorkflowStep{Number: 1, Name: "Checkout", Status: "completed", Conclusion: "success"},
		model.WorkflowStep{Number: 2, Name: "Test", Status: "in_progress"},
	)
	require.NoError(t, jobRepo.UpsertJob(ctx, job))

	// Second sighting: step 2 settled. Re-ingestion must not duplicate steps.
	job.Steps[1].Status = "completed"
	job.Steps[1].Conclusion = "failure"
	require.NoError(t, jobRepo.UpsertJob(ctx, job))

	jobs, err := jobRepo.GetByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Len(t, jobs[0].Steps, 2)
	assert.Equal(t, "failure", jobs[0].Steps[1].Conclusion)
}

func TestJobRepo_HasJobsForRun(t *testing.T) {
	db := setupTestDB(t)
	jobRepo := NewJobRepo(db)
	ctx := context.Background()

	runID := insertTestRun(t, db, 9001)

	has, err := jobRepo.HasJobsForRun(ctx, runID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, jobRepo.UpsertJob(ctx, makeJob(501, runID, model.ConclusionSuccess)))

	has, err = jobRepo.HasJobsForRun(ctx, runID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestJobRepo_GetByRun_OrderedByID(t *testing.T) {
	db := setupTestDB(t)
	jobRepo := NewJobRepo(db)
	ctx := context.Background()

	runID := insertTestRun(t, db, 9001)
	require.NoError(t, jobRepo.UpsertJob(ctx, makeJob(502, runID, model.ConclusionSuccess)))
	require.NoError(t, jobRepo.UpsertJob(ctx, makeJob(501, runID, model.ConclusionFailure)))

	jobs, err := jobRepo.GetByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(501), jobs[0].ID)
	assert.Equal(t, int64(502), jobs[1].ID)
}
