package httphandler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/cihealth/internal/adapter/driving/http"
	"github.com/ericfisherdev/cihealth/internal/application"
	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// --- Mock stores ---

type mockRepoStore struct {
	repos []model.Repository
}

func (m *mockRepoStore) Upsert(_ context.Context, _ model.Repository) error { return nil }
func (m *mockRepoStore) GetByFullName(_ context.Context, _ string) (*model.Repository, error) {
	return nil, nil
}
func (m *mockRepoStore) ListActive(_ context.Context) ([]model.Repository, error) {
	return m.repos, nil
}
func (m *mockRepoStore) SetLastChecked(_ context.Context, _ int64, _ time.Time) error { return nil }

type mockRunStore struct {
	runs       []model.WorkflowRun
	lastFilter driven.RunFilter
}

func (m *mockRunStore) Get(_ context.Context, id int64) (*model.WorkflowRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return &run, nil
		}
	}
	return nil, nil
}
func (m *mockRunStore) Insert(_ context.Context, _ model.WorkflowRun) error { return nil }
func (m *mockRunStore) Update(_ context.Context, _ model.WorkflowRun) error { return nil }
func (m *mockRunStore) List(_ context.Context, filter driven.RunFilter) ([]model.WorkflowRun, error) {
	m.lastFilter = filter
	return m.runs, nil
}

type mockJobStore struct {
	jobs map[int64][]model.WorkflowJob
}

func (m *mockJobStore) UpsertJob(_ context.Context, _ model.WorkflowJob) error { return nil }
func (m *mockJobStore) HasJobsForRun(_ context.Context, runID int64) (bool, error) {
	return len(m.jobs[runID]) > 0, nil
}
func (m *mockJobStore) GetByRun(_ context.Context, runID int64) ([]model.WorkflowJob, error) {
	return m.jobs[runID], nil
}

type mockLogRecordStore struct {
	records map[int64]model.LogRecord
}

func (m *mockLogRecordStore) Upsert(_ context.Context, _ model.LogRecord) error { return nil }
func (m *mockLogRecordStore) GetByJobID(_ context.Context, jobID int64) (*model.LogRecord, error) {
	if record, ok := m.records[jobID]; ok {
		return &record, nil
	}
	return nil, nil
}

type mockBlobStore struct {
	blobs map[string]string
}

func (m *mockBlobStore) Store(_ context.Context, _, _ string, _, _ int64, _ []byte) (string, error) {
	return "", nil
}
func (m *mockBlobStore) Read(_ context.Context, locator string, _ int64) (string, error) {
	text, ok := m.blobs[locator]
	if !ok {
		return "", driven.ErrLogNotFound
	}
	return text, nil
}
func (m *mockBlobStore) Sweep(_ time.Time) (int, error) { return 0, nil }

// --- Fixture ---

type fixture struct {
	repos *mockRepoStore
	runs  *mockRunStore
	jobs  *mockJobStore
	logs  *mockLogRecordStore
	blobs *mockBlobStore
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repos: &mockRepoStore{},
		runs:  &mockRunStore{},
		jobs:  &mockJobStore{jobs: make(map[int64][]model.WorkflowJob)},
		logs:  &mockLogRecordStore{records: make(map[int64]model.LogRecord)},
		blobs: &mockBlobStore{blobs: make(map[string]string)},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := httphandler.NewHandler(
		f.repos, f.runs, f.jobs, f.logs, f.blobs,
		application.NewMetricsService(f.runs), logger,
	)
	f.srv = httptest.NewServer(httphandler.NewServeMux(handler, logger))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

// --- Tests ---

func TestListRepos(t *testing.T) {
	f := newFixture(t)
	f.repos.repos = []model.Repository{
		{ID: 1, Owner: "acme", Name: "widgets", FullName: "acme/widgets", DefaultBranch: "main",
			LastCheckedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 2, Owner: "acme", Name: "gadgets", FullName: "acme/gadgets", DefaultBranch: "main"},
	}

	resp, body := f.get(t, "/api/v1/repos")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var repos []map[string]any
	require.NoError(t, json.Unmarshal(body, &repos))
	require.Len(t, repos, 2)
	assert.Equal(t, "acme/widgets", repos[0]["full_name"])
	assert.Equal(t, "2026-08-01T12:00:00Z", repos[0]["last_checked_at"])
	// Never-checked repos omit the timestamp.
	assert.NotContains(t, repos[1], "last_checked_at")
}

func TestListRuns_FilterParsing(t *testing.T) {
	f := newFixture(t)
	duration := 300.0
	f.runs.runs = []model.WorkflowRun{{
		ID: 9001, WorkflowName: "CI", HeadBranch: "main",
		Status: model.RunStatusCompleted, Conclusion: model.ConclusionFailure,
		StartedAt:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		CompletedAt:  time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC),
		DurationSecs: &duration,
	}}

	resp, body := f.get(t, "/api/v1/runs?repo=acme/widgets&branch=main&since=2026-08-01T00:00:00Z&limit=10")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "acme/widgets", f.runs.lastFilter.RepoFullName)
	assert.Equal(t, "main", f.runs.lastFilter.Branch)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), f.runs.lastFilter.Since)
	assert.Equal(t, 10, f.runs.lastFilter.Limit)

	var runs []map[string]any
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, float64(9001), runs[0]["id"])
	assert.Equal(t, "failure", runs[0]["conclusion"])
	assert.Equal(t, 300.0, runs[0]["duration_secs"])
}

func TestListRuns_InvalidSince(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/api/v1/runs?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRunJobs(t *testing.T) {
	f := newFixture(t)
	f.runs.runs = []model.WorkflowRun{{ID: 9001, Status: model.RunStatusCompleted}}
	f.jobs.jobs[9001] = []model.WorkflowJob{{
		ID: 501, RunID: 9001, Name: "test", Status: model.RunStatusCompleted,
		Conclusion: model.ConclusionFailure,
		Steps: []model.WorkflowStep{
			{Number: 1, Name: "Checkout", Status: "completed", Conclusion: "success"},
			{Number: 2, Name: "Test", Status: "completed", Conclusion: "failure"},
		},
	}}

	resp, body := f.get(t, "/api/v1/runs/9001/jobs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []map[string]any
	require.NoError(t, json.Unmarshal(body, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "test", jobs[0]["name"])
	steps, ok := jobs[0]["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 2)
}

func TestListRunJobs_UnknownRun(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/api/v1/runs/404/jobs")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRunJobs_BadID(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/api/v1/runs/abc/jobs")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobLog(t *testing.T) {
	f := newFixture(t)
	f.logs.records[501] = model.LogRecord{JobID: 501, Storage: model.StorageDisk, Path: "acme_widgets/9001/501.log.gz"}
	f.blobs.blobs["acme_widgets/9001/501.log.gz"] = "Error: boom\nexit status 1\n"

	resp, body := f.get(t, "/api/v1/jobs/501/log")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Error: boom\nexit status 1\n", string(body))
}

func TestGetJobLog_NoRecord(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/api/v1/jobs/501/log")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetJobLog_FileSwept(t *testing.T) {
	f := newFixture(t)
	f.logs.records[501] = model.LogRecord{JobID: 501, Storage: model.StorageDisk, Path: "gone.log.gz"}

	resp, body := f.get(t, "/api/v1/jobs/501/log")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "expired")
}

func TestMetricsOverview(t *testing.T) {
	f := newFixture(t)
	duration := 120.0
	f.runs.runs = []model.WorkflowRun{
		{ID: 2, Status: model.RunStatusCompleted, Conclusion: model.ConclusionFailure,
			StartedAt: time.Now(), DurationSecs: &duration},
		{ID: 1, Status: model.RunStatusCompleted, Conclusion: model.ConclusionSuccess,
			StartedAt: time.Now().Add(-time.Hour), DurationSecs: &duration},
	}

	resp, body := f.get(t, "/api/v1/metrics/overview")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ov map[string]any
	require.NoError(t, json.Unmarshal(body, &ov))
	assert.Equal(t, float64(2), ov["total_runs"])
	assert.Equal(t, 50.0, ov["success_rate"])
	assert.Equal(t, 50.0, ov["failure_rate"])
	assert.Equal(t, 120.0, ov["avg_duration_secs"])

	// No since parameter: the handler bounds the query to the default window.
	assert.WithinDuration(t, time.Now().UTC().Add(-7*24*time.Hour), f.runs.lastFilter.Since, time.Minute)
}

func TestMetricsOverview_ExplicitSinceOverridesWindow(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/api/v1/metrics/overview?since=2026-01-01T00:00:00Z")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.runs.lastFilter.Since.UTC())
}

func TestMetricsTimeseries_EmptyIsArray(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/api/v1/metrics/timeseries")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", string(body))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, health["time"])
}
