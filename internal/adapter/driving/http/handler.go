// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/cihealth/internal/application"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Handler serves the read-only API over the mirrored run history.
type Handler struct {
	repoStore  driven.RepoStore
	runStore   driven.RunStore
	jobStore   driven.JobStore
	logStore   driven.LogRecordStore
	blobStore  driven.LogBlobStore
	metricsSvc *application.MetricsService
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	repoStore driven.RepoStore,
	runStore driven.RunStore,
	jobStore driven.JobStore,
	logStore driven.LogRecordStore,
	blobStore driven.LogBlobStore,
	metricsSvc *application.MetricsService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		repoStore:  repoStore,
		runStore:   runStore,
		jobStore:   jobStore,
		logStore:   logStore,
		blobStore:  blobStore,
		metricsSvc: metricsSvc,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}/jobs", h.ListRunJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}/log", h.GetJobLog)
	mux.HandleFunc("GET /api/v1/metrics/overview", h.MetricsOverview)
	mux.HandleFunc("GET /api/v1/metrics/timeseries", h.MetricsTimeseries)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListRepos returns all active repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repoStore.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to list repositories", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRuns returns stored workflow runs, newest first, filtered by the
// optional repo, branch, since, and limit query parameters.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.runStore.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRunJobs returns the jobs of one run, with their steps.
func (h *Handler) ListRunJobs(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.runStore.Get(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to get run", "run", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	jobs, err := h.jobStore.GetByRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to list jobs", "run", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, toJobResponse(job))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetJobLog streams the harvested log for one job as plain text.
func (h *Handler) GetJobLog(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	record, err := h.logStore.GetByJobID(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to look up log record", "job", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "no log harvested for job")
		return
	}

	text, err := h.blobStore.Read(r.Context(), record.Path, 0)
	if err != nil {
		if errors.Is(err, driven.ErrLogNotFound) {
			// Record exists but the file was swept.
			writeError(w, http.StatusNotFound, "log expired")
			return
		}
		h.logger.Error("failed to read log", "job", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// defaultMetricsWindow bounds the metrics endpoints when the caller gives no
// since parameter, so an old database does not skew current health numbers.
const defaultMetricsWindow = 7 * 24 * time.Hour

// MetricsOverview returns aggregate health rates over the filtered runs.
func (h *Handler) MetricsOverview(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMetricsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	overview, err := h.metricsSvc.Overview(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to compute overview", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// MetricsTimeseries returns daily outcome counts over the filtered runs.
func (h *Handler) MetricsTimeseries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMetricsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.metricsSvc.Timeseries(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to compute timeseries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if points == nil {
		points = []application.TimeseriesPoint{}
	}

	writeJSON(w, http.StatusOK, points)
}

// Health returns a liveness response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// parseRunFilter builds a RunFilter from query parameters.
func parseRunFilter(r *http.Request) (driven.RunFilter, error) {
	q := r.URL.Query()
	filter := driven.RunFilter{
		RepoFullName: q.Get("repo"),
		Branch:       q.Get("branch"),
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return driven.RunFilter{}, errors.New("invalid since timestamp, want RFC 3339")
		}
		filter.Since = since
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return driven.RunFilter{}, errors.New("invalid limit")
		}
		filter.Limit = limit
	}

	return filter, nil
}

// parseMetricsFilter is parseRunFilter with the default window applied when
// the caller passes no since parameter.
func parseMetricsFilter(r *http.Request) (driven.RunFilter, error) {
	filter, err := parseRunFilter(r)
	if err != nil {
		return driven.RunFilter{}, err
	}
	if filter.Since.IsZero() {
		filter.Since = time.Now().UTC().Add(-defaultMetricsWindow)
	}
	return filter, nil
}
