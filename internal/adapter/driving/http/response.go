package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RepoResponse is the JSON representation of a monitored repository.
type RepoResponse struct {
	FullName      string `json:"full_name"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	LastCheckedAt string `json:"last_checked_at,omitempty"`
}

// RunResponse is the JSON representation of a workflow run.
type RunResponse struct {
	ID           int64    `json:"id"`
	Workflow     string   `json:"workflow"`
	Branch       string   `json:"branch"`
	HeadSHA      string   `json:"head_sha"`
	Event        string   `json:"event"`
	Status       string   `json:"status"`
	Conclusion   string   `json:"conclusion,omitempty"`
	StartedAt    string   `json:"started_at,omitempty"`
	CompletedAt  string   `json:"completed_at,omitempty"`
	DurationSecs *float64 `json:"duration_secs"`
	URL          string   `json:"url"`
	Actor        string   `json:"actor,omitempty"`
}

// JobResponse is the JSON representation of a workflow job with its steps.
type JobResponse struct {
	ID           int64          `json:"id"`
	RunID        int64          `json:"run_id"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Conclusion   string         `json:"conclusion,omitempty"`
	StartedAt    string         `json:"started_at,omitempty"`
	CompletedAt  string         `json:"completed_at,omitempty"`
	DurationSecs *float64       `json:"duration_secs"`
	Steps        []StepResponse `json:"steps"`
}

// StepResponse is the JSON representation of a single job step.
type StepResponse struct {
	Number     int    `json:"number"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// formatTime renders a timestamp as RFC 3339, empty for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// toRepoResponse converts a domain Repository to its JSON representation.
func toRepoResponse(repo model.Repository) RepoResponse {
	return RepoResponse{
		FullName:      repo.FullName,
		Owner:         repo.Owner,
		Name:          repo.Name,
		DefaultBranch: repo.DefaultBranch,
		LastCheckedAt: formatTime(repo.LastCheckedAt),
	}
}

// toRunResponse converts a domain WorkflowRun to its JSON representation.
func toRunResponse(run model.WorkflowRun) RunResponse {
	return RunResponse{
		ID:           run.ID,
		Workflow:     run.WorkflowName,
		Branch:       run.HeadBranch,
		HeadSHA:      run.HeadSHA,
		Event:        run.Event,
		Status:       run.Status,
		Conclusion:   run.Conclusion,
		StartedAt:    formatTime(run.StartedAt),
		CompletedAt:  formatTime(run.CompletedAt),
		DurationSecs: run.DurationSecs,
		URL:          run.URL,
		Actor:        run.Actor,
	}
}

// toJobResponse converts a domain WorkflowJob to its JSON representation.
func toJobResponse(job model.WorkflowJob) JobResponse {
	steps := make([]StepResponse, 0, len(job.Steps))
	for _, step := range job.Steps {
		steps = append(steps, StepResponse{
			Number:     step.Number,
			Name:       step.Name,
			Status:     step.Status,
			Conclusion: step.Conclusion,
		})
	}

	return JobResponse{
		ID:           job.ID,
		RunID:        job.RunID,
		Name:         job.Name,
		Status:       job.Status,
		Conclusion:   job.Conclusion,
		StartedAt:    formatTime(job.StartedAt),
		CompletedAt:  formatTime(job.CompletedAt),
		DurationSecs: job.DurationSecs,
		Steps:        steps,
	}
}
