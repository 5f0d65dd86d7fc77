// Package github implements the CIClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CIClient = (*Client)(nil)

// maxLogRedirects bounds the redirect chain go-github follows to resolve
// the signed log URL.
const maxLogRedirects = 10

// Client implements the driven.CIClient port using the go-github library.
type Client struct {
	gh *gh.Client
	// download fetches the signed log URL. Separate from the API client:
	// signed blob URLs reject the Authorization header the API transport
	// injects.
	download *http.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching; provider 304s are
//     served from cache instead of surfacing to callers)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:       client,
		download: &http.Client{Timeout: 2 * time.Minute},
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:       client,
		download: httpClient,
	}, nil
}

// ListRepositories retrieves every repository visible to the authenticated
// token, including collaborator and organization repositories. It handles
// pagination automatically and maps go-github types to domain model types.
func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner,collaborator,organization_member",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var allRepos []model.Repository

	for {
		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories (page %d): %w", opts.Page, err)
		}

		logRateLimit(resp, "user/repos", opts.Page, len(repos))

		for _, r := range repos {
			allRepos = append(allRepos, mapRepository(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if allRepos == nil {
		allRepos = []model.Repository{}
	}

	return allRepos, nil
}

// ListWorkflowRuns retrieves the most recent workflow runs for a repository,
// at most perPage of them. A single page bounds how far back each tick
// looks; older history is not backfilled.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, name string, perPage int) ([]model.WorkflowRun, error) {
	opts := &gh.ListWorkflowRunsOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	runs, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, opts)
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs for %s/%s: %w", owner, name, err)
	}

	logRateLimit(resp, owner+"/"+name+"/runs", 0, len(runs.WorkflowRuns))

	mapped := make([]model.WorkflowRun, 0, len(runs.WorkflowRuns))
	for _, run := range runs.WorkflowRuns {
		mapped = append(mapped, mapWorkflowRun(run))
	}

	return mapped, nil
}

// ListWorkflowJobs retrieves all jobs for a workflow run, each with its
// ordered steps embedded. It handles pagination automatically.
func (c *Client) ListWorkflowJobs(ctx context.Context, owner, name string, runID int64) ([]model.WorkflowJob, error) {
	opts := &gh.ListWorkflowJobsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var allJobs []model.WorkflowJob

	for {
		jobs, resp, err := c.gh.Actions.ListWorkflowJobs(ctx, owner, name, runID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing jobs for %s/%s run %d (page %d): %w", owner, name, runID, opts.Page, err)
		}

		logRateLimit(resp, fmt.Sprintf("%s/%s/runs/%d/jobs", owner, name, runID), opts.Page, len(jobs.Jobs))

		for _, job := range jobs.Jobs {
			allJobs = append(allJobs, mapWorkflowJob(job))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if allJobs == nil {
		allJobs = []model.WorkflowJob{}
	}

	return allJobs, nil
}

// DownloadJobLog fetches the raw log for a job. The provider answers the
// logs endpoint with a redirect to a short-lived signed URL; go-github
// resolves the redirect chain and the signed URL is fetched without auth.
func (c *Client) DownloadJobLog(ctx context.Context, owner, name string, jobID int64) ([]byte, error) {
	logURL, _, err := c.gh.Actions.GetWorkflowJobLogs(ctx, owner, name, jobID, maxLogRedirects)
	if err != nil {
		return nil, fmt.Errorf("resolving log URL for %s/%s job %d: %w", owner, name, jobID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building log request for job %d: %w", jobID, err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading log for %s/%s job %d: %w", owner, name, jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("downloading log for %s/%s job %d: unexpected status %d", owner, name, jobID, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading log body for job %d: %w", jobID, err)
	}

	return raw, nil
}

// mapRepository converts a go-github Repository to a domain model Repository.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRepository(r *gh.Repository) model.Repository {
	return model.Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		IsActive:      true,
	}
}

// mapWorkflowRun converts a go-github WorkflowRun to a domain model
// WorkflowRun. StartedAt prefers the explicit run_started_at timestamp and
// falls back to created_at. CompletedAt is the provider's updated_at, but
// only once the run has completed; updated_at moves while a run is still in
// progress and means nothing as an end time until then.
func mapWorkflowRun(run *gh.WorkflowRun) model.WorkflowRun {
	startedAt := run.GetRunStartedAt().Time
	if startedAt.IsZero() {
		startedAt = run.GetCreatedAt().Time
	}

	var completedAt time.Time
	if run.GetStatus() == model.RunStatusCompleted {
		completedAt = run.GetUpdatedAt().Time
	}

	return model.WorkflowRun{
		ID:           run.GetID(),
		WorkflowName: run.GetName(),
		HeadBranch:   run.GetHeadBranch(),
		HeadSHA:      run.GetHeadSHA(),
		Event:        run.GetEvent(),
		Status:       run.GetStatus(),
		Conclusion:   run.GetConclusion(),
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		URL:          run.GetHTMLURL(),
		Actor:        run.GetActor().GetLogin(),
	}
}

// mapWorkflowJob converts a go-github WorkflowJob to a domain model
// WorkflowJob with its steps.
func mapWorkflowJob(job *gh.WorkflowJob) model.WorkflowJob {
	steps := make([]model.WorkflowStep, 0, len(job.Steps))
	for _, step := range job.Steps {
		steps = append(steps, model.WorkflowStep{
			JobID:       job.GetID(),
			Number:      int(step.GetNumber()),
			Name:        step.GetName(),
			Status:      step.GetStatus(),
			Conclusion:  step.GetConclusion(),
			StartedAt:   step.GetStartedAt().Time,
			CompletedAt: step.GetCompletedAt().Time,
		})
	}

	return model.WorkflowJob{
		ID:          job.GetID(),
		RunID:       job.GetRunID(),
		Name:        job.GetName(),
		Status:      job.GetStatus(),
		Conclusion:  job.GetConclusion(),
		StartedAt:   job.GetStartedAt().Time,
		CompletedAt: job.GetCompletedAt().Time,
		Steps:       steps,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
