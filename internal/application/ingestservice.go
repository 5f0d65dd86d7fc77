// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// IngestOptions carries the tuning knobs for the polling loop.
type IngestOptions struct {
	PollInterval        time.Duration
	PollShards          int
	MaxRunsPerRepo      int
	MaxLogBytesPerJob   int64
	BranchFilters       []string
	LogRetention        time.Duration
	RetentionSweepEvery time.Duration
	AlertsEnabled       bool
	AlertPrefix         string
	AlertMention        string
	AlertSnippetLines   int
}

// IngestService mirrors workflow run history from the CI provider into the
// local store, harvests logs for failed jobs, and dispatches failure alerts.
type IngestService struct {
	client    driven.CIClient
	repoStore driven.RepoStore
	runStore  driven.RunStore
	jobStore  driven.JobStore
	logStore  driven.LogRecordStore
	blobStore driven.LogBlobStore
	notifier  driven.AlertNotifier
	opts      IngestOptions

	// shardCursor rotates through [0, PollShards) across ticks so each tick
	// polls a different slice of the active repository list. Only the Start
	// goroutine touches it.
	shardCursor int
}

// NewIngestService creates an IngestService with all required dependencies.
func NewIngestService(
	client driven.CIClient,
	repoStore driven.RepoStore,
	runStore driven.RunStore,
	jobStore driven.JobStore,
	logStore driven.LogRecordStore,
	blobStore driven.LogBlobStore,
	notifier driven.AlertNotifier,
	opts IngestOptions,
) *IngestService {
	if opts.PollShards < 1 {
		opts.PollShards = 1
	}
	return &IngestService{
		client:    client,
		repoStore: repoStore,
		runStore:  runStore,
		jobStore:  jobStore,
		logStore:  logStore,
		blobStore: blobStore,
		notifier:  notifier,
		opts:      opts,
	}
}

// SyncRepositories refreshes the repository registry from the provider. Called
// once at startup before the polling loop begins.
func (s *IngestService) SyncRepositories(ctx context.Context) error {
	repos, err := s.client.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}

	for _, repo := range repos {
		if err := s.repoStore.Upsert(ctx, repo); err != nil {
			return fmt.Errorf("upsert repository %s: %w", repo.FullName, err)
		}
	}

	slog.Info("repository registry synced", "repos", len(repos))
	return nil
}

// Start runs the polling and retention loops. Ticks are processed inline on a
// single goroutine, so a slow tick delays the next one instead of overlapping
// it. Start blocks until the context is canceled.
func (s *IngestService) Start(ctx context.Context) {
	s.tick(ctx)

	pollTicker := time.NewTicker(s.opts.PollInterval)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(s.opts.RetentionSweepEvery)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ingest service stopped")
			return
		case <-pollTicker.C:
			s.tick(ctx)
		case <-sweepTicker.C:
			s.sweepLogs()
		}
	}
}

// tick polls the current shard of active repositories and advances the cursor.
// Per-repository failures are logged and do not stop the tick.
func (s *IngestService) tick(ctx context.Context) {
	start := time.Now()

	repos, err := s.repoStore.ListActive(ctx)
	if err != nil {
		slog.Error("list active repositories failed", "error", err)
		return
	}

	shard := s.selectShard(repos)
	s.shardCursor = (s.shardCursor + 1) % s.opts.PollShards

	var tickErrors int
	for _, repo := range shard {
		if ctx.Err() != nil {
			return
		}
		if err := s.ingestRepo(ctx, repo); err != nil {
			slog.Error("repo ingest failed", "repo", repo.FullName, "error", err)
			tickErrors++
		}
		if err := s.repoStore.SetLastChecked(ctx, repo.ID, time.Now().UTC()); err != nil {
			slog.Error("stamp last checked failed", "repo", repo.FullName, "error", err)
		}
	}

	slog.Info("poll tick complete",
		"shard_repos", len(shard),
		"total_repos", len(repos),
		"errors", tickErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// selectShard returns the cursor's slice of repos. Shard size is
// ceil(n/shards) so PollShards consecutive ticks visit every repository even
// when the list does not divide evenly.
func (s *IngestService) selectShard(repos []model.Repository) []model.Repository {
	n := len(repos)
	if n == 0 {
		return nil
	}

	per := (n + s.opts.PollShards - 1) / s.opts.PollShards
	lo := (s.shardCursor * per) % n
	hi := min(lo+per, n)
	return repos[lo:hi]
}

// ingestRepo fetches the most recent runs for one repository and processes
// each against the stored state.
func (s *IngestService) ingestRepo(ctx context.Context, repo model.Repository) error {
	runs, err := s.client.ListWorkflowRuns(ctx, repo.Owner, repo.Name, s.opts.MaxRunsPerRepo)
	if err != nil {
		return fmt.Errorf("list workflow runs: %w", err)
	}

	var ingested, skipped int
	for _, run := range runs {
		if !s.branchWanted(run.HeadBranch) {
			skipped++
			continue
		}
		run.RepoID = repo.ID
		if err := s.processRun(ctx, repo, run); err != nil {
			slog.Error("run ingest failed", "repo", repo.FullName, "run", run.ID, "error", err)
			continue
		}
		ingested++
	}

	slog.Debug("repo ingested",
		"repo", repo.FullName,
		"fetched", len(runs),
		"ingested", ingested,
		"branch_filtered", skipped,
	)
	return nil
}

// processRun upserts one run. A failure triggers the job and log cascade
// exactly once: on first insert of a failed run, or on the update that first
// reveals the failure (the run has no jobs stored yet).
func (s *IngestService) processRun(ctx context.Context, repo model.Repository, run model.WorkflowRun) error {
	run.DurationSecs = computeDuration(run.Status, run.StartedAt, run.CompletedAt)

	existing, err := s.runStore.Get(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}

	if existing == nil {
		if err := s.runStore.Insert(ctx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if run.IsFailure() {
			s.cascadeFailure(ctx, repo, run)
		}
		return nil
	}

	if err := s.runStore.Update(ctx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if run.IsFailure() {
		hasJobs, err := s.jobStore.HasJobsForRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("check stored jobs: %w", err)
		}
		if !hasJobs {
			s.cascadeFailure(ctx, repo, run)
		}
	}

	return nil
}

// cascadeFailure mirrors the jobs of a failed run, harvests logs for failed
// jobs, and dispatches an alert. Each job's log fetch is independent; a
// failure there is logged and the cascade continues.
func (s *IngestService) cascadeFailure(ctx context.Context, repo model.Repository, run model.WorkflowRun) {
	jobs, err := s.client.ListWorkflowJobs(ctx, repo.Owner, repo.Name, run.ID)
	if err != nil {
		slog.Error("list workflow jobs failed", "repo", repo.FullName, "run", run.ID, "error", err)
		return
	}

	var snippet string
	for _, job := range jobs {
		job.RunID = run.ID
		job.DurationSecs = computeDuration(job.Status, job.StartedAt, job.CompletedAt)

		if err := s.jobStore.UpsertJob(ctx, job); err != nil {
			slog.Error("upsert job failed", "repo", repo.FullName, "run", run.ID, "job", job.ID, "error", err)
			continue
		}

		if job.Conclusion != model.ConclusionFailure {
			continue
		}

		text, err := s.harvestJobLog(ctx, repo, run.ID, job.ID)
		if err != nil {
			slog.Error("harvest job log failed", "repo", repo.FullName, "run", run.ID, "job", job.ID, "error", err)
			continue
		}
		if snippet == "" && text != "" {
			snippet = lastLines(text, s.opts.AlertSnippetLines)
		}
	}

	s.dispatchAlert(ctx, repo, run, snippet)
}

// harvestJobLog downloads and stores the log for one failed job, returning the
// decompressed text for snippet extraction. A log already on record is read
// back instead of re-downloaded.
func (s *IngestService) harvestJobLog(ctx context.Context, repo model.Repository, runID, jobID int64) (string, error) {
	record, err := s.logStore.GetByJobID(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("lookup log record: %w", err)
	}
	if record != nil {
		text, err := s.blobStore.Read(ctx, record.Path, s.opts.MaxLogBytesPerJob)
		if err != nil {
			if errors.Is(err, driven.ErrLogNotFound) {
				return "", nil
			}
			return "", fmt.Errorf("read stored log: %w", err)
		}
		return text, nil
	}

	raw, err := s.client.DownloadJobLog(ctx, repo.Owner, repo.Name, jobID)
	if err != nil {
		return "", fmt.Errorf("download log: %w", err)
	}

	if s.opts.MaxLogBytesPerJob > 0 && int64(len(raw)) > s.opts.MaxLogBytesPerJob {
		slog.Warn("job log exceeds size cap, discarding",
			"repo", repo.FullName, "job", jobID,
			"size", len(raw), "cap", s.opts.MaxLogBytesPerJob)
		return "", nil
	}

	locator, err := s.blobStore.Store(ctx, repo.Owner, repo.Name, runID, jobID, raw)
	if err != nil {
		return "", fmt.Errorf("store log blob: %w", err)
	}

	if err := s.logStore.Upsert(ctx, model.LogRecord{
		JobID:     jobID,
		Storage:   model.StorageDisk,
		Path:      locator,
		SizeBytes: int64(len(raw)),
		FetchedAt: time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("record log: %w", err)
	}

	return string(raw), nil
}

// dispatchAlert sends the failure notification. Alerting disabled or no
// webhook configured is not an error.
func (s *IngestService) dispatchAlert(ctx context.Context, repo model.Repository, run model.WorkflowRun, snippet string) {
	if !s.opts.AlertsEnabled {
		return
	}

	alert := model.FailureAlert{
		Prefix:       s.opts.AlertPrefix,
		Mention:      s.opts.AlertMention,
		RepoFullName: repo.FullName,
		Branch:       run.HeadBranch,
		WorkflowName: run.WorkflowName,
		Conclusion:   run.Conclusion,
		DurationText: durationText(run.DurationSecs),
		RunURL:       run.URL,
		LogSnippet:   snippet,
	}

	if err := s.notifier.Dispatch(ctx, alert); err != nil {
		if errors.Is(err, driven.ErrNoWebhook) {
			slog.Debug("alert skipped, no webhook configured", "repo", repo.FullName, "run", run.ID)
			return
		}
		slog.Error("alert dispatch failed", "repo", repo.FullName, "run", run.ID, "error", err)
		return
	}

	slog.Info("failure alert dispatched", "repo", repo.FullName, "run", run.ID, "workflow", run.WorkflowName)
}

// sweepLogs removes log files older than the retention window.
func (s *IngestService) sweepLogs() {
	cutoff := time.Now().Add(-s.opts.LogRetention)
	removed, err := s.blobStore.Sweep(cutoff)
	if err != nil {
		slog.Error("log retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("log retention sweep complete", "removed", removed)
	}
}

// branchWanted reports whether the branch passes the configured filter. An
// empty filter admits every branch.
func (s *IngestService) branchWanted(branch string) bool {
	if len(s.opts.BranchFilters) == 0 {
		return true
	}
	return slices.Contains(s.opts.BranchFilters, branch)
}

// computeDuration returns elapsed seconds for a completed run or job with a
// known start time, nil otherwise.
func computeDuration(status string, startedAt, completedAt time.Time) *float64 {
	if status != model.RunStatusCompleted || startedAt.IsZero() || completedAt.IsZero() {
		return nil
	}
	secs := completedAt.Sub(startedAt).Seconds()
	return &secs
}

// durationText renders a duration pointer for display, empty when unknown.
func durationText(secs *float64) string {
	if secs == nil {
		return ""
	}
	return (time.Duration(*secs * float64(time.Second))).Round(time.Second).String()
}

// lastLines returns the final n lines of text, trimmed of a trailing newline.
func lastLines(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	if text == "" || n <= 0 {
		return ""
	}

	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
