// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken string

	PollInterval   time.Duration
	PollShards     int
	BranchFilters  []string
	MaxRunsPerRepo int

	LogDir                 string
	MaxLogBytesPerJob      int64
	LogRetention           time.Duration
	RetentionSweepInterval time.Duration

	AlertsEnabled     bool
	SlackWebhookURL   string
	AlertMention      string
	AlertPrefix       string
	AlertSnippetLines int

	ListenAddr string
	DBPath     string
}

// Load reads configuration from environment variables and returns a validated
// Config. CIHEALTH_GITHUB_TOKEN is required; everything else has a default.
// Optional variables: CIHEALTH_POLL_INTERVAL (30s), CIHEALTH_POLL_SHARDS (4),
// CIHEALTH_BRANCH_FILTERS (empty = no filtering), CIHEALTH_MAX_RUNS_PER_REPO (50),
// CIHEALTH_LOG_DIR (data/run-logs), CIHEALTH_MAX_LOG_BYTES_PER_JOB (10MiB),
// CIHEALTH_LOG_RETENTION (168h), CIHEALTH_RETENTION_SWEEP_INTERVAL (6h),
// CIHEALTH_ALERTS_ENABLED (true), CIHEALTH_SLACK_WEBHOOK_URL (empty),
// CIHEALTH_ALERT_MENTION (channel), CIHEALTH_ALERT_PREFIX ([CI Failure]),
// CIHEALTH_ALERT_SNIPPET_LINES (200), CIHEALTH_LISTEN_ADDR (127.0.0.1:8080),
// CIHEALTH_DB_PATH (cihealth.db).
func Load() (*Config, error) {
	token := os.Getenv("CIHEALTH_GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("CIHEALTH_GITHUB_TOKEN is required")
	}

	pollInterval, err := durationEnv("CIHEALTH_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pollShards, err := intEnv("CIHEALTH_POLL_SHARDS", 4)
	if err != nil {
		return nil, err
	}
	if pollShards < 1 {
		pollShards = 1
	}

	maxRuns, err := intEnv("CIHEALTH_MAX_RUNS_PER_REPO", 50)
	if err != nil {
		return nil, err
	}

	maxLogBytes, err := int64Env("CIHEALTH_MAX_LOG_BYTES_PER_JOB", 10*1024*1024)
	if err != nil {
		return nil, err
	}

	logRetention, err := durationEnv("CIHEALTH_LOG_RETENTION", 168*time.Hour)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := durationEnv("CIHEALTH_RETENTION_SWEEP_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	snippetLines, err := intEnv("CIHEALTH_ALERT_SNIPPET_LINES", 200)
	if err != nil {
		return nil, err
	}

	var branchFilters []string
	if v, ok := os.LookupEnv("CIHEALTH_BRANCH_FILTERS"); ok && v != "" {
		for _, branch := range strings.Split(v, ",") {
			branch = strings.TrimSpace(branch)
			if branch != "" {
				branchFilters = append(branchFilters, branch)
			}
		}
	}
	if branchFilters == nil {
		branchFilters = []string{}
	}

	logDir := "data/run-logs"
	if v, ok := os.LookupEnv("CIHEALTH_LOG_DIR"); ok && v != "" {
		logDir = v
	}

	alertsEnabled := true
	if v, ok := os.LookupEnv("CIHEALTH_ALERTS_ENABLED"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CIHEALTH_ALERTS_ENABLED has invalid bool %q: %w", v, err)
		}
		alertsEnabled = parsed
	}

	alertMention := "channel"
	if v, ok := os.LookupEnv("CIHEALTH_ALERT_MENTION"); ok {
		alertMention = strings.TrimSpace(v)
	}

	alertPrefix := "[CI Failure]"
	if v, ok := os.LookupEnv("CIHEALTH_ALERT_PREFIX"); ok && v != "" {
		alertPrefix = v
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("CIHEALTH_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "cihealth.db"
	if v, ok := os.LookupEnv("CIHEALTH_DB_PATH"); ok {
		dbPath = v
	}

	return &Config{
		GitHubToken:            token,
		PollInterval:           pollInterval,
		PollShards:             pollShards,
		BranchFilters:          branchFilters,
		MaxRunsPerRepo:         maxRuns,
		LogDir:                 logDir,
		MaxLogBytesPerJob:      maxLogBytes,
		LogRetention:           logRetention,
		RetentionSweepInterval: sweepInterval,
		AlertsEnabled:          alertsEnabled,
		SlackWebhookURL:        os.Getenv("CIHEALTH_SLACK_WEBHOOK_URL"),
		AlertMention:           alertMention,
		AlertPrefix:            alertPrefix,
		AlertSnippetLines:      snippetLines,
		ListenAddr:             listenAddr,
		DBPath:                 dbPath,
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}
