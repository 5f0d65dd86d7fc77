package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/cihealth/internal/adapter/driven/github"
	"github.com/ericfisherdev/cihealth/internal/adapter/driven/logdisk"
	slackadapter "github.com/ericfisherdev/cihealth/internal/adapter/driven/slack"
	sqliteadapter "github.com/ericfisherdev/cihealth/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/cihealth/internal/adapter/driving/http"
	"github.com/ericfisherdev/cihealth/internal/application"
	"github.com/ericfisherdev/cihealth/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"poll_shards", cfg.PollShards,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	repoStore := sqliteadapter.NewRepoRepo(db)
	runStore := sqliteadapter.NewRunRepo(db)
	jobStore := sqliteadapter.NewJobRepo(db)
	logStore := sqliteadapter.NewLogRecordRepo(db)
	blobStore := logdisk.NewStore(cfg.LogDir, slog.Default())
	notifier := slackadapter.NewNotifier(cfg.SlackWebhookURL, slog.Default())

	ghClient := githubadapter.NewClient(cfg.GitHubToken)
	slog.Info("github client created")

	// 6. Create the ingest service and sync the repository registry before
	// the first tick.
	ingestSvc := application.NewIngestService(
		ghClient,
		repoStore,
		runStore,
		jobStore,
		logStore,
		blobStore,
		notifier,
		application.IngestOptions{
			PollInterval:        cfg.PollInterval,
			PollShards:          cfg.PollShards,
			MaxRunsPerRepo:      cfg.MaxRunsPerRepo,
			MaxLogBytesPerJob:   cfg.MaxLogBytesPerJob,
			BranchFilters:       cfg.BranchFilters,
			LogRetention:        cfg.LogRetention,
			RetentionSweepEvery: cfg.RetentionSweepInterval,
			AlertsEnabled:       cfg.AlertsEnabled,
			AlertPrefix:         cfg.AlertPrefix,
			AlertMention:        cfg.AlertMention,
			AlertSnippetLines:   cfg.AlertSnippetLines,
		},
	)

	if err := ingestSvc.SyncRepositories(ctx); err != nil {
		return err
	}

	go ingestSvc.Start(ctx)

	// 7. Create HTTP handler and server.
	metricsSvc := application.NewMetricsService(runStore)
	apiHandler := httphandler.NewHandler(repoStore, runStore, jobStore, logStore, blobStore, metricsSvc, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("cihealth started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"alerts_enabled", cfg.AlertsEnabled,
	)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
