// Package main provides the FileForge API server entrypoint.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/convert"
	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
	"github.com/fileforge/fileforge/internal/runner"
	"github.com/fileforge/fileforge/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Int("max_concurrent_jobs", cfg.Convert.MaxConcurrentJobs).
		Msg("Starting FileForge API")

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ArtifactDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			logger.Fatal().Str("dir", dir).Err(err).Msg("Could not create storage directory")
		}
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not initialize job store")
	}
	defer store.Close()

	registry := convert.NewRegistry(logger, convert.ToolConfig{
		FFmpegBin:            cfg.Convert.FFmpegBin,
		SofficeBin:           cfg.Convert.SofficeBin,
		TesseractBin:         cfg.Convert.TesseractBin,
		SevenZipBin:          cfg.Convert.SevenZipBin,
		ScannedTextThreshold: cfg.Convert.ScannedTextThreshold,
	})

	jobs := runner.New(store, registry, logger, runner.Config{
		ArtifactDir:        cfg.Storage.ArtifactDir,
		JobTimeout:         cfg.Convert.JobTimeout,
		MaxConcurrentJobs:  cfg.Convert.MaxConcurrentJobs,
		DownloadGraceDelay: cfg.Convert.DownloadGraceDelay,
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.New(
		[]string{cfg.Storage.UploadDir, cfg.Storage.ArtifactDir},
		cfg.Retention.RetentionWindow,
		cfg.Retention.SweepInterval,
		logger,
	).Run(sweepCtx)

	router := NewRouter(logger, cfg, store, jobs)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	stopSweeper()
	if err := jobs.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("In-flight conversions did not finish before shutdown")
	}

	logger.Info().Msg("Server stopped")
}

// newStore builds the job store named by the configured driver.
func newStore(cfg *config.Config) (job.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return job.NewMemoryStore(), nil

	case "sqlite":
		dsn := fmt.Sprintf("%s?_journal_mode=%s", cfg.Store.SQLite.Path, cfg.Store.SQLite.JournalMode)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(cfg.Store.SQLite.MaxOpenConns)
		return job.NewSQLStore(db)

	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Store.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Store.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Store.Postgres.ConnMaxLifetime)
		return job.NewSQLStore(db)

	case "redis":
		return job.NewRedisStore(job.RedisStoreConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			PoolSize: cfg.Store.Redis.PoolSize,
			TTL:      cfg.Retention.RetentionWindow,
		})

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
