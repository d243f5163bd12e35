package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/smashers-ai/smashers/internal/analysis"
	"github.com/smashers-ai/smashers/internal/cache"
	"github.com/smashers-ai/smashers/internal/config"
	"github.com/smashers-ai/smashers/internal/database"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/jobs"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/queue"
	"github.com/smashers-ai/smashers/internal/scheduler"
	"github.com/smashers-ai/smashers/internal/storage"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/internal/tracing"
	"github.com/smashers-ai/smashers/internal/transcoder"
	"github.com/smashers-ai/smashers/internal/webhook"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if cfg.Gemini.APIKey == "" {
		logger.Fatalf("GEMINI_API_KEY is required for the worker")
	}

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName+"-worker", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer closer.Close()
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Failed to prepare schema: %v", err)
	}

	// Initialize cache
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to cache: %v", err)
	}
	defer redisCache.Close()

	// Initialize storage
	stor, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	engine := transcoder.NewEngine(transcoder.BinaryLoader(cfg.Transcoder.FFmpegPath, cfg.Transcoder.FFprobePath, logger))
	defer engine.Close()

	httpClient := &http.Client{Timeout: cfg.Gemini.RequestTimeout}
	analyzer := analysis.New(analysis.Config{
		Direct: analysis.DirectFactory(
			gemini.FromSettings(cfg.Gemini, cfg.Gemini.DirectRetries),
			cfg.Gemini.Transport,
			httpClient,
			logger,
		),
		Pricing: timeutil.Pricing{TokensPerSecond: cfg.Pricing.TokensPerSecond, CostPerMillion: cfg.Pricing.CostPerMillion},
		Logger:  logger,
	})

	processor := jobs.NewProcessor(jobs.Config{
		Sources:  stor,
		Clips:    stor,
		Trimmer:  transcoder.NewTrimmer(engine, cfg.Transcoder.TempDir, logger),
		Analyzer: analyzer,
		History: func(userID string) history.Store {
			return history.NewPGStore(db, userID)
		},
		Statuses: redisCache,
		Notifier: webhook.NewService(webhook.Config{
			Secret:      cfg.Webhook.Secret,
			Timeout:     cfg.Webhook.Timeout,
			MaxAttempts: cfg.Webhook.MaxAttempts,
		}, logger),
		Credential:   analysis.DirectKey(cfg.Gemini.APIKey),
		StatusTTL:    cfg.Jobs.StatusTTL,
		SummaryLimit: cfg.History.SummaryLimit,
		TempDir:      cfg.Transcoder.TempDir,
		Logger:       logger,
	})

	cleanup := scheduler.New(scheduler.Config{
		Schedule: cfg.Scheduler.CleanupSchedule,
		TempDir:  cfg.Transcoder.TempDir,
		MaxAge:   cfg.Transcoder.WorkspaceMaxAge,
	}, redisCache, logger)
	go func() {
		if err := cleanup.Start(ctx); err != nil {
			logger.ErrorWithErr("Cleanup scheduler stopped", err)
		}
	}()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Start consuming jobs
	logger.Info("Worker started, waiting for jobs...")
	if err := q.ConsumeJobs(ctx, processor.Handle); err != nil {
		logger.Fatalf("Failed to consume jobs: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Metrics server forced to shutdown", err)
		}
	}

	logger.Info("Worker stopped")
}
