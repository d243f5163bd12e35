package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/smashers-ai/smashers/internal/cache"
	"github.com/smashers-ai/smashers/internal/config"
	"github.com/smashers-ai/smashers/internal/database"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/middleware"
	"github.com/smashers-ai/smashers/internal/profile"
	"github.com/smashers-ai/smashers/internal/proxy"
	"github.com/smashers-ai/smashers/internal/queue"
	"github.com/smashers-ai/smashers/internal/storage"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/internal/tracing"
	"github.com/smashers-ai/smashers/internal/youtube"
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

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName+"-api", cfg.Tracing.Endpoint)
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

	profiles := profile.NewService(profile.NewPGRepository(db), redisCache, cfg.Proxy.PlanCacheTTL, logger)
	verifier := middleware.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)

	api := &API{
		histories: func(userID string) history.Store {
			return history.NewPGStore(db, userID)
		},
		profiles:      profiles,
		queue:         q,
		sources:       stor,
		statuses:      redisCache,
		checkKey:      keyChecker(cfg.Gemini, logger),
		pricing:       timeutil.Pricing{TokensPerSecond: cfg.Pricing.TokensPerSecond, CostPerMillion: cfg.Pricing.CostPerMillion},
		statusTTL:     cfg.Jobs.StatusTTL,
		maxUploadSize: cfg.Server.MaxUploadSize,
		health: func(ctx context.Context) error {
			if err := db.Health(ctx); err != nil {
				return err
			}
			return redisCache.Ping(ctx)
		},
		logger: logger,
	}

	if cfg.YouTube.APIKey != "" {
		yt, err := youtube.NewClient(ctx, youtube.Config{
			APIKey:   cfg.YouTube.APIKey,
			Endpoint: cfg.YouTube.Endpoint,
			CacheTTL: cfg.YouTube.CacheTTL,
		}, redisCache, logger)
		if err != nil {
			logger.Fatalf("Failed to create YouTube client: %v", err)
		}
		api.youtube = yt
	} else {
		logger.Warn("YouTube API key not set, durations must be supplied by callers")
	}

	proxyConfig := proxy.HandlerConfig{
		Verifier:      verifier,
		Plans:         profiles,
		RequiredTier:  cfg.Proxy.RequiredTier,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        logger,
	}
	serverClient, err := gemini.NewClient(
		gemini.FromSettings(cfg.Gemini, cfg.Proxy.MaxRetries),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.Gemini.RequestTimeout}),
		gemini.WithLogger(logger),
		gemini.WithRetryLabel("proxy"),
	)
	if err != nil {
		logger.WithError(err).Warn("Server provider key not set, the analysis proxy will reject requests")
	} else {
		proxyConfig.Forwarder = serverClient
		proxyConfig.Uploader = serverClient
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx)

	router := setupRouter(api, RouterConfig{
		Verifier:          verifier,
		Limiter:           limiter,
		Quota:             redisCache,
		AnalysesPerWindow: cfg.RateLimit.AnalysesPerWindow,
		AnalysisWindow:    cfg.RateLimit.AnalysisWindow,
		Proxy:             proxy.NewHandler(proxyConfig),
		Logger:            logger,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Metrics server forced to shutdown", err)
		}
	}

	logger.Info("Server stopped")
}

func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}

// keyChecker validates a caller's own key with a single unretried request
func keyChecker(settings config.GeminiConfig, logger *logging.Logger) KeyChecker {
	return func(ctx context.Context, apiKey, model string) (bool, error) {
		settings.APIKey = apiKey
		client, err := gemini.NewClient(gemini.FromSettings(settings, 0), gemini.WithLogger(logger))
		if err != nil {
			return false, err
		}
		return client.CheckKey(ctx, model)
	}
}
