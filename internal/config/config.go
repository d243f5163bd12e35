package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Transcoder TranscoderConfig
	Gemini     GeminiConfig
	YouTube    YouTubeConfig
	Proxy      ProxyConfig
	Pricing    PricingConfig
	History    HistoryConfig
	Jobs       JobsConfig
	Webhook    WebhookConfig
	Scheduler  SchedulerConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadSize   int64
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	Audience  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	URLExpiry       time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// TranscoderConfig holds clip trimming configuration
type TranscoderConfig struct {
	FFmpegPath      string
	FFprobePath     string
	TempDir         string
	WorkspaceMaxAge time.Duration
}

// GeminiConfig holds generation provider configuration
type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	UploadURL      string
	DefaultModel   string
	Transport      string // rest, sdk
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	DirectRetries  int
}

// YouTubeConfig holds YouTube Data API configuration
type YouTubeConfig struct {
	APIKey   string
	Endpoint string
	CacheTTL time.Duration
}

// ProxyConfig holds settings for the shared-credential proxy, both the
// server side and the client used by proxied callers
type ProxyConfig struct {
	URL          string
	RequiredTier string
	MaxRetries   int
	PlanCacheTTL time.Duration
}

// PricingConfig holds token and cost calibration values
type PricingConfig struct {
	TokensPerSecond float64
	CostPerMillion  float64
}

// HistoryConfig holds analysis history settings
type HistoryConfig struct {
	FilePath     string
	SummaryLimit int
}

// JobsConfig holds background job settings
type JobsConfig struct {
	StatusTTL time.Duration
}

// WebhookConfig holds completion callback settings
type WebhookConfig struct {
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// SchedulerConfig holds cron schedules
type SchedulerConfig struct {
	CleanupSchedule string
}

// RateLimitConfig holds per-caller request limits
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	AnalysesPerWindow int64
	AnalysisWindow    time.Duration
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds Prometheus exporter settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Load reads configuration from an optional .env file, the YAML config file
// and environment variables. configPath may be empty to use defaults and env only.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks combinations that defaults cannot guarantee
func (c *Config) Validate() error {
	switch c.Gemini.Transport {
	case "rest", "sdk":
	default:
		return fmt.Errorf("gemini.transport must be rest or sdk, got %q", c.Gemini.Transport)
	}
	if c.Gemini.PollInterval <= 0 {
		return fmt.Errorf("gemini.pollInterval must be positive")
	}
	if c.Gemini.PollTimeout < c.Gemini.PollInterval {
		return fmt.Errorf("gemini.pollTimeout must be at least gemini.pollInterval")
	}
	if c.Gemini.DirectRetries < 0 || c.Proxy.MaxRetries < 0 {
		return fmt.Errorf("retry counts cannot be negative")
	}
	if c.Pricing.TokensPerSecond <= 0 || c.Pricing.CostPerMillion < 0 {
		return fmt.Errorf("pricing values must be positive")
	}
	return nil
}

// bindEnv maps the conventional provider variable names onto config keys
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("gemini.apiKey", "GEMINI_API_KEY")
	_ = v.BindEnv("youtube.apiKey", "YOUTUBE_API_KEY")
	_ = v.BindEnv("auth.jwtSecret", "SUPABASE_JWT_SECRET")
	_ = v.BindEnv("proxy.url", "SMASHERS_PROXY_URL")
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "60s")
	v.SetDefault("server.writeTimeout", "15m")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.maxUploadSize", int64(2*1024*1024*1024))

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.audience", "authenticated")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "smashers")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 2)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "smashers-videos")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.urlExpiry", "1h")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Transcoder defaults
	v.SetDefault("transcoder.ffmpegPath", "ffmpeg")
	v.SetDefault("transcoder.ffprobePath", "ffprobe")
	v.SetDefault("transcoder.tempDir", os.TempDir())
	v.SetDefault("transcoder.workspaceMaxAge", "6h")

	// Gemini defaults
	v.SetDefault("gemini.apiKey", "")
	v.SetDefault("gemini.baseURL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.uploadURL", "https://generativelanguage.googleapis.com/upload/v1beta")
	v.SetDefault("gemini.defaultModel", "gemini-2.0-flash")
	v.SetDefault("gemini.transport", "rest")
	v.SetDefault("gemini.pollInterval", "2s")
	v.SetDefault("gemini.pollTimeout", "10m")
	v.SetDefault("gemini.requestTimeout", "10m")
	v.SetDefault("gemini.directRetries", 3)

	// YouTube defaults
	v.SetDefault("youtube.apiKey", "")
	v.SetDefault("youtube.endpoint", "")
	v.SetDefault("youtube.cacheTTL", "24h")

	// Proxy defaults
	v.SetDefault("proxy.url", "")
	v.SetDefault("proxy.requiredTier", "ALPHA SMASHER")
	v.SetDefault("proxy.maxRetries", 3)
	v.SetDefault("proxy.planCacheTTL", "5m")

	// Pricing defaults
	v.SetDefault("pricing.tokensPerSecond", 258)
	v.SetDefault("pricing.costPerMillion", 0.075)

	// History defaults
	v.SetDefault("history.filePath", "smashers_history.json")
	v.SetDefault("history.summaryLimit", 3)

	// Jobs defaults
	v.SetDefault("jobs.statusTTL", "24h")

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "30s")
	v.SetDefault("webhook.maxAttempts", 3)

	// Scheduler defaults
	v.SetDefault("scheduler.cleanupSchedule", "@every 30m")

	// Rate limit defaults
	v.SetDefault("rateLimit.requestsPerSecond", 5)
	v.SetDefault("rateLimit.burst", 10)
	v.SetDefault("rateLimit.analysesPerWindow", 20)
	v.SetDefault("rateLimit.analysisWindow", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "smashers")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
}
