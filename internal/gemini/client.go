package gemini

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/config"
	"github.com/smashers-ai/smashers/internal/logging"
)

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultUploadURL = "https://generativelanguage.googleapis.com/upload/v1beta"
)

// Config configures a Client
type Config struct {
	APIKey       string
	BaseURL      string
	UploadURL    string
	PollInterval time.Duration
	PollTimeout  time.Duration
	Retry        RetryPolicy
}

// DefaultConfig returns production endpoints and timings for the given key
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:       apiKey,
		BaseURL:      DefaultBaseURL,
		UploadURL:    DefaultUploadURL,
		PollInterval: 2 * time.Second,
		PollTimeout:  10 * time.Minute,
		Retry:        DefaultRetryPolicy(),
	}
}

// FromSettings builds a Config from loaded settings. retries is the
// rate-limit retry budget for the path being configured.
func FromSettings(settings config.GeminiConfig, retries int) Config {
	cfg := DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}
	if settings.UploadURL != "" {
		cfg.UploadURL = settings.UploadURL
	}
	if settings.PollInterval > 0 {
		cfg.PollInterval = settings.PollInterval
	}
	if settings.PollTimeout > 0 {
		cfg.PollTimeout = settings.PollTimeout
	}
	cfg.Retry.MaxRetries = retries
	return cfg
}

// Client talks to the Gemini REST API with a single API key
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
	retryLabel string
	now        func() time.Time
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(l)
	}
}

// WithRetryLabel names the path reported on the retry metric, e.g. "proxy"
func WithRetryLabel(label string) Option {
	return func(c *Client) {
		c.retryLabel = label
	}
}

// NewClient creates a client. A blank key is a MissingCredential error.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperror.New(apperror.KindMissingCredential, "API key is required. Please add your Gemini API key in Settings.")
	}

	defaults := DefaultConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = defaults.UploadURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.UploadURL = strings.TrimRight(cfg.UploadURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logging.Nop(),
		retryLabel: "direct",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration
func (c *Client) Config() Config {
	return c.cfg
}

// endpoint joins base and path and appends the API key
func (c *Client) endpoint(base, path string) string {
	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	return fmt.Sprintf("%s/%s?%s", base, strings.TrimLeft(path, "/"), q.Encode())
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
