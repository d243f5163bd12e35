package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/smashers-ai/smashers/internal/analysis"
	"github.com/smashers-ai/smashers/internal/config"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/internal/youtube"
)

// SessionTokenEnv holds the proxy session token for proxied analyses
const SessionTokenEnv = "SMASHERS_SESSION_TOKEN"

// localUser owns every entry in the local history file
const localUser = "local"

var errUsage = errors.New("usage")

type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	stdout     io.Writer
	stderr     io.Writer
	httpClient *http.Client
}

func newApp(stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(os.Getenv("SMASHERS_CONFIG"))
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		stdout:     stdout,
		stderr:     stderr,
		httpClient: &http.Client{Timeout: cfg.Gemini.RequestTimeout},
	}, nil
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func (a *app) store(path string) *history.FileStore {
	if path == "" {
		path = a.cfg.History.FilePath
	}
	return history.NewFileStore(path, a.logger)
}

func (a *app) pricing() timeutil.Pricing {
	return timeutil.Pricing{TokensPerSecond: a.cfg.Pricing.TokensPerSecond, CostPerMillion: a.cfg.Pricing.CostPerMillion}
}

// credential prefers an explicit key, then a proxy session
func (a *app) credential(apiKey, sessionToken string) analysis.Credential {
	if apiKey = strings.TrimSpace(apiKey); apiKey == "" {
		apiKey = a.cfg.Gemini.APIKey
	}
	if apiKey != "" {
		return analysis.DirectKey(apiKey)
	}
	if sessionToken == "" {
		sessionToken = os.Getenv(SessionTokenEnv)
	}
	if sessionToken != "" {
		return analysis.Proxied(sessionToken)
	}
	return analysis.Credential{}
}

func (a *app) analyzer(proxyURL string) *analysis.Analyzer {
	if proxyURL == "" {
		proxyURL = a.cfg.Proxy.URL
	}
	return analysis.New(analysis.Config{
		Direct: analysis.DirectFactory(
			gemini.FromSettings(a.cfg.Gemini, a.cfg.Gemini.DirectRetries),
			a.cfg.Gemini.Transport,
			a.httpClient,
			a.logger,
		),
		Proxied: analysis.ProxyFactory(proxyURL, a.httpClient, a.logger),
		Pricing: a.pricing(),
		Logger:  a.logger,
	})
}

// videoDuration looks up a YouTube video's length, or 0 when lookups are not configured
func (a *app) videoDuration(ctx context.Context, id string) float64 {
	if a.cfg.YouTube.APIKey == "" {
		return 0
	}
	client, err := youtube.NewClient(ctx, youtube.Config{
		APIKey:   a.cfg.YouTube.APIKey,
		Endpoint: a.cfg.YouTube.Endpoint,
	}, nil, a.logger)
	if err != nil {
		a.logger.WithError(err).Warn("YouTube lookups unavailable")
		return 0
	}
	seconds, err := client.Duration(ctx, id)
	if err != nil {
		a.logger.WithError(err).WithField("video_id", id).Warn("Could not resolve video duration")
		return 0
	}
	return seconds
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.stdout, format, args...)
}
