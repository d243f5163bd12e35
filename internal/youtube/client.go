// Package youtube looks up video metadata through the YouTube Data API.
package youtube

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
)

// DurationCache stores looked-up durations. *cache.Cache satisfies it.
type DurationCache interface {
	GetVideoDuration(ctx context.Context, videoID string) (float64, bool, error)
	SetVideoDuration(ctx context.Context, videoID string, seconds float64, ttl time.Duration) error
}

// Config configures a Client
type Config struct {
	APIKey   string
	Endpoint string // overrides the API base URL, mostly for tests
	CacheTTL time.Duration
}

// Client fetches video durations
type Client struct {
	service *youtube.Service
	cache   DurationCache
	ttl     time.Duration
	logger  *logging.Logger
}

// NewClient creates a client. cache may be nil.
func NewClient(ctx context.Context, cfg Config, cache DurationCache, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperror.New(apperror.KindMissingCredential, "API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Client{
		service: service,
		cache:   cache,
		ttl:     ttl,
		logger:  logging.OrNop(logger),
	}, nil
}

// Duration returns the length of a video in seconds
func (c *Client) Duration(ctx context.Context, videoID string) (float64, error) {
	if c.cache != nil {
		if seconds, ok, err := c.cache.GetVideoDuration(ctx, videoID); err != nil {
			c.logger.WithError(err).Warn("Duration cache lookup failed")
		} else if ok {
			return seconds, nil
		}
	}

	start := time.Now()
	resp, err := c.service.Videos.List([]string{"contentDetails"}).Id(videoID).Context(ctx).Do()
	metrics.RecordProviderCall("youtube_videos_list", metrics.Status(err), time.Since(start).Seconds())
	if err != nil {
		return 0, apperror.Wrap(apperror.KindProvider, "Failed to fetch YouTube metadata", err)
	}

	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil {
		return 0, apperror.New(apperror.KindNotFound, "YouTube video not found")
	}

	seconds := float64(ParseISODuration(resp.Items[0].ContentDetails.Duration))

	if c.cache != nil {
		if err := c.cache.SetVideoDuration(ctx, videoID, seconds, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Failed to cache video duration")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"video_id": videoID,
		"duration": seconds,
	}).Debug("Fetched YouTube duration")

	return seconds, nil
}

var isoDurationRegex = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseISODuration converts an ISO 8601 duration such as PT1H2M10S to
// seconds. Unrecognised input yields 0.
func ParseISODuration(duration string) int {
	matches := isoDurationRegex.FindStringSubmatch(duration)
	if len(matches) == 0 {
		return 0
	}

	var total int
	for i, unit := range []int{3600, 60, 1} {
		if matches[i+1] == "" {
			continue
		}
		if n, err := strconv.Atoi(matches[i+1]); err == nil {
			total += n * unit
		}
	}
	return total
}
