package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Plan tier cache

func planKey(userID string) string {
	return fmt.Sprintf("plan:%s", userID)
}

// SetPlanTier caches a user's plan tier
func (c *Cache) SetPlanTier(ctx context.Context, userID, tier string, ttl time.Duration) error {
	return c.client.Set(ctx, planKey(userID), tier, ttl).Err()
}

// GetPlanTier returns the cached tier, or "" on a miss
func (c *Cache) GetPlanTier(ctx context.Context, userID string) (string, error) {
	tier, err := c.client.Get(ctx, planKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheAccess("plan", false)
			return "", nil // Cache miss
		}
		return "", fmt.Errorf("failed to get plan tier from cache: %w", err)
	}
	metrics.RecordCacheAccess("plan", true)
	return tier, nil
}

// DeletePlanTier drops a cached tier after the profile changes
func (c *Cache) DeletePlanTier(ctx context.Context, userID string) error {
	return c.client.Del(ctx, planKey(userID)).Err()
}

// Video duration cache

func durationKey(videoID string) string {
	return fmt.Sprintf("youtube:duration:%s", videoID)
}

// SetVideoDuration caches a YouTube video's duration in seconds
func (c *Cache) SetVideoDuration(ctx context.Context, videoID string, seconds float64, ttl time.Duration) error {
	return c.client.Set(ctx, durationKey(videoID), seconds, ttl).Err()
}

// GetVideoDuration returns a cached duration. ok is false on a miss.
func (c *Cache) GetVideoDuration(ctx context.Context, videoID string) (seconds float64, ok bool, err error) {
	seconds, err = c.client.Get(ctx, durationKey(videoID)).Float64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheAccess("youtube_duration", false)
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get video duration from cache: %w", err)
	}
	metrics.RecordCacheAccess("youtube_duration", true)
	return seconds, true, nil
}

// Job status cache

func jobKey(jobID string) string {
	return fmt.Sprintf("job:status:%s", jobID)
}

// SetJobStatus stores the latest status of an analysis job
func (c *Cache) SetJobStatus(ctx context.Context, status *models.JobStatus, ttl time.Duration) error {
	return c.SetWithJSON(ctx, jobKey(status.JobID), status, ttl)
}

// GetJobStatus retrieves a job status, or nil on a miss
func (c *Cache) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	var status models.JobStatus
	found, err := c.GetWithJSON(ctx, jobKey(jobID), &status)
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheAccess("job_status", found)
	if !found {
		return nil, nil // Cache miss
	}
	return &status, nil
}

// Rate Limiting Operations

// CheckRateLimit checks if a rate limit has been exceeded
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	// Increment counter
	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetWithJSON gets a value with JSON unmarshaling. found is false on a miss.
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) (found bool, err error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
