// Package webhook delivers signed job callbacks.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/pkg/models"
)

// Headers set on every delivery
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderSignature = "X-Webhook-Signature"
)

var retryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	1 * time.Minute,
}

// Config configures delivery
type Config struct {
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// Service handles webhook delivery and retry logic
type Service struct {
	client      *http.Client
	secret      string
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *logging.Logger
}

// NewService creates a new webhook service
func NewService(cfg Config, logger *logging.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Service{
		client:      &http.Client{Timeout: timeout},
		secret:      cfg.Secret,
		maxAttempts: attempts,
		sleep:       sleepContext,
		logger:      logging.OrNop(logger),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send posts event to url, retrying non-2xx responses and transport errors
func (s *Service) Send(ctx context.Context, url, event string, data interface{}) error {
	payload, err := json.Marshal(models.WebhookEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveryID := uuid.New().String()
	logger := s.logger.WithFields(map[string]interface{}{"event": event, "delivery_id": deliveryID})

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, delay(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = s.deliver(ctx, url, event, deliveryID, payload)
		if lastErr == nil {
			logger.WithField("attempt", attempt).Info("Webhook delivered")
			return nil
		}
		logger.WithField("attempt", attempt).WithError(lastErr).Warn("Webhook delivery failed")
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func delay(retry int) time.Duration {
	if retry > len(retryDelays) {
		retry = len(retryDelays)
	}
	return retryDelays[retry-1]
}

// deliver attempts to deliver a webhook
func (s *Service) deliver(ctx context.Context, url, event, deliveryID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Smashers-Webhook/1.0")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDelivery, deliveryID)

	if s.secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Sign generates the HMAC-SHA256 signature for a payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// NotifyCompleted reports a finished analysis
func (s *Service) NotifyCompleted(ctx context.Context, url string, status *models.JobStatus) error {
	return s.Send(ctx, url, models.WebhookEventAnalysisCompleted, status)
}

// NotifyFailed reports a failed analysis
func (s *Service) NotifyFailed(ctx context.Context, url string, status *models.JobStatus) error {
	return s.Send(ctx, url, models.WebhookEventAnalysisFailed, status)
}
