package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/tracing"
)

// Generate sends a generateContent request and decodes the response.
// HTTP 429 is retried according to the configured RetryPolicy.
func (c *Client) Generate(ctx context.Context, model string, req *Request) (*Response, error) {
	raw, err := c.GenerateRaw(ctx, model, req)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(raw)
}

// GenerateRaw is Generate without decoding, for callers that forward the provider body untouched
func (c *Client) GenerateRaw(ctx context.Context, model string, req *Request) ([]byte, error) {
	span, ctx := tracing.StartSpan(ctx, "gemini.generate")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "model", model)

	if req.GenerationConfig == nil {
		req.GenerationConfig = DefaultGenerationConfig()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out []byte
	err = c.cfg.Retry.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			metrics.RecordProviderRetry(c.retryLabel)
		}
		var callErr error
		out, callErr = c.generateOnce(ctx, model, body, attempt+1)
		return callErr
	})
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	return out, nil
}

func (c *Client) generateOnce(ctx context.Context, model string, body []byte, attempt int) ([]byte, error) {
	path := fmt.Sprintf("models/%s:generateContent", url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.BaseURL, path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, respBody, err := c.do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.LogProviderCall("generateContent", model, 0, attempt, duration, err)
		metrics.RecordProviderCall("generateContent", "transport_error", duration.Seconds())
		return nil, apperror.Wrap(apperror.KindProvider, "Failed to reach the analysis provider", err)
	}
	metrics.RecordProviderCall("generateContent", strconv.Itoa(resp.StatusCode), duration.Seconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err = apperror.New(apperror.KindRateLimited, "Rate limit exceeded")
	case !isSuccess(resp.StatusCode):
		msg := providerMessage(respBody)
		if msg == "" {
			msg = fmt.Sprintf("API request failed: %d", resp.StatusCode)
		}
		err = apperror.New(apperror.KindProvider, msg)
	}
	c.logger.LogProviderCall("generateContent", model, resp.StatusCode, attempt, duration, err)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}
