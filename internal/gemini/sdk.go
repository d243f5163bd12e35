package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
)

// Generator produces a response for a generateContent request.
// *Client and *SDKGenerator both implement it.
type Generator interface {
	Generate(ctx context.Context, model string, req *Request) (*Response, error)
}

var (
	_ Generator = (*Client)(nil)
	_ Generator = (*SDKGenerator)(nil)
)

// SDKGenerator generates through the official genai SDK instead of raw REST.
// Uploads still go through Client since the SDK path only covers generation.
type SDKGenerator struct {
	client *genai.Client
	retry  RetryPolicy
	logger *logging.Logger
}

// SDKConfig configures an SDKGenerator
type SDKConfig struct {
	APIKey     string
	BaseURL    string // optional override, mostly for tests
	HTTPClient *http.Client
	Retry      RetryPolicy
	Logger     *logging.Logger
}

// NewSDKGenerator creates a genai-backed generator
func NewSDKGenerator(ctx context.Context, cfg SDKConfig) (*SDKGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperror.New(apperror.KindMissingCredential, "API key is required. Please add your Gemini API key in Settings.")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &SDKGenerator{
		client: client,
		retry:  cfg.Retry,
		logger: logging.OrNop(cfg.Logger),
	}, nil
}

// Generate implements Generator
func (g *SDKGenerator) Generate(ctx context.Context, model string, req *Request) (*Response, error) {
	contents := toSDKContents(req)
	config := toSDKConfig(req.GenerationConfig)

	var result *genai.GenerateContentResponse
	err := g.retry.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			metrics.RecordProviderRetry("direct")
		}
		start := time.Now()
		var callErr error
		result, callErr = g.client.Models.GenerateContent(ctx, model, contents, config)
		callErr = classifySDKError(callErr)
		g.logger.LogProviderCall("generateContent.sdk", model, sdkStatus(callErr), attempt+1, time.Since(start), callErr)
		metrics.RecordProviderCall("generateContent.sdk", strconv.Itoa(sdkStatus(callErr)), time.Since(start).Seconds())
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return fromSDKResponse(result), nil
}

func toSDKContents(req *Request) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.Contents))
	for _, c := range req.Contents {
		parts := make([]*genai.Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			switch {
			case p.FileData != nil:
				parts = append(parts, genai.NewPartFromURI(p.FileData.FileURI, p.FileData.MIMEType))
			case p.Text != "":
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		role := genai.Role(c.Role)
		if role == "" {
			role = genai.RoleUser
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}

func toSDKConfig(gc *GenerationConfig) *genai.GenerateContentConfig {
	if gc == nil {
		gc = DefaultGenerationConfig()
	}
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](float32(gc.Temperature)),
		MaxOutputTokens:  int32(gc.MaxOutputTokens),
		ResponseMIMEType: gc.ResponseMIMEType,
	}
}

// fromSDKResponse maps the SDK result onto Response so parsing is shared
// with the REST path. Missing pieces stay missing for Response.Text to report.
func fromSDKResponse(result *genai.GenerateContentResponse) *Response {
	resp := &Response{}
	if result == nil {
		return resp
	}
	if result.UsageMetadata != nil {
		resp.UsageMetadata = &UsageMetadata{
			PromptTokenCount:     int(result.UsageMetadata.PromptTokenCount),
			CandidatesTokenCount: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokenCount:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	resp.ModelVersion = result.ModelVersion

	for _, cand := range result.Candidates {
		out := Candidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			content := &Content{Role: cand.Content.Role}
			for _, p := range cand.Content.Parts {
				if p == nil || p.Thought {
					continue
				}
				content.Parts = append(content.Parts, Part{Text: p.Text})
			}
			out.Content = content
		}
		resp.Candidates = append(resp.Candidates, out)
	}
	return resp
}

func sdkAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func classifySDKError(err error) error {
	if err == nil {
		return nil
	}
	apiErr, ok := sdkAPIError(err)
	if !ok {
		return apperror.Wrap(apperror.KindProvider, "Failed to reach the analysis provider", err)
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return apperror.Wrap(apperror.KindRateLimited, "Rate limit exceeded", err)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("API request failed: %d", apiErr.Code)
	}
	return apperror.Wrap(apperror.KindProvider, msg, err)
}

func sdkStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if apiErr, ok := sdkAPIError(err); ok {
		return apiErr.Code
	}
	return 0
}
