package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/logging"
)

// Client calls a proxy Handler on behalf of a signed-in user
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption customises a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(l)
	}
}

// NewClient creates a client for the proxy at url using the given session token
func NewClient(url, token string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperror.New(apperror.KindMissingCredential, "Sign in to use the shared analysis service")
	}
	if strings.TrimSpace(url) == "" {
		return nil, apperror.New(apperror.KindMissingCredential, "Analysis proxy URL is not configured")
	}

	c := &Client{
		url:        strings.TrimRight(url, "/"),
		token:      token,
		httpClient: &http.Client{},
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate sends the request through the proxy. Rate limiting is retried
// on the server side, so a RateLimited error here is final.
func (c *Client) Generate(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error) {
	body, err := json.Marshal(ForwardRequest{
		Model:            model,
		Contents:         req.Contents,
		GenerationConfig: req.GenerationConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	respBody, status, err := c.do(httpReq)
	c.logger.LogProviderCall("proxy.generate", model, status, 1, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return gemini.DecodeResponse(respBody)
}

// Upload sends a local video through the proxy's upload route
func (c *Client) Upload(ctx context.Context, f *gemini.UploadFile, onStatus gemini.StatusFunc) (*gemini.File, error) {
	notify := func(s string) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/upload", f.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.ContentLength = f.Size
	httpReq.Header.Set("Content-Type", f.MIMEType)
	httpReq.Header.Set(FileNameHeader, f.DisplayName)

	notify(gemini.StatusUploading)
	respBody, _, err := c.do(httpReq)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindProvider {
			return nil, apperror.Wrap(apperror.KindUploadTransfer, apperror.Message(err), err)
		}
		return nil, err
	}
	notify(gemini.StatusProcessing)

	var file gemini.File
	if err := json.Unmarshal(respBody, &file); err != nil || file.URI == "" {
		return nil, apperror.New(apperror.KindUploadTransfer, "Upload failed: no file reference returned")
	}
	return &file, nil
}

// do sends the request with the bearer token and maps error bodies back to kinds
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperror.Wrap(apperror.KindProvider, "Failed to reach the analysis proxy", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, apperror.Wrap(apperror.KindProvider, "Failed to read proxy response", err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, resp.StatusCode, nil
	}
	return nil, resp.StatusCode, decodeError(resp.StatusCode, body)
}

func decodeError(status int, body []byte) error {
	var e ErrorResponse
	_ = json.Unmarshal(body, &e)
	msg := e.Error
	if msg == "" {
		msg = "Proxy request failed: " + strconv.Itoa(status)
	}

	if e.Kind != "" {
		return apperror.New(apperror.Kind(e.Kind), msg)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperror.New(apperror.KindMissingCredential, msg)
	case http.StatusTooManyRequests:
		return apperror.New(apperror.KindRateLimited, msg)
	default:
		return apperror.New(apperror.KindProvider, msg)
	}
}
