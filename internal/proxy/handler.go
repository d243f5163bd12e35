// Package proxy lets signed-in users on the privileged plan run analyses
// with the server's provider key. Handler is the server side; Client is
// what proxied callers use to reach it.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/middleware"
	"github.com/smashers-ai/smashers/internal/transcoder"
)

// Header carrying the display name on upload requests
const FileNameHeader = "X-File-Name"

// Error messages returned to callers
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgNoAuthorization  = "No authorization header"
	MsgServerConfig     = "Server configuration error"
	MsgInvalidToken     = "Unauthorized: Invalid token"
	MsgAccessDenied     = "Access denied: Alpha Smasher plan required"
	MsgMissingAIKey     = "Server configuration error: Missing AI Key"
	MsgInvalidRequest   = "Invalid request: model and contents are required"
)

// TokenVerifier resolves a session token to a user ID
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// PlanStore looks up a user's plan tier
type PlanStore interface {
	PlanTier(ctx context.Context, userID string) (string, error)
}

// Forwarder sends a generation request with the server key and returns the
// provider body untouched. *gemini.Client satisfies it.
type Forwarder interface {
	GenerateRaw(ctx context.Context, model string, req *gemini.Request) ([]byte, error)
}

// Uploader pushes a file to the provider with the server key. *gemini.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, f *gemini.UploadFile, onStatus gemini.StatusFunc) (*gemini.File, error)
}

// ForwardRequest is the body accepted by the proxy
type ForwardRequest struct {
	Model            string                   `json:"model"`
	Contents         []gemini.Content         `json:"contents"`
	GenerationConfig *gemini.GenerationConfig `json:"generationConfig,omitempty"`
}

// ErrorResponse is the body of every non-200 proxy response. Kind is set
// for provider failures so clients can tell rate limiting apart.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HandlerConfig wires a Handler. Nil collaborators produce the matching
// server configuration errors at request time.
type HandlerConfig struct {
	Verifier      TokenVerifier
	Plans         PlanStore
	Forwarder     Forwarder
	Uploader      Uploader
	RequiredTier  string
	MaxUploadSize int64
	Logger        *logging.Logger
}

// Handler serves the proxy routes
type Handler struct {
	cfg    HandlerConfig
	logger *logging.Logger
}

// NewHandler creates a handler
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.RequiredTier == "" {
		cfg.RequiredTier = "ALPHA SMASHER"
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = transcoder.MaxVideoSize
	}
	return &Handler{cfg: cfg, logger: logging.OrNop(cfg.Logger)}
}

// CORSConfig allows any origin to POST with a bearer token
func CORSConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "Authorization", FileNameHeader},
	}
}

// Register mounts the proxy at path and its upload companion at path+"/upload"
func (h *Handler) Register(r gin.IRouter, path string) {
	group := r.Group(path, cors.New(CORSConfig()))
	group.Any("", h.Forward)
	group.Any("/upload", h.Upload)
}

// Forward relays a generation request to the provider
func (h *Handler) Forward(c *gin.Context) {
	if !h.preamble(c) {
		return
	}
	if _, ok := h.authorize(c); !ok {
		return
	}

	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Model) == "" || len(req.Contents) == 0 {
		h.fail(c, http.StatusBadRequest, ErrorResponse{Error: MsgInvalidRequest})
		return
	}

	if h.cfg.Forwarder == nil {
		h.logger.Error("Missing provider API key")
		h.fail(c, http.StatusInternalServerError, ErrorResponse{Error: MsgMissingAIKey})
		return
	}

	raw, err := h.cfg.Forwarder.GenerateRaw(c.Request.Context(), req.Model, &gemini.Request{
		Contents:         req.Contents,
		GenerationConfig: req.GenerationConfig,
	})
	if err != nil {
		h.logger.WithError(err).WithField("model", req.Model).Error("Proxy error")
		h.fail(c, http.StatusInternalServerError, ErrorResponse{
			Error: apperror.Message(err),
			Kind:  string(apperror.KindOf(err)),
		})
		return
	}

	metrics.RecordProxyRequest(strconv.Itoa(http.StatusOK))
	c.Data(http.StatusOK, "application/json", raw)
}

// Upload streams a video to the provider with the server key and waits
// until it can be referenced in a generation request.
func (h *Handler) Upload(c *gin.Context) {
	if !h.preamble(c) {
		return
	}
	if _, ok := h.authorize(c); !ok {
		return
	}

	if h.cfg.Uploader == nil {
		h.fail(c, http.StatusInternalServerError, ErrorResponse{Error: MsgMissingAIKey})
		return
	}

	size := c.Request.ContentLength
	if size <= 0 {
		h.fail(c, http.StatusLengthRequired, ErrorResponse{Error: "Content-Length required"})
		return
	}
	if size > h.cfg.MaxUploadSize {
		h.fail(c, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "File size exceeds 2GB limit"})
		return
	}

	name := c.GetHeader(FileNameHeader)
	if name == "" {
		name = "video.mp4"
	}

	body := bufio.NewReaderSize(io.LimitReader(c.Request.Body, size), transcoder.HeaderSize)
	head, _ := body.Peek(transcoder.HeaderSize)
	mimeType, err := transcoder.ValidateVideoFile(name, size, head)
	if err != nil {
		h.fail(c, http.StatusBadRequest, ErrorResponse{Error: apperror.Message(err), Kind: string(apperror.KindOf(err))})
		return
	}

	file, err := h.cfg.Uploader.Upload(c.Request.Context(), &gemini.UploadFile{
		DisplayName: name,
		MIMEType:    mimeType,
		Size:        size,
		Body:        body,
	}, nil)
	if err != nil {
		h.logger.WithError(err).Error("Proxy upload failed")
		h.fail(c, http.StatusInternalServerError, ErrorResponse{
			Error: apperror.Message(err),
			Kind:  string(apperror.KindOf(err)),
		})
		return
	}

	metrics.RecordProxyRequest(strconv.Itoa(http.StatusOK))
	c.JSON(http.StatusOK, file)
}

// preamble handles OPTIONS and rejects anything other than POST
func (h *Handler) preamble(c *gin.Context) bool {
	switch c.Request.Method {
	case http.MethodOptions:
		c.JSON(http.StatusOK, gin.H{})
		return false
	case http.MethodPost:
		return true
	default:
		h.fail(c, http.StatusMethodNotAllowed, ErrorResponse{Error: MsgMethodNotAllowed})
		return false
	}
}

// authorize checks the bearer token and plan tier, writing the error response on failure
func (h *Handler) authorize(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		h.fail(c, http.StatusUnauthorized, ErrorResponse{Error: MsgNoAuthorization})
		return "", false
	}

	if h.cfg.Verifier == nil || h.cfg.Plans == nil {
		h.logger.Error("Missing auth configuration")
		h.fail(c, http.StatusInternalServerError, ErrorResponse{Error: MsgServerConfig})
		return "", false
	}

	token := strings.TrimPrefix(header, "Bearer ")
	userID, err := h.cfg.Verifier.Verify(c.Request.Context(), token)
	if err != nil || userID == "" {
		h.fail(c, http.StatusUnauthorized, ErrorResponse{Error: MsgInvalidToken})
		return "", false
	}

	tier, err := h.cfg.Plans.PlanTier(c.Request.Context(), userID)
	if err != nil || tier != h.cfg.RequiredTier {
		if err != nil && !errors.Is(err, apperror.NotFound) {
			h.logger.WithError(err).WithUserID(userID).Warn("Plan lookup failed")
		}
		h.fail(c, http.StatusForbidden, ErrorResponse{Error: MsgAccessDenied})
		return "", false
	}

	c.Set(middleware.AuthContextKey, userID)
	return userID, true
}

func (h *Handler) fail(c *gin.Context, status int, body ErrorResponse) {
	metrics.RecordProxyRequest(strconv.Itoa(status))
	c.AbortWithStatusJSON(status, body)
}
