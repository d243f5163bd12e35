package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/middleware"
	"github.com/smashers-ai/smashers/internal/proxy"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/pkg/models"
)

// JobQueue publishes analysis jobs
type JobQueue interface {
	PublishJob(ctx context.Context, job *models.AnalysisJob) error
}

// SourceStore keeps uploaded videos for the worker and the clips it trims
type SourceStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, mimeType string) error
	Delete(ctx context.Context, objectName string) error
	DeleteAll(ctx context.Context, prefix string) error
}

// JobStatuses stores job progress
type JobStatuses interface {
	SetJobStatus(ctx context.Context, status *models.JobStatus, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
}

// DurationLookup resolves YouTube video lengths
type DurationLookup interface {
	Duration(ctx context.Context, videoID string) (float64, error)
}

// Profiles reads and updates user profiles
type Profiles interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Update(ctx context.Context, userID string, update models.ProfileUpdate) (*models.Profile, error)
	Reset(ctx context.Context, userID string) (*models.Profile, error)
}

// KeyChecker reports whether a provider key works for model
type KeyChecker func(ctx context.Context, apiKey, model string) (bool, error)

// API holds the handler dependencies
type API struct {
	histories     func(userID string) history.Store
	profiles      Profiles
	queue         JobQueue
	sources       SourceStore
	statuses      JobStatuses
	youtube       DurationLookup
	checkKey      KeyChecker
	pricing       timeutil.Pricing
	statusTTL     time.Duration
	maxUploadSize int64
	health        func(ctx context.Context) error
	logger        *logging.Logger
}

// RouterConfig carries the middleware dependencies
type RouterConfig struct {
	Verifier          *middleware.JWTVerifier
	Limiter           *middleware.RateLimiter
	Quota             middleware.WindowCounter
	AnalysesPerWindow int64
	AnalysisWindow    time.Duration
	Proxy             *proxy.Handler
	Logger            *logging.Logger
}

func setupRouter(api *API, rc RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(rc.Logger))

	router.GET("/health", api.healthCheck)

	if rc.Proxy != nil {
		rc.Proxy.Register(router, "/api/gemini-proxy")
	}

	v1 := router.Group("/api/v1")
	v1.GET("/models", api.listModels)
	v1.GET("/rubric", api.getRubric)

	authed := v1.Group("", middleware.JWTAuth(rc.Verifier))
	if rc.Limiter != nil {
		authed.Use(middleware.RateLimit(rc.Limiter))
	}
	{
		create := []gin.HandlerFunc{api.createAnalysis}
		if rc.Quota != nil && rc.AnalysesPerWindow > 0 {
			create = append([]gin.HandlerFunc{middleware.AnalysisQuota(rc.Quota, rc.AnalysesPerWindow, rc.AnalysisWindow)}, create...)
		}
		authed.POST("/analyses", create...)
		authed.GET("/jobs/:id", api.getJob)

		authed.GET("/history", api.listHistory)
		authed.GET("/history/export", api.exportHistory)
		authed.GET("/history/:id", api.getHistory)
		authed.DELETE("/history/:id", api.deleteHistory)
		authed.DELETE("/history", api.clearHistory)

		authed.GET("/profile", api.getProfile)
		authed.PATCH("/profile", api.updateProfile)
		authed.POST("/profile/reset", api.resetProfile)

		authed.POST("/estimate", api.estimate)
		authed.POST("/feasibility", api.feasibility)
		authed.GET("/youtube/:id", api.youtubeMetadata)
		authed.POST("/keys/check", api.checkAPIKey)
	}

	return router
}

func (api *API) healthCheck(c *gin.Context) {
	if api.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := api.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// statusFor maps an error kind to the HTTP status returned to callers
func statusFor(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindInvalidTimeRange, apperror.KindInvalidSourceFormat:
		return http.StatusBadRequest
	case apperror.KindMissingCredential:
		return http.StatusUnauthorized
	case apperror.KindRateLimited:
		return http.StatusTooManyRequests
	case apperror.KindTimeout:
		return http.StatusGatewayTimeout
	case apperror.KindProvider, apperror.KindUploadInit, apperror.KindUploadTransfer,
		apperror.KindProcessingFailed, apperror.KindEmptyResponse, apperror.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *API) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		api.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		c.JSON(status, gin.H{"error": appErr.Error(), "kind": appErr.Kind})
		return
	}
	c.JSON(status, gin.H{"error": "Internal server error"})
}

func userID(c *gin.Context) string {
	id, _ := middleware.GetUserID(c)
	return id
}
