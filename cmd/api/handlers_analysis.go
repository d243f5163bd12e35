package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/prompt"
	"github.com/smashers-ai/smashers/internal/storage"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/internal/transcoder"
	"github.com/smashers-ai/smashers/pkg/models"
)

func (api *API) createAnalysis(c *gin.Context) {
	uid := userID(c)
	ctx := c.Request.Context()

	description := strings.TrimSpace(c.PostForm("player_description"))
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please describe the player to analyse."})
		return
	}

	model := c.DefaultPostForm("model", gemini.DefaultModel)
	if _, ok := gemini.LookupModel(model); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown model: " + model})
		return
	}

	var duration float64
	if raw := c.PostForm("duration"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid duration"})
			return
		}
		duration = d
	}

	job := &models.AnalysisJob{
		ID:                uuid.New().String(),
		UserID:            uid,
		PlayerDescription: description,
		PlayerName:        strings.TrimSpace(c.PostForm("player_name")),
		Model:             model,
		CallbackURL:       c.PostForm("callback_url"),
		CreatedAt:         time.Now(),
	}

	if link := strings.TrimSpace(c.PostForm("youtube_url")); link != "" {
		id, err := timeutil.ValidateYouTubeURL(link)
		if err != nil {
			api.respondError(c, err)
			return
		}
		if duration == 0 && api.youtube != nil {
			if d, err := api.youtube.Duration(ctx, id); err != nil {
				api.logger.WithError(err).WithField("video_id", id).Warn("Could not resolve video duration")
			} else {
				duration = d
			}
		}
		job.SourceType = models.SourceTypeYouTube
		job.YouTubeID = id
		job.YouTubeURL = link
	} else {
		header, err := c.FormFile("video")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provide a video file or a YouTube link"})
			return
		}
		if api.maxUploadSize > 0 && header.Size > api.maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}

		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		defer file.Close()

		head := make([]byte, transcoder.HeaderSize)
		n, err := io.ReadFull(file, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		head = head[:n]

		mimeType, err := transcoder.ValidateVideoFile(header.Filename, header.Size, head)
		if err != nil {
			api.respondError(c, err)
			return
		}

		job.SourceType = models.SourceTypeFile
		job.FileName = header.Filename
		job.MIMEType = mimeType
		job.Size = header.Size
		job.ObjectKey = storage.SourceKey(uid, job.ID, header.Filename)

		tr, err := timeutil.ParseRange(c.PostForm("start_time"), c.PostForm("end_time"), duration)
		if err != nil {
			api.respondError(c, err)
			return
		}
		job.TimeRange = tr
		job.Duration = duration

		body := io.MultiReader(bytes.NewReader(head), file)
		if err := api.sources.Upload(ctx, job.ObjectKey, body, header.Size, mimeType); err != nil {
			api.logger.WithError(err).WithJobID(job.ID).Error("Failed to store uploaded video")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store video"})
			return
		}

		api.enqueue(c, job)
		return
	}

	tr, err := timeutil.ParseRange(c.PostForm("start_time"), c.PostForm("end_time"), duration)
	if err != nil {
		api.respondError(c, err)
		return
	}
	job.TimeRange = tr
	job.Duration = duration

	api.enqueue(c, job)
}

func (api *API) enqueue(c *gin.Context, job *models.AnalysisJob) {
	ctx := c.Request.Context()

	status := &models.JobStatus{
		JobID:     job.ID,
		Status:    models.JobStatusQueued,
		Message:   "Waiting for a worker",
		UpdatedAt: time.Now(),
	}
	if err := api.statuses.SetJobStatus(ctx, status, api.statusTTL); err != nil {
		api.logger.WithError(err).WithJobID(job.ID).Warn("Failed to record queued status")
	}

	if err := api.queue.PublishJob(ctx, job); err != nil {
		api.logger.WithError(err).WithJobID(job.ID).Error("Failed to enqueue analysis")
		api.abandon(ctx, job)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue analysis"})
		return
	}

	metrics.RecordJobCreated(job.SourceType)
	api.logger.LogJobEvent(job.ID, "created", models.JobStatusQueued, map[string]interface{}{
		"user_id": job.UserID,
		"source":  job.SourceType,
		"model":   job.Model,
	})

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": models.JobStatusQueued,
	})
}

func (api *API) getJob(c *gin.Context) {
	status, err := api.statuses.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// EstimateRequest takes either a length in seconds or MM:SS bounds
type EstimateRequest struct {
	Seconds float64 `json:"seconds"`
	Start   string  `json:"start"`
	End     string  `json:"end"`
}

func (api *API) estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seconds := req.Seconds
	if req.Start != "" || req.End != "" {
		tr, err := timeutil.ParseRange(req.Start, req.End, 0)
		if err != nil {
			api.respondError(c, err)
			return
		}
		seconds = *tr.End - tr.Start
	}
	if seconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Duration must be positive"})
		return
	}

	c.JSON(http.StatusOK, api.pricing.Estimate(seconds))
}

// FeasibilityRequest describes a local file before upload
type FeasibilityRequest struct {
	Size int64 `json:"size" binding:"required,min=1"`
}

func (api *API) feasibility(c *gin.Context) {
	var req FeasibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, transcoder.CheckFeasibility(req.Size))
}

func (api *API) youtubeMetadata(c *gin.Context) {
	id := c.Param("id")
	if api.youtube == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "YouTube lookups are not configured"})
		return
	}

	seconds, err := api.youtube.Duration(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id":  id,
		"duration":  seconds,
		"formatted": timeutil.FormatSeconds(seconds),
		"watch_url": timeutil.WatchURL(id, 0),
	})
}

// KeyCheckRequest carries a user's own provider key
type KeyCheckRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	Model  string `json:"model"`
}

func (api *API) checkAPIKey(c *gin.Context) {
	var req KeyCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if api.checkKey == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Key checks are not available"})
		return
	}

	model := gemini.ResolveModel(req.Model)
	valid, err := api.checkKey(c.Request.Context(), strings.TrimSpace(req.APIKey), model)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid, "model": model})
}

func (api *API) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  gemini.Catalogue,
		"default": gemini.DefaultModel,
	})
}

func (api *API) getRubric(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pillars":     prompt.Pillars,
		"calibration": prompt.Calibration,
		"weights": gin.H{
			"technical":   prompt.WeightTechnical,
			"tactical":    prompt.WeightTactical,
			"physicality": prompt.WeightPhysicality,
		},
	})
}

// abandon removes the stored source of a job that never reached the queue
// and marks it failed.
func (api *API) abandon(ctx context.Context, job *models.AnalysisJob) {
	if job.ObjectKey != "" {
		if err := api.sources.Delete(ctx, job.ObjectKey); err != nil {
			api.logger.WithError(err).WithJobID(job.ID).Warn("Failed to delete unqueued video")
		}
	}

	status := &models.JobStatus{
		JobID:     job.ID,
		Status:    models.JobStatusFailed,
		Message:   "Failed to queue analysis",
		Error:     "Failed to queue analysis",
		UpdatedAt: time.Now(),
	}
	if err := api.statuses.SetJobStatus(ctx, status, api.statusTTL); err != nil {
		api.logger.WithError(err).WithJobID(job.ID).Warn("Failed to record failed status")
	}
}
