// Package jobs runs queued analyses on the worker.
package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/smashers-ai/smashers/internal/analysis"
	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/storage"
	"github.com/smashers-ai/smashers/internal/tracing"
	"github.com/smashers-ai/smashers/internal/transcoder"
	"github.com/smashers-ai/smashers/pkg/models"
)

// SourceStore holds uploaded source videos
type SourceStore interface {
	DownloadFile(ctx context.Context, objectName, filePath string) error
	Delete(ctx context.Context, objectName string) error
}

// ClipStore keeps trimmed clips for review
type ClipStore interface {
	UploadFile(ctx context.Context, objectName, filePath string) error
	GetURL(ctx context.Context, objectName string) (string, error)
}

// StatusStore records job progress for pollers
type StatusStore interface {
	SetJobStatus(ctx context.Context, status *models.JobStatus, ttl time.Duration) error
}

// Notifier delivers completion callbacks
type Notifier interface {
	NotifyCompleted(ctx context.Context, url string, status *models.JobStatus) error
	NotifyFailed(ctx context.Context, url string, status *models.JobStatus) error
}

// Analyzer runs one analysis
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.AnalysisResult, error)
}

// Trimmer cuts a segment out of a source video
type Trimmer interface {
	Trim(ctx context.Context, src io.Reader, name string, size int64, start, end float64, onProgress transcoder.ProgressFunc) (*transcoder.Clip, error)
}

// HistoryFactory returns the history store for a user
type HistoryFactory func(userID string) history.Store

// Config wires a Processor
type Config struct {
	Sources      SourceStore
	Clips        ClipStore
	Trimmer      Trimmer
	Analyzer     Analyzer
	History      HistoryFactory
	Statuses     StatusStore
	Notifier     Notifier
	Credential   analysis.Credential
	StatusTTL    time.Duration
	SummaryLimit int
	TempDir      string
	Logger       *logging.Logger
}

// Processor handles AnalysisJobs pulled from the queue
type Processor struct {
	cfg      Config
	logger   *logging.Logger
	inFlight int64
}

// NewProcessor creates a processor
func NewProcessor(cfg Config) *Processor {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Processor{cfg: cfg, logger: logging.OrNop(cfg.Logger)}
}

// Handle runs one job to completion. Classified failures are recorded on the
// job status and swallowed; anything else is returned for dead-lettering.
func (p *Processor) Handle(ctx context.Context, job *models.AnalysisJob) error {
	span, ctx := tracing.StartSpan(ctx, "jobs.Handle")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "job_id", job.ID)
	tracing.SetTag(span, "source", job.SourceType)

	metrics.UpdateJobsInProgress(int(atomic.AddInt64(&p.inFlight, 1)))
	defer func() { metrics.UpdateJobsInProgress(int(atomic.AddInt64(&p.inFlight, -1))) }()

	logger := p.logger.WithJobID(job.ID).WithUserID(job.UserID)
	logger.LogJobEvent(job.ID, "started", models.JobStatusQueued, map[string]interface{}{"source": job.SourceType})

	start := time.Now()
	entry, clipURL, err := p.run(ctx, job)
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordJobCompleted(models.JobStatusFailed, job.SourceType, time.Since(start).Seconds())

		status := &models.JobStatus{
			JobID:     job.ID,
			Status:    models.JobStatusFailed,
			Message:   apperror.Message(err),
			Error:     apperror.Message(err),
			ErrorKind: string(apperror.KindOf(err)),
		}
		p.setStatus(ctx, status)
		p.notify(ctx, job, status)
		logger.LogJobEvent(job.ID, "failed", models.JobStatusFailed, map[string]interface{}{"error": err.Error(), "kind": status.ErrorKind})

		if apperror.KindOf(err) == apperror.KindUnknown {
			return err
		}
		return nil
	}

	metrics.RecordJobCompleted(models.JobStatusCompleted, job.SourceType, time.Since(start).Seconds())
	status := &models.JobStatus{
		JobID:     job.ID,
		Status:    models.JobStatusCompleted,
		Message:   "Analysis complete",
		Progress:  100,
		HistoryID: entry.ID,
		ClipURL:   clipURL,
	}
	p.setStatus(ctx, status)
	p.notify(ctx, job, status)
	logger.LogJobEvent(job.ID, "completed", models.JobStatusCompleted, map[string]interface{}{
		"history_id": entry.ID,
		"duration":   time.Since(start).String(),
	})
	return nil
}

func (p *Processor) run(ctx context.Context, job *models.AnalysisJob) (*models.HistoryEntry, string, error) {
	store := p.cfg.History(job.UserID)

	summaries, err := store.Summaries(ctx, p.cfg.SummaryLimit)
	if err != nil {
		p.logger.WithJobID(job.ID).WithError(err).Warn("Continuing without analysis history")
		summaries = nil
	}

	req := analysis.Request{
		Credential:        p.cfg.Credential,
		PlayerDescription: job.PlayerDescription,
		History:           summaries,
		Duration:          job.Duration,
		Model:             job.Model,
		OnStatus:          p.onStatus(ctx, job.ID),
	}
	tr := job.TimeRange
	req.TimeRange = &tr

	switch job.SourceType {
	case models.SourceTypeYouTube:
		req.Source = analysis.LinkSource{ID: job.YouTubeID, RawURL: job.YouTubeURL}

	case models.SourceTypeFile:
		cleanup, err := p.prepareFile(ctx, job, &req)
		if err != nil {
			return nil, "", err
		}
		defer cleanup()

	default:
		return nil, "", apperror.Newf(apperror.KindInvalidSourceFormat, "Unknown source type %q", job.SourceType)
	}

	result, err := p.cfg.Analyzer.Analyze(ctx, req)
	if err != nil {
		return nil, "", err
	}

	entry := &models.HistoryEntry{
		UserID:            job.UserID,
		VideoSource:       analysis.Descriptor(req.Source),
		PlayerDescription: job.PlayerDescription,
		PlayerName:        job.PlayerName,
		StartTime:         job.TimeRange.Start,
		EndTime:           job.TimeRange.End,
		Analysis:          result,
		ModelID:           gemini.ResolveModel(job.Model),
	}
	if err := store.Save(ctx, entry); err != nil {
		return nil, "", fmt.Errorf("failed to save analysis: %w", err)
	}

	// only a trimmed clip drops the range
	var clipURL string
	if fs, ok := req.Source.(analysis.FileSource); ok && req.TimeRange == nil {
		clipURL = p.keepClip(ctx, job, fs.Path)
	}

	if job.ObjectKey != "" && p.cfg.Sources != nil {
		if err := p.cfg.Sources.Delete(ctx, job.ObjectKey); err != nil {
			p.logger.WithJobID(job.ID).WithError(err).Warn("Failed to delete source object")
		}
	}
	return entry, clipURL, nil
}

// keepClip stores the analysed clip and returns a presigned link to it.
// Failures only cost the link.
func (p *Processor) keepClip(ctx context.Context, job *models.AnalysisJob, clipPath string) string {
	if p.cfg.Clips == nil {
		return ""
	}
	key := storage.ClipKey(job.UserID, job.ID)
	if err := p.cfg.Clips.UploadFile(ctx, key, clipPath); err != nil {
		p.logger.WithJobID(job.ID).WithError(err).Warn("Failed to store trimmed clip")
		return ""
	}
	url, err := p.cfg.Clips.GetURL(ctx, key)
	if err != nil {
		p.logger.WithJobID(job.ID).WithError(err).Warn("Failed to sign clip URL")
		return ""
	}
	return url
}

// prepareFile downloads the source and trims it when a bounded segment was
// requested and the file is small enough. It fills req.Source and returns a
// cleanup for the local copies.
func (p *Processor) prepareFile(ctx context.Context, job *models.AnalysisJob, req *analysis.Request) (func(), error) {
	local, err := os.CreateTemp(p.cfg.TempDir, transcoder.WorkspacePrefix+"src-*"+transcoder.Extension(job.FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to create download file: %w", err)
	}
	localPath := local.Name()
	local.Close()
	cleanups := []func(){func() { os.Remove(localPath) }}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if err := p.cfg.Sources.DownloadFile(ctx, job.ObjectKey, localPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to download source: %w", err)
	}
	info, err := os.Stat(localPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	req.Source = analysis.FileSource{
		Path:        localPath,
		MIMEType:    job.MIMEType,
		Size:        info.Size(),
		DisplayName: job.FileName,
	}

	end, bounded := segmentEnd(job)
	if !bounded || p.cfg.Trimmer == nil {
		return cleanup, nil
	}
	if f := transcoder.CheckFeasibility(info.Size()); !f.ShouldTrim {
		p.logger.WithJobID(job.ID).WithField("warning", f.Warning).Warn("Skipping trim, analysing full video")
		return cleanup, nil
	}

	p.setStatus(ctx, &models.JobStatus{JobID: job.ID, Status: models.JobStatusTrimming, Message: "Trimming video"})

	src, err := os.Open(localPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	clip, err := p.cfg.Trimmer.Trim(ctx, src, job.FileName, info.Size(), job.TimeRange.Start, end, func(pr transcoder.Progress) {
		p.setStatus(ctx, &models.JobStatus{
			JobID:    job.ID,
			Status:   models.JobStatusTrimming,
			Message:  pr.Message,
			Progress: float64(pr.Percent) * 0.3,
		})
	})
	src.Close()
	if err != nil {
		cleanup()
		return nil, err
	}
	cleanups = append(cleanups, func() { clip.Close() })

	// the clip already is the segment, so the prompt covers all of it
	req.Source = analysis.FileSource{
		Path:        clip.Path,
		MIMEType:    clip.MIMEType,
		Size:        clip.Size,
		DisplayName: job.FileName,
	}
	req.TimeRange = nil
	req.Duration = clip.Duration()
	return cleanup, nil
}

// segmentEnd reports the end of a requested segment that does not cover the whole video
func segmentEnd(job *models.AnalysisJob) (float64, bool) {
	tr := job.TimeRange
	end := job.Duration
	if tr.End != nil && *tr.End > 0 {
		end = *tr.End
	}
	if end <= 0 || end <= tr.Start {
		return 0, false
	}
	if tr.Start <= 0 && job.Duration > 0 && end >= job.Duration {
		return 0, false
	}
	return end, true
}

func (p *Processor) onStatus(ctx context.Context, jobID string) gemini.StatusFunc {
	return func(s string) {
		status := &models.JobStatus{JobID: jobID}
		switch s {
		case gemini.StatusUploading:
			status.Status, status.Message, status.Progress = models.JobStatusUploading, "Uploading video", 40
		case gemini.StatusProcessing:
			status.Status, status.Message, status.Progress = models.JobStatusUploading, "Processing video", 60
		case analysis.StatusFetchingMetadata:
			status.Status, status.Message, status.Progress = models.JobStatusUploading, "Fetching video metadata", 40
		case analysis.StatusGenerating:
			status.Status, status.Message, status.Progress = models.JobStatusGenerating, "Analysing gameplay", 80
		default:
			return
		}
		p.setStatus(ctx, status)
	}
}

func (p *Processor) setStatus(ctx context.Context, status *models.JobStatus) {
	if p.cfg.Statuses == nil {
		return
	}
	status.UpdatedAt = time.Now().UTC()
	if err := p.cfg.Statuses.SetJobStatus(ctx, status, p.cfg.StatusTTL); err != nil {
		p.logger.WithJobID(status.JobID).WithError(err).Warn("Failed to record job status")
	}
}

func (p *Processor) notify(ctx context.Context, job *models.AnalysisJob, status *models.JobStatus) {
	if job.CallbackURL == "" || p.cfg.Notifier == nil {
		return
	}

	var err error
	if status.Status == models.JobStatusCompleted {
		err = p.cfg.Notifier.NotifyCompleted(ctx, job.CallbackURL, status)
	} else {
		err = p.cfg.Notifier.NotifyFailed(ctx, job.CallbackURL, status)
	}
	if err != nil {
		p.logger.WithJobID(job.ID).WithError(err).Warn("Webhook delivery failed")
	}
}
