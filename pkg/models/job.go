package models

import (
	"time"
)

// AnalysisJob is a queued background analysis
type AnalysisJob struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	SourceType        string    `json:"source_type"`
	ObjectKey         string    `json:"object_key,omitempty"`
	FileName          string    `json:"file_name,omitempty"`
	MIMEType          string    `json:"mime_type,omitempty"`
	Size              int64     `json:"size,omitempty"`
	YouTubeID         string    `json:"youtube_id,omitempty"`
	YouTubeURL        string    `json:"youtube_url,omitempty"`
	PlayerDescription string    `json:"player_description"`
	PlayerName        string    `json:"player_name,omitempty"`
	TimeRange         TimeRange `json:"time_range"`
	Duration          float64   `json:"duration,omitempty"`
	Model             string    `json:"model"`
	CallbackURL       string    `json:"callback_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// JobStatus is the latest progress report for an AnalysisJob
type JobStatus struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Progress  float64   `json:"progress"`
	HistoryID string    `json:"history_id,omitempty"`
	ClipURL   string    `json:"clip_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus constants
const (
	JobStatusQueued     = "queued"
	JobStatusTrimming   = "trimming"
	JobStatusUploading  = "uploading"
	JobStatusGenerating = "generating"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IsTerminal reports whether the job has finished
func (s *JobStatus) IsTerminal() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusFailed
}
