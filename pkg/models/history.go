package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Video source types
const (
	SourceTypeFile    = "file"
	SourceTypeYouTube = "youtube"
)

// VideoSourceDescriptor records where an analysed video came from
type VideoSourceDescriptor struct {
	Type     string `json:"type"`
	VideoID  string `json:"videoId,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Value implements driver.Valuer for database storage
func (d VideoSourceDescriptor) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for database retrieval
func (d *VideoSourceDescriptor) Scan(value interface{}) error {
	return scanJSON(value, d)
}

// HistoryEntry is a saved analysis
type HistoryEntry struct {
	ID                string                `json:"id" db:"id"`
	UserID            string                `json:"userId,omitempty" db:"user_id"`
	CreatedAt         time.Time             `json:"createdAt" db:"created_at"`
	VideoSource       VideoSourceDescriptor `json:"videoSource" db:"video_source"`
	PlayerDescription string                `json:"playerDescription" db:"player_description"`
	PlayerName        string                `json:"playerName,omitempty" db:"player_name"`
	StartTime         float64               `json:"startTime" db:"start_time"`
	EndTime           *float64              `json:"endTime,omitempty" db:"end_time"`
	Analysis          *AnalysisResult       `json:"analysis" db:"analysis"`
	ModelID           string                `json:"modelId" db:"model_id"`
}

// Summary condenses the entry for prompt context
func (h *HistoryEntry) Summary() AnalysisSummary {
	return Summarize(h.CreatedAt, h.Analysis)
}
