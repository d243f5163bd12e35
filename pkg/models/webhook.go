package models

import (
	"time"
)

// WebhookEvent represents the payload sent to job callback URLs
type WebhookEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Webhook event types
const (
	WebhookEventAnalysisCompleted = "analysis.completed"
	WebhookEventAnalysisFailed    = "analysis.failed"
)
