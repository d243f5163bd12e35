// Package history persists saved analyses, newest first.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/pkg/models"
)

// DefaultSummaryLimit is how many past analyses feed a new prompt
const DefaultSummaryLimit = 5

// Store is a per-user history of analyses
type Store interface {
	// Save assigns an ID and creation time when missing and stores the entry first
	Save(ctx context.Context, entry *models.HistoryEntry) error
	List(ctx context.Context) ([]*models.HistoryEntry, error)
	Get(ctx context.Context, id string) (*models.HistoryEntry, error)
	Delete(ctx context.Context, id string) error
	Summaries(ctx context.Context, limit int) ([]models.AnalysisSummary, error)
	Export(ctx context.Context) ([]byte, error)
	Clear(ctx context.Context) error
}

func notFound(id string) error {
	return apperror.Newf(apperror.KindNotFound, "Analysis %s not found", id)
}

func summarize(entries []*models.HistoryEntry, limit int) []models.AnalysisSummary {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]models.AnalysisSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Summary())
	}
	return out
}

func export(entries []*models.HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export history: %w", err)
	}
	return data, nil
}
