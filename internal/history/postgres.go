package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smashers-ai/smashers/internal/database"
	"github.com/smashers-ai/smashers/pkg/models"
)

// PGStore is one user's history in the analyses table
type PGStore struct {
	db     *database.DB
	userID string
}

// NewPGStore scopes the analyses table to userID
func NewPGStore(db *database.DB, userID string) *PGStore {
	return &PGStore{db: db, userID: userID}
}

const selectEntry = `
	SELECT id, user_id, created_at, video_source, player_description, player_name,
	       start_time, end_time, analysis, model_id
	FROM analyses
`

func scanEntry(row pgx.Row) (*models.HistoryEntry, error) {
	var e models.HistoryEntry
	var analysis models.AnalysisResult
	err := row.Scan(
		&e.ID, &e.UserID, &e.CreatedAt, &e.VideoSource, &e.PlayerDescription, &e.PlayerName,
		&e.StartTime, &e.EndTime, &analysis, &e.ModelID,
	)
	if err != nil {
		return nil, err
	}
	e.Analysis = &analysis
	return &e, nil
}

// Save implements Store
func (s *PGStore) Save(ctx context.Context, entry *models.HistoryEntry) (err error) {
	start := time.Now()
	defer func() { database.Observe("history.save", start, err) }()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UserID = s.userID

	analysis := entry.Analysis
	if analysis == nil {
		analysis = &models.AnalysisResult{}
	}

	query := `
		INSERT INTO analyses (id, user_id, created_at, video_source, player_description,
		                      player_name, start_time, end_time, analysis, model_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.Pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.CreatedAt, entry.VideoSource, entry.PlayerDescription,
		entry.PlayerName, entry.StartTime, entry.EndTime, *analysis, entry.ModelID,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// List implements Store
func (s *PGStore) List(ctx context.Context) ([]*models.HistoryEntry, error) {
	return s.list(ctx, 0)
}

func (s *PGStore) list(ctx context.Context, limit int) (entries []*models.HistoryEntry, err error) {
	start := time.Now()
	defer func() { database.Observe("history.list", start, err) }()

	query := selectEntry + ` WHERE user_id = $1 ORDER BY created_at DESC`
	args := []interface{}{s.userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return entries, nil
}

// Get implements Store
func (s *PGStore) Get(ctx context.Context, id string) (entry *models.HistoryEntry, err error) {
	start := time.Now()
	defer func() { database.Observe("history.get", start, err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return nil, notFound(id)
	}

	entry, err = scanEntry(s.db.Pool.QueryRow(ctx, selectEntry+` WHERE id = $1 AND user_id = $2`, id, s.userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return entry, nil
}

// Delete implements Store
func (s *PGStore) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { database.Observe("history.delete", start, err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return notFound(id)
	}

	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM analyses WHERE id = $1 AND user_id = $2`, id, s.userID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// Summaries implements Store
func (s *PGStore) Summaries(ctx context.Context, limit int) ([]models.AnalysisSummary, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	entries, err := s.list(ctx, limit)
	if err != nil {
		return nil, err
	}
	return summarize(entries, limit), nil
}

// Export implements Store
func (s *PGStore) Export(ctx context.Context) ([]byte, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return export(entries)
}

// Clear implements Store
func (s *PGStore) Clear(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { database.Observe("history.clear", start, err) }()

	if _, err = s.db.Pool.Exec(ctx, `DELETE FROM analyses WHERE user_id = $1`, s.userID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
