package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/pkg/models"
)

// FileStore keeps the history as one JSON array on disk, in the same shape
// Export produces.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *logging.Logger
	now    func() time.Time
}

// NewFileStore creates a store backed by path. The file is created on first save.
func NewFileStore(path string, logger *logging.Logger) *FileStore {
	return &FileStore{path: path, logger: logging.OrNop(logger), now: time.Now}
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() ([]*models.HistoryEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []*models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history file %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileStore) store(entries []*models.HistoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := export(entries)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// Save implements Store
func (s *FileStore) Save(ctx context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	entries = append([]*models.HistoryEntry{entry}, entries...)
	if err := s.store(entries); err != nil {
		return err
	}

	s.logger.WithField("analysis_id", entry.ID).Debug("Analysis saved to history")
	return nil
}

// List implements Store
func (s *FileStore) List(ctx context.Context) ([]*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get implements Store
func (s *FileStore) Get(ctx context.Context, id string) (*models.HistoryEntry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, notFound(id)
}

// Delete implements Store
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return notFound(id)
	}
	return s.store(kept)
}

// Summaries implements Store
func (s *FileStore) Summaries(ctx context.Context, limit int) ([]models.AnalysisSummary, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(entries, limit), nil
}

// Export implements Store
func (s *FileStore) Export(ctx context.Context) ([]byte, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return export(entries)
}

// Clear implements Store
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
