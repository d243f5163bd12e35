package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		video_source JSONB NOT NULL,
		player_description TEXT NOT NULL DEFAULT '',
		player_name TEXT NOT NULL DEFAULT '',
		start_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		end_time DOUBLE PRECISION,
		analysis JSONB NOT NULL,
		model_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		preferences JSONB NOT NULL,
		plan JSONB NOT NULL,
		avatar_style TEXT NOT NULL,
		avatar_id TEXT NOT NULL,
		avatar_background TEXT[] NOT NULL,
		avatar_background_type TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables used by the history and profile stores
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
