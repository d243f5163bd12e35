package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smashers-ai/smashers/internal/database"
	"github.com/smashers-ai/smashers/pkg/models"
)

// PGRepository stores profiles in the profiles table
type PGRepository struct {
	db *database.DB
}

// NewPGRepository creates a Postgres-backed repository
func NewPGRepository(db *database.DB) *PGRepository {
	return &PGRepository{db: db}
}

// Find implements Repository
func (r *PGRepository) Find(ctx context.Context, userID string) (p *models.Profile, err error) {
	start := time.Now()
	defer func() { database.Observe("profile.find", start, err) }()

	query := `
		SELECT id, display_name, email, bio, preferences, plan, avatar_style, avatar_id,
		       avatar_background, avatar_background_type, updated_at
		FROM profiles
		WHERE id = $1
	`

	var out models.Profile
	err = r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&out.ID, &out.DisplayName, &out.Email, &out.Bio, &out.Preferences, &out.Plan,
		&out.AvatarStyle, &out.AvatarID, &out.AvatarBackground, &out.AvatarBackgroundType, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &out, nil
}

// Save implements Repository
func (r *PGRepository) Save(ctx context.Context, p *models.Profile) (err error) {
	start := time.Now()
	defer func() { database.Observe("profile.save", start, err) }()

	query := `
		INSERT INTO profiles (id, display_name, email, bio, preferences, plan, avatar_style,
		                      avatar_id, avatar_background, avatar_background_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			bio = EXCLUDED.bio,
			preferences = EXCLUDED.preferences,
			plan = EXCLUDED.plan,
			avatar_style = EXCLUDED.avatar_style,
			avatar_id = EXCLUDED.avatar_id,
			avatar_background = EXCLUDED.avatar_background,
			avatar_background_type = EXCLUDED.avatar_background_type,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Pool.Exec(ctx, query,
		p.ID, p.DisplayName, p.Email, p.Bio, p.Preferences, p.Plan, p.AvatarStyle,
		p.AvatarID, p.AvatarBackground, p.AvatarBackgroundType, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Delete implements Repository
func (r *PGRepository) Delete(ctx context.Context, userID string) (err error) {
	start := time.Now()
	defer func() { database.Observe("profile.delete", start, err) }()

	if _, err = r.db.Pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
