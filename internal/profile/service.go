// Package profile stores user profiles and answers plan-tier lookups for the proxy.
package profile

import (
	"context"
	"time"

	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/pkg/models"
)

// DefaultPlanCacheTTL bounds how long a tier change can take to reach the proxy
const DefaultPlanCacheTTL = 5 * time.Minute

// Repository persists profiles. Find returns nil, nil when none is stored.
type Repository interface {
	Find(ctx context.Context, userID string) (*models.Profile, error)
	Save(ctx context.Context, p *models.Profile) error
	Delete(ctx context.Context, userID string) error
}

// PlanCache caches plan tiers by user
type PlanCache interface {
	GetPlanTier(ctx context.Context, userID string) (string, error)
	SetPlanTier(ctx context.Context, userID, tier string, ttl time.Duration) error
	DeletePlanTier(ctx context.Context, userID string) error
}

// Service reads and updates profiles
type Service struct {
	repo   Repository
	cache  PlanCache
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a profile service. cache may be nil.
func NewService(repo Repository, cache PlanCache, ttl time.Duration, logger *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultPlanCacheTTL
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logging.OrNop(logger), now: time.Now}
}

// Get returns the stored profile merged over the defaults
func (s *Service) Get(ctx context.Context, userID string) (*models.Profile, error) {
	stored, err := s.repo.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := merge(stored)
	p.ID = userID
	return p, nil
}

// Update applies a partial change and stores the result
func (s *Service) Update(ctx context.Context, userID string, update models.ProfileUpdate) (*models.Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Apply(update)
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPlan changes the user's plan and drops the cached tier
func (s *Service) SetPlan(ctx context.Context, userID string, plan models.Plan) (*models.Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Plan = plan
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.forgetTier(ctx, userID)

	s.logger.WithUserID(userID).WithField("tier", plan.Tier).Info("Plan updated")
	return p, nil
}

// Reset removes the stored profile and returns the defaults
func (s *Service) Reset(ctx context.Context, userID string) (*models.Profile, error) {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return nil, err
	}
	s.forgetTier(ctx, userID)

	p := models.DefaultProfile()
	p.ID = userID
	return &p, nil
}

// PlanTier returns the user's tier, reading through the cache
func (s *Service) PlanTier(ctx context.Context, userID string) (string, error) {
	if s.cache != nil {
		tier, err := s.cache.GetPlanTier(ctx, userID)
		if err != nil {
			s.logger.WithError(err).Warn("Plan cache read failed")
		} else if tier != "" {
			return tier, nil
		}
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.SetPlanTier(ctx, userID, p.Plan.Tier, s.ttl); err != nil {
			s.logger.WithError(err).Warn("Plan cache write failed")
		}
	}
	return p.Plan.Tier, nil
}

func (s *Service) forgetTier(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePlanTier(ctx, userID); err != nil {
		s.logger.WithError(err).Warn("Plan cache invalidation failed")
	}
}

// merge fills fields a stored profile left blank with the defaults
func merge(stored *models.Profile) *models.Profile {
	p := models.DefaultProfile()
	if stored == nil {
		return &p
	}

	out := *stored
	if out.DisplayName == "" {
		out.DisplayName = p.DisplayName
	}
	if out.Plan.Tier == "" {
		out.Plan = p.Plan
	}
	if out.AvatarStyle == "" {
		out.AvatarStyle = p.AvatarStyle
	}
	if out.AvatarID == "" {
		out.AvatarID = p.AvatarID
	}
	if len(out.AvatarBackground) == 0 {
		out.AvatarBackground = p.AvatarBackground
	}
	if out.AvatarBackgroundType == "" {
		out.AvatarBackgroundType = p.AvatarBackgroundType
	}
	return &out
}
