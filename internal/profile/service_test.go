package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smashers-ai/smashers/internal/cache"
	"github.com/smashers-ai/smashers/pkg/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Find(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockRepository) Save(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockRepository) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func setupCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestGetReturnsDefaultsWhenMissing(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(nil, nil)

	s := NewService(repo, nil, 0, nil)
	p, err := s.Get(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "Guest Player", p.DisplayName)
	assert.Equal(t, "Badminton enthusiast ready to smash!", p.Bio)
	assert.Equal(t, models.Plan{Tier: models.PlanTierFree, Level: 1, IsPro: false}, p.Plan)
	assert.Equal(t, []string{"b6e3f4"}, p.AvatarBackground)
}

func TestGetMergesStoredOverDefaults(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(&models.Profile{
		ID:          "user-1",
		DisplayName: "Lin",
		Bio:         "",
		Plan:        models.Plan{Tier: models.PlanTierAlpha, Level: 3, IsPro: true},
	}, nil)

	s := NewService(repo, nil, 0, nil)
	p, err := s.Get(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Lin", p.DisplayName)
	assert.Equal(t, "", p.Bio)
	assert.Equal(t, models.PlanTierAlpha, p.Plan.Tier)
	assert.Equal(t, "adventurer", p.AvatarStyle)
	assert.Equal(t, "solid", p.AvatarBackgroundType)
}

func TestUpdateMergesPreferences(t *testing.T) {
	stored := models.DefaultProfile()
	stored.Preferences.PublicProfile = true

	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(&stored, nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*models.Profile")).Return(nil)

	s := NewService(repo, nil, 0, nil)
	p, err := s.Update(context.Background(), "user-1", models.ProfileUpdate{
		DisplayName: strPtr("Smash Queen"),
		Preferences: &models.PreferencesUpdate{DarkMode: boolPtr(true)},
	})
	require.NoError(t, err)

	assert.Equal(t, "Smash Queen", p.DisplayName)
	assert.True(t, p.Preferences.DarkMode)
	assert.True(t, p.Preferences.PublicProfile)
	assert.False(t, p.UpdatedAt.IsZero())
	repo.AssertExpectations(t)
}

func TestUpdatePropagatesSaveError(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(nil, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))

	s := NewService(repo, nil, 0, nil)
	_, err := s.Update(context.Background(), "user-1", models.ProfileUpdate{Bio: strPtr("x")})
	assert.EqualError(t, err, "db down")
}

func TestResetRestoresDefaults(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	require.NoError(t, c.SetPlanTier(ctx, "user-1", models.PlanTierAlpha, time.Minute))

	repo := new(MockRepository)
	repo.On("Delete", mock.Anything, "user-1").Return(nil)

	s := NewService(repo, c, time.Minute, nil)
	p, err := s.Reset(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Guest Player", p.DisplayName)

	tier, err := c.GetPlanTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, tier)
}

func TestPlanTierReadsThroughCache(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(&models.Profile{
		Plan: models.Plan{Tier: models.PlanTierAlpha, Level: 2, IsPro: true},
	}, nil).Once()

	s := NewService(repo, c, time.Minute, nil)
	for i := 0; i < 3; i++ {
		tier, err := s.PlanTier(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, models.PlanTierAlpha, tier)
	}
	repo.AssertNumberOfCalls(t, "Find", 1)

	mr.FastForward(2 * time.Minute)
	repo.On("Find", mock.Anything, "user-1").Return(nil, nil).Once()

	tier, err := s.PlanTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanTierFree, tier)
}

func TestPlanTierWithoutCache(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(nil, errors.New("db down"))

	s := NewService(repo, nil, 0, nil)
	_, err := s.PlanTier(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestSetPlanInvalidatesCache(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	require.NoError(t, c.SetPlanTier(ctx, "user-1", models.PlanTierFree, time.Minute))

	repo := new(MockRepository)
	repo.On("Find", mock.Anything, "user-1").Return(nil, nil).Once()
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	s := NewService(repo, c, time.Minute, nil)
	p, err := s.SetPlan(ctx, "user-1", models.Plan{Tier: models.PlanTierAlpha, Level: 2, IsPro: true})
	require.NoError(t, err)
	assert.Equal(t, models.PlanTierAlpha, p.Plan.Tier)

	tier, err := c.GetPlanTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, tier)
}
