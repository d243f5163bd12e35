package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Plan tiers
const (
	PlanTierFree  = "Free Tier"
	PlanTierAlpha = "ALPHA SMASHER"
)

// Preferences holds user interface preferences
type Preferences struct {
	DarkMode      bool `json:"darkMode"`
	PublicProfile bool `json:"publicProfile"`
}

// Value implements driver.Valuer for database storage
func (p Preferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval
func (p *Preferences) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// Plan is the user's subscription tier
type Plan struct {
	Tier  string `json:"tier"`
	Level int    `json:"level"`
	IsPro bool   `json:"isPro"`
}

// Value implements driver.Valuer for database storage
func (p Plan) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval
func (p *Plan) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// Profile is a user's public profile and settings
type Profile struct {
	ID                   string      `json:"id,omitempty" db:"id"`
	DisplayName          string      `json:"displayName" db:"display_name"`
	Email                string      `json:"email" db:"email"`
	Bio                  string      `json:"bio" db:"bio"`
	Preferences          Preferences `json:"preferences" db:"preferences"`
	Plan                 Plan        `json:"plan" db:"plan"`
	AvatarStyle          string      `json:"avatarStyle" db:"avatar_style"`
	AvatarID             string      `json:"avatarId" db:"avatar_id"`
	AvatarBackground     []string    `json:"avatarBackground" db:"avatar_background"`
	AvatarBackgroundType string      `json:"avatarBackgroundType" db:"avatar_background_type"`
	UpdatedAt            time.Time   `json:"updatedAt,omitempty" db:"updated_at"`
}

// DefaultProfile returns the profile shown before a user customises anything
func DefaultProfile() Profile {
	return Profile{
		DisplayName: "Guest Player",
		Bio:         "Badminton enthusiast ready to smash!",
		Preferences: Preferences{
			DarkMode:      false,
			PublicProfile: false,
		},
		Plan: Plan{
			Tier:  PlanTierFree,
			Level: 1,
			IsPro: false,
		},
		AvatarStyle:          "adventurer",
		AvatarID:             "seed",
		AvatarBackground:     []string{"b6e3f4"},
		AvatarBackgroundType: "solid",
	}
}

// AvatarURL returns the DiceBear SVG URL for the profile's avatar settings
func (p *Profile) AvatarURL() string {
	style := p.AvatarStyle
	if style == "" {
		style = "adventurer"
	}
	seed := p.AvatarID
	if seed == "" {
		seed = "seed"
	}
	bg := p.AvatarBackground
	if len(bg) == 0 {
		bg = []string{"b6e3f4"}
	}
	bgType := p.AvatarBackgroundType
	if bgType == "" {
		bgType = "solid"
	}

	return fmt.Sprintf("https://api.dicebear.com/9.x/%s/svg?seed=%s&backgroundColor=%s&backgroundType=%s",
		url.PathEscape(style), url.QueryEscape(seed), strings.Join(bg, ","), url.QueryEscape(bgType))
}

// PreferencesUpdate carries a partial preferences change
type PreferencesUpdate struct {
	DarkMode      *bool `json:"darkMode,omitempty"`
	PublicProfile *bool `json:"publicProfile,omitempty"`
}

// ProfileUpdate carries a partial profile change. Nil fields are left as is.
type ProfileUpdate struct {
	DisplayName          *string            `json:"displayName,omitempty"`
	Email                *string            `json:"email,omitempty"`
	Bio                  *string            `json:"bio,omitempty"`
	Preferences          *PreferencesUpdate `json:"preferences,omitempty"`
	AvatarStyle          *string            `json:"avatarStyle,omitempty"`
	AvatarID             *string            `json:"avatarId,omitempty"`
	AvatarBackground     []string           `json:"avatarBackground,omitempty"`
	AvatarBackgroundType *string            `json:"avatarBackgroundType,omitempty"`
}

// Apply merges the update into the profile. Preferences merge field by field.
// The plan is never changed through a profile update.
func (p *Profile) Apply(u ProfileUpdate) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.Preferences != nil {
		if u.Preferences.DarkMode != nil {
			p.Preferences.DarkMode = *u.Preferences.DarkMode
		}
		if u.Preferences.PublicProfile != nil {
			p.Preferences.PublicProfile = *u.Preferences.PublicProfile
		}
	}
	if u.AvatarStyle != nil {
		p.AvatarStyle = *u.AvatarStyle
	}
	if u.AvatarID != nil {
		p.AvatarID = *u.AvatarID
	}
	if u.AvatarBackground != nil {
		p.AvatarBackground = u.AvatarBackground
	}
	if u.AvatarBackgroundType != nil {
		p.AvatarBackgroundType = *u.AvatarBackgroundType
	}
}
