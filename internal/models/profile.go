package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileRole distinguishes the two kinds of accounts on the network.
type ProfileRole string

const (
	RoleClub    ProfileRole = "club"
	RoleAthlete ProfileRole = "athlete"
)

// Profile is owned by the external profile service; the inbox only reads it.
type Profile struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	DisplayName string      `json:"displayName" db:"display_name"`
	AvatarURL   string      `json:"avatarUrl" db:"avatar_url"`
	Role        ProfileRole `json:"role" db:"role"`
	Active      bool        `json:"active" db:"is_active"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

// ProfileSummary is what a thread renders for its counterpart.
type ProfileSummary struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
}

// Summary returns the render-only subset of the profile.
func (p *Profile) Summary() *ProfileSummary {
	return &ProfileSummary{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}
