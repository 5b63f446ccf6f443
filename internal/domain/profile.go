package domain

import "time"

// Profile is the cached projection of a user profile owned by M02.
// This service stores and serves it; it never authors profile data.
type Profile struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Bio           string    `json:"bio,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	FollowerCount int64     `json:"follower_count"`
	Verified      bool      `json:"verified"`
	UpdatedAt     time.Time `json:"updated_at"`
}
