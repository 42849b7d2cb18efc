package models

import "time"

// Tier names
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Role names
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the platform
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`    // argon2id hash, never exposed in API
	Role          string     `json:"role"` // "user" or "admin"
	Tier          string     `json:"tier"` // "free" or "premium"
	TierExpiresAt *time.Time `json:"tier_expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsPremium reports whether the user currently has premium access.
// A premium tier with an expiry in the past does not count.
func (u *User) IsPremium() bool {
	if u.Tier != TierPremium {
		return false
	}
	if u.TierExpiresAt == nil {
		return true
	}
	return time.Now().Before(*u.TierExpiresAt)
}

// CanUsePremiumModels reports whether premium-gated models are available
// to this user. Admins always pass.
func (u *User) CanUsePremiumModels() bool {
	return u.IsAdmin() || u.IsPremium()
}

// UserResponse is the API shape for user data
type UserResponse struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	Role          string     `json:"role"`
	Tier          string     `json:"tier"`
	TierExpiresAt *time.Time `json:"tier_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		Role:          u.Role,
		Tier:          u.Tier,
		TierExpiresAt: u.TierExpiresAt,
		CreatedAt:     u.CreatedAt,
	}
}
