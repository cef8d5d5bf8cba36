package model

import "time"

// Platform-wide user roles. Room roles are tracked separately per membership.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Subscription tiers, owned by the billing subsystem.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierPro     = "pro"
)

type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"display_name"`
	Email            string     `json:"email,omitempty"`
	PasswordHash     string     `json:"-"`
	Role             string     `json:"role"`
	SubscriptionTier string     `json:"-"`
	IsActive         bool       `json:"-"`
	IsOnline         bool       `json:"is_online"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// UserRef is the sender/actor shape embedded in broadcast payloads.
type UserRef struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}
