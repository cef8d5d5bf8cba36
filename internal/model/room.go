package model

import "time"

const (
	RoomTypePublic        = "public"
	RoomTypePrivate       = "private"
	RoomTypeTravelPartner = "travel_partner"
)

// Per-room membership roles.
const (
	RoomRoleMember    = "member"
	RoomRoleModerator = "moderator"
	RoomRoleAdmin     = "admin"
)

type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	MaxMembers     int       `json:"max_members"`
	MemberCount    int       `json:"member_count"`
	MessageCount   int64     `json:"message_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedBy      *string   `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type RoomMember struct {
	RoomID     string     `json:"room_id"`
	UserID     string     `json:"user_id"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// Pagination is the page metadata returned by room listings.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

func ValidRoomType(t string) bool {
	switch t {
	case RoomTypePublic, RoomTypePrivate, RoomTypeTravelPartner:
		return true
	}
	return false
}
