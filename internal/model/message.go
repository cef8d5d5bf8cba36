package model

import "time"

const (
	MessageTypeText          = "text"
	MessageTypeImage         = "image"
	MessageTypeFile          = "file"
	MessageTypeSystem        = "system"
	MessageTypeTravelRequest = "travel_request"
)

// DeletedPlaceholder replaces the content of soft-deleted messages.
// The row itself is kept so replies and reports stay resolvable.
const DeletedPlaceholder = "[message deleted]"

type Message struct {
	ID               string     `json:"id"`
	RoomID           string     `json:"room_id"`
	SenderID         string     `json:"sender_id"`
	Sender           *UserRef   `json:"sender,omitempty"`
	Content          string     `json:"content"`
	Type             string     `json:"type"`
	ReplyToID        *string    `json:"reply_to,omitempty"`
	Edited           bool       `json:"edited,omitempty"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`
	Deleted          bool       `json:"deleted,omitempty"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	Moderated        bool       `json:"moderated,omitempty"`
	ModeratedBy      *string    `json:"moderated_by,omitempty"`
	ModerationReason *string    `json:"moderation_reason,omitempty"`
	Pinned           bool       `json:"pinned,omitempty"`
	Reactions        []Reaction `json:"reactions,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reacted_at"`
}

type Report struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	RoomID      string    `json:"room_id"`
	ReporterID  string    `json:"reporter_id"`
	Reason      string    `json:"reason"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem, MessageTypeTravelRequest:
		return true
	}
	return false
}
