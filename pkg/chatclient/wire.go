package chatclient

import (
	"encoding/json"
	"time"
)

// Event is the wire frame in both directions. Request frames carry an ID;
// the server's ack echoes it.
type Event struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Ack is the server's response envelope.
type Ack struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Server -> client event names, for Subscribe.
const (
	EventNewMessage        = "new_message"
	EventUserJoinedRoom    = "user_joined_room"
	EventUserLeftRoom      = "user_left_room"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventUserStatusChange  = "user_status_change"
	EventReactionAdded     = "reaction_added"
	EventMessageDeleted    = "message_deleted"
	EventMessageModerated  = "message_moderated"
	EventMessagePinToggled = "message_pin_toggled"
	EventNewReport         = "new_report"
	EventAnnouncement      = "announcement"

	// Synthetic client-side events emitted by the connection manager.
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Ack codes the server uses for programmatic branching.
const (
	CodeUpgradeRequired  = "upgradeRequired"
	CodePermissionDenied = "permissionDenied"
	CodeRoomFull         = "roomFull"
	CodeBanned           = "banned"
	CodeNotFound         = "notFound"
	CodeValidation       = "validation"
)

// Handshake rejection codes carried by AuthError.
const (
	CodeNoToken            = "no-token"
	CodeTokenExpired       = "expired"
	CodeTokenInvalid       = "invalid"
	CodeAccountDeactivated = "account-deactivated"
)

type UserRef struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	MaxMembers     int       `json:"max_members"`
	MemberCount    int       `json:"member_count"`
	MessageCount   int64     `json:"message_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type Message struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"room_id"`
	SenderID  string     `json:"sender_id"`
	Sender    *UserRef   `json:"sender,omitempty"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	ReplyToID *string    `json:"reply_to,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	Moderated bool       `json:"moderated,omitempty"`
	Pinned    bool       `json:"pinned,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
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

type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// RoomJoin is the join_room ack payload.
type RoomJoin struct {
	Room     *Room     `json:"room"`
	Messages []Message `json:"messages"`
}

// RoomsPage is the get_rooms ack payload.
type RoomsPage struct {
	Rooms      []Room     `json:"rooms"`
	Pagination Pagination `json:"pagination"`
}

// RoomUserEvent is the payload of join/leave/typing broadcasts.
type RoomUserEvent struct {
	RoomID string  `json:"roomId"`
	User   UserRef `json:"user"`
}

type StatusChangeEvent struct {
	User     UserRef `json:"user"`
	IsOnline bool    `json:"is_online"`
}

type ReactionEvent struct {
	RoomID   string   `json:"roomId"`
	Reaction Reaction `json:"reaction"`
}

type MessageRemovalEvent struct {
	RoomID    string  `json:"roomId"`
	MessageID string  `json:"messageId"`
	Actor     UserRef `json:"actor"`
	Reason    string  `json:"reason,omitempty"`
}

type PinToggleEvent struct {
	RoomID    string  `json:"roomId"`
	MessageID string  `json:"messageId"`
	Pinned    bool    `json:"pinned"`
	Actor     UserRef `json:"actor"`
}

type NewReportEvent struct {
	Report   Report  `json:"report"`
	Reporter UserRef `json:"reporter"`
}

// StatusEvent is the payload of the synthetic connected/disconnected events.
// Error is set when a disconnect is terminal (retries exhausted, refresh
// failed); an empty Error on a disconnect means it was requested.
type StatusEvent struct {
	Error string `json:"error,omitempty"`
}
