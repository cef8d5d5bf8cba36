package model

import "encoding/json"

// Event is the wire frame for both directions. Client frames carry an ID when
// they expect an acknowledgment; the matching ack echoes it back.
type Event struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Ack is the envelope carried in an EventAck frame's data field.
type Ack struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client -> server event types.
const (
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventSendMessage      = "send_message"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventAddReaction      = "add_reaction"
	EventMarkRead         = "mark_read"
	EventGetRooms         = "get_rooms"
	EventDeleteMessage    = "delete_message"
	EventReportMessage    = "report_message"
	EventModerateMessage  = "moderate_message"
	EventTogglePinMessage = "toggle_pin_message"
	EventBanUser          = "ban_user"
	EventUnbanUser        = "unban_user"
	EventSetModerator     = "set_moderator"
	EventPing             = "ping"
)

// Server -> client event types.
const (
	EventAck              = "ack"
	EventPong             = "pong"
	EventAuthError        = "auth_error"
	EventNewMessage       = "new_message"
	EventUserJoinedRoom   = "user_joined_room"
	EventUserLeftRoom     = "user_left_room"
	EventUserTyping       = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventUserStatusChange = "user_status_change"
	EventReactionAdded    = "reaction_added"
	EventMessageDeleted   = "message_deleted"
	EventMessageModerated = "message_moderated"
	EventMessagePinToggled = "message_pin_toggled"
	EventNewReport        = "new_report"
	EventAnnouncement     = "announcement"
)

// Ack error codes for programmatic branching.
const (
	CodeNoToken            = "no-token"
	CodeTokenExpired       = "expired"
	CodeTokenInvalid       = "invalid"
	CodeAccountDeactivated = "account-deactivated"
	CodeUpgradeRequired    = "upgradeRequired"
	CodePermissionDenied   = "permissionDenied"
	CodeRoomFull           = "roomFull"
	CodeBanned             = "banned"
	CodeNotFound           = "notFound"
	CodeValidation         = "validation"
)

// Request payloads.

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"roomId"`
}

type SendMessageRequest struct {
	RoomID  string  `json:"roomId"`
	Content string  `json:"content"`
	Type    string  `json:"type,omitempty"`
	ReplyTo *string `json:"replyTo,omitempty"`
}

type TypingRequest struct {
	RoomID string `json:"roomId"`
}

type AddReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type MarkReadRequest struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type GetRoomsRequest struct {
	Type  string `json:"type,omitempty"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type MessageActionRequest struct {
	MessageID string `json:"messageId"`
	Reason    string `json:"reason,omitempty"`
	// Description is only used by report_message.
	Description string `json:"description,omitempty"`
}

type RoomAdminRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
	Grant  bool   `json:"grant,omitempty"`
}

// Ack payloads.

type JoinRoomResponse struct {
	Room     *Room     `json:"room"`
	Messages []Message `json:"messages"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
}

type GetRoomsResponse struct {
	Rooms      []Room     `json:"rooms"`
	Pagination Pagination `json:"pagination"`
}

// Broadcast payloads.

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

type Announcement struct {
	Message string `json:"message"`
}
