package service

import "errors"

// Authentication failures (terminal for the handshake).
var (
	ErrNoToken            = errors.New("no token provided")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrAccountDeactivated = errors.New("account is deactivated")
)

// Permission failures (terminal for the triggering request only).
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUpgradeRequired  = errors.New("subscription upgrade required")
	ErrNotMember        = errors.New("not a member of this room")
)

// Validation failures.
var (
	ErrEmptyContent       = errors.New("message content is empty")
	ErrContentTooLong     = errors.New("message content exceeds the limit")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidReply       = errors.New("reply must reference a message in the same room")
	ErrMissingField       = errors.New("missing required field")
)

// Lookup and join failures.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrBannedFromRoom  = errors.New("banned from this room")
	ErrRoomFull        = errors.New("room is at capacity")
)
