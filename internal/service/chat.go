package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deba607/AbJee-Travel-sub001/internal/metrics"
	"github.com/deba607/AbJee-Travel-sub001/internal/model"
	"github.com/deba607/AbJee-Travel-sub001/internal/repository"
)

// RoomStore is the room registry: membership, roles, bans, counters.
// Concurrently-mutated state goes through atomic statements only.
type RoomStore interface {
	GetByID(ctx context.Context, id string) (*model.Room, error)
	List(ctx context.Context, roomType string, page, limit int) ([]model.Room, int, error)
	GetMember(ctx context.Context, roomID, userID string) (*model.RoomMember, error)
	IsBanned(ctx context.Context, roomID, userID string) (bool, error)
	AddMember(ctx context.Context, roomID, userID, role string) (bool, error)
	RemoveMember(ctx context.Context, roomID, userID string) (bool, error)
	SetMemberRole(ctx context.Context, roomID, userID, role string) (bool, error)
	Ban(ctx context.Context, roomID, userID, bannedBy, reason string) error
	Unban(ctx context.Context, roomID, userID string) (bool, error)
	RecordMessage(ctx context.Context, roomID string) error
	TouchLastRead(ctx context.Context, roomID, userID string, at time.Time) error
	ModeratorIDs(ctx context.Context, roomID string) ([]string, error)
}

// MessageStore is the append-only message log.
type MessageStore interface {
	Insert(ctx context.Context, roomID, senderID, content, msgType string, replyTo *string) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	RecentWindow(ctx context.Context, roomID string, limit int) ([]model.Message, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	Moderate(ctx context.Context, id, moderatorID, reason string) (bool, error)
	TogglePin(ctx context.Context, id string) (bool, error)
	UpsertReaction(ctx context.Context, messageID, userID, emoji string) (*model.Reaction, error)
	MarkRead(ctx context.Context, messageID, userID string) error
	InsertReport(ctx context.Context, messageID, roomID, reporterID, reason, description string) (*model.Report, error)
}

// UserDirectory resolves user records for broadcasts about users other than
// the acting session's own.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

var (
	_ RoomStore     = (*repository.RoomRepository)(nil)
	_ MessageStore  = (*repository.MessageRepository)(nil)
	_ UserDirectory = (*repository.UserRepository)(nil)
)

// Broadcaster fans events out to live sessions.
type Broadcaster interface {
	ToRoom(roomID string, ev *model.Event, exceptSession string)
	ToUsers(userIDs []string, ev *model.Event)
}

// ReportNotifier pushes new moderation reports to an external channel.
type ReportNotifier interface {
	NotifyReport(report *model.Report, reporter model.UserRef)
}

type ChatConfig struct {
	MaxMessageLen int
	HistoryLimit  int
}

func (c ChatConfig) withDefaults() ChatConfig {
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 2000
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// ChatService applies room and message operations on behalf of an
// authenticated session and broadcasts the results to affected rooms.
type ChatService struct {
	rooms        RoomStore
	messages     MessageStore
	users        UserDirectory
	entitlements Entitlements
	hub          Broadcaster
	typingLimit  *KeyedLimiter
	notifier     ReportNotifier
	cfg          ChatConfig
}

func NewChatService(rooms RoomStore, messages MessageStore, users UserDirectory, entitlements Entitlements, hub Broadcaster, typingLimit *KeyedLimiter, notifier ReportNotifier, cfg ChatConfig) *ChatService {
	return &ChatService{
		rooms:        rooms,
		messages:     messages,
		users:        users,
		entitlements: entitlements,
		hub:          hub,
		typingLimit:  typingLimit,
		notifier:     notifier,
		cfg:          cfg.withDefaults(),
	}
}

// JoinRoom checks ban, capacity, then entitlement, adds (or confirms) the
// membership, and broadcasts user_joined_room to the room's other sessions.
// Rejoining a room the user is already in is a no-op success.
func (s *ChatService) JoinRoom(ctx context.Context, actor *model.User, sessionID, roomID string) (*model.JoinRoomResponse, error) {
	if roomID == "" {
		return nil, ErrMissingField
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}

	banned, err := s.rooms.IsBanned(ctx, roomID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("check ban: %w", err)
	}
	if banned {
		return nil, ErrBannedFromRoom
	}

	member, err := s.rooms.GetMember(ctx, roomID, actor.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check membership: %w", err)
	}

	newMember := member == nil
	if newMember {
		if room.MemberCount >= room.MaxMembers {
			return nil, ErrRoomFull
		}
		if room.Type == model.RoomTypePrivate {
			ok, err := s.entitlements.CanAccessPrivateRooms(ctx, actor)
			if err != nil {
				return nil, fmt.Errorf("check entitlement: %w", err)
			}
			if !ok {
				return nil, ErrUpgradeRequired
			}
		}

		inserted, err := s.rooms.AddMember(ctx, roomID, actor.ID, model.RoomRoleMember)
		if err != nil {
			return nil, fmt.Errorf("add member: %w", err)
		}
		if !inserted {
			// The guarded insert refused: either the room filled up under us
			// or another session of this user joined first. Re-check to tell
			// the two apart.
			if m, err := s.rooms.GetMember(ctx, roomID, actor.ID); err == nil && m != nil {
				newMember = false
			} else {
				return nil, ErrRoomFull
			}
		}
		room.MemberCount++
	}

	msgs, err := s.messages.RecentWindow(ctx, roomID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if newMember {
		s.hub.ToRoom(roomID, mustEvent(model.EventUserJoinedRoom, model.RoomUserEvent{
			RoomID: roomID,
			User:   actor.Ref(),
		}), sessionID)
	}

	return &model.JoinRoomResponse{Room: room, Messages: msgs}, nil
}

// LeaveRoom is idempotent: leaving a room the user is not in still succeeds.
func (s *ChatService) LeaveRoom(ctx context.Context, actor *model.User, sessionID, roomID string) error {
	if roomID == "" {
		return ErrMissingField
	}

	removed, err := s.rooms.RemoveMember(ctx, roomID, actor.ID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if removed {
		s.hub.ToRoom(roomID, mustEvent(model.EventUserLeftRoom, model.RoomUserEvent{
			RoomID: roomID,
			User:   actor.Ref(),
		}), sessionID)
	}
	return nil
}

// SendMessage validates before touching the log, appends, bumps the room's
// counter atomically, and broadcasts to every other session in the room,
// including the sender's other connections. The sending session itself gets
// the message back in the ack.
func (s *ChatService) SendMessage(ctx context.Context, actor *model.User, sessionID string, req model.SendMessageRequest) (*model.Message, error) {
	if req.RoomID == "" {
		return nil, ErrMissingField
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLen {
		return nil, ErrContentTooLong
	}
	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if !model.ValidMessageType(msgType) {
		return nil, ErrInvalidMessageType
	}

	if _, err := s.memberOf(ctx, req.RoomID, actor.ID); err != nil {
		return nil, err
	}

	if req.ReplyTo != nil && *req.ReplyTo != "" {
		parent, err := s.messages.GetByID(ctx, *req.ReplyTo)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrInvalidReply
			}
			return nil, fmt.Errorf("load reply target: %w", err)
		}
		if parent.RoomID != req.RoomID {
			return nil, ErrInvalidReply
		}
	} else {
		req.ReplyTo = nil
	}

	msg, err := s.messages.Insert(ctx, req.RoomID, actor.ID, content, msgType, req.ReplyTo)
	if err != nil {
		return nil, err
	}
	msg.Sender = refOf(actor)

	if err := s.rooms.RecordMessage(ctx, req.RoomID); err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}
	metrics.MessagesTotal.Inc()

	s.hub.ToRoom(req.RoomID, mustEvent(model.EventNewMessage, msg), sessionID)
	return msg, nil
}

// Typing fans out a stateless typing indicator, rate-limited per user per
// room. Over-limit events are dropped silently, never erred back.
func (s *ChatService) Typing(ctx context.Context, actor *model.User, sessionID, roomID string, start bool) error {
	if roomID == "" {
		return nil
	}
	if _, err := s.memberOf(ctx, roomID, actor.ID); err != nil {
		return nil
	}
	if s.typingLimit != nil && !s.typingLimit.Allow(actor.ID+":typing:"+roomID) {
		return nil
	}

	evType := model.EventUserTyping
	if !start {
		evType = model.EventUserStoppedTyping
	}
	s.hub.ToRoom(roomID, mustEvent(evType, model.RoomUserEvent{
		RoomID: roomID,
		User:   actor.Ref(),
	}), sessionID)
	return nil
}

// AddReaction stores at most one reaction per user per message; a new emoji
// replaces the previous one.
func (s *ChatService) AddReaction(ctx context.Context, actor *model.User, sessionID, messageID, emoji string) error {
	if messageID == "" || emoji == "" {
		return ErrMissingField
	}

	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.memberOf(ctx, msg.RoomID, actor.ID); err != nil {
		return err
	}

	re, err := s.messages.UpsertReaction(ctx, messageID, actor.ID, emoji)
	if err != nil {
		return err
	}

	s.hub.ToRoom(msg.RoomID, mustEvent(model.EventReactionAdded, model.ReactionEvent{
		RoomID:   msg.RoomID,
		Reaction: *re,
	}), sessionID)
	return nil
}

// MarkRead records a read receipt and advances the membership's last-read
// stamp. No ack and no broadcast; receipts are pull-only state.
func (s *ChatService) MarkRead(ctx context.Context, actor *model.User, roomID, messageID string) error {
	if roomID == "" || messageID == "" {
		return ErrMissingField
	}
	if _, err := s.memberOf(ctx, roomID, actor.ID); err != nil {
		return err
	}
	if err := s.messages.MarkRead(ctx, messageID, actor.ID); err != nil {
		return err
	}
	return s.rooms.TouchLastRead(ctx, roomID, actor.ID, time.Now())
}

func (s *ChatService) ListRooms(ctx context.Context, req model.GetRoomsRequest) (*model.GetRoomsResponse, error) {
	if req.Type != "" && !model.ValidRoomType(req.Type) {
		return nil, ErrMissingField
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rooms, total, err := s.rooms.List(ctx, req.Type, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	return &model.GetRoomsResponse{
		Rooms: rooms,
		Pagination: model.Pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasMore: page*limit < total,
		},
	}, nil
}

// DeleteMessage soft-deletes: the sender may remove their own message,
// room moderators may remove anyone's. Content is replaced with the
// placeholder; the row survives for replies and reports.
func (s *ChatService) DeleteMessage(ctx context.Context, actor *model.User, sessionID, messageID string) error {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.ID {
		if err := s.requireRoomRole(ctx, msg.RoomID, actor, model.RoomRoleModerator); err != nil {
			return err
		}
	}

	if _, err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	s.hub.ToRoom(msg.RoomID, mustEvent(model.EventMessageDeleted, model.MessageRemovalEvent{
		RoomID:    msg.RoomID,
		MessageID: messageID,
		Actor:     actor.Ref(),
	}), sessionID)
	return nil
}

// ReportMessage persists the report and notifies the room's moderators (and
// the ops webhook); the reporter only needs membership.
func (s *ChatService) ReportMessage(ctx context.Context, actor *model.User, messageID, reason, description string) error {
	if reason == "" {
		return ErrMissingField
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.memberOf(ctx, msg.RoomID, actor.ID); err != nil {
		return err
	}

	report, err := s.messages.InsertReport(ctx, messageID, msg.RoomID, actor.ID, reason, description)
	if err != nil {
		return err
	}

	mods, err := s.rooms.ModeratorIDs(ctx, msg.RoomID)
	if err == nil && len(mods) > 0 {
		s.hub.ToUsers(mods, mustEvent(model.EventNewReport, model.NewReportEvent{
			Report:   *report,
			Reporter: actor.Ref(),
		}))
	}
	if s.notifier != nil {
		s.notifier.NotifyReport(report, actor.Ref())
	}
	return nil
}

func (s *ChatService) ModerateMessage(ctx context.Context, actor *model.User, sessionID, messageID, reason string) error {
	if reason == "" {
		return ErrMissingField
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireRoomRole(ctx, msg.RoomID, actor, model.RoomRoleModerator); err != nil {
		return err
	}

	if _, err := s.messages.Moderate(ctx, messageID, actor.ID, reason); err != nil {
		return err
	}

	s.hub.ToRoom(msg.RoomID, mustEvent(model.EventMessageModerated, model.MessageRemovalEvent{
		RoomID:    msg.RoomID,
		MessageID: messageID,
		Actor:     actor.Ref(),
		Reason:    reason,
	}), sessionID)
	return nil
}

func (s *ChatService) TogglePinMessage(ctx context.Context, actor *model.User, sessionID, messageID string) error {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireRoomRole(ctx, msg.RoomID, actor, model.RoomRoleModerator); err != nil {
		return err
	}

	pinned, err := s.messages.TogglePin(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	s.hub.ToRoom(msg.RoomID, mustEvent(model.EventMessagePinToggled, model.PinToggleEvent{
		RoomID:    msg.RoomID,
		MessageID: messageID,
		Pinned:    pinned,
		Actor:     actor.Ref(),
	}), sessionID)
	return nil
}

// BanUser removes the target's membership and records the ban in one
// transaction, then tells the room the user left. Admin-in-room only.
func (s *ChatService) BanUser(ctx context.Context, actor *model.User, sessionID, roomID, targetID, reason string) error {
	if roomID == "" || targetID == "" {
		return ErrMissingField
	}
	if err := s.requireRoomRole(ctx, roomID, actor, model.RoomRoleAdmin); err != nil {
		return err
	}

	target, err := s.rooms.GetMember(ctx, roomID, targetID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load target membership: %w", err)
	}

	if err := s.rooms.Ban(ctx, roomID, targetID, actor.ID, reason); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}

	if target != nil {
		// same payload shape as a voluntary leave, so clients render the
		// eviction with the user's name, not a bare id
		ref := model.UserRef{ID: targetID}
		if u, err := s.users.GetByID(ctx, targetID); err == nil {
			ref = u.Ref()
		}
		s.hub.ToRoom(roomID, mustEvent(model.EventUserLeftRoom, model.RoomUserEvent{
			RoomID: roomID,
			User:   ref,
		}), sessionID)
	}
	return nil
}

func (s *ChatService) UnbanUser(ctx context.Context, actor *model.User, roomID, targetID string) error {
	if roomID == "" || targetID == "" {
		return ErrMissingField
	}
	if err := s.requireRoomRole(ctx, roomID, actor, model.RoomRoleAdmin); err != nil {
		return err
	}
	_, err := s.rooms.Unban(ctx, roomID, targetID)
	return err
}

func (s *ChatService) SetModerator(ctx context.Context, actor *model.User, roomID, targetID string, grant bool) error {
	if roomID == "" || targetID == "" {
		return ErrMissingField
	}
	if err := s.requireRoomRole(ctx, roomID, actor, model.RoomRoleAdmin); err != nil {
		return err
	}

	role := model.RoomRoleMember
	if grant {
		role = model.RoomRoleModerator
	}
	updated, err := s.rooms.SetMemberRole(ctx, roomID, targetID, role)
	if err != nil {
		return err
	}
	if !updated {
		return ErrNotMember
	}
	return nil
}

func (s *ChatService) memberOf(ctx context.Context, roomID, userID string) (*model.RoomMember, error) {
	member, err := s.rooms.GetMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

// requireRoomRole enforces moderation permissions. Room role is checked
// first; platform admins pass regardless of their room role.
func (s *ChatService) requireRoomRole(ctx context.Context, roomID string, actor *model.User, minRole string) error {
	if actor.Role == model.RoleAdmin {
		return nil
	}
	member, err := s.memberOf(ctx, roomID, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return ErrPermissionDenied
		}
		return err
	}

	switch minRole {
	case model.RoomRoleAdmin:
		if member.Role == model.RoomRoleAdmin {
			return nil
		}
	case model.RoomRoleModerator:
		if member.Role == model.RoomRoleAdmin || member.Role == model.RoomRoleModerator {
			return nil
		}
	default:
		return nil
	}
	return ErrPermissionDenied
}

func (s *ChatService) loadMessage(ctx context.Context, messageID string) (*model.Message, error) {
	if messageID == "" {
		return nil, ErrMissingField
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	return msg, nil
}

func refOf(u *model.User) *model.UserRef {
	r := u.Ref()
	return &r
}

func mustEvent(evType string, payload interface{}) *model.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		return &model.Event{Type: evType}
	}
	return &model.Event{Type: evType, Data: data}
}
