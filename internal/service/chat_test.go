package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"
	"github.com/deba607/AbJee-Travel-sub001/internal/repository"
)

// memStore is an in-memory RoomStore and MessageStore sharing one lock, with
// the same guarded-insert and upsert semantics as the SQL repositories.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*model.User
	rooms     map[string]*model.Room
	roomOrder []string
	members   map[string]map[string]*model.RoomMember
	bans      map[string]map[string]bool
	messages  map[string]*model.Message
	msgOrder  map[string][]string
	reactions map[string]map[string]model.Reaction
	reads     map[string]map[string]bool
	reports   []model.Report
	nextID    int
}

var (
	_ RoomStore    = (*memStore)(nil)
	_ MessageStore = messageSide{}
)

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*model.User),
		rooms:     make(map[string]*model.Room),
		members:   make(map[string]map[string]*model.RoomMember),
		bans:      make(map[string]map[string]bool),
		messages:  make(map[string]*model.Message),
		msgOrder:  make(map[string][]string),
		reactions: make(map[string]map[string]model.Reaction),
		reads:     make(map[string]map[string]bool),
	}
}

func (m *memStore) addRoom(id, name, roomType string, maxMembers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[id] = &model.Room{ID: id, Name: name, Type: roomType, MaxMembers: maxMembers, CreatedAt: time.Now()}
	m.roomOrder = append(m.roomOrder, id)
	m.members[id] = make(map[string]*model.RoomMember)
	m.bans[id] = make(map[string]bool)
}

func (m *memStore) putMember(roomID, userID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[roomID][userID] = &model.RoomMember{RoomID: roomID, UserID: userID, Role: role, JoinedAt: time.Now()}
}

func (m *memStore) putUser(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *room
	out.MemberCount = len(m.members[id])
	return &out, nil
}

func (m *memStore) List(ctx context.Context, roomType string, page, limit int) ([]model.Room, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Room
	for _, id := range m.roomOrder {
		r := m.rooms[id]
		if roomType != "" && r.Type != roomType {
			continue
		}
		out := *r
		out.MemberCount = len(m.members[id])
		all = append(all, out)
	}
	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *memStore) GetMember(ctx context.Context, roomID, userID string) (*model.RoomMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[roomID][userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *member
	return &out, nil
}

func (m *memStore) IsBanned(ctx context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bans[roomID][userID], nil
}

func (m *memStore) AddMember(ctx context.Context, roomID, userID, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.members[roomID]
	if _, exists := set[userID]; exists {
		return false, nil
	}
	if len(set) >= m.rooms[roomID].MaxMembers {
		return false, nil
	}
	set[userID] = &model.RoomMember{RoomID: roomID, UserID: userID, Role: role, JoinedAt: time.Now()}
	return true, nil
}

func (m *memStore) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[roomID][userID]; !ok {
		return false, nil
	}
	delete(m.members[roomID], userID)
	return true, nil
}

func (m *memStore) SetMemberRole(ctx context.Context, roomID, userID, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[roomID][userID]
	if !ok {
		return false, nil
	}
	member.Role = role
	return true, nil
}

func (m *memStore) Ban(ctx context.Context, roomID, userID, bannedBy, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[roomID], userID)
	m.bans[roomID][userID] = true
	return nil
}

func (m *memStore) Unban(ctx context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bans[roomID][userID] {
		return false, nil
	}
	delete(m.bans[roomID], userID)
	return true, nil
}

func (m *memStore) RecordMessage(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.MessageCount++
	room.LastActivityAt = time.Now()
	return nil
}

func (m *memStore) TouchLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member, ok := m.members[roomID][userID]; ok {
		member.LastReadAt = &at
	}
	return nil
}

func (m *memStore) ModeratorIDs(ctx context.Context, roomID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, member := range m.members[roomID] {
		if member.Role == model.RoomRoleModerator || member.Role == model.RoomRoleAdmin {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) Insert(ctx context.Context, roomID, senderID, content, msgType string, replyTo *string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg := &model.Message{
		ID:        fmt.Sprintf("m%d", m.nextID),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Type:      msgType,
		ReplyToID: replyTo,
		CreatedAt: time.Now(),
	}
	m.messages[msg.ID] = msg
	m.msgOrder[roomID] = append(m.msgOrder[roomID], msg.ID)
	out := *msg
	return &out, nil
}

func (m *memStore) msgByID(id string) (*model.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return msg, nil
}

func (m *memStore) GetByIDMessage(id string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.msgByID(id)
	if err != nil {
		return nil, err
	}
	out := *msg
	return &out, nil
}

func (m *memStore) RecentWindow(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var visible []model.Message
	for _, id := range m.msgOrder[roomID] {
		msg := m.messages[id]
		if msg.Deleted {
			continue
		}
		out := *msg
		for _, re := range m.reactions[id] {
			out.Reactions = append(out.Reactions, re)
		}
		visible = append(visible, out)
	}
	if len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	return visible, nil
}

func (m *memStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.msgByID(id)
	if err != nil || msg.Deleted {
		return false, err
	}
	now := time.Now()
	msg.Deleted = true
	msg.DeletedAt = &now
	msg.Content = model.DeletedPlaceholder
	return true, nil
}

func (m *memStore) Moderate(ctx context.Context, id, moderatorID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.msgByID(id)
	if err != nil {
		return false, err
	}
	msg.Moderated = true
	msg.ModeratedBy = &moderatorID
	msg.ModerationReason = &reason
	return true, nil
}

func (m *memStore) TogglePin(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.msgByID(id)
	if err != nil {
		return false, err
	}
	msg.Pinned = !msg.Pinned
	return msg.Pinned, nil
}

func (m *memStore) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (*model.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.msgByID(messageID); err != nil {
		return nil, err
	}
	set := m.reactions[messageID]
	if set == nil {
		set = make(map[string]model.Reaction)
		m.reactions[messageID] = set
	}
	re := model.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, ReactedAt: time.Now()}
	set[userID] = re
	return &re, nil
}

func (m *memStore) MarkRead(ctx context.Context, messageID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.reads[messageID]
	if set == nil {
		set = make(map[string]bool)
		m.reads[messageID] = set
	}
	set[userID] = true
	return nil
}

func (m *memStore) InsertReport(ctx context.Context, messageID, roomID, reporterID, reason, description string) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	report := model.Report{
		ID:          fmt.Sprintf("rep%d", m.nextID),
		MessageID:   messageID,
		RoomID:      roomID,
		ReporterID:  reporterID,
		Reason:      reason,
		Description: description,
		CreatedAt:   time.Now(),
	}
	m.reports = append(m.reports, report)
	return &report, nil
}

// GetByID on messages and users collides with the room method name, so the
// MessageStore and UserDirectory sides are satisfied through adapters.
type messageSide struct{ *memStore }

func (a messageSide) GetByID(ctx context.Context, id string) (*model.Message, error) {
	return a.GetByIDMessage(id)
}

type userSide struct{ *memStore }

func (a userSide) GetByID(ctx context.Context, id string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

type sentRoomEvent struct {
	roomID string
	ev     *model.Event
	except string
}

type sentUserEvent struct {
	userIDs []string
	ev      *model.Event
}

type fakeHub struct {
	mu         sync.Mutex
	roomEvents []sentRoomEvent
	userEvents []sentUserEvent
}

func (h *fakeHub) ToRoom(roomID string, ev *model.Event, exceptSession string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roomEvents = append(h.roomEvents, sentRoomEvent{roomID: roomID, ev: ev, except: exceptSession})
}

func (h *fakeHub) ToUsers(userIDs []string, ev *model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userEvents = append(h.userEvents, sentUserEvent{userIDs: userIDs, ev: ev})
}

func (h *fakeHub) roomEventsOfType(evType string) []sentRoomEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentRoomEvent
	for _, e := range h.roomEvents {
		if e.ev.Type == evType {
			out = append(out, e)
		}
	}
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []*model.Report
}

func (n *fakeNotifier) NotifyReport(report *model.Report, reporter model.UserRef) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
}

func newTestChat(t *testing.T) (*ChatService, *memStore, *fakeHub, *fakeNotifier) {
	t.Helper()
	store := newMemStore()
	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	svc := NewChatService(store, messageSide{store}, userSide{store}, TierEntitlements{}, hub, nil, notifier, ChatConfig{MaxMessageLen: 100, HistoryLimit: 10})
	return svc, store, hub, notifier
}

func memberUser(id string) *model.User {
	return &model.User{ID: id, Username: "user-" + id, Role: model.RoleUser, SubscriptionTier: model.TierFree, IsActive: true}
}

func TestJoinRoomAddsMemberAndBroadcasts(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	actor := memberUser("u1")

	resp, err := svc.JoinRoom(context.Background(), actor, "sess-1", "r1")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if resp.Room.ID != "r1" || resp.Room.MemberCount != 1 {
		t.Fatalf("unexpected room in response: %+v", resp.Room)
	}

	joins := hub.roomEventsOfType(model.EventUserJoinedRoom)
	if len(joins) != 1 {
		t.Fatalf("join broadcasts = %d, want 1", len(joins))
	}
	if joins[0].except != "sess-1" {
		t.Fatalf("joiner session not excluded: %q", joins[0].except)
	}
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	actor := memberUser("u1")

	if _, err := svc.JoinRoom(context.Background(), actor, "s1", "r1"); err != nil {
		t.Fatalf("first JoinRoom: %v", err)
	}
	if _, err := svc.JoinRoom(context.Background(), actor, "s2", "r1"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	if joins := hub.roomEventsOfType(model.EventUserJoinedRoom); len(joins) != 1 {
		t.Fatalf("join broadcasts = %d, want 1 (rejoin must not rebroadcast)", len(joins))
	}
	if _, err := store.GetMember(context.Background(), "r1", "u1"); err != nil {
		t.Fatalf("membership missing after rejoin: %v", err)
	}
}

func TestJoinRoomRejectsBannedBeforeCapacity(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 1)
	store.putMember("r1", "other", model.RoomRoleMember) // room now full
	store.mu.Lock()
	store.bans["r1"]["u1"] = true
	store.mu.Unlock()

	_, err := svc.JoinRoom(context.Background(), memberUser("u1"), "s1", "r1")
	if !errors.Is(err, ErrBannedFromRoom) {
		t.Fatalf("err = %v, want ErrBannedFromRoom (ban outranks capacity)", err)
	}
}

func TestJoinRoomRejectsAtCapacity(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "tiny", model.RoomTypePublic, 1)
	store.putMember("r1", "other", model.RoomRoleMember)

	_, err := svc.JoinRoom(context.Background(), memberUser("u1"), "s1", "r1")
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
}

func TestJoinPrivateRoomRequiresEntitlement(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "lounge", model.RoomTypePrivate, 10)

	free := memberUser("u1")
	if _, err := svc.JoinRoom(context.Background(), free, "s1", "r1"); !errors.Is(err, ErrUpgradeRequired) {
		t.Fatalf("free tier err = %v, want ErrUpgradeRequired", err)
	}

	premium := memberUser("u2")
	premium.SubscriptionTier = model.TierPremium
	if _, err := svc.JoinRoom(context.Background(), premium, "s2", "r1"); err != nil {
		t.Fatalf("premium tier join: %v", err)
	}
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	svc, _, _, _ := newTestChat(t)
	_, err := svc.JoinRoom(context.Background(), memberUser("u1"), "s1", "nope")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestLeaveRoomIsIdempotent(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	actor := memberUser("u1")

	if err := svc.LeaveRoom(context.Background(), actor, "s1", "r1"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if err := svc.LeaveRoom(context.Background(), actor, "s1", "r1"); err != nil {
		t.Fatalf("second LeaveRoom: %v", err)
	}
	if left := hub.roomEventsOfType(model.EventUserLeftRoom); len(left) != 1 {
		t.Fatalf("leave broadcasts = %d, want 1", len(left))
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	actor := memberUser("u1")
	ctx := context.Background()

	if _, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "   "}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("whitespace content err = %v, want ErrEmptyContent", err)
	}

	atLimit := strings.Repeat("é", 100) // rune count, not byte count
	if _, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: atLimit}); err != nil {
		t.Fatalf("content at limit rejected: %v", err)
	}
	if _, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: atLimit + "x"}); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("content past limit err = %v, want ErrContentTooLong", err)
	}

	if _, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "hi", Type: "sticker"}); !errors.Is(err, ErrInvalidMessageType) {
		t.Fatalf("bad type err = %v, want ErrInvalidMessageType", err)
	}

	outsider := memberUser("u2")
	if _, err := svc.SendMessage(ctx, outsider, "s2", model.SendMessageRequest{RoomID: "r1", Content: "hi"}); !errors.Is(err, ErrNotMember) {
		t.Fatalf("non-member err = %v, want ErrNotMember", err)
	}
}

func TestSendMessageBroadcastsAndCounts(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	actor := memberUser("u1")

	msg, err := svc.SendMessage(context.Background(), actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Sender == nil || msg.Sender.ID != "u1" {
		t.Fatalf("sender ref not attached: %+v", msg.Sender)
	}

	room, _ := store.GetByID(context.Background(), "r1")
	if room.MessageCount != 1 {
		t.Fatalf("message_count = %d, want 1", room.MessageCount)
	}

	sent := hub.roomEventsOfType(model.EventNewMessage)
	if len(sent) != 1 || sent[0].except != "s1" {
		t.Fatalf("broadcast = %+v, want one new_message excluding s1", sent)
	}
}

func TestSendMessageReplyMustBeSameRoom(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.addRoom("r2", "other", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	store.putMember("r2", "u1", model.RoomRoleMember)
	actor := memberUser("u1")
	ctx := context.Background()

	parent, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r2", Content: "parent"})
	if err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	_, err = svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "reply", ReplyTo: &parent.ID})
	if !errors.Is(err, ErrInvalidReply) {
		t.Fatalf("cross-room reply err = %v, want ErrInvalidReply", err)
	}

	ghost := "m999"
	_, err = svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "reply", ReplyTo: &ghost})
	if !errors.Is(err, ErrInvalidReply) {
		t.Fatalf("missing parent err = %v, want ErrInvalidReply", err)
	}

	ok, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r2", Content: "reply", ReplyTo: &parent.ID})
	if err != nil {
		t.Fatalf("same-room reply: %v", err)
	}
	if ok.ReplyToID == nil || *ok.ReplyToID != parent.ID {
		t.Fatalf("reply id not stored: %+v", ok.ReplyToID)
	}
}

func TestTypingDropsSilently(t *testing.T) {
	store := newMemStore()
	hub := &fakeHub{}
	limiter := NewKeyedLimiter(20, 2)
	defer limiter.Stop()
	svc := NewChatService(store, messageSide{store}, userSide{store}, TierEntitlements{}, hub, limiter, nil, ChatConfig{})

	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	actor := memberUser("u1")
	ctx := context.Background()

	// non-member: no error, no broadcast
	if err := svc.Typing(ctx, memberUser("u2"), "s2", "r1", true); err != nil {
		t.Fatalf("non-member Typing errored: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := svc.Typing(ctx, actor, "s1", "r1", true); err != nil {
			t.Fatalf("Typing: %v", err)
		}
	}
	// burst of 2, the rest dropped
	if n := len(hub.roomEventsOfType(model.EventUserTyping)); n != 2 {
		t.Fatalf("typing broadcasts = %d, want 2", n)
	}
}

func TestAddReactionReplacesPrevious(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	actor := memberUser("u1")
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "react to me"})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := svc.AddReaction(ctx, actor, "s1", msg.ID, "👍"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	if err := svc.AddReaction(ctx, actor, "s1", msg.ID, "❤️"); err != nil {
		t.Fatalf("second AddReaction: %v", err)
	}

	window, _ := store.RecentWindow(ctx, "r1", 10)
	last := window[len(window)-1]
	if len(last.Reactions) != 1 {
		t.Fatalf("reactions = %d, want 1 (new emoji replaces old)", len(last.Reactions))
	}
	if last.Reactions[0].Emoji != "❤️" {
		t.Fatalf("emoji = %q, want ❤️", last.Reactions[0].Emoji)
	}
	if n := len(hub.roomEventsOfType(model.EventReactionAdded)); n != 2 {
		t.Fatalf("reaction broadcasts = %d, want 2", n)
	}
}

func TestDeleteMessagePermissions(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "sender", model.RoomRoleMember)
	store.putMember("r1", "peer", model.RoomRoleMember)
	store.putMember("r1", "mod", model.RoomRoleModerator)
	ctx := context.Background()

	sender := memberUser("sender")
	msg, err := svc.SendMessage(ctx, sender, "s1", model.SendMessageRequest{RoomID: "r1", Content: "to be removed"})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := svc.DeleteMessage(ctx, memberUser("peer"), "s2", msg.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("peer delete err = %v, want ErrPermissionDenied", err)
	}
	if err := svc.DeleteMessage(ctx, sender, "s1", msg.ID); err != nil {
		t.Fatalf("sender delete: %v", err)
	}

	stored, _ := store.GetByIDMessage(msg.ID)
	if !stored.Deleted || stored.Content != model.DeletedPlaceholder {
		t.Fatalf("message not soft-deleted: %+v", stored)
	}

	window, _ := store.RecentWindow(ctx, "r1", 10)
	for _, m := range window {
		if m.ID == msg.ID {
			t.Fatalf("deleted message still in history window")
		}
	}
	if n := len(hub.roomEventsOfType(model.EventMessageDeleted)); n != 1 {
		t.Fatalf("delete broadcasts = %d, want 1", n)
	}

	// moderators may remove other people's messages
	msg2, _ := svc.SendMessage(ctx, sender, "s1", model.SendMessageRequest{RoomID: "r1", Content: "again"})
	mod := memberUser("mod")
	if err := svc.DeleteMessage(ctx, mod, "s3", msg2.ID); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
}

func TestPlatformAdminBypassesRoomRole(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "sender", model.RoomRoleMember)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, memberUser("sender"), "s1", model.SendMessageRequest{RoomID: "r1", Content: "hi"})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	admin := memberUser("staff")
	admin.Role = model.RoleAdmin
	if err := svc.ModerateMessage(ctx, admin, "s2", msg.ID, "tos violation"); err != nil {
		t.Fatalf("platform admin moderate: %v", err)
	}

	stored, _ := store.GetByIDMessage(msg.ID)
	if !stored.Moderated || stored.ModerationReason == nil || *stored.ModerationReason != "tos violation" {
		t.Fatalf("moderation not recorded: %+v", stored)
	}
}

func TestReportMessageNotifiesModerators(t *testing.T) {
	svc, store, hub, notifier := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "sender", model.RoomRoleMember)
	store.putMember("r1", "reporter", model.RoomRoleMember)
	store.putMember("r1", "mod", model.RoomRoleModerator)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, memberUser("sender"), "s1", model.SendMessageRequest{RoomID: "r1", Content: "spam"})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := svc.ReportMessage(ctx, memberUser("reporter"), msg.ID, "spam", "link farm"); err != nil {
		t.Fatalf("ReportMessage: %v", err)
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.userEvents) != 1 {
		t.Fatalf("moderator notifications = %d, want 1", len(hub.userEvents))
	}
	if got := hub.userEvents[0].userIDs; len(got) != 1 || got[0] != "mod" {
		t.Fatalf("notified users = %v, want [mod]", got)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.reports) != 1 || notifier.reports[0].Reason != "spam" {
		t.Fatalf("webhook notifications = %+v, want one spam report", notifier.reports)
	}
}

func TestBanRemovesMembershipAndBlocksRejoin(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "owner", model.RoomRoleAdmin)
	store.putMember("r1", "target", model.RoomRoleMember)
	ctx := context.Background()
	owner := memberUser("owner")

	if err := svc.BanUser(ctx, owner, "s1", "r1", "target", "abuse"); err != nil {
		t.Fatalf("BanUser: %v", err)
	}

	if _, err := store.GetMember(ctx, "r1", "target"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("target still a member after ban")
	}
	if _, err := svc.JoinRoom(ctx, memberUser("target"), "s2", "r1"); !errors.Is(err, ErrBannedFromRoom) {
		t.Fatalf("rejoin err = %v, want ErrBannedFromRoom", err)
	}
	if n := len(hub.roomEventsOfType(model.EventUserLeftRoom)); n != 1 {
		t.Fatalf("leave broadcasts = %d, want 1", n)
	}

	if err := svc.UnbanUser(ctx, owner, "r1", "target"); err != nil {
		t.Fatalf("UnbanUser: %v", err)
	}
	if _, err := svc.JoinRoom(ctx, memberUser("target"), "s2", "r1"); err != nil {
		t.Fatalf("join after unban: %v", err)
	}
}

func TestBanBroadcastCarriesTargetRef(t *testing.T) {
	svc, store, hub, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "owner", model.RoomRoleAdmin)
	store.putMember("r1", "target", model.RoomRoleMember)
	store.putUser(&model.User{ID: "target", Username: "dara", DisplayName: "Dara", IsActive: true})

	if err := svc.BanUser(context.Background(), memberUser("owner"), "s1", "r1", "target", "abuse"); err != nil {
		t.Fatalf("BanUser: %v", err)
	}

	left := hub.roomEventsOfType(model.EventUserLeftRoom)
	if len(left) != 1 {
		t.Fatalf("leave broadcasts = %d, want 1", len(left))
	}
	var payload model.RoomUserEvent
	if err := json.Unmarshal(left[0].ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.User.ID != "target" || payload.User.Username != "dara" || payload.User.DisplayName != "Dara" {
		t.Fatalf("evicted user ref = %+v, want the full target ref", payload.User)
	}
}

func TestBanRequiresRoomAdmin(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "mod", model.RoomRoleModerator)
	store.putMember("r1", "target", model.RoomRoleMember)

	err := svc.BanUser(context.Background(), memberUser("mod"), "s1", "r1", "target", "abuse")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("moderator ban err = %v, want ErrPermissionDenied", err)
	}
}

func TestSetModerator(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "owner", model.RoomRoleAdmin)
	store.putMember("r1", "target", model.RoomRoleMember)
	ctx := context.Background()
	owner := memberUser("owner")

	if err := svc.SetModerator(ctx, owner, "r1", "target", true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	member, _ := store.GetMember(ctx, "r1", "target")
	if member.Role != model.RoomRoleModerator {
		t.Fatalf("role = %q, want moderator", member.Role)
	}

	if err := svc.SetModerator(ctx, owner, "r1", "target", false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	member, _ = store.GetMember(ctx, "r1", "target")
	if member.Role != model.RoomRoleMember {
		t.Fatalf("role = %q, want member", member.Role)
	}

	if err := svc.SetModerator(ctx, owner, "r1", "ghost", true); !errors.Is(err, ErrNotMember) {
		t.Fatalf("unknown target err = %v, want ErrNotMember", err)
	}
}

func TestMarkReadAdvancesLastRead(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	store.putMember("r1", "u1", model.RoomRoleMember)
	actor := memberUser("u1")
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, actor, "s1", model.SendMessageRequest{RoomID: "r1", Content: "hi"})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if err := svc.MarkRead(ctx, actor, "r1", msg.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	member, _ := store.GetMember(ctx, "r1", "u1")
	if member.LastReadAt == nil {
		t.Fatalf("last_read_at not advanced")
	}
	store.mu.Lock()
	read := store.reads[msg.ID]["u1"]
	store.mu.Unlock()
	if !read {
		t.Fatalf("read receipt not recorded")
	}
}

func TestListRoomsPagination(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	for i := 1; i <= 5; i++ {
		store.addRoom(fmt.Sprintf("r%d", i), fmt.Sprintf("room %d", i), model.RoomTypePublic, 10)
	}
	store.addRoom("p1", "lounge", model.RoomTypePrivate, 10)
	ctx := context.Background()

	resp, err := svc.ListRooms(ctx, model.GetRoomsRequest{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(resp.Rooms) != 2 || resp.Pagination.Total != 6 || !resp.Pagination.HasMore {
		t.Fatalf("page 1 = %d rooms, total %d, hasMore %v", len(resp.Rooms), resp.Pagination.Total, resp.Pagination.HasMore)
	}

	resp, err = svc.ListRooms(ctx, model.GetRoomsRequest{Page: 3, Limit: 2})
	if err != nil {
		t.Fatalf("ListRooms page 3: %v", err)
	}
	if resp.Pagination.HasMore {
		t.Fatalf("last page reports more")
	}

	resp, err = svc.ListRooms(ctx, model.GetRoomsRequest{Type: model.RoomTypePrivate})
	if err != nil {
		t.Fatalf("ListRooms filtered: %v", err)
	}
	if len(resp.Rooms) != 1 || resp.Rooms[0].ID != "p1" {
		t.Fatalf("filtered rooms = %+v, want [p1]", resp.Rooms)
	}
}

func TestJoinSendHistoryFlow(t *testing.T) {
	svc, store, _, _ := newTestChat(t)
	store.addRoom("r1", "general", model.RoomTypePublic, 10)
	ctx := context.Background()

	asha := memberUser("asha")
	bruno := memberUser("bruno")
	if _, err := svc.JoinRoom(ctx, asha, "sa", "r1"); err != nil {
		t.Fatalf("asha join: %v", err)
	}
	if _, err := svc.JoinRoom(ctx, bruno, "sb", "r1"); err != nil {
		t.Fatalf("bruno join: %v", err)
	}

	for i := 1; i <= 15; i++ {
		if _, err := svc.SendMessage(ctx, asha, "sa", model.SendMessageRequest{RoomID: "r1", Content: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	resp, err := svc.JoinRoom(ctx, bruno, "sb", "r1")
	if err != nil {
		t.Fatalf("rejoin for history: %v", err)
	}
	// history window is capped and chronological
	if len(resp.Messages) != 10 {
		t.Fatalf("history = %d messages, want 10", len(resp.Messages))
	}
	if resp.Messages[0].Content != "msg 6" || resp.Messages[9].Content != "msg 15" {
		t.Fatalf("window = [%s .. %s], want [msg 6 .. msg 15]",
			resp.Messages[0].Content, resp.Messages[9].Content)
	}
}
