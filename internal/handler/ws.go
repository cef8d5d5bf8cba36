package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/metrics"
	"github.com/deba607/AbJee-Travel-sub001/internal/model"
	"github.com/deba607/AbJee-Travel-sub001/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	readDeadline = 60 * time.Second
	// presence writes run after the transport is gone, on their own budget
	cleanupTimeout = 5 * time.Second
)

// WSHandler authenticates one transport connection, binds it to a user, and
// dispatches inbound events serially for that connection.
type WSHandler struct {
	hub   *service.Hub
	auth  *service.AuthService
	chat  *service.ChatService
	users service.IdentityStore
}

func NewWSHandler(hub *service.Hub, auth *service.AuthService, chat *service.ChatService, users service.IdentityStore) *WSHandler {
	return &WSHandler{hub: hub, auth: auth, chat: chat, users: users}
}

// Upgrade validates the handshake token before the websocket upgrade. A bad
// token closes the exchange with a typed code and no session is created.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	user, err := h.auth.Authenticate(c.Context(), c.Query("token"))
	if err != nil {
		code := authErrorCode(err)
		metrics.HandshakeFailures.WithLabelValues(code).Inc()
		return c.Status(401).JSON(fiber.Map{"error": err.Error(), "code": code})
	}

	c.Locals("user", user)
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	user, _ := c.Locals("user").(*model.User)
	if user == nil {
		_ = c.Close()
		return
	}

	sess := service.NewSession(uuid.NewString(), user)
	first := h.hub.Register(sess) == 1

	// Presence online + last-seen: exactly once per successful handshake.
	{
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		if err := h.users.SetOnline(ctx, user.ID, true); err != nil {
			log.Printf("[ws] presence online for %s: %v", user.Username, err)
		}
		cancel()
	}
	if first {
		h.hub.Broadcast(statusEvent(user, true))
	}

	// Transport close can be observed more than once (read error plus the
	// deferred close); the session must be torn down exactly once.
	var cleanup sync.Once
	teardown := func() {
		cleanup.Do(func() {
			remaining := h.hub.Unregister(sess)
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			if remaining == 0 {
				if err := h.users.SetOnline(ctx, user.ID, false); err != nil {
					log.Printf("[ws] presence offline for %s: %v", user.Username, err)
				}
				h.hub.Broadcast(statusEvent(user, false))
			}
		})
	}
	defer teardown()

	// Writer goroutine: the hub only fills sess.Send, never writes the socket.
	go func() {
		defer c.Close()
		for msg := range sess.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	c.SetReadDeadline(time.Now().Add(readDeadline))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		c.SetReadDeadline(time.Now().Add(readDeadline))

		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		metrics.EventsTotal.WithLabelValues(ev.Type).Inc()
		h.dispatch(sess, &ev)
	}
}

// dispatch runs one inbound event to completion. Events of a single
// connection are processed serially here, which preserves per-sender
// ordering within a room.
func (h *WSHandler) dispatch(sess *service.Session, ev *model.Event) {
	ctx := context.Background()
	user := sess.User

	switch ev.Type {
	case model.EventPing:
		send(sess, &model.Event{Type: model.EventPong})

	case model.EventJoinRoom:
		var req model.JoinRoomRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		resp, err := h.chat.JoinRoom(ctx, user, sess.ID, req.RoomID)
		if err != nil {
			ack(sess, ev.ID, errorAck(err))
			return
		}
		sess.Subscribe(req.RoomID)
		ack(sess, ev.ID, dataAck(resp))

	case model.EventLeaveRoom:
		var req model.LeaveRoomRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		sess.Unsubscribe(req.RoomID)
		if err := h.chat.LeaveRoom(ctx, user, sess.ID, req.RoomID); err != nil {
			ack(sess, ev.ID, errorAck(err))
			return
		}
		ack(sess, ev.ID, model.Ack{Success: true})

	case model.EventSendMessage:
		var req model.SendMessageRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		msg, err := h.chat.SendMessage(ctx, user, sess.ID, req)
		if err != nil {
			ack(sess, ev.ID, errorAck(err))
			return
		}
		ack(sess, ev.ID, dataAck(model.SendMessageResponse{Message: msg}))

	case model.EventTypingStart, model.EventTypingStop:
		var req model.TypingRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return
		}
		// no ack; over-limit and non-member events are dropped silently
		_ = h.chat.Typing(ctx, user, sess.ID, req.RoomID, ev.Type == model.EventTypingStart)

	case model.EventAddReaction:
		var req model.AddReactionRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return
		}
		if err := h.chat.AddReaction(ctx, user, sess.ID, req.MessageID, req.Emoji); err != nil {
			log.Printf("[ws] add_reaction from %s: %v", user.Username, err)
		}

	case model.EventMarkRead:
		var req model.MarkReadRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return
		}
		if err := h.chat.MarkRead(ctx, user, req.RoomID, req.MessageID); err != nil {
			log.Printf("[ws] mark_read from %s: %v", user.Username, err)
		}

	case model.EventGetRooms:
		var req model.GetRoomsRequest
		if len(ev.Data) > 0 {
			if err := json.Unmarshal(ev.Data, &req); err != nil {
				ack(sess, ev.ID, errorAck(service.ErrMissingField))
				return
			}
		}
		resp, err := h.chat.ListRooms(ctx, req)
		if err != nil {
			ack(sess, ev.ID, errorAck(err))
			return
		}
		ack(sess, ev.ID, dataAck(resp))

	case model.EventDeleteMessage:
		var req model.MessageActionRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.DeleteMessage(ctx, user, sess.ID, req.MessageID))

	case model.EventReportMessage:
		var req model.MessageActionRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.ReportMessage(ctx, user, req.MessageID, req.Reason, req.Description))

	case model.EventModerateMessage:
		var req model.MessageActionRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.ModerateMessage(ctx, user, sess.ID, req.MessageID, req.Reason))

	case model.EventTogglePinMessage:
		var req model.MessageActionRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.TogglePinMessage(ctx, user, sess.ID, req.MessageID))

	case model.EventBanUser:
		var req model.RoomAdminRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.BanUser(ctx, user, sess.ID, req.RoomID, req.UserID, req.Reason))

	case model.EventUnbanUser:
		var req model.RoomAdminRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.UnbanUser(ctx, user, req.RoomID, req.UserID))

	case model.EventSetModerator:
		var req model.RoomAdminRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			ack(sess, ev.ID, errorAck(service.ErrMissingField))
			return
		}
		replyAck(sess, ev.ID, h.chat.SetModerator(ctx, user, req.RoomID, req.UserID, req.Grant))

	default:
		log.Printf("[ws] unknown event type %q from %s", ev.Type, user.Username)
	}
}

func statusEvent(user *model.User, online bool) *model.Event {
	data, _ := json.Marshal(model.StatusChangeEvent{User: user.Ref(), IsOnline: online})
	return &model.Event{Type: model.EventUserStatusChange, Data: data}
}

func send(sess *service.Session, ev *model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case sess.Send <- data:
	default:
	}
}

func ack(sess *service.Session, id string, a model.Ack) {
	if id == "" {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	send(sess, &model.Event{Type: model.EventAck, ID: id, Data: data})
}

func replyAck(sess *service.Session, id string, err error) {
	if err != nil {
		ack(sess, id, errorAck(err))
		return
	}
	ack(sess, id, model.Ack{Success: true})
}

func dataAck(payload interface{}) model.Ack {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Ack{Success: false, Message: "encode response"}
	}
	return model.Ack{Success: true, Data: data}
}

// errorAck maps service sentinels to the envelope's code field.
func errorAck(err error) model.Ack {
	a := model.Ack{Success: false, Message: err.Error()}
	switch {
	case errors.Is(err, service.ErrUpgradeRequired):
		a.Code = model.CodeUpgradeRequired
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrNotMember):
		a.Code = model.CodePermissionDenied
	case errors.Is(err, service.ErrBannedFromRoom):
		a.Code = model.CodeBanned
	case errors.Is(err, service.ErrRoomFull):
		a.Code = model.CodeRoomFull
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrMessageNotFound):
		a.Code = model.CodeNotFound
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrContentTooLong),
		errors.Is(err, service.ErrInvalidMessageType),
		errors.Is(err, service.ErrInvalidReply),
		errors.Is(err, service.ErrMissingField):
		a.Code = model.CodeValidation
	default:
		a.Message = "internal error"
	}
	return a
}

func authErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrNoToken):
		return model.CodeNoToken
	case errors.Is(err, service.ErrTokenExpired):
		return model.CodeTokenExpired
	case errors.Is(err, service.ErrAccountDeactivated):
		return model.CodeAccountDeactivated
	default:
		return model.CodeTokenInvalid
	}
}
