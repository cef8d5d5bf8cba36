package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ServerError is a failed ack: the server handled the request and said no.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chatclient: %s (%s)", e.Message, e.Code)
	}
	return "chatclient: " + e.Message
}

// request sends one event and waits for exactly one correlated ack. On
// timeout the pending listener is detached so a late ack finds nobody.
func (c *Client) request(ctx context.Context, evType string, payload interface{}, timeout time.Duration) (*Ack, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	frame, err := json.Marshal(Event{Type: evType, ID: id, Data: data})
	if err != nil {
		return nil, err
	}

	ch := make(chan Ack, 1)

	c.mu.Lock()
	idle := c.state == StateDisconnected && c.attempt == nil && c.refreshing == nil
	if idle {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[id] = ch
	var conn Conn
	if c.state == StateConnected && c.conn != nil {
		conn = c.conn
	} else {
		// a refresh or reconnect is in flight; the frame is drained once the
		// session is back
		c.queue = append(c.queue, queuedFrame{id: id, frame: frame})
	}
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, frame); err != nil {
			c.detach(id)
			return nil, err
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		return &ack, nil
	case <-timer.C:
		c.detach(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.detach(id)
		return nil, ctx.Err()
	}
}

// detach withdraws a request: the ack listener goes away, and so does any
// still-queued frame, so a request the caller saw fail is never replayed on
// the next session.
func (c *Client) detach(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	for i, q := range c.queue {
		if q.id == id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// fire sends an event that expects no ack.
func (c *Client) fire(evType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Event{Type: evType, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return c.writeFrame(conn, frame)
}

func ackError(ack *Ack) error {
	if ack.Success {
		return nil
	}
	return &ServerError{Code: ack.Code, Message: ack.Message}
}

// JoinRoom subscribes to a room and returns its snapshot plus a bounded
// recent-message window. Rejoining a joined room succeeds without effect.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (*RoomJoin, error) {
	ack, err := c.request(ctx, "join_room", map[string]string{"roomId": roomID}, c.opts.JoinTimeout)
	if err != nil {
		return nil, err
	}
	if err := ackError(ack); err != nil {
		return nil, err
	}
	var out RoomJoin
	if err := json.Unmarshal(ack.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LeaveRoom abandons a room. A timeout resolves as success: the intent is
// satisfiable locally even if the server's ack never arrives.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	ack, err := c.request(ctx, "leave_room", map[string]string{"roomId": roomID}, c.opts.JoinTimeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil
		}
		return err
	}
	return ackError(ack)
}

type SendMessageParams struct {
	RoomID  string  `json:"roomId"`
	Content string  `json:"content"`
	Type    string  `json:"type,omitempty"`
	ReplyTo *string `json:"replyTo,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	ack, err := c.request(ctx, "send_message", params, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if err := ackError(ack); err != nil {
		return nil, err
	}
	var out struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(ack.Data, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

type GetRoomsParams struct {
	Type  string `json:"type,omitempty"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (c *Client) GetRooms(ctx context.Context, params GetRoomsParams) (*RoomsPage, error) {
	ack, err := c.request(ctx, "get_rooms", params, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if err := ackError(ack); err != nil {
		return nil, err
	}
	var out RoomsPage
	if err := json.Unmarshal(ack.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.simpleRequest(ctx, "delete_message", map[string]string{"messageId": messageID})
}

func (c *Client) ReportMessage(ctx context.Context, messageID, reason, description string) error {
	return c.simpleRequest(ctx, "report_message", map[string]string{
		"messageId":   messageID,
		"reason":      reason,
		"description": description,
	})
}

func (c *Client) ModerateMessage(ctx context.Context, messageID, reason string) error {
	return c.simpleRequest(ctx, "moderate_message", map[string]string{
		"messageId": messageID,
		"reason":    reason,
	})
}

func (c *Client) TogglePinMessage(ctx context.Context, messageID string) error {
	return c.simpleRequest(ctx, "toggle_pin_message", map[string]string{"messageId": messageID})
}

func (c *Client) BanUser(ctx context.Context, roomID, userID, reason string) error {
	return c.simpleRequest(ctx, "ban_user", map[string]string{
		"roomId": roomID,
		"userId": userID,
		"reason": reason,
	})
}

func (c *Client) UnbanUser(ctx context.Context, roomID, userID string) error {
	return c.simpleRequest(ctx, "unban_user", map[string]string{
		"roomId": roomID,
		"userId": userID,
	})
}

func (c *Client) SetModerator(ctx context.Context, roomID, userID string, grant bool) error {
	return c.simpleRequest(ctx, "set_moderator", map[string]interface{}{
		"roomId": roomID,
		"userId": userID,
		"grant":  grant,
	})
}

func (c *Client) simpleRequest(ctx context.Context, evType string, payload interface{}) error {
	ack, err := c.request(ctx, evType, payload, c.opts.RequestTimeout)
	if err != nil {
		return err
	}
	return ackError(ack)
}

// Fire-and-forget events: no ack, errors only on a dead transport.

func (c *Client) TypingStart(roomID string) error {
	return c.fire("typing_start", map[string]string{"roomId": roomID})
}

func (c *Client) TypingStop(roomID string) error {
	return c.fire("typing_stop", map[string]string{"roomId": roomID})
}

func (c *Client) AddReaction(messageID, emoji string) error {
	return c.fire("add_reaction", map[string]string{"messageId": messageID, "emoji": emoji})
}

func (c *Client) MarkRead(roomID, messageID string) error {
	return c.fire("mark_read", map[string]string{"roomId": roomID, "messageId": messageID})
}

func (c *Client) Ping() error {
	return c.fire("ping", struct{}{})
}
