// Package chatclient maintains a single logical connection to the chat
// server, hiding transport-level reconnects, backoff, and token refresh from
// callers that just want to send events and receive events.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

var (
	ErrTimeout          = errors.New("chatclient: request timed out")
	ErrNotConnected     = errors.New("chatclient: not connected")
	ErrRetriesExhausted = errors.New("chatclient: reconnect attempts exhausted")
	ErrNoRefresh        = errors.New("chatclient: no token refresh callback registered")
)

// connectAttempt is the single-flight slot for Connect: late callers attach
// to the in-flight attempt's outcome instead of starting a second handshake.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// refreshAttempt is the single-flight slot for token refresh.
type refreshAttempt struct {
	done  chan struct{}
	token string
	err   error
}

// queuedFrame is a request frame held back while a reconnect or refresh is in
// flight, keyed by its request id so a request that times out (or fails with
// everything else pending) can be withdrawn before the next session would
// replay it.
type queuedFrame struct {
	id    string
	frame []byte
}

type Client struct {
	opts Options
	subs *subscriptions

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        int // connection generation; stale readers compare and bail
	token      string
	attempt    *connectAttempt
	refreshing *refreshAttempt
	pending    map[string]chan Ack
	queue      []queuedFrame
	reconnectN int
	disconnectRequested bool
	lastErr    error

	writeMu   sync.Mutex
	interrupt chan struct{}
}

func New(opts Options) *Client {
	return &Client{
		opts:      opts.withDefaults(),
		subs:      newSubscriptions(),
		pending:   make(map[string]chan Ack),
		interrupt: make(chan struct{}, 1),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError reports the error that ended the last session, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetTokenRefresh registers the refresh callback after construction.
func (c *Client) SetTokenRefresh(fn TokenRefreshFunc) {
	c.mu.Lock()
	c.opts.TokenRefresh = fn
	c.mu.Unlock()
}

// Connect establishes the session. Concurrent calls coalesce onto one
// handshake attempt and share its outcome, regardless of the token each
// caller passed: a Connect racing an in-flight attempt attaches to that
// attempt and the session keeps the attempt's token. A caller that needs its
// own token installed must Connect again once the attempt settles.
// Connecting while already connected with the same token is a no-op; a
// different token tears down the old transport first.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state == StateConnected && c.conn != nil && c.token == token {
		c.mu.Unlock()
		return nil
	}
	if a := c.attempt; a != nil {
		c.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	old := c.conn
	if old != nil {
		c.conn = nil
		c.gen++
	}
	c.disconnectRequested = false
	c.token = token
	c.reconnectN = 0
	c.lastErr = nil
	c.state = StateConnecting
	a := &connectAttempt{done: make(chan struct{})}
	c.attempt = a
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	err := c.dial(ctx, token)

	c.mu.Lock()
	c.attempt = nil
	if err != nil {
		c.state = StateDisconnected
		c.lastErr = err
	}
	c.mu.Unlock()

	if err == nil {
		c.afterConnect()
	}

	a.err = err
	close(a.done)
	return err
}

// Reconnect tears down the current transport and dials again with the
// current token.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	conn := c.conn
	c.conn = nil
	c.gen++
	if c.state == StateConnected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return c.Connect(ctx, token)
}

// Disconnect ends the session for good: it suppresses all pending reconnect
// logic and is the only way to stop without hitting the retry ceiling.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.disconnectRequested = true
	c.reconnectN = 0
	conn := c.conn
	c.conn = nil
	c.gen++
	c.state = StateDisconnected
	c.failPendingLocked(ErrNotConnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	// wake a sleeping reconnect loop so it observes the request
	select {
	case c.interrupt <- struct{}{}:
	default:
	}
	c.emitStatus(EventDisconnected, nil)
}

// dial performs one handshake and, on success, installs the connection and
// starts its reader.
func (c *Client) dial(ctx context.Context, token string) error {
	conn, err := c.opts.Dialer(ctx, c.opts.URL+"?token="+url.QueryEscape(token))
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.disconnectRequested {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = StateConnected
	c.reconnectN = 0
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	return nil
}

// afterConnect drains frames queued while a refresh or reconnect was in
// flight, then tells subscribers.
func (c *Client) afterConnect() {
	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		for _, q := range queued {
			if err := c.writeFrame(conn, q.frame); err != nil {
				break
			}
		}
	}
	c.emitStatus(EventConnected, nil)
}

func (c *Client) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportLoss(gen, err)
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "ack":
			c.resolveAck(&ev)
		case "auth_error":
			go c.handleAuthFailure()
		case "pong":
			// keepalive response, nothing to do
		default:
			c.subs.dispatch(ev.Type, ev.Data)
		}
	}
}

func (c *Client) resolveAck(ev *Event) {
	if ev.ID == "" {
		return
	}
	var ack Ack
	if err := json.Unmarshal(ev.Data, &ack); err != nil {
		return
	}

	c.mu.Lock()
	ch := c.pending[ev.ID]
	delete(c.pending, ev.ID)
	c.mu.Unlock()

	if ch != nil {
		ch <- ack
	}
}

// handleTransportLoss drives the reconnect policy: always reconnect unless
// Disconnect was requested. There is no branching on the close reason.
func (c *Client) handleTransportLoss(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.disconnectRequested {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.state = StateConnecting
	c.lastErr = cause
	c.mu.Unlock()

	c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.disconnectRequested {
			c.state = StateDisconnected
			c.mu.Unlock()
			return
		}
		if c.reconnectN >= c.opts.MaxReconnectAttempts {
			// terminal: reset so a manual Connect starts fresh
			c.reconnectN = 0
			c.state = StateDisconnected
			c.lastErr = ErrRetriesExhausted
			c.failPendingLocked(ErrRetriesExhausted)
			c.mu.Unlock()
			c.emitStatus(EventDisconnected, ErrRetriesExhausted)
			return
		}
		c.reconnectN++
		n := c.reconnectN
		token := c.token
		c.mu.Unlock()

		select {
		case <-time.After(c.opts.Backoff.Delay(n)):
		case <-c.interrupt:
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			return
		}

		err := c.dial(context.Background(), token)
		if err == nil {
			c.afterConnect()
			return
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			if _, performed, rerr := c.refreshToken(context.Background()); rerr != nil {
				c.mu.Lock()
				c.state = StateDisconnected
				c.reconnectN = 0
				c.lastErr = err
				c.failPendingLocked(err)
				c.mu.Unlock()
				c.emitStatus(EventDisconnected, err)
				return
			} else if !performed {
				// another path owns the refresh and will reconnect
				return
			}
			// retry immediately with the refreshed token
			continue
		}
		log.Printf("[chatclient] reconnect attempt %d failed: %v", n, err)
	}
}

// handleAuthFailure runs when the server reports an authentication problem
// mid-session. The refresh is single-flight: racing failures attach to the
// outstanding refresh, and only the goroutine that performed it reconnects.
func (c *Client) handleAuthFailure() {
	_, performed, err := c.refreshToken(context.Background())
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.emitStatus(EventDisconnected, err)
		return
	}
	if performed {
		if err := c.Reconnect(context.Background()); err != nil {
			log.Printf("[chatclient] reconnect after refresh failed: %v", err)
		}
	}
}

// refreshToken invokes the refresh callback, coalescing concurrent callers.
// performed is true only for the caller that actually ran the callback.
func (c *Client) refreshToken(ctx context.Context) (token string, performed bool, err error) {
	c.mu.Lock()
	if r := c.refreshing; r != nil {
		c.mu.Unlock()
		select {
		case <-r.done:
			return r.token, false, r.err
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	fn := c.opts.TokenRefresh
	if fn == nil {
		c.mu.Unlock()
		return "", false, ErrNoRefresh
	}
	r := &refreshAttempt{done: make(chan struct{})}
	c.refreshing = r
	c.mu.Unlock()

	tok, ferr := fn(ctx)

	c.mu.Lock()
	r.token, r.err = tok, ferr
	c.refreshing = nil
	if ferr == nil {
		c.token = tok
	}
	c.mu.Unlock()
	close(r.done)

	return tok, true, ferr
}

// writeFrame serializes writes; websocket connections do not allow
// concurrent writers.
func (c *Client) writeFrame(conn Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) failPendingLocked(err error) {
	// pending channels are buffered; a nack-shaped ack unblocks waiters
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- Ack{Success: false, Message: err.Error()}
	}
	// every queued frame belongs to a request failed above; none may survive
	// into the next session
	c.queue = nil
}

func (c *Client) emitStatus(event string, err error) {
	payload := StatusEvent{}
	if err != nil {
		payload.Error = err.Error()
	}
	data, _ := json.Marshal(payload)
	c.subs.dispatch(event, data)
}
