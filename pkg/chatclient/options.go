package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
)

// Conn is the slice of a websocket connection the manager uses. The default
// dialer returns a real socket; tests inject in-memory pairs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection to the given URL. The token is already
// part of the URL: it is presented at connect time, not after.
type Dialer func(ctx context.Context, url string) (Conn, error)

// TokenRefreshFunc supplies a fresh credential after an authentication
// failure. It is invoked at most once concurrently.
type TokenRefreshFunc func(ctx context.Context) (string, error)

type Options struct {
	// URL of the chat endpoint, e.g. "ws://localhost:3000/ws".
	URL string

	// TokenRefresh, when set, is called single-flight on auth failures
	// during an active session.
	TokenRefresh TokenRefreshFunc

	Backoff              Backoff
	MaxReconnectAttempts int

	// RequestTimeout bounds request/ack operations; JoinTimeout applies to
	// join_room and leave_room.
	RequestTimeout time.Duration
	JoinTimeout    time.Duration

	// Dialer defaults to a fasthttp/websocket dialer.
	Dialer Dialer
}

func (o Options) withDefaults() Options {
	if o.Backoff == (Backoff{}) {
		o.Backoff = defaultBackoff()
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 8
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 5 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = defaultDialer
	}
	return o
}

// AuthError is a typed handshake rejection. Transport-level failures are
// never AuthErrors; only a definitive 401 from the server is.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Code, e.Message)
}

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, parseAuthError(resp)
		}
		return nil, err
	}
	return conn, nil
}

func parseAuthError(resp *http.Response) *AuthError {
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return &AuthError{Code: CodeTokenInvalid, Message: "handshake rejected"}
	}
	return &AuthError{Code: body.Code, Message: body.Error}
}
