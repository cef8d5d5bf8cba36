package service

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/deba607/AbJee-Travel-sub001/internal/metrics"
	"github.com/deba607/AbJee-Travel-sub001/internal/model"
)

// Session is one authenticated connection. The transport itself stays in the
// handler; the hub only ever touches the Send channel, which keeps fan-out
// non-blocking and the hub testable without sockets.
type Session struct {
	ID   string
	User *model.User
	Send chan []byte

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewSession(id string, user *model.User) *Session {
	return &Session{
		ID:    id,
		User:  user,
		Send:  make(chan []byte, 256),
		rooms: make(map[string]struct{}),
	}
}

func (s *Session) Subscribe(roomID string) {
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) Unsubscribe(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	_, ok := s.rooms[roomID]
	s.mu.Unlock()
	return ok
}

func (s *Session) RoomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Hub tracks live sessions and fans events out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]bool
	byUser   map[string]map[*Session]bool

	broadcast chan []byte
	done      chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions:  make(map[*Session]bool),
		byUser:    make(map[string]map[*Session]bool),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
}

// Run drains the global broadcast channel until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case data := <-h.broadcast:
			h.mu.RLock()
			for s := range h.sessions {
				h.deliver(s, data)
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

func (h *Hub) Shutdown() {
	close(h.done)
}

// Register adds a session and reports how many sessions that user now has.
// A return of 1 means this is the user's first live connection.
func (h *Hub) Register(s *Session) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s] = true
	set := h.byUser[s.User.ID]
	if set == nil {
		set = make(map[*Session]bool)
		h.byUser[s.User.ID] = set
	}
	set[s] = true
	metrics.ActiveConnections.Inc()
	log.Printf("[hub] %s connected (sessions: %d)", s.User.Username, len(h.sessions))
	return len(set)
}

// Unregister removes a session, closes its Send channel, and reports how many
// sessions the user still has. Safe to call more than once per session.
func (h *Hub) Unregister(s *Session) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		if set := h.byUser[s.User.ID]; set != nil {
			return len(set)
		}
		return 0
	}
	delete(h.sessions, s)
	close(s.Send)
	metrics.ActiveConnections.Dec()

	set := h.byUser[s.User.ID]
	delete(set, s)
	remaining := len(set)
	if remaining == 0 {
		delete(h.byUser, s.User.ID)
	}
	log.Printf("[hub] %s disconnected (sessions: %d)", s.User.Username, len(h.sessions))
	return remaining
}

// Broadcast queues an event for every live session (announcements,
// presence changes).
func (h *Hub) Broadcast(ev *model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ToRoom sends an event to every session subscribed to the room, except the
// session named by exceptSession (the actor's own connection, which gets an
// ack instead).
func (h *Hub) ToRoom(roomID string, ev *model.Event, exceptSession string) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions {
		if s.ID == exceptSession || !s.InRoom(roomID) {
			continue
		}
		h.deliver(s, data)
	}
}

// ToUsers sends an event to every session of the named users, regardless of
// room subscriptions (moderation reports).
func (h *Hub) ToUsers(userIDs []string, ev *model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range userIDs {
		for s := range h.byUser[id] {
			h.deliver(s, data)
		}
	}
}

// deliver drops the frame if the session's buffer is full; a stalled reader
// must not block fan-out to everyone else.
func (h *Hub) deliver(s *Session, data []byte) {
	select {
	case s.Send <- data:
		metrics.BroadcastsTotal.Inc()
	default:
	}
}

// OnlineCount reports distinct users with at least one live session.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
