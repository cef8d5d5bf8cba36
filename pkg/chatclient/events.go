package chatclient

import (
	"encoding/json"
	"sync"
)

// Handler receives a broadcast event's raw payload. Decode with the payload
// types in wire.go, or use the typed On* helpers.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler. Unsubscribing through the
// handle removes exactly that handler and nothing else, so unrelated callers
// never clobber each other's registrations.
type Subscription struct {
	event string
	id    uint64
}

type subscriptions struct {
	mu     sync.Mutex
	nextID uint64
	byType map[string]map[uint64]Handler
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byType: make(map[string]map[uint64]Handler)}
}

func (s *subscriptions) add(event string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	set := s.byType[event]
	if set == nil {
		set = make(map[uint64]Handler)
		s.byType[event] = set
	}
	set[s.nextID] = h
	return Subscription{event: event, id: s.nextID}
}

func (s *subscriptions) remove(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set := s.byType[sub.event]; set != nil {
		delete(set, sub.id)
	}
}

func (s *subscriptions) clear(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byType, event)
}

func (s *subscriptions) clearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byType = make(map[string]map[uint64]Handler)
}

// dispatch snapshots the handler set under lock, then runs the handlers
// without it so a handler can subscribe or unsubscribe freely.
func (s *subscriptions) dispatch(event string, data json.RawMessage) {
	s.mu.Lock()
	set := s.byType[event]
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

// Subscribe registers a handler for a server broadcast event (or one of the
// synthetic connected/disconnected events).
func (c *Client) Subscribe(event string, h Handler) Subscription {
	return c.subs.add(event, h)
}

func (c *Client) Unsubscribe(sub Subscription) {
	c.subs.remove(sub)
}

// Clear removes every handler for one event.
func (c *Client) Clear(event string) {
	c.subs.clear(event)
}

// ClearAll removes every handler for every event.
func (c *Client) ClearAll() {
	c.subs.clearAll()
}

// Typed convenience wrappers. Malformed payloads are dropped.

func (c *Client) OnNewMessage(fn func(Message)) Subscription {
	return c.Subscribe(EventNewMessage, func(data json.RawMessage) {
		var m Message
		if json.Unmarshal(data, &m) == nil {
			fn(m)
		}
	})
}

func (c *Client) OnUserJoined(fn func(RoomUserEvent)) Subscription {
	return c.Subscribe(EventUserJoinedRoom, func(data json.RawMessage) {
		var ev RoomUserEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnUserLeft(fn func(RoomUserEvent)) Subscription {
	return c.Subscribe(EventUserLeftRoom, func(data json.RawMessage) {
		var ev RoomUserEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnTypingStarted(fn func(RoomUserEvent)) Subscription {
	return c.Subscribe(EventUserTyping, func(data json.RawMessage) {
		var ev RoomUserEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnTypingStopped(fn func(RoomUserEvent)) Subscription {
	return c.Subscribe(EventUserStoppedTyping, func(data json.RawMessage) {
		var ev RoomUserEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnStatusChange(fn func(StatusChangeEvent)) Subscription {
	return c.Subscribe(EventUserStatusChange, func(data json.RawMessage) {
		var ev StatusChangeEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnReactionAdded(fn func(ReactionEvent)) Subscription {
	return c.Subscribe(EventReactionAdded, func(data json.RawMessage) {
		var ev ReactionEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnMessageDeleted(fn func(MessageRemovalEvent)) Subscription {
	return c.Subscribe(EventMessageDeleted, func(data json.RawMessage) {
		var ev MessageRemovalEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnMessageModerated(fn func(MessageRemovalEvent)) Subscription {
	return c.Subscribe(EventMessageModerated, func(data json.RawMessage) {
		var ev MessageRemovalEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnPinToggled(fn func(PinToggleEvent)) Subscription {
	return c.Subscribe(EventMessagePinToggled, func(data json.RawMessage) {
		var ev PinToggleEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}

func (c *Client) OnNewReport(fn func(NewReportEvent)) Subscription {
	return c.Subscribe(EventNewReport, func(data json.RawMessage) {
		var ev NewReportEvent
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
}
