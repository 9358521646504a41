package liveevents

import (
	"errors"
	"sync"

	"github.com/smallbiznis/mystictxt/internal/chat/domain"
)

const (
	EventSessionUpdated = "session.updated"
	EventMessagePosted  = "message.posted"
)

const (
	DefaultBufferSize       = 20
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable   = errors.New("hub_unavailable")
	ErrInvalidSessionID = errors.New("invalid_session_id")
)

// Event is pushed to websocket subscribers of a session.
type Event struct {
	Type    string              `json:"type"`
	Session *domain.SessionView `json:"session,omitempty"`
	Message *domain.ChatMessage `json:"message,omitempty"`
}

// Hub fans out session events to in-process subscribers. Polling remains the
// source of truth; a slow subscriber simply misses events.
type Hub struct {
	mu               sync.RWMutex
	streams          map[int64]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub       *Hub
	sessionID int64
	id        uint64
	ch        chan Event
	once      sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[int64]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(sessionID int64, event Event) {
	if h == nil || sessionID <= 0 {
		return
	}
	h.mu.RLock()
	stream := h.streams[sessionID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener and returns the events buffered so far.
func (h *Hub) Subscribe(sessionID int64) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	if sessionID <= 0 {
		return nil, nil, ErrInvalidSessionID
	}

	stream := h.ensureStream(sessionID)
	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]Event(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:       h,
		sessionID: sessionID,
		id:        id,
		ch:        ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(sessionID int64) *stream {
	h.mu.RLock()
	current := h.streams[sessionID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[sessionID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[sessionID] = current
	}
	return current
}

func (h *Hub) unsubscribe(sessionID int64, id uint64) {
	h.mu.RLock()
	stream := h.streams[sessionID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[sessionID] != stream {
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, sessionID)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.sessionID, s.id)
	})
}
