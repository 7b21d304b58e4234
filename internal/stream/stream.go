// Package stream fan-outs session lifecycle events to admin dashboard
// subscribers.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds published by the HTTP layer.
const (
	KindRegister  = "register"
	KindVerified  = "verified"
	KindLogin     = "login"
	KindRefresh   = "refresh"
	KindLogout    = "logout"
	KindLogoutAll = "logout_all"
	KindBan       = "ban"
)

// Event describes one session lifecycle transition. Phone numbers are
// masked before they enter the stream.
type Event struct {
	Kind      string    `json:"kind"`
	AccountID string    `json:"account_id"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
