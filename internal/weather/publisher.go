package weather

import (
	"sync"

	"github.com/google/uuid"
)

type subscription struct {
	id uuid.UUID
	fn func(Record)
}

// Hub fans published records out to subscribers in registration order and
// remembers the latest one. A new subscriber is handed the latest record right
// away. Callbacks run synchronously and must not subscribe from inside.
type Hub struct {
	deliverMu sync.Mutex

	mu     sync.RWMutex
	subs   []subscription
	latest *Record
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Record)) (unsubscribe func()) {
	id := uuid.New()

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	latest := h.latest
	h.mu.Unlock()

	if latest != nil {
		fn(*latest)
	}

	return func() { h.remove(id) }
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish stores rec as the latest value and delivers it to every subscriber.
func (h *Hub) Publish(rec Record) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	h.latest = &rec
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(rec)
	}
}

// Latest returns the most recently published record, if any.
func (h *Hub) Latest() (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Record{}, false
	}
	return *h.latest, true
}
