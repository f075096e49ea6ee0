package incidents

import (
	"log/slog"
	"sync"

	"github.com/yourlook/safeline/internal/domain"
)

// Hub fans out committed incident mutations to subscribers. Both the victim
// session and the responder console observe the same stream, so every
// mutation that reaches the store is visible to every party within the
// process immediately and to remote consumers via the SSE handler.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan *domain.Incident
	nextID int
	closed bool
}

// NewHub creates an incident update hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan *domain.Incident)}
}

// Subscribe registers a subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel or hub close.
func (h *Hub) Subscribe(buffer int) (<-chan *domain.Incident, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan *domain.Incident)
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	ch := make(chan *domain.Incident, buffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an incident snapshot to all subscribers. Delivery is
// non-blocking: a subscriber that cannot keep up loses intermediate
// snapshots, never the publisher's progress.
func (h *Hub) Publish(incident *domain.Incident) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- incident:
		default:
			slog.Warn("dropping incident update for slow subscriber",
				"subscriber", id,
				"incident_id", incident.ID,
			)
		}
	}
}

// Close closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
