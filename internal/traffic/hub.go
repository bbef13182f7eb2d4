package traffic

import "sync"

// Hub fans snapshots out to dashboard event streams. Slow subscribers
// miss intermediate snapshots rather than blocking the tracker.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Snapshot]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Snapshot]struct{})}
}

// Subscribe registers a new snapshot channel.
func (h *Hub) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the channel.
func (h *Hub) Unsubscribe(ch chan Snapshot) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Count returns the number of open subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast delivers the snapshot to every subscriber without blocking.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- snap:
		default: // subscriber lagging, drop
		}
	}
}
