package transport

import (
	"sync"

	"github.com/gosuda/temsim/internal/room"
)

// Hub routes room output to the subscribers of that room. It is the single
// Broadcaster handed to the registry; websocket clients and crew agents
// subscribe per room.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[room.Broadcaster]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[room.Broadcaster]struct{})}
}

// Subscribe adds b to the room and returns the matching unsubscribe func. b
// is used as a map key and must be comparable, in practice a pointer.
func (h *Hub) Subscribe(roomID string, b room.Broadcaster) func() {
	h.mu.Lock()
	set, ok := h.subs[roomID]
	if !ok {
		set = make(map[room.Broadcaster]struct{})
		h.subs[roomID] = set
	}
	set[b] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[roomID]; ok {
				delete(set, b)
				if len(set) == 0 {
					delete(h.subs, roomID)
				}
			}
		})
	}
}

// Subscribers reports how many receivers a room has.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[roomID])
}

func (h *Hub) targets(roomID string) []room.Broadcaster {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[roomID]
	out := make([]room.Broadcaster, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	return out
}

func (h *Hub) Publish(s room.Snapshot) {
	for _, b := range h.targets(s.Room) {
		b.Publish(s)
	}
}

func (h *Hub) Notify(n room.Notice) {
	for _, b := range h.targets(n.Room) {
		b.Notify(n)
	}
}
