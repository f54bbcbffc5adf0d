package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/theodorecharles/darkroom/internal/domain"
)

// liveBuffer is the headroom a subscriber channel gets on top of the
// history it must replay. A subscriber that falls this far behind the
// publisher is treated as dead and detached.
const liveBuffer = 256

// Hub owns one run's event history and its live subscribers. Replay
// and fan-out happen under a single mutex, so a subscriber attaching
// mid-run sees the full history followed by every later event, gapless
// and in publish order.
type Hub struct {
	mu      sync.Mutex
	history []domain.Event
	subs    map[string]chan domain.Event
	done    bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]chan domain.Event),
	}
}

// Attach replays the full history into a fresh channel and registers
// it for live events. If the run already ended, the channel is closed
// after the replay so the reader drains and finishes.
func (h *Hub) Attach() (string, <-chan domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan domain.Event, len(h.history)+liveBuffer)
	for _, ev := range h.history {
		ch <- ev
	}

	if h.done {
		close(ch)
		return id, ch
	}

	h.subs[id] = ch
	return id, ch
}

// Detach removes a subscriber. Detaching an unknown or already removed
// id is a no-op, so callers may defer it unconditionally.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish appends the event to the history and fans it out. A
// subscriber whose buffer is full cannot stall the others; it is
// silently detached instead. Once a terminal event has been published
// the history is frozen and further publishes are dropped.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return
	}

	h.history = append(h.history, ev)
	if ev.Terminal() {
		h.done = true
	}

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, id)
			close(ch)
		}
	}

	// Nothing follows a terminal event; closing lets readers finish.
	if h.done {
		for id, ch := range h.subs {
			delete(h.subs, id)
			close(ch)
		}
	}
}

// History returns a copy of the events published so far.
func (h *Hub) History() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.Event, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
