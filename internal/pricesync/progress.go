package pricesync

import (
	"sync"
	"sync/atomic"
)

// ProgressEvent is one per-ticker completion notice, streamed to the ops
// websocket while a run is in flight.
type ProgressEvent struct {
	Ticker string `json:"ticker"`
	Class  string `json:"class"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
}

// Hub fans progress events out to subscribers. Slow subscribers are
// dropped-to rather than blocked on; the sync pool must never stall on a
// disconnected websocket.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan ProgressEvent
	nextID  int
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[int]chan ProgressEvent{}}
}

// Subscribe returns an event channel and its cancel function. The channel
// closes on cancel.
func (h *Hub) Subscribe(buf int) (<-chan ProgressEvent, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan ProgressEvent, buf)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) Publish(event ProgressEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
}

func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return atomic.LoadUint64(&h.dropped)
}
