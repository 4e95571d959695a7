package tracker

import (
	"sync"
	"time"
)

// Stage identifies a step of the sync pipeline in a SyncEvent.
type Stage string

const (
	StageResolving  Stage = "resolving"
	StageCached     Stage = "cached"
	StageProfile    Stage = "profile"
	StageInventory  Stage = "inventory"
	StagePricing    Stage = "pricing"
	StageRates      Stage = "rates"
	StageCommitting Stage = "committing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// SyncEvent is one progress notification emitted while a sync runs.
type SyncEvent struct {
	User   string    `json:"user"`
	Stage  Stage     `json:"stage"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Hub fans sync events out to subscribers. Publishing never blocks; a
// subscriber that falls behind loses events rather than stalling a sync.
type Hub struct {
	mu   sync.Mutex
	subs map[chan SyncEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan SyncEvent]struct{})}
}

// Subscribe registers a new event channel. The caller must Unsubscribe when
// done or the channel leaks.
func (h *Hub) Subscribe() chan SyncEvent {
	ch := make(chan SyncEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes an event channel.
func (h *Hub) Unsubscribe(ch chan SyncEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers an event to every subscriber that has buffer room.
func (h *Hub) Publish(event SyncEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
