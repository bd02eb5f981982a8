package kvstore

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ChangeKind names the record family touched by an operation.
type ChangeKind string

const (
	ChangeProgress   ChangeKind = "progress"
	ChangeCheckpoint ChangeKind = "checkpoint"
	ChangeQuiz       ChangeKind = "quiz"
	ChangeReward     ChangeKind = "reward"
	ChangeReset      ChangeKind = "reset"
	// ChangeNavigate asks views to move to the story's current part after a
	// delayed stage rollback.
	ChangeNavigate ChangeKind = "navigate"
)

// Change is the payload of a change notification. Observers should re-read
// state rather than trust it.
type Change struct {
	StoryID string     `json:"story_id"`
	Kind    ChangeKind `json:"kind"`
}

// Listener receives change notifications.
type Listener func(Change)

// Hub fans change notifications out to in-process listeners.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]Listener
}

// NewHub creates an empty notification hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[uuid.UUID]Listener)}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (h *Hub) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	id := uuid.New()

	h.mu.Lock()
	h.listeners[id] = fn
	h.mu.Unlock()

	slog.Debug("change listener subscribed", "listener_id", id)

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Publish delivers c to every listener synchronously. Listeners run outside
// the hub lock so they may subscribe or unsubscribe.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	targets := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(c)
	}
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
