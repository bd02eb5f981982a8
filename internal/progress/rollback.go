package progress

import (
	"log/slog"
	"time"
)

// scheduleRollback arms the delayed navigation callback for storyID. It
// reports false when one is already pending.
func (e *Engine) scheduleRollback(storyID string, stageStart int) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	if _, ok := e.pending[storyID]; ok {
		slog.Debug("rollback already pending", "story_id", storyID)
		return false
	}

	var t *time.Timer
	t = time.AfterFunc(e.rollbackDelay, func() {
		e.pendingMu.Lock()
		if e.pending[storyID] != t {
			e.pendingMu.Unlock()
			return
		}
		delete(e.pending, storyID)
		e.pendingMu.Unlock()

		slog.Debug("rollback navigation due", "story_id", storyID, "stage_start", stageStart)
		if e.onRollback != nil {
			e.onRollback(storyID, stageStart)
		}
	})
	e.pending[storyID] = t
	return true
}

// CancelRollback stops a pending rollback navigation for storyID, e.g. when
// the view that would navigate is closed. It reports whether one was pending.
func (e *Engine) CancelRollback(storyID string) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	t, ok := e.pending[storyID]
	if !ok {
		return false
	}
	t.Stop()
	delete(e.pending, storyID)
	return true
}

// RollbackPending reports whether a rollback navigation is scheduled.
func (e *Engine) RollbackPending(storyID string) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	_, ok := e.pending[storyID]
	return ok
}

// Close cancels every pending rollback navigation.
func (e *Engine) Close() {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	for id, t := range e.pending {
		t.Stop()
		delete(e.pending, id)
	}
}
