package progress

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-progress/internal/kvstore"
)

// Progress returns the learner's progress for storyID, or the zero default
// when the record is missing, malformed or unreadable. The same pointer is
// returned until the stored record changes; callers must not modify it.
func (e *Engine) Progress(storyID string) *StoryProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, _ := e.progressLocked(storyID)
	return p
}

// MarkPartCompleted records partIndex as done and advances the current part.
func (e *Engine) MarkPartCompleted(storyID string, partIndex, totalParts int) error {
	e.mu.Lock()
	err := e.markPartCompletedLocked(storyID, partIndex, totalParts)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify(storyID, kvstore.ChangeProgress)
	return nil
}

func (e *Engine) markPartCompletedLocked(storyID string, partIndex, totalParts int) error {
	partIndex = clampPart(partIndex, totalParts)

	cur, err := e.progressLocked(storyID)
	if err != nil {
		return fmt.Errorf("mark part %d completed: %w", partIndex, err)
	}
	quizPassed, err := e.quizPassedLocked(storyID)
	if err != nil {
		return fmt.Errorf("mark part %d completed: %w", partIndex, err)
	}

	p := cur.clone()
	p.addCompleted(partIndex)
	p.CurrentPartIndex = max(p.CurrentPartIndex, partIndex)
	p.IsStoryCompleted = totalParts > 0 && len(p.CompletedParts) >= totalParts && quizPassed

	if err := e.saveProgressLocked(storyID, p); err != nil {
		return fmt.Errorf("mark part %d completed: %w", partIndex, err)
	}
	slog.Debug("part completed", "story_id", storyID, "part", partIndex, "story_completed", p.IsStoryCompleted)
	return nil
}

// SetCurrentPart records navigation to partIndex without marking anything
// complete.
func (e *Engine) SetCurrentPart(storyID string, partIndex, totalParts int) error {
	partIndex = clampPart(partIndex, totalParts)

	e.mu.Lock()
	err := e.setCurrentPartLocked(storyID, partIndex)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("set current part: %w", err)
	}

	e.notify(storyID, kvstore.ChangeProgress)
	return nil
}

func (e *Engine) setCurrentPartLocked(storyID string, partIndex int) error {
	cur, err := e.progressLocked(storyID)
	if err != nil {
		return err
	}
	p := cur.clone()
	p.CurrentPartIndex = partIndex
	return e.saveProgressLocked(storyID, p)
}

// ResetProgress restores the default progress and removes every checkpoint,
// quiz and reward record of storyID.
func (e *Engine) ResetProgress(storyID string) error {
	e.CancelRollback(storyID)

	e.mu.Lock()
	keys := []string{progressKey(storyID), quizKey(storyID), rewardKey(storyID)}
	for _, idx := range gatedPartIndices {
		keys = append(keys, checkpointKeys(storyID, idx)...)
	}
	var errs []error
	for _, k := range keys {
		if err := e.store.Remove(k); err != nil {
			errs = append(errs, err)
		}
	}
	delete(e.progressCache, storyID)
	e.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		slog.Error("failed to reset progress", "story_id", storyID, "error", err)
		return fmt.Errorf("reset progress: %w", err)
	}

	e.logEvent(storyID, EventProgressReset, nil)
	slog.Info("progress reset", "story_id", storyID)
	e.notify(storyID, kvstore.ChangeReset)
	return nil
}

func checkpointKeys(storyID string, partIndex int) []string {
	return []string{
		checkpointKey(storyID, partIndex),
		checkpointAttemptsKey(storyID, partIndex),
		checkpointStatusKey(storyID, partIndex),
	}
}
