package progress

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/kvstore"
)

// ErrNotGated is returned for checkpoint operations on a part without a gate.
var ErrNotGated = errors.New("part has no checkpoint")

// Submission is a learner's answer to a checkpoint. Only the field matching
// the checkpoint kind is read.
type Submission struct {
	Order   []string          `json:"order,omitempty"`   // ordering
	Matches map[string]string `json:"matches,omitempty"` // matching: left -> right
	Choice  int               `json:"choice"`            // single-choice option index
	// Preview evaluates without counting the attempt.
	Preview bool `json:"preview,omitempty"`
}

// CheckpointResult reports the outcome of a submission.
type CheckpointResult struct {
	Correct      bool            `json:"correct"`
	State        CheckpointState `json:"state"`
	AttemptsLeft int             `json:"attempts_left"`
	RolledBack   bool            `json:"rolled_back"`
	StageStart   int             `json:"stage_start"` // set when RolledBack
}

// Evaluate checks sub against the answer key of cp.
func Evaluate(cp content.Checkpoint, sub Submission) bool {
	switch cp.Kind {
	case content.CheckpointOrdering:
		if len(cp.Events) == 0 || len(sub.Order) != len(cp.Events) {
			return false
		}
		for i, ev := range cp.Events {
			if strings.TrimSpace(sub.Order[i]) != strings.TrimSpace(ev) {
				return false
			}
		}
		return true
	case content.CheckpointMatching:
		if len(cp.Pairs) == 0 || len(sub.Matches) != len(cp.Pairs) {
			return false
		}
		for _, p := range cp.Pairs {
			got, ok := sub.Matches[p.Left]
			if !ok || strings.TrimSpace(got) != strings.TrimSpace(p.Right) {
				return false
			}
		}
		return true
	case content.CheckpointChoice:
		return sub.Choice >= 0 && sub.Choice < len(cp.Options) && cp.Options[sub.Choice].IsCorrect
	default:
		return false
	}
}

// CheckpointState returns the attempt state of the gated part at partIndex.
// An unreadable state reads as a fresh checkpoint.
func (e *Engine) CheckpointState(storyID string, partIndex int) CheckpointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, _ := e.checkpointStateLocked(storyID, partIndex)
	return st
}

// SubmitCheckpoint evaluates a submission for the gated part at partIndex.
// A correct answer passes the checkpoint. The third consecutive wrong answer
// fails it and rolls the learner back to the start of the part's stage.
// Submissions to an already passed checkpoint are evaluated but not counted.
func (e *Engine) SubmitCheckpoint(storyID string, partIndex int, cp content.Checkpoint, sub Submission) (CheckpointResult, error) {
	if !IsGated(partIndex) {
		return CheckpointResult{}, fmt.Errorf("submit checkpoint at part %d: %w", partIndex, ErrNotGated)
	}
	correct := Evaluate(cp, sub)

	e.mu.Lock()
	st, err := e.checkpointStateLocked(storyID, partIndex)
	if err != nil {
		e.mu.Unlock()
		return CheckpointResult{}, fmt.Errorf("submit checkpoint at part %d: %w", partIndex, err)
	}
	if sub.Preview || st.Status == CheckpointPassed {
		e.mu.Unlock()
		return CheckpointResult{Correct: correct, State: st, AttemptsLeft: attemptsLeft(st)}, nil
	}

	res, err := e.countAttemptLocked(storyID, partIndex, st, correct)
	e.mu.Unlock()
	if err != nil {
		return CheckpointResult{}, err
	}

	if res.RolledBack {
		e.scheduleRollback(storyID, res.StageStart)
	}
	e.notify(storyID, kvstore.ChangeCheckpoint)
	return res, nil
}

func (e *Engine) countAttemptLocked(storyID string, partIndex int, st CheckpointState, correct bool) (CheckpointResult, error) {
	if st.Status == CheckpointFailed {
		// A submission after a failure starts a fresh round.
		if err := e.store.Remove(checkpointStatusKey(storyID, partIndex)); err != nil {
			return CheckpointResult{}, fmt.Errorf("clear checkpoint status: %w", err)
		}
		st = CheckpointState{Status: CheckpointNone}
	}

	if correct {
		if err := e.store.Set(checkpointKey(storyID, partIndex), string(CheckpointPassed)); err != nil {
			slog.Error("failed to save checkpoint", "story_id", storyID, "part", partIndex, "error", err)
			return CheckpointResult{}, fmt.Errorf("save checkpoint: %w", err)
		}
		if err := e.store.Remove(checkpointAttemptsKey(storyID, partIndex)); err != nil {
			return CheckpointResult{}, fmt.Errorf("clear checkpoint attempts: %w", err)
		}
		e.logPartEvent(storyID, EventCheckpointPassed, partIndex, map[string]any{"attempt": st.Attempts + 1})
		slog.Info("checkpoint passed", "story_id", storyID, "part", partIndex)
		passed := CheckpointState{Status: CheckpointPassed}
		return CheckpointResult{Correct: true, State: passed, AttemptsLeft: attemptsLeft(passed)}, nil
	}

	st.Attempts++
	if st.Attempts < MaxCheckpointAttempts {
		if err := e.store.Set(checkpointAttemptsKey(storyID, partIndex), strconv.Itoa(st.Attempts)); err != nil {
			slog.Error("failed to save checkpoint attempts", "story_id", storyID, "part", partIndex, "error", err)
			return CheckpointResult{}, fmt.Errorf("save checkpoint attempts: %w", err)
		}
		e.logPartEvent(storyID, EventCheckpointFailed, partIndex, map[string]any{"attempt": st.Attempts})
		return CheckpointResult{State: st, AttemptsLeft: attemptsLeft(st)}, nil
	}

	e.logPartEvent(storyID, EventCheckpointFailed, partIndex, map[string]any{"attempt": st.Attempts})
	stageStart, err := e.rollbackLocked(storyID, partIndex)
	if err != nil {
		return CheckpointResult{}, err
	}
	failed := CheckpointState{Status: CheckpointFailed}
	return CheckpointResult{State: failed, RolledBack: true, StageStart: stageStart}, nil
}

// rollbackLocked marks the checkpoint failed and rewinds progress to the start
// of its stage. Checkpoints of later stages are cleared with it.
func (e *Engine) rollbackLocked(storyID string, partIndex int) (int, error) {
	stageStart := StageStart(partIndex)

	if err := e.store.Set(checkpointStatusKey(storyID, partIndex), string(CheckpointFailed)); err != nil {
		slog.Error("failed to save checkpoint status", "story_id", storyID, "part", partIndex, "error", err)
		return 0, fmt.Errorf("save checkpoint status: %w", err)
	}
	var errs []error
	errs = append(errs,
		e.store.Remove(checkpointAttemptsKey(storyID, partIndex)),
		e.store.Remove(checkpointKey(storyID, partIndex)),
	)
	for _, idx := range gatedPartIndices {
		if idx > partIndex {
			for _, k := range checkpointKeys(storyID, idx) {
				errs = append(errs, e.store.Remove(k))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("clear checkpoints: %w", err)
	}

	cur, err := e.progressLocked(storyID)
	if err != nil {
		return 0, fmt.Errorf("roll back progress: %w", err)
	}
	p := cur.clone()
	p.CurrentPartIndex = stageStart
	p.truncateFrom(stageStart)
	p.IsStoryCompleted = false
	if err := e.saveProgressLocked(storyID, p); err != nil {
		return 0, fmt.Errorf("roll back progress: %w", err)
	}

	e.logPartEvent(storyID, EventStageRollback, partIndex, map[string]any{"stage_start": stageStart})
	slog.Info("stage rolled back", "story_id", storyID, "part", partIndex, "stage_start", stageStart)
	return stageStart, nil
}

func attemptsLeft(st CheckpointState) int {
	if st.Status != CheckpointNone {
		return 0
	}
	return MaxCheckpointAttempts - st.Attempts
}
