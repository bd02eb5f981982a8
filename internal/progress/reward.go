package progress

import (
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-progress/internal/kvstore"
)

// Reward returns the reward record of storyID. An unreadable record reports
// as missing.
func (e *Engine) Reward(storyID string) (RewardRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok, _ := e.rewardLocked(storyID)
	return rec, ok
}

// RecordQuizReward grants the reward for a quiz score. Scores below the pass
// threshold are ignored. Rewards only ever upgrade: a passing score earns
// PassXP, a perfect score PerfectXP and the PerfectBadge, and the best score
// is kept. It returns the resulting record and whether it changed.
func (e *Engine) RecordQuizReward(storyID string, score, total int) (RewardRecord, bool, error) {
	e.mu.Lock()
	rec, changed, err := e.recordQuizRewardLocked(storyID, score, total)
	e.mu.Unlock()
	if err != nil {
		return RewardRecord{}, false, err
	}
	if changed {
		e.notify(storyID, kvstore.ChangeReward)
	}
	return rec, changed, nil
}

func (e *Engine) recordQuizRewardLocked(storyID string, score, total int) (RewardRecord, bool, error) {
	prev, exists, err := e.rewardLocked(storyID)
	if err != nil {
		return RewardRecord{}, false, fmt.Errorf("record quiz reward: %w", err)
	}
	if total <= 0 || score < PassThreshold(total) {
		return prev, false, nil
	}
	score = min(score, total)

	next := prev
	if !exists {
		next = RewardRecord{Total: total}
	}

	switch {
	case score == total:
		if !prev.isPerfect() {
			badge := PerfectBadge
			next.XP = PerfectXP
			next.Badge = &badge
			next.AwardedAt = e.now()
		}
	case !exists || next.XP < PassXP:
		next.XP = PassXP
		next.AwardedAt = e.now()
	}
	if !exists || score > next.BestScore {
		next.BestScore = score
		next.Total = total
	}

	if exists && next.equal(prev) {
		return prev, false, nil
	}

	raw, err := encodeRecord(next)
	if err != nil {
		return RewardRecord{}, false, fmt.Errorf("encode reward: %w", err)
	}
	if err := e.store.Set(rewardKey(storyID), raw); err != nil {
		slog.Error("failed to save reward", "story_id", storyID, "error", err)
		return RewardRecord{}, false, fmt.Errorf("save reward: %w", err)
	}

	e.logEvent(storyID, EventRewardGranted, map[string]any{"xp": next.XP, "best_score": next.BestScore, "total": next.Total})
	slog.Info("reward granted", "story_id", storyID, "xp", next.XP, "best_score", next.BestScore)
	return next, true, nil
}
