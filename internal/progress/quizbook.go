package progress

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-progress/internal/kvstore"
	"github.com/p-n-ai/pai-progress/internal/quiz"
)

// ErrQuizUnavailable is returned when a story has no narrative to build a quiz
// from.
var ErrQuizUnavailable = errors.New("quiz unavailable")

// QuizResult reports the outcome of a quiz submission.
type QuizResult struct {
	Record    QuizRecord    `json:"record"`
	Passed    bool          `json:"passed"`
	Threshold int           `json:"threshold"`
	Reward    *RewardRecord `json:"reward,omitempty"`
}

// Quiz returns the questions for storyID: the frozen questions of an existing
// record, otherwise the generated set for sections. The result is shared and
// must not be modified.
func (e *Engine) Quiz(storyID string, sections []quiz.Section) []quiz.Question {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok, _ := e.quizRecordLocked(storyID); ok {
		return rec.Questions
	}
	questions, _ := e.generatedLocked(storyID, sections)
	return questions
}

// QuizRecord returns the persisted quiz record of storyID.
func (e *Engine) QuizRecord(storyID string) (QuizRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok, _ := e.quizRecordLocked(storyID)
	return rec, ok
}

// generatedLocked returns the cached quiz for storyID, generating it when the
// narrative has changed since the last call.
func (e *Engine) generatedLocked(storyID string, sections []quiz.Section) ([]quiz.Question, string) {
	hash := quiz.ContentHash(storyID, sections)
	if c, ok := e.quizCache[storyID]; ok && c.hash == hash {
		return c.questions, hash
	}
	questions := e.gen.Generate(storyID, sections)
	e.quizCache[storyID] = cachedQuiz{hash: hash, questions: questions}
	return questions, hash
}

// SubmitQuiz scores answers against the quiz of storyID and persists the
// attempt. answers[i] is the chosen option of question i, or nil. A pass
// grants the reward and completes the quiz part (the last of totalParts); a
// fail un-completes it. The placeholder quiz of a story without narrative is
// refused with ErrQuizUnavailable. One ChangeQuiz notification covers the
// quiz, reward and progress writes.
func (e *Engine) SubmitQuiz(storyID string, sections []quiz.Section, totalParts int, answers []*int) (QuizResult, error) {
	e.mu.Lock()
	res, err := e.submitQuizLocked(storyID, sections, totalParts, answers)
	e.mu.Unlock()
	if err != nil {
		return QuizResult{}, fmt.Errorf("submit quiz: %w", err)
	}

	e.notify(storyID, kvstore.ChangeQuiz)
	return res, nil
}

func (e *Engine) submitQuizLocked(storyID string, sections []quiz.Section, totalParts int, answers []*int) (QuizResult, error) {
	prev, exists, err := e.quizRecordLocked(storyID)
	if err != nil {
		return QuizResult{}, err
	}

	rec := QuizRecord{}
	if exists {
		rec = prev
	} else {
		rec.Questions, rec.ContentHash = e.generatedLocked(storyID, sections)
	}
	if quiz.Unavailable(rec.Questions) {
		return QuizResult{}, ErrQuizUnavailable
	}

	rec.Answers = normalizeAnswers(rec.Questions, answers)
	rec.Score = 0
	for i, q := range rec.Questions {
		if a := rec.Answers[i]; a != nil && *a == q.CorrectIndex {
			rec.Score++
		}
	}
	rec.Total = len(rec.Questions)
	rec.Attempts++
	rec.SubmittedAt = e.now()

	threshold := PassThreshold(rec.Total)
	passed := rec.Total > 0 && rec.Score >= threshold
	if passed {
		rec.Status = QuizCompleted
		if rec.PassedAtAttempt == nil {
			n := rec.Attempts
			rec.PassedAtAttempt = &n
		}
	} else {
		rec.Status = QuizFailed
	}

	raw, err := encodeRecord(rec)
	if err != nil {
		return QuizResult{}, fmt.Errorf("encode quiz: %w", err)
	}
	if err := e.store.Set(quizKey(storyID), raw); err != nil {
		slog.Error("failed to save quiz", "story_id", storyID, "error", err)
		return QuizResult{}, fmt.Errorf("save quiz: %w", err)
	}

	e.logEvent(storyID, EventQuizSubmitted, map[string]any{
		"score":   rec.Score,
		"total":   rec.Total,
		"attempt": rec.Attempts,
		"passed":  passed,
	})
	slog.Info("quiz submitted", "story_id", storyID, "score", rec.Score, "total", rec.Total, "passed", passed)

	res := QuizResult{Record: rec, Passed: passed, Threshold: threshold}
	quizPart := clampPart(totalParts-1, totalParts)

	if !passed {
		cur, err := e.progressLocked(storyID)
		if err != nil {
			return QuizResult{}, fmt.Errorf("uncomplete quiz part: %w", err)
		}
		p := cur.clone()
		p.removeCompleted(quizPart)
		p.IsStoryCompleted = false
		if err := e.saveProgressLocked(storyID, p); err != nil {
			return QuizResult{}, fmt.Errorf("uncomplete quiz part: %w", err)
		}
		return res, nil
	}

	reward, _, err := e.recordQuizRewardLocked(storyID, rec.Score, rec.Total)
	if err != nil {
		return QuizResult{}, err
	}
	res.Reward = &reward
	if err := e.markPartCompletedLocked(storyID, quizPart, totalParts); err != nil {
		return QuizResult{}, err
	}
	return res, nil
}

// normalizeAnswers sizes answers to the question count and drops choices that
// are out of range.
func normalizeAnswers(questions []quiz.Question, answers []*int) []*int {
	out := make([]*int, len(questions))
	for i, q := range questions {
		if i >= len(answers) || answers[i] == nil {
			continue
		}
		if a := *answers[i]; a >= 0 && a < len(q.Options) {
			out[i] = &a
		}
	}
	return out
}
