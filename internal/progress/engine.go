// Package progress tracks a learner's progression through stories: completed
// parts, checkpoint attempts with stage rollback, quiz results and rewards.
// All state is persisted through a kvstore.Store.
package progress

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/p-n-ai/pai-progress/internal/kvstore"
	"github.com/p-n-ai/pai-progress/internal/quiz"
)

const defaultRollbackDelay = 2 * time.Second

// EngineConfig holds dependencies for the progress engine.
type EngineConfig struct {
	Store         kvstore.Store
	Events        EventLogger
	Generator     *quiz.Generator
	RollbackDelay time.Duration // delay before views navigate back after a rollback (default 2s)
	// OnRollback runs once RollbackDelay has elapsed after a stage rollback.
	OnRollback func(storyID string, stageStart int)
	Now        func() time.Time
}

// Engine owns every progress record. Operations are serialised, so an Engine
// may be shared by concurrent callers.
type Engine struct {
	mu            sync.Mutex
	store         kvstore.Store
	events        EventLogger
	gen           *quiz.Generator
	rollbackDelay time.Duration
	onRollback    func(storyID string, stageStart int)
	now           func() time.Time

	progressCache map[string]cachedProgress
	quizCache     map[string]cachedQuiz

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

type cachedProgress struct {
	raw      string
	progress *StoryProgress
}

type cachedQuiz struct {
	hash      string
	questions []quiz.Question
}

// NewEngine creates a new progress engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = kvstore.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	gen := cfg.Generator
	if gen == nil {
		gen = quiz.NewGenerator(quiz.GeneratorConfig{})
	}
	delay := cfg.RollbackDelay
	if delay == 0 {
		delay = defaultRollbackDelay
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:         store,
		events:        events,
		gen:           gen,
		rollbackDelay: delay,
		onRollback:    cfg.OnRollback,
		now:           now,
		progressCache: make(map[string]cachedProgress),
		quizCache:     make(map[string]cachedQuiz),
		pending:       make(map[string]*time.Timer),
	}
}

// Store returns the backing store, for subscribing to change notifications.
func (e *Engine) Store() kvstore.Store {
	return e.store
}

func (e *Engine) notify(storyID string, kind kvstore.ChangeKind) {
	e.store.Publish(kvstore.Change{StoryID: storyID, Kind: kind})
}

func (e *Engine) logEvent(storyID string, typ EventType, data map[string]any) {
	e.record(Event{StoryID: storyID, Type: typ, Data: data})
}

func (e *Engine) logPartEvent(storyID string, typ EventType, partIndex int, data map[string]any) {
	e.record(Event{StoryID: storyID, Type: typ, Part: &partIndex, Data: data})
}

func (e *Engine) record(ev Event) {
	ev.At = e.now()
	if err := e.events.LogEvent(ev); err != nil {
		slog.Warn("failed to log event", "story_id", ev.StoryID, "type", ev.Type, "error", err)
	}
}

// clampPart bounds partIndex to [0, totalParts-1].
func clampPart(partIndex, totalParts int) int {
	if totalParts <= 0 {
		return 0
	}
	return min(max(partIndex, 0), totalParts-1)
}

// read fetches key from the store. A malformed value is the caller's to
// discard; a backend failure is returned so no write is built on a guessed
// default.
func (e *Engine) read(key string) (string, bool, error) {
	raw, ok, err := e.store.Get(key)
	if err != nil {
		slog.Error("failed to read record", "key", key, "error", err)
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, ok, nil
}

// progressLocked returns the cached decoded progress for storyID while the
// stored bytes are unchanged. On a read failure it returns the default along
// with the error.
func (e *Engine) progressLocked(storyID string) (*StoryProgress, error) {
	key := progressKey(storyID)
	raw, ok, err := e.read(key)
	if err != nil {
		return &StoryProgress{CompletedParts: []int{}}, err
	}

	if c, hit := e.progressCache[storyID]; hit && c.raw == raw {
		return c.progress, nil
	}

	p := &StoryProgress{CompletedParts: []int{}}
	if ok {
		var decoded StoryProgress
		if decodeRecord(progressSchema, key, raw, &decoded) {
			decoded.normalize()
			p = &decoded
		}
	}
	e.progressCache[storyID] = cachedProgress{raw: raw, progress: p}
	return p, nil
}

func (e *Engine) saveProgressLocked(storyID string, p StoryProgress) error {
	if p.CompletedParts == nil {
		p.CompletedParts = []int{}
	}
	raw, err := encodeRecord(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := e.store.Set(progressKey(storyID), raw); err != nil {
		slog.Error("failed to save progress", "story_id", storyID, "error", err)
		return fmt.Errorf("save progress: %w", err)
	}
	e.progressCache[storyID] = cachedProgress{raw: raw, progress: &p}
	return nil
}

func (e *Engine) quizRecordLocked(storyID string) (QuizRecord, bool, error) {
	key := quizKey(storyID)
	raw, ok, err := e.read(key)
	if err != nil || !ok {
		return QuizRecord{}, false, err
	}
	var rec QuizRecord
	if !decodeRecord(quizSchema, key, raw, &rec) {
		return QuizRecord{}, false, nil
	}
	if err := rec.check(); err != nil {
		slog.Warn("discarding malformed record", "key", key, "error", err)
		return QuizRecord{}, false, nil
	}
	return rec, true, nil
}

func (e *Engine) quizPassedLocked(storyID string) (bool, error) {
	rec, ok, err := e.quizRecordLocked(storyID)
	return ok && rec.Status == QuizCompleted, err
}

func (e *Engine) rewardLocked(storyID string) (RewardRecord, bool, error) {
	key := rewardKey(storyID)
	raw, ok, err := e.read(key)
	if err != nil || !ok {
		return RewardRecord{}, false, err
	}
	var rec RewardRecord
	if !decodeRecord(rewardSchema, key, raw, &rec) {
		return RewardRecord{}, false, nil
	}
	return rec, true, nil
}

func (e *Engine) checkpointStateLocked(storyID string, partIndex int) (CheckpointState, error) {
	st := CheckpointState{Status: CheckpointNone}

	v, ok, err := e.read(checkpointKey(storyID, partIndex))
	if err != nil {
		return st, err
	}
	if ok && v == string(CheckpointPassed) {
		return CheckpointState{Status: CheckpointPassed}, nil
	}
	v, ok, err = e.read(checkpointStatusKey(storyID, partIndex))
	if err != nil {
		return st, err
	}
	if ok && v == string(CheckpointFailed) {
		return CheckpointState{Status: CheckpointFailed}, nil
	}

	key := checkpointAttemptsKey(storyID, partIndex)
	v, ok, err = e.read(key)
	if err != nil {
		return st, err
	}
	if ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			slog.Warn("discarding malformed record", "key", key, "value", v)
			return st, nil
		}
		st.Attempts = min(n, MaxCheckpointAttempts-1)
	}
	return st, nil
}
