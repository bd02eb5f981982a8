package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout          = 5 * time.Second
	defaultRecentLimit = 50
)

// EventType names a learner activity on a story.
type EventType string

const (
	EventCheckpointPassed EventType = "checkpoint_passed"
	EventCheckpointFailed EventType = "checkpoint_failed"
	EventStageRollback    EventType = "stage_rollback"
	EventQuizSubmitted    EventType = "quiz_submitted"
	EventRewardGranted    EventType = "reward_granted"
	EventProgressReset    EventType = "progress_reset"
)

// Event is one learner activity. Part is the 0-based part it concerns, nil
// for story-wide activity such as a quiz or a reset.
type Event struct {
	StoryID string         `json:"story_id"`
	Type    EventType      `json:"type"`
	Part    *int           `json:"part,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

func (ev Event) validate() error {
	switch {
	case ev.StoryID == "":
		return errors.New("event story id is required")
	case ev.Type == "":
		return errors.New("event type is required")
	case ev.Part != nil && *ev.Part < 0:
		return fmt.Errorf("event part %d is negative", *ev.Part)
	}
	return nil
}

// EventLogger records learner activity and reads back a story's recent
// activity, newest first.
type EventLogger interface {
	LogEvent(ev Event) error
	Recent(ctx context.Context, storyID string, limit int) ([]Event, error)
}

// NopEventLogger discards activity.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error { return nil }

func (NopEventLogger) Recent(context.Context, string, int) ([]Event, error) { return nil, nil }

// MemoryEventLogger keeps activity in memory, per story.
type MemoryEventLogger struct {
	mu      sync.Mutex
	byStory map[string][]Event
	order   []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{byStory: make(map[string][]Event)}
}

func (l *MemoryEventLogger) LogEvent(ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	l.mu.Lock()
	l.byStory[ev.StoryID] = append(l.byStory[ev.StoryID], ev)
	l.order = append(l.order, ev)
	l.mu.Unlock()
	return nil
}

func (l *MemoryEventLogger) Recent(_ context.Context, storyID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	l.mu.Lock()
	evs := slices.Clone(l.byStory[storyID])
	l.mu.Unlock()

	slices.Reverse(evs)
	return evs[:min(limit, len(evs))], nil
}

// Events returns every logged event in logging order.
func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.order)
}

// OfType returns the logged events of type t in logging order.
func (l *MemoryEventLogger) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range l.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Activity returns the most recent learner events of storyID, newest first. A
// non-positive limit selects the default page size.
func (e *Engine) Activity(ctx context.Context, storyID string, limit int) ([]Event, error) {
	evs, err := e.events.Recent(ctx, storyID, limit)
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	return evs, nil
}

// PostgresEventLogger writes activity to the learner_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

// EnsureTable creates learner_events and its per-story index if missing.
func (l *PostgresEventLogger) EnsureTable(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	_, err := l.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS learner_events (
		   id         BIGSERIAL PRIMARY KEY,
		   story_id   TEXT NOT NULL,
		   event_type TEXT NOT NULL,
		   part_index INTEGER CHECK (part_index >= 0),
		   data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		   created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		 )`,
	)
	if err != nil {
		return fmt.Errorf("create learner_events table: %w", err)
	}
	if _, err := l.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS learner_events_story_idx
		   ON learner_events (story_id, created_at DESC, id DESC)`,
	); err != nil {
		return fmt.Errorf("create learner_events index: %w", err)
	}
	return nil
}

func (l *PostgresEventLogger) LogEvent(ev Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if err := ev.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if ev.Data == nil {
		data = []byte("{}")
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO learner_events (story_id, event_type, part_index, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		ev.StoryID, string(ev.Type), ev.Part, string(data), at,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged", "type", ev.Type, "story_id", ev.StoryID, "part", ev.Part)
	return nil
}

func (l *PostgresEventLogger) Recent(ctx context.Context, storyID string, limit int) ([]Event, error) {
	if l == nil || l.pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT story_id, event_type, part_index, data, created_at
		 FROM learner_events
		 WHERE story_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		storyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	evs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var (
			ev  Event
			typ string
			raw []byte
		)
		if err := row.Scan(&ev.StoryID, &typ, &ev.Part, &raw, &ev.At); err != nil {
			return Event{}, err
		}
		ev.Type = EventType(typ)
		if err := json.Unmarshal(raw, &ev.Data); err != nil {
			return Event{}, fmt.Errorf("decode event data: %w", err)
		}
		if len(ev.Data) == 0 {
			ev.Data = nil
		}
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return evs, nil
}
