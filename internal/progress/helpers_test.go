package progress_test

import (
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/kvstore"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
)

const storyParts = 13 // twelve narrative/checkpoint parts plus the quiz

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine *progress.Engine
	store  *kvstore.MemoryStore
	events *progress.MemoryEventLogger
}

func newHarness(t *testing.T, mutate ...func(*progress.EngineConfig)) harness {
	t.Helper()
	store := kvstore.NewMemoryStore()
	events := progress.NewMemoryEventLogger()
	cfg := progress.EngineConfig{
		Store:         store,
		Events:        events,
		RollbackDelay: time.Hour,
		Now:           func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e := progress.NewEngine(cfg)
	t.Cleanup(e.Close)
	return harness{engine: e, store: store, events: events}
}

// countChanges counts notifications published on store.
func countChanges(t *testing.T, store kvstore.Store) *[]kvstore.Change {
	t.Helper()
	var got []kvstore.Change
	cancel := store.Subscribe(func(c kvstore.Change) { got = append(got, c) })
	t.Cleanup(cancel)
	return &got
}

func orderingCheckpoint() content.Checkpoint {
	return content.Checkpoint{
		Part:   4,
		Kind:   content.CheckpointOrdering,
		Events: []string{"Stars", "Moon", "Sun"},
	}
}

func matchingCheckpoint() content.Checkpoint {
	return content.Checkpoint{
		Part: 8,
		Kind: content.CheckpointMatching,
		Pairs: []content.Pair{
			{Left: "Fire", Right: "Became cool"},
			{Left: "Idols", Right: "Were broken"},
		},
	}
}

func choiceCheckpoint() content.Checkpoint {
	return content.Checkpoint{
		Part: 12,
		Kind: content.CheckpointChoice,
		Options: []content.ChoiceOption{
			{Text: "Anger"},
			{Text: "Trust in Allah", IsCorrect: true},
			{Text: "Fear"},
		},
	}
}

var wrongOrder = progress.Submission{Order: []string{"Sun", "Moon", "Stars"}}

func narrative() []quiz.Section {
	return []quiz.Section{
		{Title: "The Search", Body: `Ibrahim watched the glittering stars rise above the quiet desert town.
When the bright moon appeared he wondered whether it deserved worship.
At dawn the blazing sun climbed higher and warmed the sleeping valley.
Each light eventually faded, and Ibrahim understood they were only creations.`},
		{Title: "The Idols", Body: `His father carved wooden idols and sold them in the crowded market square.
Ibrahim questioned the townspeople about statues that could neither hear nor speak.
One festival morning he broke the smaller idols and left the largest untouched.
The angry elders demanded answers, so he told them to question the largest idol.
Their silence revealed how powerless their carefully carved statues truly were.`},
		{Title: "The Fire", Body: `The furious king ordered his soldiers to build an enormous roaring fire.
They hurled Ibrahim into the flames using a giant wooden catapult.
Allah commanded the fire to become cool and peaceful for his faithful servant.
He walked out unharmed while the astonished crowd watched in complete silence.`},
	}
}

// answers returns a submission with the first `correct` questions answered
// correctly and the rest answered wrongly.
func answers(qs []quiz.Question, correct int) []*int {
	out := make([]*int, len(qs))
	for i, q := range qs {
		a := q.CorrectIndex
		if i >= correct {
			a = (q.CorrectIndex + 1) % len(q.Options)
		}
		out[i] = &a
	}
	return out
}

func completeParts(t *testing.T, e *progress.Engine, storyID string, upTo int) {
	t.Helper()
	for i := 0; i < upTo; i++ {
		if err := e.MarkPartCompleted(storyID, i, storyParts); err != nil {
			t.Fatalf("MarkPartCompleted(%d) error = %v", i, err)
		}
	}
}

var errReadFailed = errors.New("connection reset by peer")

// flakyStore fails every read while failReads is set. Writes still succeed.
type flakyStore struct {
	*kvstore.MemoryStore
	failReads bool
}

func (s *flakyStore) Get(key string) (string, bool, error) {
	if s.failReads {
		return "", false, errReadFailed
	}
	return s.MemoryStore.Get(key)
}
