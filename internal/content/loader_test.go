package content_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-progress/internal/content"
)

func TestLoader_LoadStories(t *testing.T) {
	dir := setupTestStories(t)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	stories := loader.AllStories()
	if len(stories) != 1 {
		t.Fatalf("AllStories() = %d stories, want 1", len(stories))
	}
}

func TestLoader_GetStory(t *testing.T) {
	dir := setupTestStories(t)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	story, found := loader.GetStory("yusuf")
	if !found {
		t.Fatal("GetStory(yusuf) not found")
	}
	if story.Title == "" {
		t.Error("Story.Title is empty")
	}
	if story.TotalParts() != 5 {
		t.Errorf("TotalParts() = %d, want 5", story.TotalParts())
	}
	if story.QuizPartIndex() != 4 {
		t.Errorf("QuizPartIndex() = %d, want 4", story.QuizPartIndex())
	}
}

func TestLoader_GetStory_NotFound(t *testing.T) {
	loader, err := content.NewLoader(setupTestStories(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.GetStory("NONEXISTENT"); found {
		t.Error("GetStory(NONEXISTENT) should not be found")
	}
}

func TestLoader_Checkpoints(t *testing.T) {
	loader, err := content.NewLoader(setupTestStories(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	story, _ := loader.GetStory("yusuf")

	cp, ok := story.Checkpoint(3)
	if !ok {
		t.Fatal("Checkpoint(3) not found")
	}
	if cp.Kind != content.CheckpointOrdering || len(cp.Events) != 3 {
		t.Errorf("checkpoint = %+v, want 3-event ordering", cp)
	}

	// The part-2 checkpoint sits on an ungated part and is dropped.
	if _, ok := story.Checkpoint(1); ok {
		t.Error("checkpoint on ungated part should be skipped")
	}
}

func TestStory_NarrativeSections(t *testing.T) {
	loader, err := content.NewLoader(setupTestStories(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	story, _ := loader.GetStory("yusuf")

	sections := story.NarrativeSections()
	// Parts 1-3 are narrative, part 4 is the checkpoint, part 5 the quiz.
	if len(sections) != 3 {
		t.Fatalf("NarrativeSections() = %d, want 3", len(sections))
	}
	if sections[0].Title != "The Dream" {
		t.Errorf("sections[0].Title = %q", sections[0].Title)
	}
}

func TestLoader_SkipsInvalidYAML(t *testing.T) {
	dir := setupTestStories(t)
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [unterminated"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("title: no id here\n"), 0o644)

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if n := len(loader.AllStories()); n != 1 {
		t.Errorf("AllStories() = %d, want 1", n)
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	loader, err := content.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if n := len(loader.AllStories()); n != 0 {
		t.Errorf("AllStories() = %d, want 0 for empty dir", n)
	}
}

func setupTestStories(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	storiesDir := filepath.Join(dir, "stories", "prophets")
	os.MkdirAll(storiesDir, 0o755)

	os.WriteFile(filepath.Join(storiesDir, "yusuf.yaml"), []byte(`
id: yusuf
title: "Prophet Yusuf and His Brothers"
topic: prophets
parts:
  - title: The Dream
    body: |
      Yusuf dreamt that eleven stars, the sun and the moon bowed down before him.
  - title: The Well
    body: |
      His jealous brothers threw him into a deep well and returned home weeping.
  - title: Egypt
    body: |
      A passing caravan rescued him and sold him in the markets of Egypt.
  - title: Put the events in order
    kind: checkpoint
  - title: Quiz
    kind: quiz
checkpoints:
  - part: 2
    kind: choice
    options:
      - text: wrong place
        is_correct: true
  - part: 4
    kind: ordering
    events: [dream, well, egypt]
`), 0o644)

	return dir
}
