// Package content loads the static story dataset consumed by the progress
// engine.
package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// gatedParts are the part numbers that may carry a checkpoint.
var gatedParts = map[int]bool{4: true, 8: true, 12: true}

// Loader loads and caches stories from the filesystem.
type Loader struct {
	rootDir string
	stories map[string]Story
	mu      sync.RWMutex
}

// NewLoader creates a new loader and loads every story under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		stories: make(map[string]Story),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading stories: %w", err)
	}

	slog.Info("stories loaded", "stories", len(l.stories))
	return l, nil
}

// GetStory returns a story by ID.
func (l *Loader) GetStory(id string) (Story, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.stories[id]
	return s, ok
}

// AllStories returns all loaded stories ordered by ID.
func (l *Loader) AllStories() []Story {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stories := make([]Story, 0, len(l.stories))
	for _, s := range l.stories {
		stories = append(stories, s)
	}
	sort.Slice(stories, func(i, j int) bool { return stories[i].ID < stories[j].ID })
	return stories
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadStory(path)
		}
		return nil
	})
}

func (l *Loader) loadStory(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var story Story
	if err := yaml.Unmarshal(data, &story); err != nil {
		slog.Warn("skipping invalid story YAML", "path", path, "error", err)
		return nil
	}

	if story.ID == "" || len(story.Parts) == 0 {
		return nil // Not a story file
	}

	story.Checkpoints = validCheckpoints(path, story)

	l.mu.Lock()
	l.stories[story.ID] = story
	l.mu.Unlock()

	return nil
}

// validCheckpoints drops checkpoints placed off a gated part or missing an
// answer key.
func validCheckpoints(path string, story Story) []Checkpoint {
	var out []Checkpoint
	for _, c := range story.Checkpoints {
		if !gatedParts[c.Part] || c.Part > len(story.Parts) {
			slog.Warn("skipping checkpoint on ungated part", "path", path, "part", c.Part)
			continue
		}
		var ok bool
		switch c.Kind {
		case CheckpointOrdering:
			ok = len(c.Events) > 0
		case CheckpointMatching:
			ok = len(c.Pairs) > 0
		case CheckpointChoice:
			for _, o := range c.Options {
				ok = ok || o.IsCorrect
			}
		}
		if !ok {
			slog.Warn("skipping checkpoint without answer key", "path", path, "part", c.Part, "kind", c.Kind)
			continue
		}
		out = append(out, c)
	}
	return out
}
