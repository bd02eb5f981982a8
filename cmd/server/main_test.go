package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/kvstore"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const storyYAML = `id: nuh
title: Prophet Nuh
parts:
  - title: The Warning
    body: Nuh warned his people for many long years to worship only Allah.
  - title: The Ark
    body: He built an enormous wooden ark on dry land while the people mocked him.
  - title: Quiz
    kind: quiz
`

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nuh.yaml"), []byte(storyYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		Server:      config.ServerConfig{Port: 8080, ReportsEnabled: true},
		Store:       config.StoreConfig{Backend: backend, SQLitePath: filepath.Join(t.TempDir(), "data", "progress.db")},
		Progress:    config.ProgressConfig{RollbackDelay: time.Second, QuizQuestions: 10, EventsSink: config.EventsNone},
		Log:         config.LogConfig{Level: "info", Format: "json"},
		ContentPath: dir,
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(t.Context(), testConfig(t, config.BackendMemory))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewApp_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	a, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/stories/nuh/parts/0/complete", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}
	a.Close()

	// Progress survives a restart on the same database file.
	b, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(b.Close)

	if got := b.engine.Progress("nuh").CompletedParts; len(got) != 1 || got[0] != 0 {
		t.Errorf("CompletedParts after restart = %v, want [0]", got)
	}

	rec = httptest.NewRecorder()
	b.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}

func TestNewApp_UnknownBackend(t *testing.T) {
	_, err := newApp(t.Context(), testConfig(t, "floppy"))
	if err == nil || !strings.Contains(err.Error(), "unknown store backend") {
		t.Errorf("newApp() error = %v, want unknown backend", err)
	}
}

func TestNewApp_RollbackPublishesNavigate(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Progress.RollbackDelay = 10 * time.Millisecond
	a, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)

	navigated := make(chan string, 1)
	cancel := a.store.Subscribe(func(c kvstore.Change) {
		if c.Kind == kvstore.ChangeNavigate {
			navigated <- c.StoryID
		}
	})
	defer cancel()

	cp := content.Checkpoint{Part: 4, Kind: content.CheckpointChoice, Options: []content.ChoiceOption{{Text: "Yes", IsCorrect: true}}}
	for i := 0; i < progress.MaxCheckpointAttempts; i++ {
		if _, err := a.engine.SubmitCheckpoint("nuh", 3, cp, progress.Submission{Choice: 3}); err != nil {
			t.Fatalf("SubmitCheckpoint() error = %v", err)
		}
	}

	select {
	case id := <-navigated:
		if id != "nuh" {
			t.Errorf("navigate story = %q, want nuh", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no navigate notification after rollback")
	}
}
