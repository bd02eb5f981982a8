// Package httpapi exposes the progress engine over HTTP for story views.
// Part indices in paths are 0-based.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const readyTimeout = 2 * time.Second

// Catalog is the read-only story dataset.
type Catalog interface {
	GetStory(id string) (content.Story, bool)
	AllStories() []content.Story
}

// Config holds dependencies for the HTTP adapter.
type Config struct {
	Engine         *progress.Engine
	Stories        Catalog
	Ready          func(ctx context.Context) error // store health, nil means always ready
	ReportsEnabled bool
}

// Server routes HTTP requests to the progress engine.
type Server struct {
	engine  *progress.Engine
	stories Catalog
	ready   func(ctx context.Context) error
	reports bool
}

// New creates a new HTTP adapter.
func New(cfg Config) *Server {
	return &Server{
		engine:  cfg.Engine,
		stories: cfg.Stories,
		ready:   cfg.Ready,
		reports: cfg.ReportsEnabled,
	}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /stories", s.handleListStories)
	mux.HandleFunc("GET /stories/{id}", s.withStory(s.handleGetStory))
	mux.HandleFunc("GET /stories/{id}/progress", s.withStory(s.handleGetProgress))
	mux.HandleFunc("POST /stories/{id}/parts/{part}/complete", s.withStory(s.handleCompletePart))
	mux.HandleFunc("POST /stories/{id}/parts/{part}/visit", s.withStory(s.handleVisitPart))
	mux.HandleFunc("GET /stories/{id}/checkpoints/{part}", s.withStory(s.handleGetCheckpoint))
	mux.HandleFunc("POST /stories/{id}/checkpoints/{part}", s.withStory(s.handleSubmitCheckpoint))
	mux.HandleFunc("GET /stories/{id}/quiz", s.withStory(s.handleGetQuiz))
	mux.HandleFunc("POST /stories/{id}/quiz", s.withStory(s.handleSubmitQuiz))
	mux.HandleFunc("GET /stories/{id}/rewards", s.withStory(s.handleGetReward))
	mux.HandleFunc("POST /stories/{id}/reset", s.withStory(s.handleReset))
	mux.HandleFunc("GET /stories/{id}/activity", s.withStory(s.handleActivity))
	mux.HandleFunc("GET /stories/{id}/events", s.withStory(s.handleEvents))

	if s.reports {
		mux.HandleFunc("GET /reports/progress.xlsx", s.handleReport)
	}
	return mux
}

type storyHandler func(w http.ResponseWriter, r *http.Request, story content.Story)

func (s *Server) withStory(h storyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		story, ok := s.stories.GetStory(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		h(w, r, story)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
