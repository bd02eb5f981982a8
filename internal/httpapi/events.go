package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/kvstore"
)

const (
	eventBuffer       = 16
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams the story's change notifications over a WebSocket
// until the client goes away. Slow clients lose notifications rather than
// block writers; they re-read state on the next one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, story content.Story) {
	changes := make(chan kvstore.Change, eventBuffer)
	unsubscribe := s.engine.Store().Subscribe(func(c kvstore.Change) {
		if c.StoryID != story.ID {
			return
		}
		select {
		case changes <- c:
		default:
			slog.Warn("dropping change notification for slow client", "story_id", story.ID, "kind", c.Kind)
		}
	})
	defer unsubscribe()

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "story_id", story.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	slog.Debug("change stream opened", "story_id", story.ID)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("change stream closed", "story_id", story.ID)
			return
		case c := <-changes:
			if err := writeChange(ctx, conn, c); err != nil {
				slog.Debug("change stream write failed", "story_id", story.ID, "error", err)
				return
			}
		}
	}
}

func writeChange(ctx context.Context, conn *websocket.Conn, c kvstore.Change) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, c)
}
