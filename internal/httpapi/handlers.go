package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
	"github.com/p-n-ai/pai-progress/internal/report"
)

const (
	maxBodyBytes     = 64 << 10
	maxActivityLimit = 200
)

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	stories := s.stories.AllStories()
	out := make([]storySummary, 0, len(stories))
	for _, st := range stories {
		out = append(out, summarize(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request, story content.Story) {
	writeJSON(w, http.StatusOK, storyView{
		storySummary: summarize(story),
		Parts:        story.Parts,
		Gated:        progress.GatedParts(),
		QuizPart:     story.QuizPartIndex(),
		progressView: newProgressView(s.engine.Progress(story.ID), story.TotalParts()),
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request, story content.Story) {
	writeJSON(w, http.StatusOK, newProgressView(s.engine.Progress(story.ID), story.TotalParts()))
}

// handleCompletePart marks a reading part done. Parts past the navigable
// limit, unpassed checkpoints and the quiz part are refused.
func (s *Server) handleCompletePart(w http.ResponseWriter, r *http.Request, story content.Story) {
	part, ok := partIndex(w, r, story)
	if !ok {
		return
	}
	total := story.TotalParts()
	p := s.engine.Progress(story.ID)

	switch {
	case part > p.NavigableLimit(total):
		writeError(w, http.StatusConflict, "part is locked")
		return
	case part == story.QuizPartIndex():
		writeError(w, http.StatusConflict, "the quiz part is completed by passing the quiz")
		return
	}
	if _, gated := story.Checkpoint(part); gated && progress.IsGated(part) {
		if st := s.engine.CheckpointState(story.ID, part); st.Status != progress.CheckpointPassed {
			writeError(w, http.StatusConflict, "checkpoint not passed")
			return
		}
	}

	if err := s.engine.MarkPartCompleted(story.ID, part, total); err != nil {
		slog.Error("failed to complete part", "story_id", story.ID, "part", part, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save progress")
		return
	}
	writeJSON(w, http.StatusOK, newProgressView(s.engine.Progress(story.ID), total))
}

func (s *Server) handleVisitPart(w http.ResponseWriter, r *http.Request, story content.Story) {
	part, ok := partIndex(w, r, story)
	if !ok {
		return
	}
	total := story.TotalParts()
	if part > s.engine.Progress(story.ID).NavigableLimit(total) {
		writeError(w, http.StatusConflict, "part is locked")
		return
	}

	if err := s.engine.SetCurrentPart(story.ID, part, total); err != nil {
		slog.Error("failed to set current part", "story_id", story.ID, "part", part, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save progress")
		return
	}
	writeJSON(w, http.StatusOK, newProgressView(s.engine.Progress(story.ID), total))
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request, story content.Story) {
	part, cp, ok := s.checkpoint(w, r, story)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCheckpointView(cp, s.engine.CheckpointState(story.ID, part)))
}

func (s *Server) handleSubmitCheckpoint(w http.ResponseWriter, r *http.Request, story content.Story) {
	part, cp, ok := s.checkpoint(w, r, story)
	if !ok {
		return
	}

	var sub progress.Submission
	if !decodeBody(w, r, &sub) {
		return
	}
	if preview, _ := strconv.ParseBool(r.URL.Query().Get("preview")); preview {
		sub.Preview = true
	}

	res, err := s.engine.SubmitCheckpoint(story.ID, part, cp, sub)
	if err != nil {
		slog.Error("failed to submit checkpoint", "story_id", story.ID, "part", part, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save checkpoint")
		return
	}
	writeJSON(w, http.StatusOK, checkpointResponse{CheckpointResult: res, Progress: s.engine.Progress(story.ID)})
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request, story content.Story) {
	if !s.quizUnlocked(w, story) {
		return
	}

	qs := s.engine.Quiz(story.ID, story.NarrativeSections())
	if quiz.Unavailable(qs) {
		writeJSON(w, http.StatusOK, quizView{Questions: []questionView{}, Unavailable: true})
		return
	}
	v := quizView{Questions: newQuestionViews(qs), Threshold: progress.PassThreshold(len(qs))}
	if rec, ok := s.engine.QuizRecord(story.ID); ok {
		v.Record = newQuizRecordView(rec)
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request, story content.Story) {
	if !s.quizUnlocked(w, story) {
		return
	}
	var sub quizSubmission
	if !decodeBody(w, r, &sub) {
		return
	}

	res, err := s.engine.SubmitQuiz(story.ID, story.NarrativeSections(), story.TotalParts(), sub.Answers)
	if errors.Is(err, progress.ErrQuizUnavailable) {
		writeError(w, http.StatusConflict, "quiz unavailable")
		return
	}
	if err != nil {
		slog.Error("failed to submit quiz", "story_id", story.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save quiz")
		return
	}
	writeJSON(w, http.StatusOK, quizResultView{
		Record:    newQuizRecordView(res.Record),
		Passed:    res.Passed,
		Threshold: res.Threshold,
		Reward:    res.Reward,
	})
}

// quizUnlocked refuses the quiz until every part before it is completed.
func (s *Server) quizUnlocked(w http.ResponseWriter, story content.Story) bool {
	if story.QuizPartIndex() > s.engine.Progress(story.ID).NavigableLimit(story.TotalParts()) {
		writeError(w, http.StatusConflict, "quiz locked")
		return false
	}
	return true
}

func (s *Server) handleGetReward(w http.ResponseWriter, r *http.Request, story content.Story) {
	rec, ok := s.engine.Reward(story.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "no reward yet")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, story content.Story) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxActivityLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	evs, err := s.engine.Activity(r.Context(), story.ID, limit)
	if err != nil {
		slog.Error("failed to read activity", "story_id", story.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read activity")
		return
	}
	if evs == nil {
		evs = []progress.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, story content.Story) {
	if err := s.engine.ResetProgress(story.ID); err != nil {
		slog.Error("failed to reset progress", "story_id", story.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not reset progress")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rows := report.Collect(s.engine, s.stories.AllStories())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	if err := report.Write(w, rows); err != nil {
		slog.Error("failed to write report", "error", err)
	}
}

func partIndex(w http.ResponseWriter, r *http.Request, story content.Story) (int, bool) {
	part, err := strconv.Atoi(r.PathValue("part"))
	if err != nil || part < 0 || part >= story.TotalParts() {
		writeError(w, http.StatusBadRequest, "invalid part index")
		return 0, false
	}
	return part, true
}

func (s *Server) checkpoint(w http.ResponseWriter, r *http.Request, story content.Story) (int, content.Checkpoint, bool) {
	part, ok := partIndex(w, r, story)
	if !ok {
		return 0, content.Checkpoint{}, false
	}
	cp, found := story.Checkpoint(part)
	if !found || !progress.IsGated(part) {
		writeError(w, http.StatusNotFound, "no checkpoint at this part")
		return 0, content.Checkpoint{}, false
	}
	return part, cp, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
