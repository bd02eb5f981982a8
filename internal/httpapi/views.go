package httpapi

import (
	"slices"
	"time"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
)

type storySummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Topic      string `json:"topic,omitempty"`
	TotalParts int    `json:"total_parts"`
}

type progressView struct {
	Progress       *progress.StoryProgress `json:"progress"`
	TotalParts     int                     `json:"total_parts"`
	NavigableLimit int                     `json:"navigable_limit"`
}

type storyView struct {
	storySummary
	Parts    []content.Part `json:"parts"`
	Gated    []int          `json:"gated_parts"`
	QuizPart int            `json:"quiz_part"`
	progressView
}

// checkpointView presents an exercise without its answer key.
type checkpointView struct {
	Part    int                      `json:"part"`
	Kind    content.CheckpointKind   `json:"kind"`
	Prompt  string                   `json:"prompt,omitempty"`
	Events  []string                 `json:"events,omitempty"`
	Left    []string                 `json:"left,omitempty"`
	Right   []string                 `json:"right,omitempty"`
	Options []string                 `json:"options,omitempty"`
	State   progress.CheckpointState `json:"state"`
}

type checkpointResponse struct {
	progress.CheckpointResult
	Progress *progress.StoryProgress `json:"progress"`
}

type questionView struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type quizView struct {
	Questions   []questionView  `json:"questions"`
	Threshold   int             `json:"threshold"`
	Unavailable bool            `json:"unavailable,omitempty"`
	Record      *quizRecordView `json:"record,omitempty"`
}

// quizRecordView is a quiz record without its questions, which carry the
// answer key.
type quizRecordView struct {
	Answers         []*int              `json:"answers"`
	Score           int                 `json:"score"`
	Total           int                 `json:"total"`
	Attempts        int                 `json:"attempts"`
	PassedAtAttempt *int                `json:"passed_at_attempt"`
	Status          progress.QuizStatus `json:"status"`
	SubmittedAt     time.Time           `json:"submitted_at"`
}

type quizResultView struct {
	Record    *quizRecordView        `json:"record"`
	Passed    bool                   `json:"passed"`
	Threshold int                    `json:"threshold"`
	Reward    *progress.RewardRecord `json:"reward,omitempty"`
}

type quizSubmission struct {
	Answers []*int `json:"answers"`
}

func summarize(s content.Story) storySummary {
	return storySummary{ID: s.ID, Title: s.Title, Topic: s.Topic, TotalParts: s.TotalParts()}
}

func newProgressView(p *progress.StoryProgress, totalParts int) progressView {
	return progressView{Progress: p, TotalParts: totalParts, NavigableLimit: p.NavigableLimit(totalParts)}
}

// newCheckpointView lists ordering events and matching answers sorted so the
// canonical order is not revealed.
func newCheckpointView(cp content.Checkpoint, st progress.CheckpointState) checkpointView {
	v := checkpointView{Part: cp.Part - 1, Kind: cp.Kind, Prompt: cp.Prompt, State: st}
	switch cp.Kind {
	case content.CheckpointOrdering:
		v.Events = slices.Sorted(slices.Values(cp.Events))
	case content.CheckpointMatching:
		for _, p := range cp.Pairs {
			v.Left = append(v.Left, p.Left)
			v.Right = append(v.Right, p.Right)
		}
		slices.Sort(v.Right)
	case content.CheckpointChoice:
		for _, o := range cp.Options {
			v.Options = append(v.Options, o.Text)
		}
	}
	return v
}

func newQuestionViews(qs []quiz.Question) []questionView {
	out := make([]questionView, len(qs))
	for i, q := range qs {
		out[i] = questionView{Prompt: q.Prompt, Options: q.Options}
	}
	return out
}

func newQuizRecordView(rec progress.QuizRecord) *quizRecordView {
	return &quizRecordView{
		Answers:         rec.Answers,
		Score:           rec.Score,
		Total:           rec.Total,
		Attempts:        rec.Attempts,
		PassedAtAttempt: rec.PassedAtAttempt,
		Status:          rec.Status,
		SubmittedAt:     rec.SubmittedAt,
	}
}
