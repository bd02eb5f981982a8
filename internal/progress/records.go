package progress

import (
	"fmt"
	"slices"
	"time"

	"github.com/p-n-ai/pai-progress/internal/quiz"
)

const (
	// MaxCheckpointAttempts is the number of failed submissions that trigger
	// a stage rollback.
	MaxCheckpointAttempts = 3

	// PassXP and PerfectXP are the quiz reward tiers.
	PassXP    = 100
	PerfectXP = 150
	// PerfectBadge is awarded for a full-score quiz.
	PerfectBadge = "Perfect Quiz"
)

var (
	// gatedPartIndices are the 0-based indices of the 4th, 8th and 12th parts.
	gatedPartIndices = []int{3, 7, 11}
	// stageStarts are the 0-based indices of parts 1, 5 and 9.
	stageStarts = []int{0, 4, 8}
)

// GatedParts returns the indices of the parts that carry a checkpoint.
func GatedParts() []int {
	return slices.Clone(gatedPartIndices)
}

// IsGated reports whether the part at partIndex carries a checkpoint.
func IsGated(partIndex int) bool {
	return slices.Contains(gatedPartIndices, partIndex)
}

// StageStart returns the first part index of the stage containing partIndex.
func StageStart(partIndex int) int {
	start := 0
	for _, s := range stageStarts {
		if partIndex >= s {
			start = s
		}
	}
	return start
}

// PassThreshold returns ceil(total * 0.7) without floating point.
func PassThreshold(total int) int {
	if total <= 0 {
		return 0
	}
	return (total*7 + 9) / 10
}

// StoryProgress is a learner's progress through one story.
type StoryProgress struct {
	CurrentPartIndex int   `json:"current_part_index"`
	CompletedParts   []int `json:"completed_parts"` // sorted, unique
	IsStoryCompleted bool  `json:"is_story_completed"`
}

// IsPartCompleted reports whether partIndex has been marked done.
func (p *StoryProgress) IsPartCompleted(partIndex int) bool {
	_, found := slices.BinarySearch(p.CompletedParts, partIndex)
	return found
}

// FirstIncompletePart returns the lowest part index not yet completed, or
// totalParts when every part is done.
func (p *StoryProgress) FirstIncompletePart(totalParts int) int {
	for i := 0; i < totalParts; i++ {
		if !p.IsPartCompleted(i) {
			return i
		}
	}
	return totalParts
}

// NavigableLimit is the furthest part index a view may offer:
// min(totalParts-1, first incomplete part).
func (p *StoryProgress) NavigableLimit(totalParts int) int {
	if totalParts <= 0 {
		return 0
	}
	return min(totalParts-1, p.FirstIncompletePart(totalParts))
}

func (p *StoryProgress) clone() StoryProgress {
	c := *p
	c.CompletedParts = slices.Clone(p.CompletedParts)
	if c.CompletedParts == nil {
		c.CompletedParts = []int{}
	}
	return c
}

func (p *StoryProgress) addCompleted(partIndex int) {
	i, found := slices.BinarySearch(p.CompletedParts, partIndex)
	if !found {
		p.CompletedParts = slices.Insert(p.CompletedParts, i, partIndex)
	}
}

func (p *StoryProgress) removeCompleted(partIndex int) {
	if i, found := slices.BinarySearch(p.CompletedParts, partIndex); found {
		p.CompletedParts = slices.Delete(p.CompletedParts, i, i+1)
	}
}

// truncateFrom removes every completed index at or after start.
func (p *StoryProgress) truncateFrom(start int) {
	p.CompletedParts = slices.DeleteFunc(p.CompletedParts, func(i int) bool { return i >= start })
}

// normalize sorts and de-duplicates completed parts after decoding.
func (p *StoryProgress) normalize() {
	slices.Sort(p.CompletedParts)
	p.CompletedParts = slices.Compact(p.CompletedParts)
	if p.CompletedParts == nil {
		p.CompletedParts = []int{}
	}
}

// CheckpointStatus is the outcome state of a checkpoint.
type CheckpointStatus string

const (
	CheckpointNone   CheckpointStatus = "none"
	CheckpointPassed CheckpointStatus = "passed"
	CheckpointFailed CheckpointStatus = "failed"
)

// CheckpointState is the attempt bookkeeping of one gated part.
type CheckpointState struct {
	Attempts int              `json:"attempts"`
	Status   CheckpointStatus `json:"status"`
}

// QuizStatus is the outcome of the latest quiz submission.
type QuizStatus string

const (
	QuizCompleted QuizStatus = "completed"
	QuizFailed    QuizStatus = "failed"
)

// QuizRecord freezes a story's quiz questions together with the learner's
// latest answers.
type QuizRecord struct {
	Questions       []quiz.Question `json:"questions"`
	Answers         []*int          `json:"answers"`
	Score           int             `json:"score"`
	Total           int             `json:"total"`
	Attempts        int             `json:"attempts"`
	PassedAtAttempt *int            `json:"passed_at_attempt"`
	Status          QuizStatus      `json:"status"`
	ContentHash     string          `json:"content_hash,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
}

func (r *QuizRecord) check() error {
	if len(r.Answers) != len(r.Questions) {
		return fmt.Errorf("answers length %d does not match %d questions", len(r.Answers), len(r.Questions))
	}
	for i, q := range r.Questions {
		if q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("question %d correct index %d out of range", i, q.CorrectIndex)
		}
	}
	return nil
}

// RewardRecord holds the XP and badge earned for a story's quiz.
type RewardRecord struct {
	XP        int       `json:"xp"`
	BestScore int       `json:"best_score"`
	Total     int       `json:"total"`
	Badge     *string   `json:"badge"`
	AwardedAt time.Time `json:"awarded_at"`
}

func (r RewardRecord) isPerfect() bool {
	return r.XP >= PerfectXP && r.Badge != nil && *r.Badge == PerfectBadge
}

func (r RewardRecord) equal(o RewardRecord) bool {
	badgeEq := (r.Badge == nil) == (o.Badge == nil) && (r.Badge == nil || *r.Badge == *o.Badge)
	return r.XP == o.XP && r.BestScore == o.BestScore && r.Total == o.Total && badgeEq && r.AwardedAt.Equal(o.AwardedAt)
}

func progressKey(storyID string) string { return "progress:" + storyID }
func quizKey(storyID string) string     { return "quiz:" + storyID }
func rewardKey(storyID string) string   { return "rewards:" + storyID }

func checkpointKey(storyID string, partIndex int) string {
	return fmt.Sprintf("checkpoint:%s:%d", storyID, partIndex+1)
}

func checkpointAttemptsKey(storyID string, partIndex int) string {
	return fmt.Sprintf("checkpoint_attempts:%s:%d", storyID, partIndex+1)
}

func checkpointStatusKey(storyID string, partIndex int) string {
	return fmt.Sprintf("checkpoint_status:%s:%d", storyID, partIndex+1)
}
