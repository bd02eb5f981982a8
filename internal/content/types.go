package content

import "github.com/p-n-ai/pai-progress/internal/quiz"

// PartKind classifies a story part.
type PartKind string

const (
	PartNarrative  PartKind = "narrative"
	PartCheckpoint PartKind = "checkpoint"
	PartQuiz       PartKind = "quiz"
)

// CheckpointKind names the exercise type of a gated checkpoint.
type CheckpointKind string

const (
	CheckpointOrdering CheckpointKind = "ordering"
	CheckpointMatching CheckpointKind = "matching"
	CheckpointChoice   CheckpointKind = "choice"
)

// Story is a narrated story loaded from YAML. The last part is the quiz.
type Story struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Topic       string       `yaml:"topic" json:"topic,omitempty"`
	Parts       []Part       `yaml:"parts" json:"parts"`
	Checkpoints []Checkpoint `yaml:"checkpoints" json:"-"`
}

// Part is one section of a story.
type Part struct {
	Title string   `yaml:"title" json:"title"`
	Body  string   `yaml:"body" json:"body"`
	Kind  PartKind `yaml:"kind" json:"kind,omitempty"`
}

// Checkpoint is the answer key for the exercise at a gated part.
type Checkpoint struct {
	Part    int            `yaml:"part"` // 1-based part number
	Kind    CheckpointKind `yaml:"kind"`
	Prompt  string         `yaml:"prompt"`
	Events  []string       `yaml:"events"`  // ordering: canonical sequence
	Pairs   []Pair         `yaml:"pairs"`   // matching: canonical pairs
	Options []ChoiceOption `yaml:"options"` // choice
}

// Pair is a canonical left→right match.
type Pair struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// ChoiceOption is one option of a single-choice checkpoint.
type ChoiceOption struct {
	Text      string `yaml:"text"`
	IsCorrect bool   `yaml:"is_correct"`
}

// TotalParts returns the number of parts, quiz included.
func (s Story) TotalParts() int {
	return len(s.Parts)
}

// QuizPartIndex returns the index of the terminal quiz part, or -1 for an
// empty story.
func (s Story) QuizPartIndex() int {
	return len(s.Parts) - 1
}

// NarrativeSections returns the narrative parts preceding the quiz, the input
// for quiz generation.
func (s Story) NarrativeSections() []quiz.Section {
	var out []quiz.Section
	for i, p := range s.Parts {
		if i == s.QuizPartIndex() || p.Kind == PartQuiz {
			break
		}
		if p.Kind == PartCheckpoint {
			continue
		}
		out = append(out, quiz.Section{Title: p.Title, Body: p.Body})
	}
	return out
}

// Checkpoint returns the answer key for the part at partIndex.
func (s Story) Checkpoint(partIndex int) (Checkpoint, bool) {
	for _, c := range s.Checkpoints {
		if c.Part == partIndex+1 {
			return c, true
		}
	}
	return Checkpoint{}, false
}
