// Package quiz builds deterministic fill-in-the-blank quizzes from story
// narrative text.
package quiz

import (
	"log/slog"
	"unicode/utf8"
)

const (
	// QuestionCount is the number of questions in a full quiz.
	QuestionCount = 10
	// OptionCount is the number of options offered per question.
	OptionCount = 4
	// Blank replaces the answer word in a prompt.
	Blank = "_____"

	distractorCount   = OptionCount - 1
	pickTriesPerSlot  = 20
	padTriesPerSlot   = 20
	sampleTries       = 50
	distinctWordBonus = 8
)

// PlaceholderPrompt is the prompt of the single question returned when a
// story has no usable narrative.
const PlaceholderPrompt = "Quiz unavailable: this story does not have enough narrative text yet."

// fallbackDistractors fill option slots when a story's vocabulary is too small.
var fallbackDistractors = []string{"patience", "mercy", "gratitude", "journey", "honesty", "kindness"}

// Section is one titled narrative section of a story.
type Section struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

// Question is a single multiple-choice fill-in-the-blank question.
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// GeneratorConfig holds generator settings.
type GeneratorConfig struct {
	ProtectedNames []string // extra proper nouns never to blank, on top of the defaults
	Count          int      // questions per quiz (default 10)
}

// Generator produces quizzes. It is safe for concurrent use.
type Generator struct {
	protected map[string]bool
	count     int
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	count := cfg.Count
	if count <= 0 {
		count = QuestionCount
	}
	protected := toSet(defaultProtectedNames)
	lower := newTokenizer(nil)
	for _, name := range cfg.ProtectedNames {
		protected[lower.fold(name)] = true
	}
	return &Generator{protected: protected, count: count}
}

// Generate is shorthand for a default Generator's Generate.
func Generate(storyID string, sections []Section) []Question {
	return NewGenerator(GeneratorConfig{}).Generate(storyID, sections)
}

// Generate builds the quiz for storyID from its pre-quiz sections. The same
// input always yields the same questions, options and correct indices.
func (g *Generator) Generate(storyID string, sections []Section) []Question {
	tk := newTokenizer(g.protected)

	sentences := collectSentences(sections)
	if len(sentences) == 0 {
		slog.Info("no qualifying sentences for quiz", "story_id", storyID)
		return []Question{placeholder()}
	}

	freq := make(map[string]int)
	var pool []string
	candidates := make([][]string, len(sentences))
	for i, s := range sentences {
		words := tk.blankable(s)
		candidates[i] = words
		for _, w := range words {
			if freq[w] == 0 {
				pool = append(pool, w)
			}
			freq[w]++
		}
	}

	rng := newMulberry32(Seed(storyID))
	b := builder{tk: tk, rng: rng, freq: freq, pool: pool}

	questions := make([]Question, 0, g.count)
	for _, idx := range pickDistinct(rng, len(sentences), min(g.count, len(sentences))) {
		if q, ok := b.build(sentences[idx], candidates[idx]); ok {
			questions = append(questions, q)
		}
	}

	for tries := 0; len(questions) < g.count && tries < g.count*padTriesPerSlot; tries++ {
		idx := rng.IntN(len(sentences))
		if q, ok := b.build(sentences[idx], candidates[idx]); ok {
			questions = append(questions, q)
		}
	}

	if len(questions) == 0 {
		slog.Info("no blankable words for quiz", "story_id", storyID, "sentences", len(sentences))
		return []Question{placeholder()}
	}
	if len(questions) < g.count {
		slog.Debug("quiz shorter than requested", "story_id", storyID, "questions", len(questions))
	}
	return questions
}

// pickDistinct draws up to k distinct indices in [0, n) by rejection sampling.
func pickDistinct(rng *mulberry32, n, k int) []int {
	seen := make(map[int]bool, k)
	out := make([]int, 0, k)
	for tries := 0; len(out) < k && tries < k*pickTriesPerSlot; tries++ {
		i := rng.IntN(n)
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

type builder struct {
	tk   *tokenizer
	rng  *mulberry32
	freq map[string]int
	pool []string
}

func (b builder) build(sentence string, words []string) (Question, bool) {
	answer, ok := b.mostDistinctive(words)
	if !ok {
		return Question{}, false
	}
	prompt, ok := b.tk.blankOut(sentence, answer)
	if !ok {
		return Question{}, false
	}

	distractors := b.distractors(answer)
	pos := b.rng.IntN(OptionCount)
	options := make([]string, 0, OptionCount)
	options = append(options, distractors[:pos]...)
	options = append(options, answer)
	options = append(options, distractors[pos:]...)

	return Question{Prompt: prompt, Options: options, CorrectIndex: pos}, true
}

// mostDistinctive favours long, rare words: score = len*2 + max(0, 8-freq).
func (b builder) mostDistinctive(words []string) (string, bool) {
	best, bestScore := "", -1
	for _, w := range words {
		score := utf8.RuneCountInString(w)*2 + max(0, distinctWordBonus-b.freq[w])
		if score > bestScore {
			best, bestScore = w, score
		}
	}
	return best, bestScore >= 0
}

func (b builder) distractors(answer string) []string {
	out := make([]string, 0, distractorCount)
	used := map[string]bool{answer: true}

	if len(b.pool) > 1 {
		for tries := 0; len(out) < distractorCount && tries < sampleTries; tries++ {
			w := b.pool[b.rng.IntN(len(b.pool))]
			if used[w] {
				continue
			}
			used[w] = true
			out = append(out, w)
		}
	}
	for _, w := range b.pool {
		if len(out) == distractorCount {
			break
		}
		if !used[w] {
			used[w] = true
			out = append(out, w)
		}
	}
	for _, w := range fallbackDistractors {
		if len(out) == distractorCount {
			break
		}
		if !used[w] {
			used[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Unavailable reports whether qs is the placeholder returned for a story with
// no usable narrative. It cannot be taken or scored.
func Unavailable(qs []Question) bool {
	return len(qs) == 1 && qs[0].Prompt == PlaceholderPrompt
}

func placeholder() Question {
	return Question{
		Prompt:       PlaceholderPrompt,
		Options:      []string{"Continue", "Review the story", "Ask a teacher", "Try again later"},
		CorrectIndex: 0,
	}
}
