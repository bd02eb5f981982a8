package quiz_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-progress/internal/quiz"
)

func richStory() []quiz.Section {
	return []quiz.Section{
		{Title: "The Search", Body: `Ibrahim watched the glittering stars rise above the quiet desert town.
When the bright moon appeared he wondered whether it deserved worship.
At dawn the blazing sun climbed higher and warmed the sleeping valley.
Each light eventually faded, and Ibrahim understood they were only creations.
Moral: The Creator never sets or fades.`},
		{Title: "The Idols", Body: `His father carved wooden idols and sold them in the crowded market square.
Ibrahim questioned the townspeople about statues that could neither hear nor speak.
One festival morning he broke the smaller idols and left the largest untouched.
The angry elders demanded answers, so he told them to question the largest idol.
Their silence revealed how powerless their carefully carved statues truly were.`},
		{Title: "The Fire", Body: `The furious king ordered his soldiers to build an enormous roaring fire.
They hurled Ibrahim into the flames using a giant wooden catapult.
Allah commanded the fire to become cool and peaceful for his faithful servant.
He walked out unharmed while the astonished crowd watched in complete silence.`},
	}
}

func TestGenerate_TenQuestions(t *testing.T) {
	qs := quiz.Generate("ibrahim-1", richStory())

	if len(qs) != quiz.QuestionCount {
		t.Fatalf("len(questions) = %d, want %d", len(qs), quiz.QuestionCount)
	}
	for i, q := range qs {
		if len(q.Options) != quiz.OptionCount {
			t.Errorf("q%d: %d options, want %d", i, len(q.Options), quiz.OptionCount)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			t.Fatalf("q%d: correct index %d out of range", i, q.CorrectIndex)
		}
		if !strings.Contains(q.Prompt, quiz.Blank) {
			t.Errorf("q%d: prompt %q has no blank", i, q.Prompt)
		}
		seen := map[string]bool{}
		for _, o := range q.Options {
			if seen[o] {
				t.Errorf("q%d: duplicate option %q", i, o)
			}
			seen[o] = true
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := quiz.Generate("ibrahim-1", richStory())
	b := quiz.Generate("ibrahim-1", richStory())

	if !reflect.DeepEqual(a, b) {
		t.Error("Generate() should be deterministic for identical input")
	}
}

func TestGenerate_DifferentStoriesDiffer(t *testing.T) {
	a := quiz.Generate("ibrahim-1", richStory())
	b := quiz.Generate("ibrahim-2", richStory())

	if reflect.DeepEqual(a, b) {
		t.Error("Generate() should differ for different story IDs")
	}
}

func TestGenerate_NeverBlanksProtectedNames(t *testing.T) {
	qs := quiz.Generate("ibrahim-1", richStory())
	for i, q := range qs {
		answer := q.Options[q.CorrectIndex]
		if answer == "ibrahim" || answer == "allah" {
			t.Errorf("q%d: protected name %q used as answer", i, answer)
		}
	}
}

func TestGenerate_CustomProtectedNames(t *testing.T) {
	gen := quiz.NewGenerator(quiz.GeneratorConfig{ProtectedNames: []string{"Idols", "Fire"}})
	for i, q := range gen.Generate("ibrahim-1", richStory()) {
		for _, o := range q.Options {
			if o == "idols" || o == "fire" {
				t.Errorf("q%d: protected word %q offered as option", i, o)
			}
		}
	}
}

func TestGenerate_IgnoresMoralText(t *testing.T) {
	qs := quiz.Generate("ibrahim-1", richStory())
	for i, q := range qs {
		if strings.Contains(q.Prompt, "Creator") {
			t.Errorf("q%d: prompt drawn from moral text: %q", i, q.Prompt)
		}
	}
}

// Four qualifying sentences still yield a full, deterministic quiz by padding.
func TestGenerate_ShortStoryPads(t *testing.T) {
	sections := []quiz.Section{{Title: "Short", Body: `Too short.
Yunus boarded a crowded ship that sailed across the stormy sea.
The frightened sailors cast lots and threw him into the waves.
A gigantic whale swallowed him whole in the darkness of the deep.
Inside the whale he prayed sincerely until he was released onto land.`}}

	a := quiz.Generate("yunus", sections)
	b := quiz.Generate("yunus", sections)

	if len(a) != quiz.QuestionCount {
		t.Fatalf("len(questions) = %d, want %d", len(a), quiz.QuestionCount)
	}
	unique := map[string]bool{}
	for _, q := range a {
		unique[strings.Replace(q.Prompt, quiz.Blank, "", 1)] = true
	}
	if len(unique) > 4 {
		t.Errorf("unique sentences = %d, want at most 4", len(unique))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("padded quiz should be deterministic")
	}
}

func TestGenerate_Placeholder(t *testing.T) {
	tests := []struct {
		name     string
		sections []quiz.Section
	}{
		{"no sections", nil},
		{"only short sentences", []quiz.Section{{Body: "Short. Tiny. Small one."}}},
		{"only moral", []quiz.Section{{Body: "Moral: Patience is a virtue that every believer should practise daily."}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs := quiz.Generate("s", tt.sections)
			if len(qs) != 1 {
				t.Fatalf("len(questions) = %d, want 1 placeholder", len(qs))
			}
			if qs[0].Prompt != quiz.PlaceholderPrompt {
				t.Errorf("Prompt = %q, want placeholder", qs[0].Prompt)
			}
			if len(qs[0].Options) != quiz.OptionCount {
				t.Errorf("placeholder options = %d, want %d", len(qs[0].Options), quiz.OptionCount)
			}
			if !quiz.Unavailable(qs) {
				t.Error("Unavailable() = false for the placeholder quiz")
			}
		})
	}
}

func TestUnavailable_RealQuiz(t *testing.T) {
	if quiz.Unavailable(quiz.Generate("ibrahim-1", richStory())) {
		t.Error("Unavailable() = true for a generated quiz")
	}
	if quiz.Unavailable(nil) {
		t.Error("Unavailable(nil) = true")
	}
}

func TestGenerate_CustomCount(t *testing.T) {
	gen := quiz.NewGenerator(quiz.GeneratorConfig{Count: 3})
	if n := len(gen.Generate("ibrahim-1", richStory())); n != 3 {
		t.Errorf("len(questions) = %d, want 3", n)
	}
}

func TestContentHash(t *testing.T) {
	a := quiz.ContentHash("s1", richStory())
	b := quiz.ContentHash("s1", richStory())
	c := quiz.ContentHash("s2", richStory())

	if a != b {
		t.Error("ContentHash() should be stable")
	}
	if a == c {
		t.Error("ContentHash() should depend on story ID")
	}
	if len(a) != 64 {
		t.Errorf("len(ContentHash()) = %d, want 64 hex chars", len(a))
	}
}
