package quiz

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	minSentenceLen = 40
	maxSentenceLen = 220
	minWordLen     = 4
)

var (
	sentenceRe = regexp.MustCompile(`[^.!?]+(?:[.!?]+["'”’)]*|$)`)
	wordRe     = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*`)
)

// moralMarkers start the trailing moral/lesson annotation of a section body.
var moralMarkers = []string{"moral:", "lesson:", "lessons:", "pengajaran:"}

var stopWords = toSet([]string{
	"about", "above", "after", "again", "against", "also", "among", "another",
	"away", "because", "been", "before", "being", "below", "between", "both",
	"came", "come", "could", "does", "doing", "done", "down", "during", "each",
	"even", "every", "from", "further", "have", "having", "here", "herself",
	"himself", "into", "itself", "just", "like", "made", "make", "many", "more",
	"most", "much", "once", "only", "other", "over", "said", "same", "shall",
	"should", "some", "still", "such", "than", "that", "their", "them",
	"themselves", "then", "there", "these", "they", "this", "those", "though",
	"through", "until", "unto", "upon", "very", "went", "were", "what", "when",
	"where", "which", "while", "whom", "whose", "will", "with", "would", "your",
	"yours", "yourself",
})

// defaultProtectedNames are proper nouns that are never blanked.
var defaultProtectedNames = []string{
	"allah", "muhammad", "ibrahim", "ismail", "ishaq", "yaqub", "yusuf", "musa",
	"harun", "dawud", "sulaiman", "yunus", "ayyub", "zakariya", "yahya", "isa",
	"maryam", "adam", "hawa", "idris", "ilyas", "shuaib", "salih", "khadijah",
	"aisha", "fatimah", "abu", "bakr", "umar", "uthman", "bilal", "hajar",
	"jibril", "firaun", "quran", "makkah", "madinah", "kaabah", "kaaba",
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// stripMoral drops everything from the first line that begins with a moral
// marker onwards.
func stripMoral(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		for _, marker := range moralMarkers {
			if strings.HasPrefix(trimmed, marker) {
				return strings.Join(lines[:i], "\n")
			}
		}
	}
	return body
}

// splitSentences splits prose on sentence-ending punctuation, collapsing
// whitespace inside each sentence.
func splitSentences(text string) []string {
	var out []string
	for _, raw := range sentenceRe.FindAllString(text, -1) {
		s := strings.Join(strings.Fields(raw), " ")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// collectSentences returns the narrative sentences of sections that fall in
// the accepted length window.
func collectSentences(sections []Section) []string {
	var out []string
	for _, sec := range sections {
		body := norm.NFC.String(stripMoral(sec.Body))
		for _, s := range splitSentences(body) {
			n := utf8.RuneCountInString(s)
			if n >= minSentenceLen && n <= maxSentenceLen {
				out = append(out, s)
			}
		}
	}
	return out
}

// tokenizer lowercases words and filters out ones that must not be blanked.
// A cases.Caser is stateful, so each Generate call builds its own tokenizer.
type tokenizer struct {
	lower     cases.Caser
	protected map[string]bool
}

func newTokenizer(protected map[string]bool) *tokenizer {
	return &tokenizer{
		lower:     cases.Lower(language.Und),
		protected: protected,
	}
}

func (t *tokenizer) fold(word string) string {
	return t.lower.String(word)
}

// blankable returns the candidate answer words of s in order of appearance.
func (t *tokenizer) blankable(s string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(s, -1) {
		w = t.fold(w)
		if utf8.RuneCountInString(w) < minWordLen || stopWords[w] || t.protected[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// blankOut replaces the first case-insensitive whole-word occurrence of
// answer in s.
func (t *tokenizer) blankOut(s, answer string) (string, bool) {
	for _, loc := range wordRe.FindAllStringIndex(s, -1) {
		if t.fold(s[loc[0]:loc[1]]) == answer {
			return s[:loc[0]] + Blank + s[loc[1]:], true
		}
	}
	return s, false
}
