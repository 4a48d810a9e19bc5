package sentences

import (
	"strings"
	"unicode"
)

// Only forms that almost never close a spoken sentence. Words such as
// "no", "min" or "est" end sentences too often to be listed here.
var defaultAbbreviations = []string{
	"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "vs",
	"e.g", "i.e", "approx", "dept", "fig", "vol",
}

// Segmenter splits punctuated text into sentences on terminal punctuation.
type Segmenter struct {
	abbrev map[string]struct{}
}

func New(extraAbbreviations ...string) Segmenter {
	m := make(map[string]struct{}, len(defaultAbbreviations)+len(extraAbbreviations))
	for _, a := range defaultAbbreviations {
		m[a] = struct{}{}
	}
	for _, a := range extraAbbreviations {
		a = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(a), "."))
		if a != "" {
			m[a] = struct{}{}
		}
	}
	return Segmenter{abbrev: m}
}

// Segment returns the sentences of text in order. Whitespace inside a
// sentence is collapsed to single spaces.
func (s Segmenter) Segment(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}
	}
	if s.abbrev == nil {
		s = New()
	}

	var out []string
	start := 0
	for i, w := range words {
		if i == len(words)-1 {
			break
		}
		if s.endsSentence(w, words[i+1]) {
			out = append(out, strings.Join(words[start:i+1], " "))
			start = i + 1
		}
	}
	out = append(out, strings.Join(words[start:], " "))
	return out
}

func (s Segmenter) endsSentence(word, next string) bool {
	core := strings.TrimRightFunc(word, isCloser)
	if core == "" {
		return false
	}
	last := core[len(core)-1]
	switch last {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	if strings.HasSuffix(core, "...") {
		return startsUpper(next)
	}
	stem := strings.ToLower(strings.TrimLeftFunc(strings.TrimRight(core, "."), isOpener))
	if _, ok := s.abbrev[stem]; ok {
		return false
	}
	if isInitial(stem) {
		return false
	}
	return !startsLower(next)
}

// isInitial reports a single-letter stem. The pronoun "I" is not an initial.
func isInitial(stem string) bool {
	r := []rune(stem)
	return len(r) == 1 && unicode.IsLetter(r[0]) && r[0] != 'i'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

func isOpener(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '“', '‘', '«':
		return true
	}
	return false
}

func firstLetter(s string) (rune, bool) {
	for _, r := range s {
		if isOpener(r) {
			continue
		}
		return r, unicode.IsLetter(r)
	}
	return 0, false
}

func startsLower(s string) bool {
	r, ok := firstLetter(s)
	return ok && unicode.IsLower(r)
}

func startsUpper(s string) bool {
	r, ok := firstLetter(s)
	if !ok {
		return r != 0
	}
	return unicode.IsUpper(r)
}
