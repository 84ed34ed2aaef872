package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldDiacritics removes accent marks for comparison: NFD decomposition,
// combining marks dropped, then recomposed. Stored or displayed text must
// never be replaced by the folded form.
func FoldDiacritics(s string) string {
	if isASCII(s) {
		return s
	}
	// Chained transformers keep state, so each call gets its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// ContainsWord reports whether word occurs in text with no joining rune
// directly before or after it. isJoiner decides which runes glue tokens.
func ContainsWord(text, word string, isJoiner func(rune) bool) bool {
	if word == "" {
		return false
	}
	_, step := utf8.DecodeRuneInString(word)
	for offset := 0; offset <= len(text)-len(word); {
		idx := indexFrom(text, word, offset)
		if idx < 0 {
			return false
		}
		end := idx + len(word)

		before, after := true, true
		if idx > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:idx])
			before = !isJoiner(r)
		}
		if end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			after = !isJoiner(r)
		}
		if before && after {
			return true
		}
		offset = idx + step
	}
	return false
}

func indexFrom(text, word string, offset int) int {
	idx := strings.Index(text[offset:], word)
	if idx < 0 {
		return -1
	}
	return offset + idx
}

// IsWordRune is the joiner used for standalone-word matching.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isSynonymJoiner also treats hyphens as glue so short synonyms do not fire
// inside hyphenated compounds.
func isSynonymJoiner(r rune) bool {
	return IsWordRune(r) || r == '-'
}
