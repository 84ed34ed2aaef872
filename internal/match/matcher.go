// Package match tests a single rule pattern against ingredient text.
package match

import (
	"regexp"
	"strings"
	"sync"

	"github.com/opensource-finance/halalscan/internal/domain"
	"github.com/opensource-finance/halalscan/internal/normalize"
)

// Matcher compares patterns against text. Compiled regular expressions are
// memoized per pattern; a pattern that fails to compile is remembered as a
// non-match. Safe for concurrent use.
type Matcher struct {
	regexps sync.Map // diacritics-folded pattern -> *regexp.Regexp (nil on compile failure)
}

// NewMatcher creates a matcher with an empty regex memo.
func NewMatcher() *Matcher {
	return &Matcher{}
}

var defaultMatcher = NewMatcher()

// TestPattern reports whether pattern matches text under the given match
// type using a process-wide matcher.
func TestPattern(text, pattern string, mt domain.MatchType) bool {
	return defaultMatcher.Test(text, pattern, mt)
}

// Test reports whether pattern matches text. Both sides are lowercased and
// diacritics-folded, so "gelatine" and "gélatine" match each other either
// way. Regex patterns keep their case so escapes like \S and \W stay
// intact; (?i) covers case instead. An empty pattern or unknown match type
// never matches.
func (m *Matcher) Test(text, pattern string, mt domain.MatchType) bool {
	if pattern == "" {
		return false
	}
	text = fold(text)
	if mt == domain.MatchRegex {
		re := m.compile(normalize.FoldDiacritics(pattern))
		return re != nil && re.MatchString(text)
	}
	p := fold(pattern)

	switch mt {
	case domain.MatchExact:
		return text == p
	case domain.MatchContains:
		return strings.Contains(text, p)
	case domain.MatchWordBoundary:
		return normalize.ContainsWord(text, p, normalize.IsWordRune)
	default:
		return false
	}
}

func (m *Matcher) compile(pattern string) *regexp.Regexp {
	if v, ok := m.regexps.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, _ := regexp.Compile("(?i)" + pattern)
	v, _ := m.regexps.LoadOrStore(pattern, re)
	return v.(*regexp.Regexp)
}

// CompiledPatterns returns the number of memoized regex patterns.
func (m *Matcher) CompiledPatterns() int {
	n := 0
	m.regexps.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func fold(s string) string {
	return normalize.FoldDiacritics(strings.ToLower(s))
}
