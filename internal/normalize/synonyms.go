package normalize

import (
	"strings"
	"unicode/utf8"
)

const (
	// InjectionSeparator precedes the appended canonical terms.
	InjectionSeparator = " | "
	termSeparator      = ", "

	shortTermRunes = 3
)

type synonymEntry struct {
	term      string
	folded    string
	canonical string
	bounded   bool
}

var (
	synonymEntries []synonymEntry
	canonicalTerms = make(map[string]bool)
)

func init() {
	synonymEntries = make([]synonymEntry, 0, len(Synonyms))
	for _, s := range Synonyms {
		term := strings.ToLower(s.Term)
		synonymEntries = append(synonymEntries, synonymEntry{
			term:      term,
			folded:    FoldDiacritics(term),
			canonical: s.Canonical,
			bounded:   utf8.RuneCountInString(term) <= shortTermRunes,
		})
		canonicalTerms[s.Canonical] = true
	}
}

// InjectSynonyms appends the canonical term of every synonym found in s.
// Terms injected by an earlier pass are recognized and never repeated.
func InjectSynonyms(s string) string {
	body, found := splitInjected(s)
	seen := make(map[string]bool, len(found))
	for _, term := range found {
		seen[term] = true
	}

	lower := strings.ToLower(body)
	folded := FoldDiacritics(lower)
	for _, e := range synonymEntries {
		if seen[e.canonical] {
			continue
		}
		if containsTerm(lower, e.term, e.bounded) || containsTerm(folded, e.folded, e.bounded) {
			seen[e.canonical] = true
			found = append(found, e.canonical)
		}
	}

	if len(found) == 0 {
		return body
	}
	return strings.TrimRight(body, " ") + InjectionSeparator + strings.Join(found, termSeparator)
}

func containsTerm(text, term string, bounded bool) bool {
	if bounded {
		return ContainsWord(text, term, isSynonymJoiner)
	}
	return strings.Contains(text, term)
}

// splitInjected separates a previously appended term list from the text.
// The tail only counts as injected when every entry is a canonical term.
func splitInjected(s string) (string, []string) {
	idx := strings.LastIndex(s, InjectionSeparator)
	if idx < 0 {
		return s, nil
	}
	tail := strings.TrimSpace(s[idx+len(InjectionSeparator):])
	terms := strings.Split(tail, termSeparator)
	for i, t := range terms {
		terms[i] = strings.TrimSpace(t)
		if !canonicalTerms[terms[i]] {
			return s, nil
		}
	}
	return s[:idx], terms
}

// InjectedTerms returns the canonical terms appended to a normalized text.
func InjectedTerms(normalized string) []string {
	_, terms := splitInjected(normalized)
	return terms
}
