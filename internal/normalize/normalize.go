// Package normalize turns raw ingredient text into a matching-ready string.
//
// The pipeline repairs scan noise, canonicalizes additive codes and
// abbreviations, and appends canonical terms for recognized multilingual
// synonyms. The original text is kept intact ahead of the appended terms.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Step is a single normalization stage.
type Step func(string) string

// Normalizer applies an ordered pipeline of steps.
type Normalizer struct {
	steps []Step
}

// NewNormalizer creates a normalizer with the default pipeline.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		steps: []Step{
			CanonicalizeQuotes,
			RepairOCR,
			CanonicalizeECodes,
			NormalizePunctuation,
			ExpandAbbreviations,
			InjectSynonyms,
		},
	}
}

// NewNormalizerWithSteps creates a normalizer with a custom pipeline.
func NewNormalizerWithSteps(steps ...Step) *Normalizer {
	return &Normalizer{steps: steps}
}

// Normalize applies all configured steps in order.
func (n *Normalizer) Normalize(s string) string {
	for _, step := range n.steps {
		s = step(s)
	}
	return s
}

var defaultNormalizer = NewNormalizer()

// Normalize runs the default pipeline.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

var quoteReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(QuoteVariants)*2)
	for _, q := range QuoteVariants {
		pairs = append(pairs, q, "'")
	}
	return strings.NewReplacer(pairs...)
}()

// CanonicalizeQuotes maps typographic apostrophes to '.
func CanonicalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// RepairOCR applies the OCR table. Repaired tokens keep the case of the
// scanned token: "GÉ1ATINE" becomes "GÉLATINE", "Ge1atine" "Gelatine".
func RepairOCR(s string) string {
	for _, r := range OCRRules {
		s = replacePreservingCase(s, r)
	}
	return s
}

// replacePreservingCase expands r like ReplaceAllString, then recases the
// part after the left bound to follow the matched token.
func replacePreservingCase(s string, r Replacement) string {
	matches := r.Pattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		bound := s[m[2]:m[3]]
		expanded := string(r.Pattern.ExpandString(nil, r.Replace, s, m))
		b.WriteString(bound)
		b.WriteString(matchCase(s[m[3]:m[1]], strings.TrimPrefix(expanded, bound)))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// matchCase returns repl upper-cased when every letter of token is upper
// case, with a capital first letter when only token's first letter is, and
// lower-cased otherwise.
func matchCase(token, repl string) string {
	upper, letters := 0, 0
	first := true
	firstUpper := false
	for _, c := range token {
		if !unicode.IsLetter(c) {
			continue
		}
		letters++
		if unicode.IsUpper(c) {
			upper++
			if first {
				firstUpper = true
			}
		}
		first = false
	}

	switch {
	case letters > 1 && upper == letters:
		return strings.ToUpper(repl)
	case firstUpper:
		c, size := utf8.DecodeRuneInString(repl)
		return string(unicode.ToUpper(c)) + strings.ToLower(repl[size:])
	default:
		return strings.ToLower(repl)
	}
}

// NormalizePunctuation applies the hyphen artifact table.
func NormalizePunctuation(s string) string {
	return applyAll(s, PunctuationRules)
}

// ExpandAbbreviations applies the abbreviation table.
func ExpandAbbreviations(s string) string {
	return applyAll(s, AbbreviationRules)
}

func applyAll(s string, rules []Replacement) string {
	for _, r := range rules {
		s = r.Pattern.ReplaceAllString(s, r.Replace)
	}
	return s
}

var (
	// eCodePattern: E, optional separator, 3-4 digits, optional letter suffix.
	eCodePattern = regexp.MustCompile(`(?i)` + leftBound + `e(?:[.\-]\s?|\s)?(\d{3,4})([a-z]?)`)

	// eCodeSeparated only matches codes still carrying a separator, so
	// canonical "e471" is not reported again.
	eCodeSeparated = regexp.MustCompile(`(?i)` + leftBound + `e(?:[.\-]\s?|\s)\d{3,4}`)

	digitInsideWord = regexp.MustCompile(`\pL\pL\d+\pL|\pL\d+\pL\pL`)
)

// CanonicalizeECodes rewrites additive codes ("E 471", "E.300", "E-160a")
// to "e471", "e300", "e160a".
func CanonicalizeECodes(s string) string {
	matches := eCodePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if end < len(s) {
			if r, _ := utf8.DecodeRuneInString(s[end:]); IsWordRune(r) {
				continue
			}
		}
		b.WriteString(s[last:start])
		b.WriteString(s[m[2]:m[3]])
		b.WriteByte('e')
		b.WriteString(s[m[4]:m[5]])
		b.WriteString(strings.ToLower(s[m[6]:m[7]]))
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// NeedsNormalization is a cheap pre-check callers use to skip Normalize on
// text that is already clean.
func NeedsNormalization(s string) bool {
	if eCodeSeparated.MatchString(s) || digitInsideWord.MatchString(s) {
		return true
	}
	for _, q := range QuoteVariants {
		if strings.Contains(s, q) {
			return true
		}
	}
	for _, rules := range [][]Replacement{AbbreviationRules, PunctuationRules} {
		for _, r := range rules {
			if r.Pattern.MatchString(s) {
				return true
			}
		}
	}
	for _, r := range s {
		if r >= utf8.RuneSelf && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
