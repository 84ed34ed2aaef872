package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRule   = errors.New("invalid rule")
	ErrSelfOverride  = errors.New("rule overrides its own pattern")
	ErrOverrideCycle = errors.New("rule takes part in an override cycle")
)

// RuleIssue reports why a rule was rejected from a rule set.
type RuleIssue struct {
	RuleID  string
	Pattern string
	Err     error
}

func (i RuleIssue) Error() string {
	return fmt.Sprintf("rule %s (%q): %v", i.RuleID, i.Pattern, i.Err)
}

func (i RuleIssue) Unwrap() error {
	return i.Err
}

// Validate checks the fields of a single rule.
func (r *RulingRule) Validate() error {
	if strings.TrimSpace(r.CompoundPattern) == "" {
		return fmt.Errorf("%w: pattern is required", ErrInvalidRule)
	}
	if !r.MatchType.Valid() {
		return fmt.Errorf("%w: unknown match type %q", ErrInvalidRule, r.MatchType)
	}
	if !r.RulingDefault.Valid() {
		return fmt.Errorf("%w: unknown default ruling %q", ErrInvalidRule, r.RulingDefault)
	}
	schools := []struct {
		name   string
		ruling *Ruling
	}{
		{"hanafi", r.RulingHanafi},
		{"shafii", r.RulingShafii},
		{"maliki", r.RulingMaliki},
		{"hanbali", r.RulingHanbali},
	}
	for _, s := range schools {
		if s.ruling != nil && !s.ruling.Valid() {
			return fmt.Errorf("%w: unknown %s ruling %q", ErrInvalidRule, s.name, *s.ruling)
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.2f outside [0,1]", ErrInvalidRule, r.Confidence)
	}
	if ok := r.OverrideKey(); ok != "" && ok == r.PatternKey() {
		return ErrSelfOverride
	}
	return nil
}

// ValidateRuleSet validates each active rule and rejects rules whose
// override keywords form a cycle through other rules' patterns. It returns
// the rules that passed, in input order, and one issue per rejected rule.
// Inactive rules are passed through untouched.
func ValidateRuleSet(rules []RulingRule) ([]RulingRule, []RuleIssue) {
	var issues []RuleIssue
	rejected := make(map[int]bool)

	for i := range rules {
		if !rules[i].IsActive {
			continue
		}
		if err := rules[i].Validate(); err != nil {
			rejected[i] = true
			issues = append(issues, RuleIssue{RuleID: rules[i].ID, Pattern: rules[i].CompoundPattern, Err: err})
		}
	}

	// Edges run from a rule's pattern to the pattern it overrides.
	edges := make(map[string][]string)
	for i := range rules {
		if !rules[i].IsActive || rejected[i] {
			continue
		}
		if ok := rules[i].OverrideKey(); ok != "" {
			pk := rules[i].PatternKey()
			edges[pk] = append(edges[pk], ok)
		}
	}

	cyclic := cyclicPatterns(edges)
	for i := range rules {
		if !rules[i].IsActive || rejected[i] {
			continue
		}
		pk, ok := rules[i].PatternKey(), rules[i].OverrideKey()
		if ok == "" {
			continue
		}
		cp, inCycle := cyclic[pk]
		co, targetInCycle := cyclic[ok]
		if inCycle && targetInCycle && cp == co {
			rejected[i] = true
			issues = append(issues, RuleIssue{RuleID: rules[i].ID, Pattern: rules[i].CompoundPattern, Err: ErrOverrideCycle})
		}
	}

	valid := make([]RulingRule, 0, len(rules)-len(rejected))
	for i := range rules {
		if !rejected[i] {
			valid = append(valid, rules[i])
		}
	}
	return valid, issues
}

// cyclicPatterns returns, for every pattern lying on a cycle, the id of its
// strongly connected component (Tarjan).
func cyclicPatterns(edges map[string][]string) map[string]int {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	result := make(map[string]int)
	component := 0

	var connect func(v string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var members []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			members = append(members, w)
			if w == v {
				break
			}
		}
		if len(members) > 1 {
			for _, m := range members {
				result[m] = component
			}
			component++
		}
	}

	for v := range edges {
		if _, seen := indices[v]; !seen {
			connect(v)
		}
	}
	return result
}
