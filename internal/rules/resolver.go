// Package rules resolves ingredient text against the ruling table.
package rules

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/opensource-finance/halalscan/internal/domain"
	"github.com/opensource-finance/halalscan/internal/match"
	"github.com/opensource-finance/halalscan/internal/normalize"
)

// RuleSource supplies the current active rule snapshot. The returned slice
// must be treated as read-only.
type RuleSource interface {
	Get(ctx context.Context) ([]domain.RulingRule, error)
}

// Resolver runs every active rule against normalized text and applies
// priority-based override suppression.
type Resolver struct {
	source     RuleSource
	matcher    *match.Matcher
	normalizer *normalize.Normalizer
	maxWorkers int
}

// NewResolver creates a resolver reading rules from source.
func NewResolver(source RuleSource, maxWorkers int) *Resolver {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Resolver{
		source:     source,
		matcher:    match.NewMatcher(),
		normalizer: normalize.NewNormalizer(),
		maxWorkers: maxWorkers,
	}
}

// Resolution is the outcome for one ingredient: the normalized text the
// rules ran against and the surviving matches.
type Resolution struct {
	Normalized string
	Matches    []domain.MatchResult
}

// Resolve returns the surviving matches for text, highest priority first,
// with rulings selected for madhab. Empty text yields an empty list.
func (r *Resolver) Resolve(ctx context.Context, text string, madhab domain.Madhab) ([]domain.MatchResult, error) {
	res, err := r.ResolveText(ctx, text, madhab)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// ResolveText is Resolve that also returns the normalized text.
func (r *Resolver) ResolveText(ctx context.Context, text string, madhab domain.Madhab) (Resolution, error) {
	if strings.TrimSpace(text) == "" {
		return Resolution{Normalized: text, Matches: []domain.MatchResult{}}, nil
	}

	rules, err := r.source.Get(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load rules: %w", err)
	}

	return r.resolveWith(rules, text, madhab), nil
}

// ResolveBatch resolves each ingredient against a single rule snapshot.
// Results are returned in input order.
func (r *Resolver) ResolveBatch(ctx context.Context, texts []string, madhab domain.Madhab) ([][]domain.MatchResult, error) {
	resolutions, err := r.ResolveTextBatch(ctx, texts, madhab)
	if err != nil {
		return nil, err
	}
	results := make([][]domain.MatchResult, len(resolutions))
	for i, res := range resolutions {
		results[i] = res.Matches
	}
	return results, nil
}

// ResolveTextBatch is ResolveBatch that also returns each normalized text.
func (r *Resolver) ResolveTextBatch(ctx context.Context, texts []string, madhab domain.Madhab) ([]Resolution, error) {
	results := make([]Resolution, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	rules, err := r.source.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxWorkers)

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = r.resolveWith(rules, t, madhab)
		}(i, text)
	}

	wg.Wait()

	return results, nil
}

// Normalizer exposes the pipeline used before matching.
func (r *Resolver) Normalizer() *normalize.Normalizer {
	return r.normalizer
}

func (r *Resolver) resolveWith(rules []domain.RulingRule, text string, madhab domain.Madhab) Resolution {
	if strings.TrimSpace(text) == "" {
		return Resolution{Normalized: text, Matches: []domain.MatchResult{}}
	}
	display := r.normalizer.Normalize(text)
	normalized := strings.ToLower(display)

	direct := make([]*domain.RulingRule, 0, 8)
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		if r.matcher.Test(normalized, rule.CompoundPattern, rule.MatchType) {
			direct = append(direct, rule)
		}
	}

	// Highest priority declared against each overridden keyword.
	overrides := make(map[string]int)
	for _, rule := range direct {
		key := rule.OverrideKey()
		if key == "" {
			continue
		}
		if p, ok := overrides[key]; !ok || rule.Priority > p {
			overrides[key] = rule.Priority
		}
	}

	slices.SortFunc(direct, compareRules)

	results := make([]domain.MatchResult, 0, len(direct))
	emitted := make(map[string]bool, len(direct))
	for _, rule := range direct {
		key := rule.PatternKey()
		if emitted[key] {
			continue
		}
		if p, ok := overrides[key]; ok && p > rule.Priority {
			continue
		}
		emitted[key] = true
		results = append(results, domain.MatchResult{
			RuleID:      rule.ID,
			Pattern:     rule.CompoundPattern,
			Ruling:      rule.ForMadhab(madhab),
			Priority:    rule.Priority,
			Confidence:  rule.Confidence,
			Explanation: rule.Explanation,
		})
	}
	return Resolution{Normalized: display, Matches: results}
}

// compareRules orders by priority desc, then confidence desc, pattern asc
// and ID asc so equal-priority output is stable across loads.
func compareRules(a, b *domain.RulingRule) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PatternKey(), b.PatternKey()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
