package rules

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opensource-finance/halalscan/internal/domain"
	"github.com/opensource-finance/halalscan/internal/normalize"
)

type staticSource struct {
	rules []domain.RulingRule
	err   error
}

func (s *staticSource) Get(ctx context.Context) ([]domain.RulingRule, error) {
	return s.rules, s.err
}

func testRule(id, pattern string, mt domain.MatchType, priority int, ruling domain.Ruling) domain.RulingRule {
	return domain.RulingRule{
		ID:              id,
		CompoundPattern: pattern,
		MatchType:       mt,
		Priority:        priority,
		RulingDefault:   ruling,
		Confidence:      0.9,
		Explanation:     pattern + " rule",
		IsActive:        true,
	}
}

func patterns(results []domain.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Pattern
	}
	return out
}

func contains(results []domain.MatchResult, pattern string) bool {
	for _, r := range results {
		if r.Pattern == pattern {
			return true
		}
	}
	return false
}

func TestResolveCompoundOverridesKeyword(t *testing.T) {
	vin := testRule("r-vin", "vin", domain.MatchWordBoundary, 30, domain.RulingHaram)
	vinegar := testRule("r-vinegar", "vinaigre de vin", domain.MatchContains, 110, domain.RulingHalal)
	vinegar.RulingHanbali = domain.RulingPtr(domain.RulingDoubtful)
	vinegar.OverridesKeyword = "vin"

	r := NewResolver(&staticSource{rules: []domain.RulingRule{vin, vinegar}}, 4)

	results, err := r.Resolve(context.Background(), "vinaigre de vin, sel", domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !contains(results, "vinaigre de vin") {
		t.Errorf("expected compound rule, got %v", patterns(results))
	}
	if contains(results, "vin") {
		t.Errorf("keyword vin must be suppressed, got %v", patterns(results))
	}

	results, _ = r.Resolve(context.Background(), "vinaigre de vin", domain.MadhabHanbali)
	if len(results) != 1 || results[0].Ruling != domain.RulingDoubtful {
		t.Errorf("expected hanbali doubtful for compound rule, got %+v", results)
	}

	// Without the compound, the standalone keyword still matches.
	results, _ = r.Resolve(context.Background(), "vin rouge", domain.MadhabGeneral)
	if len(results) != 1 || results[0].Pattern != "vin" || results[0].Ruling != domain.RulingHaram {
		t.Errorf("expected vin haram, got %+v", results)
	}
}

func TestResolveGelatinOverride(t *testing.T) {
	generic := testRule("r-gel", "gélatine", domain.MatchContains, 25, domain.RulingDoubtful)
	porcine := testRule("r-gel-porc", "gélatine porcine", domain.MatchContains, 90, domain.RulingHaram)
	porcine.OverridesKeyword = "Gélatine"

	r := NewResolver(&staticSource{rules: []domain.RulingRule{generic, porcine}}, 4)

	results, err := r.Resolve(context.Background(), "gélatine porcine", domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(results) != 1 || results[0].Pattern != "gélatine porcine" {
		t.Fatalf("expected only the porcine rule, got %v", patterns(results))
	}
	if results[0].Ruling != domain.RulingHaram {
		t.Errorf("expected haram, got %s", results[0].Ruling)
	}

	// Unaccented label text still reaches both rules and the override holds.
	results, _ = r.Resolve(context.Background(), "gelatine porcine", domain.MadhabGeneral)
	if len(results) != 1 || results[0].RuleID != "r-gel-porc" {
		t.Errorf("expected override on unaccented text, got %v", patterns(results))
	}
}

func TestResolveOverrideNeverInvents(t *testing.T) {
	compound := testRule("r-wv", "wine vinegar", domain.MatchContains, 100, domain.RulingHalal)
	compound.OverridesKeyword = "wine"

	r := NewResolver(&staticSource{rules: []domain.RulingRule{compound}}, 4)

	results, _ := r.Resolve(context.Background(), "sugar, salt", domain.MadhabGeneral)
	if len(results) != 0 {
		t.Errorf("expected no matches, got %v", patterns(results))
	}

	results, _ = r.Resolve(context.Background(), "wine vinegar", domain.MadhabGeneral)
	if len(results) != 1 || contains(results, "wine") {
		t.Errorf("expected only the compound rule, got %v", patterns(results))
	}
}

func TestResolveOverrideRequiresHigherPriority(t *testing.T) {
	keyword := testRule("r-alc", "alcohol", domain.MatchWordBoundary, 50, domain.RulingHaram)
	compound := testRule("r-sugar-alc", "sugar alcohol", domain.MatchContains, 50, domain.RulingHalal)
	compound.OverridesKeyword = "alcohol"

	r := NewResolver(&staticSource{rules: []domain.RulingRule{keyword, compound}}, 4)

	results, _ := r.Resolve(context.Background(), "sugar alcohol", domain.MadhabGeneral)
	if len(results) != 2 {
		t.Errorf("equal priority must not suppress, got %v", patterns(results))
	}
}

func TestResolveInactiveRules(t *testing.T) {
	active := testRule("r-lard", "lard", domain.MatchWordBoundary, 80, domain.RulingHaram)
	inactive := testRule("r-pork", "pork", domain.MatchContains, 90, domain.RulingHaram)
	inactive.IsActive = false

	r := NewResolver(&staticSource{rules: []domain.RulingRule{active, inactive}}, 4)

	results, _ := r.Resolve(context.Background(), "pork, lard", domain.MadhabGeneral)
	if contains(results, "pork") {
		t.Errorf("inactive rule must never match, got %v", patterns(results))
	}
	if !contains(results, "lard") {
		t.Errorf("expected active rule, got %v", patterns(results))
	}
}

func TestResolveOrderingAndDedup(t *testing.T) {
	low := testRule("r-1", "salt", domain.MatchContains, 10, domain.RulingHalal)
	highA := testRule("r-3", "pork", domain.MatchContains, 90, domain.RulingHaram)
	highA.Confidence = 0.7
	highB := testRule("r-2", "lard", domain.MatchContains, 90, domain.RulingHaram)
	highB.Confidence = 0.95
	dup := testRule("r-4", "PORK", domain.MatchWordBoundary, 60, domain.RulingDoubtful)

	r := NewResolver(&staticSource{rules: []domain.RulingRule{low, highA, highB, dup}}, 4)

	results, _ := r.Resolve(context.Background(), "pork, lard, salt", domain.MadhabGeneral)
	got := patterns(results)
	want := []string{"lard", "pork", "salt"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if results[1].RuleID != "r-3" {
		t.Errorf("expected the higher priority row for pork, got %s", results[1].RuleID)
	}
}

func TestResolveTieBreakIsStable(t *testing.T) {
	a := testRule("r-b", "beef", domain.MatchContains, 40, domain.RulingDoubtful)
	b := testRule("r-a", "beef", domain.MatchContains, 40, domain.RulingHalal)

	r1 := NewResolver(&staticSource{rules: []domain.RulingRule{a, b}}, 1)
	r2 := NewResolver(&staticSource{rules: []domain.RulingRule{b, a}}, 1)

	res1, _ := r1.Resolve(context.Background(), "beef", domain.MadhabGeneral)
	res2, _ := r2.Resolve(context.Background(), "beef", domain.MadhabGeneral)
	if len(res1) != 1 || len(res2) != 1 {
		t.Fatalf("expected one match each, got %d and %d", len(res1), len(res2))
	}
	if res1[0].RuleID != "r-a" || res2[0].RuleID != "r-a" {
		t.Errorf("expected rule ID ascending tie-break, got %s and %s", res1[0].RuleID, res2[0].RuleID)
	}
}

func TestResolveMadhab(t *testing.T) {
	shrimp := testRule("r-shrimp", "shrimp", domain.MatchWordBoundary, 40, domain.RulingHalal)
	shrimp.RulingHanafi = domain.RulingPtr(domain.RulingDoubtful)

	r := NewResolver(&staticSource{rules: []domain.RulingRule{shrimp}}, 4)

	tests := []struct {
		madhab domain.Madhab
		want   domain.Ruling
	}{
		{domain.MadhabGeneral, domain.RulingHalal},
		{domain.MadhabHanafi, domain.RulingDoubtful},
		{domain.MadhabShafii, domain.RulingHalal},
		{domain.MadhabMaliki, domain.RulingHalal},
		{domain.MadhabHanbali, domain.RulingHalal},
	}
	for _, tt := range tests {
		t.Run(string(tt.madhab), func(t *testing.T) {
			results, err := r.Resolve(context.Background(), "shrimp paste", tt.madhab)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if len(results) != 1 || results[0].Ruling != tt.want {
				t.Errorf("expected %s, got %+v", tt.want, results)
			}
		})
	}
}

func TestResolveUsesNormalization(t *testing.T) {
	fat := testRule("r-pork-fat", "pork fat", domain.MatchContains, 95, domain.RulingHaram)
	e471 := testRule("r-e471", "e471", domain.MatchWordBoundary, 40, domain.RulingDoubtful)

	r := NewResolver(&staticSource{rules: []domain.RulingRule{fat, e471}}, 4)

	results, _ := r.Resolve(context.Background(), "Schweinefett, Emulgator E 471", domain.MadhabGeneral)
	if !contains(results, "pork fat") || !contains(results, "e471") {
		t.Errorf("expected synonym and e-code matches, got %v", patterns(results))
	}
}

func TestResolveEmptyText(t *testing.T) {
	r := NewResolver(&staticSource{err: errors.New("must not be called")}, 4)

	results, err := r.Resolve(context.Background(), "  ", domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", results)
	}
}

func TestResolveSourceError(t *testing.T) {
	storeErr := errors.New("connection refused")
	r := NewResolver(&staticSource{err: storeErr}, 4)

	_, err := r.Resolve(context.Background(), "pork", domain.MadhabGeneral)
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}

	_, err = r.ResolveBatch(context.Background(), []string{"pork"}, domain.MadhabGeneral)
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error from batch, got %v", err)
	}
}

func TestResolveInvalidRegexDoesNotBlockOthers(t *testing.T) {
	bad := testRule("r-bad", "([", domain.MatchRegex, 99, domain.RulingHaram)
	good := testRule("r-good", "carmine", domain.MatchContains, 70, domain.RulingHaram)

	r := NewResolver(&staticSource{rules: []domain.RulingRule{bad, good}}, 4)

	results, err := r.Resolve(context.Background(), "carmine", domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(results) != 1 || results[0].RuleID != "r-good" {
		t.Errorf("expected only the valid rule, got %v", patterns(results))
	}
}

func TestResolveBatch(t *testing.T) {
	pork := testRule("r-pork", "pork", domain.MatchWordBoundary, 90, domain.RulingHaram)
	gel := testRule("r-gel", "gelatin", domain.MatchContains, 25, domain.RulingDoubtful)

	r := NewResolver(&staticSource{rules: []domain.RulingRule{pork, gel}}, 2)

	texts := []string{"pork", "sugar", "gélatine", "", "porc, gelatin"}
	results, err := r.ResolveBatch(context.Background(), texts, domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(results) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(results))
	}

	wantCounts := []int{1, 0, 1, 0, 2}
	for i, want := range wantCounts {
		if len(results[i]) != want {
			t.Errorf("text %q: expected %d matches, got %v", texts[i], want, patterns(results[i]))
		}
	}
	if results[0][0].RuleID != "r-pork" {
		t.Errorf("results must keep input order, got %+v", results[0])
	}
}

func TestResolveTextReturnsNormalized(t *testing.T) {
	pork := testRule("r-pork", "pork", domain.MatchWordBoundary, 90, domain.RulingHaram)
	r := NewResolver(&staticSource{rules: []domain.RulingRule{pork}}, 2)

	res, err := r.ResolveText(context.Background(), "Schinken, Salz", domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if want := normalize.Normalize("Schinken, Salz"); res.Normalized != want {
		t.Errorf("expected normalized %q, got %q", want, res.Normalized)
	}
	if len(res.Matches) != 1 || res.Matches[0].RuleID != "r-pork" {
		t.Errorf("expected pork match, got %+v", res.Matches)
	}

	res, err = r.ResolveText(context.Background(), "  ", domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("blank resolve failed: %v", err)
	}
	if res.Matches == nil || len(res.Matches) != 0 {
		t.Errorf("expected empty non-nil matches, got %#v", res.Matches)
	}
}

func TestResolveTextBatchNormalizesOnce(t *testing.T) {
	var calls atomic.Int64
	pork := testRule("r-pork", "pork", domain.MatchWordBoundary, 90, domain.RulingHaram)
	r := NewResolver(&staticSource{rules: []domain.RulingRule{pork}}, 2)
	r.normalizer = normalize.NewNormalizerWithSteps(func(s string) string {
		calls.Add(1)
		return strings.ToUpper(s)
	})

	texts := []string{"pork", "sugar", "pork fat"}
	results, err := r.ResolveTextBatch(context.Background(), texts, domain.MadhabGeneral)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if got := calls.Load(); got != int64(len(texts)) {
		t.Errorf("expected %d normalizations, got %d", len(texts), got)
	}
	for i, text := range texts {
		if want := strings.ToUpper(text); results[i].Normalized != want {
			t.Errorf("text %d: expected normalized %q, got %q", i, want, results[i].Normalized)
		}
	}
	if len(results[0].Matches) != 1 || len(results[1].Matches) != 0 {
		t.Errorf("unexpected matches: %+v", results)
	}
}

func BenchmarkResolve(b *testing.B) {
	rules := []domain.RulingRule{
		testRule("r-1", "vin", domain.MatchWordBoundary, 30, domain.RulingHaram),
		testRule("r-2", "vinaigre de vin", domain.MatchContains, 110, domain.RulingHalal),
		testRule("r-3", "gélatine", domain.MatchContains, 25, domain.RulingDoubtful),
		testRule("r-4", `e12[0-9]`, domain.MatchRegex, 60, domain.RulingHaram),
		testRule("r-5", "pork fat", domain.MatchContains, 95, domain.RulingHaram),
	}
	rules[1].OverridesKeyword = "vin"
	r := NewResolver(&staticSource{rules: rules}, 4)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Resolve(ctx, "Schweinefett, vinaigre de vin, gé1atine, E 120", domain.MadhabGeneral)
	}
}
