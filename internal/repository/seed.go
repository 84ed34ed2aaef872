package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/halalscan/internal/domain"
)

// seedFile is the YAML layout of a rule seed:
//
//	rules:
//	  - id: pork-fat
//	    pattern: pork fat
//	    match_type: contains
//	    priority: 95
//	    ruling: haram
//	    confidence: 0.99
//	    explanation: Animal fat from swine.
type seedFile struct {
	Rules []seedRule `yaml:"rules"`
}

type seedRule struct {
	domain.RulingRule `yaml:",inline"`

	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

// LoadSeedFile reads rules from a YAML seed file.
func LoadSeedFile(path string) ([]domain.RulingRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML seed content.
func ParseSeed(data []byte) ([]domain.RulingRule, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	rules := make([]domain.RulingRule, 0, len(f.Rules))
	for i, sr := range f.Rules {
		rule := sr.RulingRule
		if rule.ID == "" {
			return nil, fmt.Errorf("%w: seed rule %d has no id", ErrInvalidInput, i)
		}
		rule.IsActive = sr.Active == nil || *sr.Active
		rules = append(rules, rule)
	}
	return rules, nil
}

// Seed validates rules as a set and upserts them into store. Nothing is
// written when any rule is rejected.
func Seed(ctx context.Context, store domain.RuleStore, rules []domain.RulingRule) (int, error) {
	if _, issues := domain.ValidateRuleSet(rules); len(issues) > 0 {
		errs := make([]error, len(issues))
		for i, issue := range issues {
			errs[i] = issue
		}
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
	}

	for i := range rules {
		if err := store.SaveRule(ctx, &rules[i]); err != nil {
			return i, fmt.Errorf("failed to seed rule %s: %w", rules[i].ID, err)
		}
	}
	return len(rules), nil
}
