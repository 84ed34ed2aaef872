package domain

import (
	"strings"
	"time"
)

// Ruling is a dietary verdict for a single matched rule.
type Ruling string

const (
	RulingHalal    Ruling = "halal"
	RulingHaram    Ruling = "haram"
	RulingDoubtful Ruling = "doubtful"

	// RulingUnknown is only produced at the verdict level when no rule matched.
	RulingUnknown Ruling = "unknown"
)

// Valid reports whether r is one of the three rule-level rulings.
func (r Ruling) Valid() bool {
	switch r {
	case RulingHalal, RulingHaram, RulingDoubtful:
		return true
	}
	return false
}

// MatchType selects how a rule pattern is compared against ingredient text.
type MatchType string

const (
	MatchExact        MatchType = "exact"
	MatchContains     MatchType = "contains"
	MatchWordBoundary MatchType = "word_boundary"
	MatchRegex        MatchType = "regex"
)

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool {
	switch m {
	case MatchExact, MatchContains, MatchWordBoundary, MatchRegex:
		return true
	}
	return false
}

// RulingRule is one row of the ruling table.
type RulingRule struct {
	ID              string    `json:"id" yaml:"id"`
	CompoundPattern string    `json:"compoundPattern" yaml:"pattern"`
	MatchType       MatchType `json:"matchType" yaml:"match_type"`

	// Priority decides override resolution; higher wins.
	Priority int `json:"priority" yaml:"priority"`

	RulingDefault Ruling  `json:"rulingDefault" yaml:"ruling"`
	RulingHanafi  *Ruling `json:"rulingHanafi,omitempty" yaml:"hanafi,omitempty"`
	RulingShafii  *Ruling `json:"rulingShafii,omitempty" yaml:"shafii,omitempty"`
	RulingMaliki  *Ruling `json:"rulingMaliki,omitempty" yaml:"maliki,omitempty"`
	RulingHanbali *Ruling `json:"rulingHanbali,omitempty" yaml:"hanbali,omitempty"`

	Confidence  float64 `json:"confidence" yaml:"confidence"`
	Explanation string  `json:"explanation" yaml:"explanation"`

	// OverridesKeyword is the pattern this rule suppresses when both match
	// and this rule has the higher priority. Empty means none.
	OverridesKeyword string `json:"overridesKeyword,omitempty" yaml:"overrides,omitempty"`

	IsActive bool `json:"isActive" yaml:"-"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// PatternKey is the dedup and override key for the rule's own pattern.
func (r *RulingRule) PatternKey() string {
	return strings.ToLower(r.CompoundPattern)
}

// OverrideKey is the lowercased keyword this rule suppresses, or "".
func (r *RulingRule) OverrideKey() string {
	return strings.ToLower(strings.TrimSpace(r.OverridesKeyword))
}

// ForMadhab returns the ruling this rule carries for the given school.
func (r *RulingRule) ForMadhab(m Madhab) Ruling {
	return ResolveForMadhab(r, m)
}

// MatchResult is one surviving rule in a resolution.
type MatchResult struct {
	RuleID      string  `json:"ruleId,omitempty"`
	Pattern     string  `json:"pattern"`
	Ruling      Ruling  `json:"ruling"`
	Priority    int     `json:"priority"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// RulesChangedEvent is published on TopicRulesChanged after a rule write.
type RulesChangedEvent struct {
	RuleID string `json:"ruleId,omitempty"`
	Action string `json:"action"` // "create", "update", "deactivate", "reload"
}

// Rule change actions.
const (
	RuleActionCreate     = "create"
	RuleActionUpdate     = "update"
	RuleActionDeactivate = "deactivate"
	RuleActionReload     = "reload"
)

// RulingPtr is a helper for building school-specific rulings.
func RulingPtr(r Ruling) *Ruling {
	return &r
}
