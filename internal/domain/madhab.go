package domain

import (
	"fmt"
	"strings"
)

// Madhab is a school of jurisprudence, or the neutral general default.
type Madhab string

const (
	MadhabGeneral Madhab = "general"
	MadhabHanafi  Madhab = "hanafi"
	MadhabShafii  Madhab = "shafii"
	MadhabMaliki  Madhab = "maliki"
	MadhabHanbali Madhab = "hanbali"
)

// Madhabs lists every accepted value, general first.
var Madhabs = []Madhab{MadhabGeneral, MadhabHanafi, MadhabShafii, MadhabMaliki, MadhabHanbali}

// ParseMadhab accepts case-insensitive names. Empty input means general.
func ParseMadhab(s string) (Madhab, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "general", "default":
		return MadhabGeneral, nil
	case "hanafi":
		return MadhabHanafi, nil
	case "shafii", "shafi'i", "shafi":
		return MadhabShafii, nil
	case "maliki":
		return MadhabMaliki, nil
	case "hanbali":
		return MadhabHanbali, nil
	}
	return "", fmt.Errorf("unknown madhab: %q", s)
}

// ResolveForMadhab picks the school-specific ruling of rule, falling back to
// the default when the school has no opinion.
func ResolveForMadhab(rule *RulingRule, m Madhab) Ruling {
	var school *Ruling
	switch m {
	case MadhabHanafi:
		school = rule.RulingHanafi
	case MadhabShafii:
		school = rule.RulingShafii
	case MadhabMaliki:
		school = rule.RulingMaliki
	case MadhabHanbali:
		school = rule.RulingHanbali
	case MadhabGeneral:
		return rule.RulingDefault
	default:
		return rule.RulingDefault
	}
	if school == nil {
		return rule.RulingDefault
	}
	return *school
}
