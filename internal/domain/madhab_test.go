package domain

import "testing"

func TestResolveForMadhab(t *testing.T) {
	rule := &RulingRule{
		CompoundPattern: "crevette",
		RulingDefault:   RulingHalal,
		RulingHanafi:    RulingPtr(RulingDoubtful),
	}

	tests := []struct {
		madhab Madhab
		want   Ruling
	}{
		{MadhabGeneral, RulingHalal},
		{MadhabHanafi, RulingDoubtful},
		{MadhabShafii, RulingHalal},
		{MadhabMaliki, RulingHalal},
		{MadhabHanbali, RulingHalal},
		{Madhab("zahiri"), RulingHalal},
	}

	for _, tt := range tests {
		if got := ResolveForMadhab(rule, tt.madhab); got != tt.want {
			t.Errorf("ResolveForMadhab(%s) = %s, want %s", tt.madhab, got, tt.want)
		}
	}
}

func TestResolveForMadhabEverySchool(t *testing.T) {
	rule := &RulingRule{
		RulingDefault: RulingDoubtful,
		RulingHanafi:  RulingPtr(RulingHaram),
		RulingShafii:  RulingPtr(RulingHalal),
		RulingMaliki:  RulingPtr(RulingHalal),
		RulingHanbali: RulingPtr(RulingHaram),
	}

	want := map[Madhab]Ruling{
		MadhabGeneral: RulingDoubtful,
		MadhabHanafi:  RulingHaram,
		MadhabShafii:  RulingHalal,
		MadhabMaliki:  RulingHalal,
		MadhabHanbali: RulingHaram,
	}
	for _, m := range Madhabs {
		if got := rule.ForMadhab(m); got != want[m] {
			t.Errorf("ForMadhab(%s) = %s, want %s", m, got, want[m])
		}
	}
}

func TestParseMadhab(t *testing.T) {
	tests := []struct {
		input   string
		want    Madhab
		wantErr bool
	}{
		{"", MadhabGeneral, false},
		{"general", MadhabGeneral, false},
		{"Hanafi", MadhabHanafi, false},
		{"shafi'i", MadhabShafii, false},
		{" MALIKI ", MadhabMaliki, false},
		{"hanbali", MadhabHanbali, false},
		{"jafari", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMadhab(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMadhab(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMadhab(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
