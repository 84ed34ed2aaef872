package normalize

import "testing"

func TestFoldDiacritics(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"gélatine", "gelatine"},
		{"présure", "presure"},
		{"arôme naturel", "arome naturel"},
		{"Émulsifiant", "Emulsifiant"},
		{"mono- et diglycérides", "mono- et diglycerides"},
		{"Weißwein", "Weißwein"},
		{"خنزير", "خنزير"},
		{"", ""},
		{"plain ascii", "plain ascii"},
	}
	for _, tt := range tests {
		if got := FoldDiacritics(tt.input); got != tt.want {
			t.Errorf("FoldDiacritics(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		text, word string
		want       bool
	}{
		{"vinaigre", "vin", false},
		{"vinaigre de vin", "vin", true},
		{"vin rouge", "vin", true},
		{"(vin)", "vin", true},
		{"vin2", "vin", false},
		{"bovin", "vin", false},
		{"vinvin vin", "vin", true},
		{"é vin", "vin", true},
		{"évin", "vin", false},
		{"vin", "", false},
		{"vi", "vin", false},
	}
	for _, tt := range tests {
		if got := ContainsWord(tt.text, tt.word, IsWordRune); got != tt.want {
			t.Errorf("ContainsWord(%q, %q) = %v, want %v", tt.text, tt.word, got, tt.want)
		}
	}
}
