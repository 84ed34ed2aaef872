package domain

// Verdict is the per-ingredient outcome returned to scan pipelines.
type Verdict struct {
	Text       string        `json:"text"`
	Normalized string        `json:"normalized"`
	Madhab     Madhab        `json:"madhab"`
	Ruling     Ruling        `json:"ruling"`
	Confidence float64       `json:"confidence"`
	Matches    []MatchResult `json:"matches"`
}
