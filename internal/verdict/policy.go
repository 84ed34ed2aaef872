// Package verdict folds an ordered match list into one ingredient ruling
// using a CEL expression.
package verdict

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/halalscan/internal/domain"
)

const (
	// DefaultExpression reports the most restrictive ruling among matches.
	DefaultExpression = `haram > 0 ? "haram" : doubtful > 0 ? "doubtful" : halal > 0 ? "halal" : "unknown"`

	// TopPriorityExpression reports the ruling of the highest-priority match.
	TopPriorityExpression = `top`
)

// Policy is a compiled verdict expression. Safe for concurrent use.
type Policy struct {
	expression string
	program    cel.Program
}

// NewPolicy compiles expression. An empty expression selects
// DefaultExpression. The expression must evaluate to a string.
func NewPolicy(expression string) (*Policy, error) {
	if strings.TrimSpace(expression) == "" {
		expression = DefaultExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("top", cel.StringType),
		cel.Variable("rulings", cel.ListType(cel.StringType)),
		cel.Variable("haram", cel.IntType),
		cel.Variable("doubtful", cel.IntType),
		cel.Variable("halal", cel.IntType),
		cel.Variable("max_confidence", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile verdict policy: %w", issues.Err())
	}
	if ast.OutputType() != cel.StringType {
		return nil, fmt.Errorf("verdict policy must return string, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for verdict policy: %w", err)
	}

	return &Policy{expression: expression, program: program}, nil
}

// Expression returns the source of the compiled policy.
func (p *Policy) Expression() string {
	return p.expression
}

// Decide returns the ruling for matches and its confidence. Evaluation
// failures and out-of-range results yield doubtful together with the
// error that caused the fallback.
func (p *Policy) Decide(matches []domain.MatchResult) (domain.Ruling, float64, error) {
	out, _, err := p.program.Eval(activation(matches))
	if err != nil {
		return domain.RulingDoubtful, confidenceFor(matches, domain.RulingDoubtful),
			fmt.Errorf("verdict policy evaluation failed: %w", err)
	}

	s, ok := out.Value().(string)
	if !ok {
		return domain.RulingDoubtful, confidenceFor(matches, domain.RulingDoubtful),
			fmt.Errorf("verdict policy returned %T", out.Value())
	}
	ruling := domain.Ruling(s)
	if !ruling.Valid() && ruling != domain.RulingUnknown {
		return domain.RulingDoubtful, confidenceFor(matches, domain.RulingDoubtful),
			fmt.Errorf("verdict policy returned unknown ruling %q", s)
	}
	return ruling, confidenceFor(matches, ruling), nil
}

// Verdict builds the full per-ingredient verdict.
func (p *Policy) Verdict(text, normalized string, madhab domain.Madhab, matches []domain.MatchResult) (domain.Verdict, error) {
	ruling, confidence, err := p.Decide(matches)
	if matches == nil {
		matches = []domain.MatchResult{}
	}
	return domain.Verdict{
		Text:       text,
		Normalized: normalized,
		Madhab:     madhab,
		Ruling:     ruling,
		Confidence: confidence,
		Matches:    matches,
	}, err
}

func activation(matches []domain.MatchResult) map[string]any {
	top := string(domain.RulingUnknown)
	if len(matches) > 0 {
		top = string(matches[0].Ruling)
	}

	rulings := make([]string, len(matches))
	var haram, doubtful, halal int64
	maxConfidence := 0.0
	for i, m := range matches {
		rulings[i] = string(m.Ruling)
		switch m.Ruling {
		case domain.RulingHaram:
			haram++
		case domain.RulingDoubtful:
			doubtful++
		case domain.RulingHalal:
			halal++
		}
		maxConfidence = max(maxConfidence, m.Confidence)
	}

	return map[string]any{
		"top":            top,
		"rulings":        rulings,
		"haram":          haram,
		"doubtful":       doubtful,
		"halal":          halal,
		"max_confidence": maxConfidence,
	}
}

// confidenceFor is the highest confidence among matches carrying ruling.
func confidenceFor(matches []domain.MatchResult, ruling domain.Ruling) float64 {
	c := 0.0
	for _, m := range matches {
		if m.Ruling == ruling {
			c = max(c, m.Confidence)
		}
	}
	return c
}
