package tool

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuchenx/docpilot/internal/model/artifact"
)

// Arithmetic evaluates a two-operand expression phrased in natural language,
// e.g. "divide 6 by 2" or "what is 3 plus 4". It never looks at the artifact.
type Arithmetic struct{}

func NewArithmetic() *Arithmetic { return &Arithmetic{} }

func (a *Arithmetic) Kind() Kind { return KindArithmetic }

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

type operator struct {
	keywords []string
	apply    func(x, y float64) (float64, error)
}

var operators = []operator{
	{
		keywords: []string{"divide", "divided", "division", "/"},
		apply: func(x, y float64) (float64, error) {
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return x / y, nil
		},
	},
	{
		keywords: []string{"multiply", "multiplied", "times", "*"},
		apply:    func(x, y float64) (float64, error) { return x * y, nil },
	},
	{
		keywords: []string{"add", "plus", "+"},
		apply:    func(x, y float64) (float64, error) { return x + y, nil },
	},
	{
		keywords: []string{"subtract", "minus", "-"},
		apply:    func(x, y float64) (float64, error) { return x - y, nil },
	},
}

// CanHandle matches the arithmetic pattern: two numeric operands plus a
// recognized operator keyword. The match is deterministic so routing stays
// reproducible regardless of any bound artifact.
func (a *Arithmetic) CanHandle(query string, _ *artifact.Artifact) bool {
	_, op := parseExpression(query)
	return op != nil
}

func (a *Arithmetic) Execute(_ context.Context, query string, _ *artifact.Artifact) (string, error) {
	operands, op := parseExpression(query)
	if op == nil {
		return "", fmt.Errorf("%w: expected two numbers and an operator, e.g. 'divide 6 by 2'", ErrParse)
	}
	result, err := op.apply(operands[0], operands[1])
	if err != nil {
		return "", err
	}
	return formatNumber(result), nil
}

func parseExpression(query string) ([2]float64, *operator) {
	lower := strings.ToLower(query)
	matches := numberPattern.FindAllString(lower, 3)
	if len(matches) < 2 {
		return [2]float64{}, nil
	}

	x, errX := strconv.ParseFloat(matches[0], 64)
	y, errY := strconv.ParseFloat(matches[1], 64)
	if errX != nil || errY != nil {
		return [2]float64{}, nil
	}

	fields := strings.Fields(lower)
	for i := range operators {
		for _, kw := range operators[i].keywords {
			for _, f := range fields {
				if strings.Trim(f, ".,?!") == kw {
					return [2]float64{x, y}, &operators[i]
				}
			}
		}
	}
	return [2]float64{}, nil
}

// formatNumber renders whole results as "3.0" so quotient answers read as
// numbers rather than integers, matching the tool's division-first heritage.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
