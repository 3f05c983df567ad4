// Package quantity holds the value rules every caller uses for stock counts:
// parsing user-entered text, clamping to zero, and rounding to a count step.
//
// Quantities are decimal.Decimal so half-case steps compare exactly. No caller
// rounds on its own; everything goes through Normalize or Cases.
package quantity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// StepWhole counts in whole cases.
	StepWhole = decimal.NewFromInt(1)

	// StepHalf allows half cases.
	StepHalf = decimal.New(5, -1)

	half = decimal.New(5, -1)
)

// MaxCases is the largest count accepted from text and the ceiling Cases
// saturates at.
const MaxCases = 1_000_000_000

var maxQuantity = decimal.NewFromInt(MaxCases)

// digits with at most one decimal separator; "5.", ".5" and "5,25" are accepted.
var quantityPattern = regexp.MustCompile(`^(\d+([.,]\d*)?|[.,]\d+)$`)

// ParseError reports quantity text that cannot become a count.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid quantity %q: %s", e.Input, e.Reason)
}

// Parse converts live-typed text into a quantity.
//
// Empty text is an error here so a caller can tell "still typing" apart from
// an explicit zero. Use ParseCommitted once the user is done with the field.
func Parse(text string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return decimal.Zero, &ParseError{Input: text, Reason: "empty"}
	}
	if strings.HasPrefix(trimmed, "-") {
		return decimal.Zero, &ParseError{Input: text, Reason: "negative"}
	}
	if !quantityPattern.MatchString(trimmed) {
		return decimal.Zero, &ParseError{Input: text, Reason: "not a number"}
	}

	normalized := strings.Replace(trimmed, ",", ".", 1)
	if strings.HasPrefix(normalized, ".") {
		normalized = "0" + normalized
	}
	normalized = strings.TrimSuffix(normalized, ".")

	v, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, &ParseError{Input: text, Reason: err.Error()}
	}
	if v.GreaterThan(maxQuantity) {
		return decimal.Zero, &ParseError{Input: text, Reason: "too large"}
	}
	return v, nil
}

// ParseCommitted is Parse with commit-time semantics: empty text means zero.
func ParseCommitted(text string) (decimal.Decimal, error) {
	if strings.TrimSpace(text) == "" {
		return decimal.Zero, nil
	}
	return Parse(text)
}

// ParseStep reads a configured count step. Only 1 and 0.5 are supported.
func ParseStep(text string) (decimal.Decimal, error) {
	v, err := Parse(text)
	if err != nil {
		return decimal.Zero, err
	}
	if !IsSupportedStep(v) {
		return decimal.Zero, &ParseError{Input: text, Reason: "step must be 1 or 0.5"}
	}
	return v, nil
}

// IsSupportedStep reports whether step is one of the supported count steps.
func IsSupportedStep(step decimal.Decimal) bool {
	return step.Equal(StepWhole) || step.Equal(StepHalf)
}

// ClampNonNegative floors v at zero.
func ClampNonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// RoundToStep rounds v to the nearest multiple of step, halves going up.
// The result is never negative. A non-positive step falls back to StepWhole.
func RoundToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		step = StepWhole
	}
	v = ClampNonNegative(v)
	units := v.Div(step).Add(half).Floor()
	return units.Mul(step)
}

// Normalize clamps and rounds v to step.
func Normalize(v, step decimal.Decimal) decimal.Decimal {
	return RoundToStep(ClampNonNegative(v), step)
}

// Cases rounds v to a whole, non-negative case count for the wire. Values
// above MaxCases saturate at MaxCases.
func Cases(v decimal.Decimal) int64 {
	r := RoundToStep(v, StepWhole)
	if r.GreaterThan(maxQuantity) {
		return MaxCases
	}
	return r.IntPart()
}

// Step adds delta steps to v and normalizes the result, as the +/- buttons do.
func Step(v decimal.Decimal, delta int64, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		step = StepWhole
	}
	return Normalize(v.Add(step.Mul(decimal.NewFromInt(delta))), step)
}
