// Package script turns a topic and a reference summary into a narration
// script whose length fits the requested spoken duration.
package script

import "math"

// Reference calibration values.
const (
	DefaultCharsPerMinute   = 660
	DefaultMinCharsFloor    = 600
	DefaultAvgCharsPerToken = 2.8
	DefaultMaxTokenBuffer   = 0.25
	DefaultMinTokensFloor   = 512
	DefaultLowerBoundFactor = 1.10
	DefaultUpperBoundFactor = 1.25
	DefaultClosingReserve   = 180
	DefaultContinuations    = 1
)

// Pacing converts spoken minutes into characters.
type Pacing struct {
	CharsPerMinute int
	MinCharsFloor  int
}

// TokenPolicy converts a character budget into an output-token cap.
type TokenPolicy struct {
	AvgCharsPerToken float64
	MaxTokenBuffer   float64
	MinTokensFloor   int
}

// Policy holds the tunable length window and extension limits.
type Policy struct {
	LowerBoundFactor      float64
	UpperBoundFactor      float64
	ClosingReserve        int
	MaxContinuationRounds int
}

// LengthBudget is computed once per composition and never changes.
type LengthBudget struct {
	TargetChars   int `json:"target_chars"`
	MinChars      int `json:"min_chars"`
	MaxChars      int `json:"max_chars"`
	BodyGoalChars int `json:"body_goal_chars"`
}

// DefaultPacing returns the reference pacing.
func DefaultPacing() Pacing {
	return Pacing{CharsPerMinute: DefaultCharsPerMinute, MinCharsFloor: DefaultMinCharsFloor}
}

// DefaultTokenPolicy returns the reference token policy.
func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		AvgCharsPerToken: DefaultAvgCharsPerToken,
		MaxTokenBuffer:   DefaultMaxTokenBuffer,
		MinTokensFloor:   DefaultMinTokensFloor,
	}
}

// DefaultPolicy is the 110-125% window with a reserve kept for the closing.
func DefaultPolicy() Policy {
	return Policy{
		LowerBoundFactor:      DefaultLowerBoundFactor,
		UpperBoundFactor:      DefaultUpperBoundFactor,
		ClosingReserve:        DefaultClosingReserve,
		MaxContinuationRounds: DefaultContinuations,
	}
}

// TightPolicy is the 95-105% window around the target.
func TightPolicy() Policy {
	return Policy{
		LowerBoundFactor:      0.95,
		UpperBoundFactor:      1.05,
		ClosingReserve:        DefaultClosingReserve,
		MaxContinuationRounds: DefaultContinuations,
	}
}

func (p Pacing) withDefaults() Pacing {
	if p.CharsPerMinute <= 0 {
		p.CharsPerMinute = DefaultCharsPerMinute
	}

	if p.MinCharsFloor <= 0 {
		p.MinCharsFloor = DefaultMinCharsFloor
	}

	return p
}

func (t TokenPolicy) withDefaults() TokenPolicy {
	if t.AvgCharsPerToken <= 0 {
		t.AvgCharsPerToken = DefaultAvgCharsPerToken
	}

	if t.MaxTokenBuffer < 0 {
		t.MaxTokenBuffer = DefaultMaxTokenBuffer
	}

	if t.MinTokensFloor <= 0 {
		t.MinTokensFloor = DefaultMinTokensFloor
	}

	return t
}

func (p Policy) withDefaults() Policy {
	if p.LowerBoundFactor <= 0 {
		p.LowerBoundFactor = DefaultLowerBoundFactor
	}

	if p.UpperBoundFactor < p.LowerBoundFactor {
		p.UpperBoundFactor = math.Max(DefaultUpperBoundFactor, p.LowerBoundFactor)
	}

	if p.ClosingReserve < 0 {
		p.ClosingReserve = DefaultClosingReserve
	}

	if p.MaxContinuationRounds < 0 {
		p.MaxContinuationRounds = 0
	}

	return p
}

// NewBudget derives the length budget for a requested duration. Non-positive
// minutes yield the floor budget.
func NewBudget(minutes float64, pacing Pacing, policy Policy) LengthBudget {
	pacing = pacing.withDefaults()
	policy = policy.withDefaults()

	raw := 0
	if minutes > 0 {
		raw = int(math.Round(minutes * float64(pacing.CharsPerMinute)))
	}

	target := max(pacing.MinCharsFloor, raw)
	minChars := int(math.Round(float64(target) * policy.LowerBoundFactor))
	maxChars := int(math.Round(float64(target) * policy.UpperBoundFactor))

	return LengthBudget{
		TargetChars:   target,
		MinChars:      minChars,
		MaxChars:      maxChars,
		BodyGoalChars: max(1, minChars-policy.ClosingReserve),
	}
}

// TokenCap returns the output-token ceiling for a character budget.
func TokenCap(chars int, policy TokenPolicy) int {
	policy = policy.withDefaults()

	tokens := max(1, int(math.Ceil(float64(max(chars, 0))/policy.AvgCharsPerToken)))
	buffered := int(math.Ceil(float64(tokens) * (1 + policy.MaxTokenBuffer)))

	return max(policy.MinTokensFloor, buffered)
}
