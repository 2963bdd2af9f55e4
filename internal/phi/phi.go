// Package phi is the single source of truth for the golden-ratio constant
// family the judgment pipeline is built on. Every threshold, weight, and
// learning rate derives from φ via the Fibonacci and Lucas sequences; no
// other package may define its own copy.
package phi

import "math"

// Primary constants.
var (
	// Phi is the golden ratio φ = 1.618033988749895.
	Phi = (1 + math.Sqrt(5)) / 2

	// PhiInv is 1/φ = 0.618033988749895, the ceiling no confidence value
	// may exceed (the system never claims near-certainty).
	PhiInv = Phi - 1

	// PhiInv2 is 1/φ² = 0.381966011250105.
	PhiInv2 = 2 - Phi

	// PhiInv3 is 1/φ³ = 0.236067977499790.
	PhiInv3 = PhiInv2 * PhiInv

	// Phi2 is φ² and Phi3 is φ³, the top of the priority-weight ladder.
	Phi2 = Phi * Phi
	Phi3 = Phi * Phi * Phi
)

// Score and confidence bounds.
var (
	// MaxScore is the upper bound for analyzer and consensus scores.
	MaxScore = 100.0

	// MaxConfidence caps every confidence value at φ⁻¹ ≈ 0.618.
	MaxConfidence = PhiInv
)

// Verdict thresholds on the [0, MaxScore] scale.
var (
	HowlMin  = 82.0          // exceptional
	WagMin   = PhiInv * 100  // 61.8, good
	GrowlMin = PhiInv2 * 100 // 38.2, needs work; below is critical
)

// Quorum constants for the in-process Byzantine vote aggregator.
const (
	// AnalyzersTotal is the designed pool size n = L(5) = 11.
	AnalyzersTotal = 11

	// FaultTolerance is f, the maximum tolerated faulty or absent
	// analyzers: (n-1)/3 = 3.
	FaultTolerance = 3

	// Quorum is 2f+1 = 7, the minimum vote count for consensus.
	Quorum = 2*FaultTolerance + 1
)

// Learning constants.
var (
	// LearningRate is the TD(0) α = φ⁻²/10 ≈ 0.038, deliberately
	// conservative so a single observation never rewrites an estimate.
	LearningRate = PhiInv2 / 10

	// ConsolidationPenalty is the λ applied against the fisher weight
	// when shrinking the effective learning rate of well-visited entries.
	ConsolidationPenalty = PhiInv

	// UCTConstant is the exploration constant ≈ 1/√2 used by the
	// lookahead planner's UCB bonus.
	UCTConstant = 0.7071
)

// ConsolidationVisits is F(8) = 21, the visit count past which a Q-entry
// counts as consolidated and resists further change.
const ConsolidationVisits = 21

// ThompsonPrior is F(5) = 5 pseudo-observations per arm, a neutral
// non-zero prior for posterior sampling.
const ThompsonPrior = 5

// Fibonacci returns F(n) with F(0)=0, F(1)=1. Negative n yields 0.
func Fibonacci(n int) int {
	if n < 0 {
		return 0
	}
	a, b := 0, 1
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a
}

// Lucas returns L(n) with L(0)=2, L(1)=1. Negative n yields 0.
func Lucas(n int) int {
	if n < 0 {
		return 0
	}
	if n == 0 {
		return 2
	}
	a, b := 2, 1
	for i := 1; i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// Bound clamps value into [min, max].
func Bound(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// BoundScore clamps a score into [0, MaxScore].
func BoundScore(score float64) float64 {
	return Bound(score, 0, MaxScore)
}

// BoundConfidence clamps a confidence into [0, MaxConfidence].
func BoundConfidence(confidence float64) float64 {
	return Bound(confidence, 0, MaxConfidence)
}

// WeightedGeometricMean computes product(v_i^w_i)^(1/Σw_i).
//
// The geometric mean is dominated by the worst value: one badly-scoring
// vote materially drags the result down instead of being averaged away.
// Values must be positive; callers floor zeros to a small epsilon first.
// Returns 0 when the inputs are unusable.
func WeightedGeometricMean(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}
	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	logSum := 0.0
	for i, v := range values {
		if v <= 0 {
			return 0
		}
		logSum += weights[i] * math.Log(v)
	}
	return math.Exp(logSum / totalWeight)
}
