package phi

import (
	"math"
	"testing"
)

func TestConstantFamily(t *testing.T) {
	if math.Abs(PhiInv-0.6180339887498949) > 1e-12 {
		t.Fatalf("PhiInv drifted: %v", PhiInv)
	}
	if math.Abs(PhiInv2-(1-PhiInv)) > 1e-12 {
		t.Fatalf("PhiInv2 should equal 1-PhiInv, got %v", PhiInv2)
	}
	if MaxConfidence != PhiInv {
		t.Fatalf("MaxConfidence must be PhiInv")
	}
	if Quorum != 7 || FaultTolerance != 3 {
		t.Fatalf("quorum math broken: f=%d quorum=%d", FaultTolerance, Quorum)
	}
}

func TestFibonacciLucas(t *testing.T) {
	fib := []int{0, 1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144}
	for n, want := range fib {
		if got := Fibonacci(n); got != want {
			t.Fatalf("F(%d) = %d, want %d", n, got, want)
		}
	}
	luc := []int{2, 1, 3, 4, 7, 11, 18}
	for n, want := range luc {
		if got := Lucas(n); got != want {
			t.Fatalf("L(%d) = %d, want %d", n, got, want)
		}
	}
	if ConsolidationVisits != Fibonacci(8) {
		t.Fatalf("consolidation threshold must be F(8)")
	}
}

func TestBounds(t *testing.T) {
	if got := BoundScore(150); got != MaxScore {
		t.Fatalf("BoundScore(150) = %v", got)
	}
	if got := BoundScore(-3); got != 0 {
		t.Fatalf("BoundScore(-3) = %v", got)
	}
	if got := BoundConfidence(0.99); got != MaxConfidence {
		t.Fatalf("BoundConfidence(0.99) = %v", got)
	}
}

func TestWeightedGeometricMean(t *testing.T) {
	// Equal weights reduce to the plain geometric mean.
	got := WeightedGeometricMean([]float64{4, 9}, []float64{1, 1})
	if math.Abs(got-6) > 1e-9 {
		t.Fatalf("geometric mean of 4,9 = %v, want 6", got)
	}

	// A single low vote drags the mean well below the arithmetic mean.
	low := WeightedGeometricMean([]float64{90, 90, 1}, []float64{1, 1, 1})
	arith := (90.0 + 90.0 + 1.0) / 3
	if low >= arith {
		t.Fatalf("geometric mean %v should sit below arithmetic mean %v", low, arith)
	}

	// Degenerate inputs.
	if WeightedGeometricMean(nil, nil) != 0 {
		t.Fatal("empty inputs must yield 0")
	}
	if WeightedGeometricMean([]float64{1, 2}, []float64{1}) != 0 {
		t.Fatal("mismatched lengths must yield 0")
	}
	if WeightedGeometricMean([]float64{0, 2}, []float64{1, 1}) != 0 {
		t.Fatal("non-positive values must yield 0")
	}
}
