package policy

import (
	"math"
	"math/rand"
)

// sampleBeta draws from Beta(a, b) via the ratio of two Gamma draws.
func sampleBeta(a, b float64, rng *rand.Rand) float64 {
	x := sampleGamma(a, rng)
	y := sampleGamma(b, rng)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang. Shapes
// below 1 are boosted and corrected with the standard power transform.
func sampleGamma(shape float64, rng *rand.Rand) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(shape+1, rng) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
