package orchestrator

import (
	"math"
	"sort"
	"sync"
	"time"

	"cynic/internal/judge"
	"cynic/internal/phi"
)

// Core axioms scored on every judgment.
const (
	AxiomFidelity = "FIDELITY"
	AxiomPhi      = "PHI"
	AxiomVerify   = "VERIFY"
	AxiomCulture  = "CULTURE"
	AxiomBurn     = "BURN"
)

// Emergent axioms activate when cycle metrics cross their thresholds
// and stay active for the life of the process.
const (
	AxiomEmergence = "EMERGENCE"
	AxiomAutonomy  = "AUTONOMY"
)

var coreAxioms = []string{AxiomFidelity, AxiomPhi, AxiomVerify, AxiomCulture, AxiomBurn}

// autonomyStableCycles is how many consecutive strong-consensus cycles
// it takes before AUTONOMY activates.
const autonomyStableCycles = 7

// Activation records one emergent axiom switching on.
type Activation struct {
	Axiom    string    `json:"axiom"`
	Residual float64   `json:"residual"`
	At       time.Time `json:"at"`
}

// axiomTracker holds the emergent-axiom state shared across cycles.
// The count of active axioms is one of the two adaptive signals every
// analyzer receives.
type axiomTracker struct {
	mu           sync.Mutex
	emergent     map[string]bool
	stableCycles int
	log          []Activation
}

func newAxiomTracker() *axiomTracker {
	return &axiomTracker{emergent: map[string]bool{}}
}

// Observe feeds one completed cycle into the activation thresholds.
// EMERGENCE trips on high unexplained vote variance; AUTONOMY trips
// after enough consecutive strong-consensus cycles.
func (t *axiomTracker) Observe(consensusStrength, residual float64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var activated []string

	if residual >= phi.PhiInv2 && !t.emergent[AxiomEmergence] {
		t.emergent[AxiomEmergence] = true
		t.log = append(t.log, Activation{Axiom: AxiomEmergence, Residual: residual, At: time.Now()})
		activated = append(activated, AxiomEmergence)
	}

	if consensusStrength >= phi.PhiInv {
		t.stableCycles++
	} else {
		t.stableCycles = 0
	}
	if t.stableCycles >= autonomyStableCycles && !t.emergent[AxiomAutonomy] {
		t.emergent[AxiomAutonomy] = true
		t.log = append(t.log, Activation{Axiom: AxiomAutonomy, At: time.Now()})
		activated = append(activated, AxiomAutonomy)
	}

	return activated
}

// Active returns core plus activated emergent axioms, emergent ones in
// stable order.
func (t *axiomTracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := append([]string(nil), coreAxioms...)
	emergent := make([]string, 0, len(t.emergent))
	for name, on := range t.emergent {
		if on {
			emergent = append(emergent, name)
		}
	}
	sort.Strings(emergent)
	return append(active, emergent...)
}

// Count is the active-axiom count handed to analyzers.
func (t *axiomTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(coreAxioms)
	for _, on := range t.emergent {
		if on {
			n++
		}
	}
	return n
}

// Activations returns the emergent activation log.
func (t *axiomTracker) Activations() []Activation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Activation(nil), t.log...)
}

// residualVariance is the unexplained spread across analyzer votes,
// normalized to [0,1] by the maximum attainable variance for bounded
// scores (half the votes at 0, half at the ceiling). One vote or none
// has nothing unexplained.
func residualVariance(results []judge.AnalyzerResult) float64 {
	if len(results) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range results {
		mean += r.Score
	}
	mean /= float64(len(results))

	variance := 0.0
	for _, r := range results {
		d := r.Score - mean
		variance += d * d
	}
	variance /= float64(len(results))

	half := phi.MaxScore / 2
	return math.Min(variance/(half*half), 1.0)
}

// scoreAxioms derives the per-axiom sub-scores from the cell, the
// settled votes, and the consensus outcome. All deterministic: the
// axioms grade the round itself, not the content.
func scoreAxioms(cell judge.Cell, consensus judge.ConsensusResult, residual float64) map[string]float64 {
	scores := make(map[string]float64, len(coreAxioms))

	// FIDELITY: how much of the vote spread the consensus explains.
	scores[AxiomFidelity] = phi.BoundScore(phi.MaxScore * (1 - residual))

	// PHI: proximity of the final score to the golden point.
	golden := phi.PhiInv * phi.MaxScore
	scores[AxiomPhi] = phi.BoundScore(phi.MaxScore - math.Abs(consensus.FinalScore-golden))

	// VERIFY: fraction of votes backed by reasoning or evidence.
	backed := 0
	for _, r := range consensus.Contributing {
		if r.Reasoning != "" || len(r.Evidence) > 0 {
			backed++
		}
	}
	if n := len(consensus.Contributing); n > 0 {
		scores[AxiomVerify] = phi.MaxScore * float64(backed) / float64(n)
	} else {
		scores[AxiomVerify] = 0
	}

	// CULTURE: participation relative to quorum.
	quorum := consensus.Quorum
	if quorum < 1 {
		quorum = phi.Quorum
	}
	scores[AxiomCulture] = phi.BoundScore(phi.MaxScore * math.Min(1, float64(consensus.Votes)/float64(quorum)))

	// BURN: spend discipline against the cell budget.
	cost := 0.0
	for _, r := range consensus.Contributing {
		cost += r.CostUSD
	}
	if cell.BudgetUSD > 0 {
		scores[AxiomBurn] = phi.BoundScore(phi.MaxScore * (1 - math.Min(1, cost/cell.BudgetUSD)))
	} else {
		scores[AxiomBurn] = phi.MaxScore
	}

	return scores
}
