package builtin

import (
	"context"
	"fmt"
	"time"

	"cynic/internal/analyzer"
	"cynic/internal/judge"
	"cynic/internal/phi"
)

// SystemStats feeds the coherence analyzer its view of the pipeline:
// how many analyzers are registered vs. designed, and the recent
// consensus success rate. Nil funcs fall back to neutral assumptions.
type SystemStats struct {
	ActiveAnalyzers func() int
	ConsensusRate   func() float64
}

// Coherence scores systemic health rather than the cell content: budget
// adequacy, pool completeness, and recent consensus success, combined
// with a geometric mean so one collapsed factor drags the whole score.
type Coherence struct {
	stats SystemStats
}

// NewCoherence returns the systemic coherence analyzer.
func NewCoherence(stats SystemStats) *Coherence {
	return &Coherence{stats: stats}
}

func (c *Coherence) Capabilities() analyzer.Capabilities {
	return analyzer.Capabilities{
		ID:       "coherence",
		Domains:  judge.AllDomains(),
		Analyses: judge.AllAnalyses(),
		MinTier:  0,
		Weight:   phi.Phi3, // φ³, the coordinator-grade vote
	}
}

func (c *Coherence) Analyze(ctx context.Context, cell judge.Cell, actx analyzer.Context) (judge.AnalyzerResult, error) {
	if err := ctx.Err(); err != nil {
		return judge.AnalyzerResult{}, err
	}
	start := time.Now()

	budgetRatio := phi.Bound(cell.BudgetUSD/10.0, 0.001, 1)

	poolRatio := 1.0
	if c.stats.ActiveAnalyzers != nil {
		poolRatio = phi.Bound(float64(c.stats.ActiveAnalyzers())/phi.AnalyzersTotal, 0.001, 1)
	}

	consensusRate := phi.PhiInv // moderate health assumed without data
	if c.stats.ConsensusRate != nil {
		consensusRate = phi.Bound(c.stats.ConsensusRate(), 0.001, 1)
	}

	factors := []float64{budgetRatio, poolRatio, consensusRate}
	weights := []float64{1, 1, 1}
	score := phi.WeightedGeometricMean(factors, weights) * phi.MaxScore

	return judge.NewAnalyzerResult("coherence", cell.ID, score, phi.PhiInv2).
		WithEvidence(map[string]any{
			"budget_ratio":   budgetRatio,
			"pool_ratio":     poolRatio,
			"consensus_rate": consensusRate,
		}).
		WithReasoning(fmt.Sprintf("coherence: budget=%.2f pool=%.2f consensus=%.2f",
			budgetRatio, poolRatio, consensusRate)).
		WithLatency(time.Since(start)), nil
}

func (c *Coherence) Health(ctx context.Context) analyzer.Health {
	return analyzer.Health{AnalyzerID: "coherence", State: analyzer.StateHealthy}
}
