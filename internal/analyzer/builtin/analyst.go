package builtin

import (
	"context"
	"fmt"
	"time"

	"cynic/internal/analyzer"
	"cynic/internal/health"
	"cynic/internal/judge"
	"cynic/internal/phi"
)

// Analyst scores a cell from seven independent heuristic perspectives.
// Under stress it collapses to the first three, trading fidelity for
// latency the same way a model-backed analyzer would shed perspectives.
type Analyst struct{}

// NewAnalyst returns the heuristic analyst.
func NewAnalyst() *Analyst {
	return &Analyst{}
}

func (a *Analyst) Capabilities() analyzer.Capabilities {
	return analyzer.Capabilities{
		ID:       "analyst",
		Domains:  judge.AllDomains(),
		Analyses: judge.AllAnalyses(),
		MinTier:  0,
		Weight:   phi.Phi2, // φ², formal analysis carries high priority
	}
}

// perspectives are deterministic [0,1] feature scores, ordered so the
// first three form a usable reduced set.
func (a *Analyst) perspectives(cell judge.Cell, actx analyzer.Context) []float64 {
	contentWeight := 0.0
	if s := fmt.Sprint(cell.Content); len(s) > 0 && cell.Content != nil {
		contentWeight = phi.Bound(float64(len(s))/1024.0, 0.1, 1.0)
	}
	contextWeight := 0.0
	if cell.Context != "" {
		contextWeight = 1.0
	}
	budgetAdequacy := phi.Bound(cell.BudgetUSD/1.0, 0, 1)

	return []float64{
		1 - cell.Risk,                 // safety margin
		1 - cell.Complexity,           // tractability
		contentWeight,                 // substance present
		cell.Novelty,                  // information value
		contextWeight,                 // caller gave context
		budgetAdequacy,                // spend headroom
		1 - float64(cell.Tier)/judge.MaxTier*phi.PhiInv3, // shallow cells are cheap to be wrong about
	}
}

func (a *Analyst) Analyze(ctx context.Context, cell judge.Cell, actx analyzer.Context) (judge.AnalyzerResult, error) {
	if err := ctx.Err(); err != nil {
		return judge.AnalyzerResult{}, err
	}
	start := time.Now()

	views := a.perspectives(cell, actx)
	confidence := phi.PhiInv2 + 0.1
	if actx.Level >= health.LevelEmergency {
		views = views[:3]
		confidence = phi.PhiInv3
	}

	sum := 0.0
	for _, v := range views {
		sum += v
	}
	score := sum / float64(len(views)) * phi.MaxScore

	return judge.NewAnalyzerResult("analyst", cell.ID, score, confidence).
		WithEvidence(map[string]any{
			"perspectives": len(views),
			"features":     views,
		}).
		WithReasoning(fmt.Sprintf("%d-perspective heuristic mean %.1f", len(views), score)).
		WithLatency(time.Since(start)), nil
}

func (a *Analyst) Health(ctx context.Context) analyzer.Health {
	return analyzer.Health{AnalyzerID: "analyst", State: analyzer.StateHealthy}
}
