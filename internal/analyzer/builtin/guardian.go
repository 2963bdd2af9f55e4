// Package builtin provides the deterministic reference analyzers that
// ship with the core: a safety guardian with veto power, a multi-feature
// heuristic scorer, and a systemic coherence scorer. Model-backed
// analyzers live outside the core and plug in through the same contract.
package builtin

import (
	"context"
	"fmt"
	"time"

	"cynic/internal/analyzer"
	"cynic/internal/judge"
	"cynic/internal/phi"
)

// Guardian is the safety analyzer. It scores inversely to the cell's
// risk prior and vetoes outright when risk crosses its threshold. Under
// stress the threshold drops, so the guardian vetoes more eagerly when
// the system is already degraded.
type Guardian struct {
	baseVetoThreshold float64
}

// NewGuardian returns a guardian with the default veto threshold 0.9.
func NewGuardian() *Guardian {
	return &Guardian{baseVetoThreshold: 0.9}
}

func (g *Guardian) Capabilities() analyzer.Capabilities {
	return analyzer.Capabilities{
		ID:       "guardian",
		Domains:  judge.AllDomains(),
		Analyses: judge.AllAnalyses(),
		MinTier:  0,
		Weight:   phi.Phi, // φ, safety outranks the baseline scorers
	}
}

// vetoThreshold lowers by one φ⁻³ step per degradation level and by a
// further step when more than the five core axioms are active.
func (g *Guardian) vetoThreshold(actx analyzer.Context) float64 {
	threshold := g.baseVetoThreshold - float64(actx.Level)*0.1
	if actx.ActiveAxioms > 5 {
		threshold -= 0.05
	}
	return phi.Bound(threshold, 0.3, g.baseVetoThreshold)
}

func (g *Guardian) Analyze(ctx context.Context, cell judge.Cell, actx analyzer.Context) (judge.AnalyzerResult, error) {
	if err := ctx.Err(); err != nil {
		return judge.AnalyzerResult{}, err
	}
	start := time.Now()

	threshold := g.vetoThreshold(actx)
	score := (1 - cell.Risk) * phi.MaxScore
	result := judge.NewAnalyzerResult("guardian", cell.ID, score, phi.PhiInv2).
		WithEvidence(map[string]any{
			"risk":           cell.Risk,
			"veto_threshold": threshold,
		}).
		WithReasoning(fmt.Sprintf("risk=%.2f against threshold %.2f at level %s",
			cell.Risk, threshold, actx.Level))
	if cell.Risk >= threshold {
		result = result.WithVeto()
	}
	return result.WithLatency(time.Since(start)), nil
}

func (g *Guardian) Health(ctx context.Context) analyzer.Health {
	return analyzer.Health{AnalyzerID: "guardian", State: analyzer.StateHealthy}
}
