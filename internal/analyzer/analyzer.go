// Package analyzer defines the capability contract every scoring agent
// implements and the registry that tracks agent metadata and health.
package analyzer

import (
	"context"
	"time"

	"cynic/internal/health"
	"cynic/internal/judge"
)

// Context carries the adaptive signals the orchestrator hands each
// analyzer call. Analyzers are expected to degrade their own internal
// fidelity under stress, the single scheduler-level health signal
// cascades through every agent without per-agent special-casing.
type Context struct {
	// Level is the current system detail level.
	Level health.DetailLevel
	// ActiveAxioms is the count of currently-active high-level axioms.
	ActiveAxioms int
	// BudgetUSD is this analyzer's share of the cell budget.
	BudgetUSD float64
}

// HealthState classifies an analyzer's self-reported condition.
type HealthState string

const (
	StateHealthy   HealthState = "HEALTHY"
	StateDegraded  HealthState = "DEGRADED"
	StateUnhealthy HealthState = "UNHEALTHY"
)

// Health is an analyzer's self-reported status.
type Health struct {
	AnalyzerID string        `json:"analyzer_id"`
	State      HealthState   `json:"state"`
	LatencyP50 time.Duration `json:"latency_p50"`
	Detail     string        `json:"detail,omitempty"`
}

// Capabilities describes what an analyzer can do. The priority weight is
// assigned once at registration and consumed only by the consensus
// engine, never by the analyzer itself.
type Capabilities struct {
	ID            string           `json:"id"`
	Domains       []judge.Domain   `json:"domains"`
	Analyses      []judge.Analysis `json:"analyses"`
	MinTier       int              `json:"min_tier"`
	RequiresModel bool             `json:"requires_model"`
	Weight        float64          `json:"weight"`
}

// Covers reports whether the analyzer claims the cell's domain and
// analysis type.
func (c Capabilities) Covers(cell judge.Cell) bool {
	return containsDomain(c.Domains, cell.Domain) && containsAnalysis(c.Analyses, cell.Analysis)
}

func containsDomain(list []judge.Domain, d judge.Domain) bool {
	for _, v := range list {
		if v == d {
			return true
		}
	}
	return false
}

func containsAnalysis(list []judge.Analysis, a judge.Analysis) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}

// Analyzer is the polymorphic contract every scoring agent implements.
// Analyze may fail; failures are recovered locally by the orchestrator
// as absent votes and never surface to the caller.
type Analyzer interface {
	Analyze(ctx context.Context, cell judge.Cell, actx Context) (judge.AnalyzerResult, error)
	Capabilities() Capabilities
	Health(ctx context.Context) Health
}
