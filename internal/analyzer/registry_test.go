package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cynic/internal/health"
	"cynic/internal/judge"
	"cynic/internal/phi"
)

type stubAnalyzer struct {
	caps Capabilities
}

func (s *stubAnalyzer) Analyze(ctx context.Context, cell judge.Cell, actx Context) (judge.AnalyzerResult, error) {
	return judge.NewAnalyzerResult(s.caps.ID, cell.ID, 50, 0.4), nil
}

func (s *stubAnalyzer) Capabilities() Capabilities { return s.caps }

func (s *stubAnalyzer) Health(ctx context.Context) Health {
	return Health{AnalyzerID: s.caps.ID, State: StateHealthy}
}

func stub(id string, opts ...func(*Capabilities)) *stubAnalyzer {
	caps := Capabilities{
		ID:       id,
		Domains:  judge.AllDomains(),
		Analyses: judge.AllAnalyses(),
		Weight:   1.0,
	}
	for _, opt := range opts {
		opt(&caps)
	}
	return &stubAnalyzer{caps: caps}
}

func testCell(t *testing.T) judge.Cell {
	t.Helper()
	cell, err := judge.NewCell(judge.CellSpec{Domain: judge.DomainCode, Analysis: judge.AnalysisJudge})
	require.NoError(t, err)
	return cell
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stub("a")))
	assert.Error(t, r.Register(stub("a")), "duplicate id must be rejected")
	assert.Error(t, r.Register(stub("")), "empty id must be rejected")
	assert.Error(t, r.Register(stub("w", func(c *Capabilities) { c.Weight = 0 })))
	assert.Error(t, r.Register(stub("d", func(c *Capabilities) { c.Domains = nil })))
	assert.Equal(t, 1, r.Len())
}

func TestRegisterEnforcesPoolCap(t *testing.T) {
	r := NewRegistry(nil)
	for i := 0; i < phi.AnalyzersTotal; i++ {
		require.NoError(t, r.Register(stub(fmt.Sprintf("a%02d", i))))
	}

	err := r.Register(stub("overflow"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is full")
	assert.Equal(t, phi.AnalyzersTotal, r.Len())
}

func TestEligibleFiltersCoverage(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stub("everything")))
	require.NoError(t, r.Register(stub("market-only", func(c *Capabilities) {
		c.Domains = []judge.Domain{judge.DomainMarket}
	})))

	eligible := r.Eligible(testCell(t), health.LevelFull, judge.MaxTier)
	require.Len(t, eligible, 1)
	assert.Equal(t, "everything", eligible[0].Capabilities().ID)
}

func TestEligibleFiltersModelGating(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stub("deterministic")))
	require.NoError(t, r.Register(stub("model", func(c *Capabilities) { c.RequiresModel = true })))

	cell := testCell(t)
	assert.Len(t, r.Eligible(cell, health.LevelReduced, 2), 2,
		"REDUCED still allows model analyzers")
	eligible := r.Eligible(cell, health.LevelEmergency, 0)
	require.Len(t, eligible, 1)
	assert.Equal(t, "deterministic", eligible[0].Capabilities().ID)
}

func TestEligibleFiltersMinTier(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stub("shallow")))
	require.NoError(t, r.Register(stub("deep", func(c *Capabilities) { c.MinTier = 3 })))

	cell := testCell(t)
	assert.Len(t, r.Eligible(cell, health.LevelFull, 3), 2)
	eligible := r.Eligible(cell, health.LevelFull, 1)
	require.Len(t, eligible, 1)
	assert.Equal(t, "shallow", eligible[0].Capabilities().ID)
}

func TestOpenBreakerExcludesAnalyzer(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stub("flaky")))

	cb := r.Breaker("flaky")
	require.NotNil(t, cb)
	fail := errors.New("analyze failed")
	for n := 0; n < 5; n++ {
		cb.Mark(fail)
	}

	assert.Empty(t, r.Eligible(testCell(t), health.LevelFull, judge.MaxTier),
		"open breaker must silently exclude the analyzer")

	metrics := r.BreakerMetrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, "flaky", metrics[0].Name)
}

func TestWeightsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stub("a", func(c *Capabilities) { c.Weight = 2.618 })))
	w := r.Weights()
	assert.Equal(t, 2.618, w["a"])
}
