package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cynic/internal/analyzer"
	"cynic/internal/consensus"
	"cynic/internal/health"
	"cynic/internal/judge"
	"cynic/internal/observability"
	"cynic/internal/phi"
	"cynic/internal/policy"
)

type stubAnalyzer struct {
	id      string
	score   float64
	veto    bool
	fail    error
	block   bool // hold until ctx is done, then return ctx.Err()
	weight  float64
	model   bool
	minTier int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, cell judge.Cell, _ analyzer.Context) (judge.AnalyzerResult, error) {
	if s.block {
		<-ctx.Done()
		return judge.AnalyzerResult{}, ctx.Err()
	}
	if s.fail != nil {
		return judge.AnalyzerResult{}, s.fail
	}
	res := judge.NewAnalyzerResult(s.id, cell.ID, s.score, 0.5).
		WithReasoning("stub assessment")
	if s.veto {
		res = res.WithVeto()
	}
	return res, nil
}

func (s *stubAnalyzer) Capabilities() analyzer.Capabilities {
	w := s.weight
	if w == 0 {
		w = 1
	}
	return analyzer.Capabilities{
		ID:            s.id,
		Domains:       []judge.Domain{judge.DomainCode},
		Analyses:      []judge.Analysis{judge.AnalysisJudge},
		MinTier:       s.minTier,
		RequiresModel: s.model,
		Weight:        w,
	}
}

func (s *stubAnalyzer) Health(context.Context) analyzer.Health {
	return analyzer.Health{AnalyzerID: s.id, State: analyzer.StateHealthy}
}

type fixture struct {
	orch     *Orchestrator
	registry *analyzer.Registry
	monitor  *health.Monitor
	table    *policy.QTable
}

func newFixture(t *testing.T, cfg Config, analyzers ...analyzer.Analyzer) *fixture {
	t.Helper()

	registry := analyzer.NewRegistry(nil)
	for _, a := range analyzers {
		require.NoError(t, registry.Register(a))
	}
	monitor := health.NewMonitor(nil)
	table := policy.NewQTableWithSeed(nil, 7)
	engine := consensus.NewEngine(func(id string) float64 {
		return registry.Weights()[id]
	}, nil)

	orch, err := New(cfg, Deps{
		Registry: registry,
		Engine:   engine,
		Monitor:  monitor,
		Table:    table,
	})
	require.NoError(t, err)
	return &fixture{orch: orch, registry: registry, monitor: monitor, table: table}
}

func codeCell(t *testing.T, tier int) judge.Cell {
	t.Helper()
	cell, err := judge.NewCell(judge.CellSpec{
		Domain:   judge.DomainCode,
		Analysis: judge.AnalysisJudge,
		Content:  "package main",
		Tier:     tier,
	})
	require.NoError(t, err)
	return cell
}

func namedStubs(n int, score float64) []analyzer.Analyzer {
	names := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo"}
	out := make([]analyzer.Analyzer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &stubAnalyzer{id: names[i], score: score})
	}
	return out
}

func TestRunReachesConsensus(t *testing.T) {
	f := newFixture(t, DefaultConfig(), namedStubs(8, 70)...)
	cell := codeCell(t, 1)

	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)

	j := res.Judgment
	assert.True(t, j.Consensus.Consensus)
	assert.Equal(t, 8, j.Consensus.Votes)
	assert.Equal(t, judge.VerdictWag, j.Verdict)
	assert.InDelta(t, 70, j.Score, 0.5)
	assert.Equal(t, health.LevelFull, res.Level)
	assert.Equal(t, 1, res.Tier)
	assert.Equal(t, 8, res.Eligible)

	// Core axioms scored, no emergent ones yet.
	assert.Len(t, j.AxiomScores, 5)
	assert.Equal(t, []string{"FIDELITY", "PHI", "VERIFY", "CULTURE", "BURN"}, j.ActiveAxioms)
	// Identical votes: nothing unexplained, perfect fidelity.
	assert.Zero(t, j.ResidualVariance)
	assert.InDelta(t, phi.MaxScore, j.AxiomScores[AxiomFidelity], 1e-9)
	// Every stub carries reasoning.
	assert.InDelta(t, phi.MaxScore, j.AxiomScores[AxiomVerify], 1e-9)

	// Learning write-back: one visit recorded under the cell state key.
	counts, total := f.table.VisitCounts(cell.StateKey())
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, counts[string(j.Verdict)])

	stats := f.orch.Stats()
	assert.Equal(t, int64(1), stats.Cycles)
	assert.Equal(t, int64(0), stats.Vetoes)
	assert.Equal(t, int64(0), stats.NoConsensus)
}

func TestRunVetoBlocksConsensus(t *testing.T) {
	stubs := namedStubs(7, 80)
	stubs = append(stubs, &stubAnalyzer{id: "guardian", score: 10, veto: true})
	f := newFixture(t, DefaultConfig(), stubs...)
	cell := codeCell(t, 0)

	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)

	j := res.Judgment
	assert.False(t, j.Consensus.Consensus)
	assert.Contains(t, j.Consensus.Reason, "veto by guardian")
	assert.Equal(t, judge.VerdictBark, j.Verdict)
	assert.Zero(t, j.Score)

	stats := f.orch.Stats()
	assert.Equal(t, int64(1), stats.Vetoes)
	assert.Equal(t, int64(1), stats.NoConsensus)
}

func TestRunTimeoutBecomesAbsentVote(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnalyzerTimeout = 30 * time.Millisecond

	stubs := namedStubs(7, 70)
	stubs = append(stubs, &stubAnalyzer{id: "sloth", block: true})
	f := newFixture(t, cfg, stubs...)
	cell := codeCell(t, 0)

	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)

	// The slow analyzer is simply missing; seven votes still make quorum.
	j := res.Judgment
	assert.True(t, j.Consensus.Consensus)
	assert.Equal(t, 7, j.Consensus.Votes)
	assert.NotContains(t, j.Votes, "sloth")
	assert.Equal(t, int64(1), f.orch.Stats().AbsentVotes)
}

func TestRunErrorBecomesAbsentVoteAndFeedsBreaker(t *testing.T) {
	boom := errors.New("backend unavailable")
	stubs := namedStubs(6, 70)
	stubs = append(stubs, &stubAnalyzer{id: "flaky", fail: boom})
	f := newFixture(t, DefaultConfig(), stubs...)
	cell := codeCell(t, 0)

	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)

	// Six settled votes miss the quorum of seven.
	j := res.Judgment
	assert.False(t, j.Consensus.Consensus)
	assert.Contains(t, j.Consensus.Reason, "insufficient votes: 6/7")

	m := f.registry.Breaker("flaky").Metrics()
	assert.Equal(t, 1, m.FailureCount)
}

func TestRunCancellationPropagates(t *testing.T) {
	stubs := namedStubs(7, 70)
	stubs = append(stubs, &stubAnalyzer{id: "sloth", block: true})
	f := newFixture(t, DefaultConfig(), stubs...)
	cell := codeCell(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.orch.Run(ctx, cell, cell.Tier)
	require.ErrorIs(t, err, context.Canceled)
	// The blocked analyzer saw the cancellation, not its own timeout.
	assert.Less(t, time.Since(start), DefaultConfig().AnalyzerTimeout)
}

func TestRunWithTracerAttached(t *testing.T) {
	registry := analyzer.NewRegistry(nil)
	stubs := namedStubs(8, 70)
	stubs = append(stubs, &stubAnalyzer{id: "flaky", fail: errors.New("backend unavailable")})
	for _, a := range stubs {
		require.NoError(t, registry.Register(a))
	}
	tracer, err := observability.NewTracerProvider(observability.TracingConfig{Enabled: false})
	require.NoError(t, err)

	orch, err := New(DefaultConfig(), Deps{
		Registry: registry,
		Engine:   consensus.NewEngine(nil, nil),
		Monitor:  health.NewMonitor(nil),
		Table:    policy.NewQTableWithSeed(nil, 7),
		Tracer:   tracer,
	})
	require.NoError(t, err)

	// Spans are emitted on the cycle, per-analyzer, consensus, and
	// policy-update paths, including the absent-vote branch.
	res, err := orch.Run(context.Background(), codeCell(t, 0), 0)
	require.NoError(t, err)
	assert.True(t, res.Judgment.Consensus.Consensus)
	assert.Equal(t, int64(1), orch.Stats().AbsentVotes)
}

func TestRunCancellationLeavesBreakersUntouched(t *testing.T) {
	var stubs []analyzer.Analyzer
	for _, name := range []string{"alpha", "beta", "gamma"} {
		stubs = append(stubs, &stubAnalyzer{id: name, block: true})
	}
	f := newFixture(t, DefaultConfig(), stubs...)
	cell := codeCell(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.orch.Run(ctx, cell, cell.Tier)
	require.ErrorIs(t, err, context.Canceled)

	// Abandoned analyzers were healthy; their breakers and the absent
	// counter must not record the caller's abort.
	for _, m := range f.registry.BreakerMetrics() {
		assert.Equal(t, 0, m.FailureCount, "breaker %s marked by caller abort", m.Name)
	}
	assert.Equal(t, int64(0), f.orch.Stats().AbsentVotes)
}

func TestRunPreCancelledContext(t *testing.T) {
	f := newFixture(t, DefaultConfig(), namedStubs(8, 70)...)
	cell := codeCell(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Run(ctx, cell, cell.Tier)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), f.orch.Stats().Cycles)
}

func TestRunDegradedLevelGatesModelsAndTier(t *testing.T) {
	stubs := namedStubs(7, 70)
	stubs = append(stubs, &stubAnalyzer{id: "oracle", score: 70, model: true})
	f := newFixture(t, DefaultConfig(), stubs...)
	cell := codeCell(t, 3)

	f.monitor.Force(health.LevelEmergency)
	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)

	// EMERGENCY excludes model-backed analyzers and caps the tier at 0.
	assert.Equal(t, health.LevelEmergency, res.Level)
	assert.Equal(t, 0, res.Tier)
	assert.Equal(t, 7, res.Eligible)
	assert.NotContains(t, res.Judgment.Votes, "oracle")

	// The learning signal lands on the granted tier, not the requested one.
	_, total := f.table.VisitCounts(cell.StateKeyAtTier(3))
	assert.Zero(t, total)
}

func TestRunDecisionForAlertJudgment(t *testing.T) {
	f := newFixture(t, DefaultConfig(), namedStubs(8, 20)...)
	cell := codeCell(t, 0)

	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)

	j := res.Judgment
	require.Equal(t, judge.VerdictBark, j.Verdict)
	require.GreaterOrEqual(t, j.Confidence, phi.PhiInv2)
	require.NotNil(t, res.Decision)
	assert.Equal(t, j.ID, res.Decision.JudgmentID)
	assert.Equal(t, cell.StateKey(), res.Decision.StateKey)
	assert.NotEmpty(t, res.Decision.RecommendedAction)
}

func TestRunNoDecisionWhenPlanningDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Planning = false
	f := newFixture(t, cfg, namedStubs(8, 20)...)
	cell := codeCell(t, 0)

	res, err := f.orch.Run(context.Background(), cell, cell.Tier)
	require.NoError(t, err)
	assert.Nil(t, res.Decision)
}

func TestEmergentAxiomActivation(t *testing.T) {
	tr := newAxiomTracker()
	assert.Equal(t, 5, tr.Count())

	// High residual trips EMERGENCE.
	activated := tr.Observe(0, 0.5)
	assert.Equal(t, []string{AxiomEmergence}, activated)
	assert.Equal(t, 6, tr.Count())
	assert.Contains(t, tr.Active(), AxiomEmergence)

	// Second trip is idempotent.
	assert.Empty(t, tr.Observe(0, 0.9))

	// AUTONOMY needs seven consecutive strong-consensus cycles.
	for i := 0; i < 6; i++ {
		assert.Empty(t, tr.Observe(1.0, 0))
	}
	assert.Equal(t, []string{AxiomAutonomy}, tr.Observe(1.0, 0))
	assert.Equal(t, 7, tr.Count())

	log := tr.Activations()
	require.Len(t, log, 2)
	assert.Equal(t, AxiomEmergence, log[0].Axiom)
	assert.Equal(t, AxiomAutonomy, log[1].Axiom)
}

func TestResidualVariance(t *testing.T) {
	mk := func(scores ...float64) []judge.AnalyzerResult {
		out := make([]judge.AnalyzerResult, 0, len(scores))
		for _, s := range scores {
			out = append(out, judge.NewAnalyzerResult("a", "c", s, 0.5))
		}
		return out
	}

	assert.Zero(t, residualVariance(nil))
	assert.Zero(t, residualVariance(mk(50)))
	assert.Zero(t, residualVariance(mk(70, 70, 70)))
	// Maximal polarization saturates at 1.
	assert.InDelta(t, 1.0, residualVariance(mk(0, 100, 0, 100)), 1e-9)
	// Intermediate spread lands in between.
	r := residualVariance(mk(40, 60))
	assert.Greater(t, r, 0.0)
	assert.Less(t, r, 1.0)
}

func TestScoreAxiomsBudgetDiscipline(t *testing.T) {
	cell := codeCell(t, 0)

	cheap := judge.NewAnalyzerResult("a", cell.ID, 70, 0.5).WithCost(0.1)
	dear := judge.NewAnalyzerResult("b", cell.ID, 70, 0.5).WithCost(2.0)

	cons := judge.ConsensusResult{
		Consensus: true, Votes: 2, Quorum: phi.Quorum,
		FinalScore: 70, Contributing: []judge.AnalyzerResult{cheap, dear},
	}
	scores := scoreAxioms(cell, cons, 0)

	// Budget is 1 USD by default and the round spent 2.1: fully burned.
	assert.Zero(t, scores[AxiomBurn])
	// Two votes against a quorum of seven.
	assert.InDelta(t, phi.MaxScore*2.0/float64(phi.Quorum), scores[AxiomCulture], 1e-9)
	// No reasoning or evidence on either vote.
	assert.Zero(t, scores[AxiomVerify])
}

func TestEffectiveTier(t *testing.T) {
	assert.Equal(t, 3, effectiveTier(3, health.LevelFull))
	assert.Equal(t, 2, effectiveTier(3, health.LevelReduced))
	assert.Equal(t, 0, effectiveTier(3, health.LevelEmergency))
	assert.Equal(t, 0, effectiveTier(-1, health.LevelFull))
	assert.Equal(t, 1, effectiveTier(1, health.LevelFull))
}
