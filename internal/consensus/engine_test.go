package consensus

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cynic/internal/judge"
	"cynic/internal/phi"
)

func newCell(t *testing.T) judge.Cell {
	t.Helper()
	cell, err := judge.NewCell(judge.CellSpec{Domain: judge.DomainCode, Analysis: judge.AnalysisJudge})
	require.NoError(t, err)
	return cell
}

func votes(cell judge.Cell, n int, score float64) []judge.AnalyzerResult {
	out := make([]judge.AnalyzerResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, judge.NewAnalyzerResult(fmt.Sprintf("analyzer-%d", i), cell.ID, score, 0.5))
	}
	return out
}

func TestConsensusReachedAtQuorum(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)

	// 8 of 11 agents vote around 70 with no veto.
	result := e.Run(cell, votes(cell, 8, 70))
	assert.True(t, result.Consensus)
	assert.Equal(t, 8, result.Votes)
	assert.Equal(t, phi.Quorum, result.Quorum)
	assert.Equal(t, judge.VerdictWag, result.FinalVerdict)
	assert.InDelta(t, 70, result.FinalScore, 0.5)
	assert.Equal(t, 0.5, result.FinalConfidence)
}

func TestVetoDominance(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)

	// One veto among 8 high votes blocks consensus unconditionally.
	vs := votes(cell, 8, 95)
	vs[3] = vs[3].WithVeto()
	result := e.Run(cell, vs)
	assert.False(t, result.Consensus)
	assert.Contains(t, result.Reason, "analyzer-3")
	assert.Equal(t, 8, result.Votes)

	// Even a full pool of perfect scores cannot out-vote a veto.
	vs = votes(cell, 11, 100)
	vs[0] = vs[0].WithVeto()
	assert.False(t, e.Run(cell, vs).Consensus)
}

func TestQuorumMonotonicity(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)

	require.True(t, e.Run(cell, votes(cell, 7, 70)).Consensus, "exactly quorum must succeed")

	// Same scores, one fewer vote: must flip to failure.
	result := e.Run(cell, votes(cell, 6, 70))
	assert.False(t, result.Consensus)
	assert.Contains(t, result.Reason, "6/7")
}

func TestWeightedGeometricMeanAggregation(t *testing.T) {
	weights := map[string]float64{
		"analyzer-0": phi.Phi3,
		"analyzer-1": 1,
		"analyzer-2": 1,
		"analyzer-3": 1,
		"analyzer-4": 1,
		"analyzer-5": 1,
		"analyzer-6": 1,
	}
	e := NewEngine(func(id string) float64 { return weights[id] }, nil)
	cell := newCell(t)

	vs := votes(cell, 7, 80)
	vs[0] = judge.NewAnalyzerResult("analyzer-0", cell.ID, 20, 0.5)
	result := e.Run(cell, vs)
	require.True(t, result.Consensus)

	// Hand-computed weighted geometric mean.
	logSum := phi.Phi3*math.Log(20) + 6*math.Log(80)
	want := math.Exp(logSum / (phi.Phi3 + 6))
	assert.InDelta(t, want, result.FinalScore, 1e-6)

	// The heavily weighted low vote drags the score far below the
	// arithmetic mean (~71.4).
	assert.Less(t, result.FinalScore, 60.0)
}

func TestZeroVoteFloored(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)

	vs := votes(cell, 7, 70)
	vs[0] = judge.NewAnalyzerResult("analyzer-0", cell.ID, 0, 0.5)
	result := e.Run(cell, vs)
	require.True(t, result.Consensus)
	assert.Greater(t, result.FinalScore, 0.0, "one zero vote must not zero the whole product")
	assert.Less(t, result.FinalScore, 70.0)
}

func TestConfidenceReclamped(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)

	vs := make([]judge.AnalyzerResult, 0, 7)
	for i := 0; i < 7; i++ {
		vs = append(vs, judge.NewAnalyzerResult(fmt.Sprintf("analyzer-%d", i), cell.ID, 70, 10))
	}
	result := e.Run(cell, vs)
	assert.LessOrEqual(t, result.FinalConfidence, phi.MaxConfidence)
}

func TestPhaseAuditTrail(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)
	e.Run(cell, votes(cell, 8, 70))

	recent := e.Recent(1)
	require.Len(t, recent, 1)
	round := recent[0]
	require.Len(t, round.Phases, 4)
	assert.Equal(t, PhasePrePrepare, round.Phases[0].Phase)
	assert.Equal(t, PhasePrepare, round.Phases[1].Phase)
	assert.Equal(t, PhaseCommit, round.Phases[2].Phase)
	assert.Equal(t, PhaseReply, round.Phases[3].Phase)
	assert.True(t, round.Consensus)
}

func TestStatsAndSuccessRate(t *testing.T) {
	e := NewEngine(nil, nil)
	cell := newCell(t)

	assert.Equal(t, phi.PhiInv, e.SuccessRate(), "no data means moderate assumed health")

	e.Run(cell, votes(cell, 8, 70))
	e.Run(cell, votes(cell, 3, 70))
	vetoed := votes(cell, 8, 70)
	vetoed[0] = vetoed[0].WithVeto()
	e.Run(cell, vetoed)

	stats := e.Stats()
	assert.Equal(t, 3, stats.Rounds)
	assert.Equal(t, 1, stats.Reached)
	assert.Equal(t, 1, stats.Vetoed)
	assert.InDelta(t, 1.0/3.0, e.SuccessRate(), 1e-9)
}
