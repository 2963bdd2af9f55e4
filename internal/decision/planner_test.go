package decision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cynic/internal/judge"
	"cynic/internal/phi"
	"cynic/internal/policy"
)

func testCell(t *testing.T) judge.Cell {
	t.Helper()
	cell, err := judge.NewCell(judge.CellSpec{
		Domain:   judge.DomainCode,
		Analysis: judge.AnalysisJudge,
		Content:  "func main() {}",
		Tier:     1,
	})
	require.NoError(t, err)
	return cell
}

func testJudgment(t *testing.T, score, confidence float64) judge.Judgment {
	t.Helper()
	return judge.NewJudgment(testCell(t), score, confidence, judge.ConsensusResult{})
}

func TestShouldActGating(t *testing.T) {
	p := NewPlanner(policy.NewQTable(nil), nil)

	cases := []struct {
		name       string
		score      float64
		confidence float64
		want       bool
	}{
		{"bark with confidence", 20, 0.5, true},
		{"growl with confidence", 50, phi.PhiInv2, true},
		{"growl below threshold", 50, 0.381, false},
		{"wag never acts", 70, 0.6, false},
		{"howl never acts", 90, 0.6, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.ShouldAct(testJudgment(t, tc.score, tc.confidence)))
		})
	}
}

func TestDecideReturnsNilWhenNotActionable(t *testing.T) {
	p := NewPlanner(policy.NewQTable(nil), nil)

	assert.Nil(t, p.Decide(testJudgment(t, 70, 0.6)))

	decided, skipped := p.Counts()
	assert.Equal(t, int64(0), decided)
	assert.Equal(t, int64(1), skipped)
}

func TestDecideProducesRoutingDecision(t *testing.T) {
	q := policy.NewQTable(nil)
	j := testJudgment(t, 20, 0.5)
	state := j.Cell.StateKey()

	// Make GROWL clearly the best known action at this state.
	for i := 0; i < 30; i++ {
		_, err := q.Update(state, "GROWL", 1.0)
		require.NoError(t, err)
		_, err = q.Update(state, "BARK", 0.0)
		require.NoError(t, err)
		_, err = q.Update(state, "WAG", 0.0)
		require.NoError(t, err)
		_, err = q.Update(state, "HOWL", 0.0)
		require.NoError(t, err)
	}

	p := NewPlanner(q, nil)
	d := p.Decide(j)
	require.NotNil(t, d)

	assert.Equal(t, j.ID, d.JudgmentID)
	assert.Equal(t, state, d.StateKey)
	assert.Equal(t, judge.VerdictBark, d.Verdict)
	assert.Equal(t, "GROWL", d.RecommendedAction)
	assert.Equal(t, q.PredictQ(state, "GROWL"), d.QValue)
	assert.Len(t, d.Trace, len(judge.Verdicts))

	decided, skipped := p.Counts()
	assert.Equal(t, int64(1), decided)
	assert.Equal(t, int64(0), skipped)
}

func TestBestActionColdStartKeepsFirstCandidate(t *testing.T) {
	p := NewPlanner(policy.NewQTable(nil), nil)

	// Empty table: every candidate scores the same, so the first wins.
	planned := p.BestAction("CODE:JUDGE:1", judge.Verdicts)
	assert.Equal(t, judge.Verdicts[0], planned.Action)
	assert.InDelta(t, 0.5, planned.Estimate, 1e-12)
}

func TestBestActionNoCandidatesFallsBackToWag(t *testing.T) {
	p := NewPlanner(policy.NewQTable(nil), nil)
	planned := p.BestAction("CODE:JUDGE:1", nil)
	assert.Equal(t, "WAG", planned.Action)
}

func TestBestActionUsesSuccessorState(t *testing.T) {
	q := policy.NewQTable(nil)
	state := "CODE:JUDGE:1"

	// No entries at the current state, but the tier-2 successor has a
	// strongly learned HOWL value that must raise every estimate.
	for i := 0; i < 30; i++ {
		_, err := q.Update("CODE:JUDGE:2", "HOWL", 1.0)
		require.NoError(t, err)
	}
	succ, ok := q.BestValue("CODE:JUDGE:2")
	require.True(t, ok)
	require.Greater(t, succ, 0.5)

	p := NewPlanner(q, nil)
	planned := p.BestAction(state, judge.Verdicts)

	// Cold current state: estimate = (0.5 + successor)/2, no visits bonus.
	assert.InDelta(t, (0.5+succ)/2, planned.Estimate, 1e-12)
}

func TestBestActionExplorationBonusPromotesUnseen(t *testing.T) {
	q := policy.NewQTable(nil)
	state := "CODE:JUDGE:1"

	// WAG is well visited with a mediocre value; BARK is unseen. The
	// UCT bonus on zero visits should outweigh WAG's small edge.
	for i := 0; i < 50; i++ {
		_, err := q.Update(state, "WAG", 0.55)
		require.NoError(t, err)
	}

	p := NewPlanner(q, nil)
	planned := p.BestAction(state, []string{"WAG", "BARK"})
	assert.Equal(t, "BARK", planned.Action)

	// Sanity on the bonus arithmetic for the unseen arm.
	_, total := q.VisitCounts(state)
	wantBonus := phi.UCTConstant * math.Sqrt(math.Log(float64(total)))
	assert.Greater(t, planned.Estimate, wantBonus)
}

func TestSuccessorKey(t *testing.T) {
	assert.Equal(t, "CODE:JUDGE:2", successorKey("CODE:JUDGE:1"))
	assert.Equal(t, "SYSTEM:HEALTH:13", successorKey("SYSTEM:HEALTH:12"))
	assert.Equal(t, "CODE:JUDGE:deep", successorKey("CODE:JUDGE:deep"))
	assert.Equal(t, "flat", successorKey("flat"))
}
