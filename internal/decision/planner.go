// Package decision turns completed judgments into routing decisions.
//
// The planner sits between the judge and whatever acts on its output. It
// consults the learned policy with a shallow two-ply lookahead instead of
// greedy exploitation: each candidate action is scored by its own Q-value
// averaged with the best value reachable at the successor state, plus a
// UCT exploration bonus so rarely tried actions still get picked up.
package decision

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"cynic/internal/judge"
	"cynic/internal/logging"
	"cynic/internal/phi"
	"cynic/internal/policy"
)

// ActionConfidenceMin is the minimum judgment confidence required before
// the planner will recommend any action (phi^-2).
var ActionConfidenceMin = phi.PhiInv2

// uctC is the canonical UCT1 exploration constant, 1/sqrt(2).
var uctC = phi.UCTConstant

// PlannedAction is the outcome of one BestAction search.
type PlannedAction struct {
	Action   string
	Estimate float64  // two-ply UCT estimate used to rank candidates
	Trace    []string // one line per evaluated candidate
}

// RoutingDecision is emitted for judgments that warrant a follow-up.
type RoutingDecision struct {
	JudgmentID string
	StateKey   string

	Verdict    judge.Verdict
	Confidence float64

	RecommendedAction string
	QValue            float64
	Estimate          float64
	Trace             []string
}

// Planner consults the Q-policy to route alert judgments to actions.
type Planner struct {
	table *policy.QTable
	log   logging.Logger

	decided atomic.Int64
	skipped atomic.Int64
}

// NewPlanner wires a planner over the shared Q-table. A nil logger is
// replaced with a no-op one.
func NewPlanner(table *policy.QTable, log logging.Logger) *Planner {
	return &Planner{table: table, log: logging.OrNop(log)}
}

// ShouldAct reports whether a judgment warrants a routing decision:
// an alert verdict (BARK or GROWL) held with at least phi^-2 confidence.
func (p *Planner) ShouldAct(j judge.Judgment) bool {
	if j.Verdict != judge.VerdictBark && j.Verdict != judge.VerdictGrowl {
		return false
	}
	return j.Confidence >= ActionConfidenceMin
}

// Decide returns a routing decision for the judgment, or nil when no
// action is warranted. The recommended action comes from a two-ply
// lookahead over all verdict actions at the judgment's state.
func (p *Planner) Decide(j judge.Judgment) *RoutingDecision {
	if !p.ShouldAct(j) {
		p.skipped.Add(1)
		p.log.Debug("planner skip: verdict=%s confidence=%.3f", j.Verdict, j.Confidence)
		return nil
	}

	stateKey := j.Cell.StateKey()
	planned := p.BestAction(stateKey, judge.Verdicts)
	p.decided.Add(1)

	p.log.Info("decision: state=%s verdict=%s action=%s estimate=%.3f",
		stateKey, j.Verdict, planned.Action, planned.Estimate)

	return &RoutingDecision{
		JudgmentID:        j.ID,
		StateKey:          stateKey,
		Verdict:           j.Verdict,
		Confidence:        j.Confidence,
		RecommendedAction: planned.Action,
		QValue:            p.table.PredictQ(stateKey, planned.Action),
		Estimate:          planned.Estimate,
		Trace:             planned.Trace,
	}
}

// BestAction ranks candidates by a two-ply estimate and returns the
// winner. For each candidate:
//
//	estimate = (Q(s,a) + bestQ(successor(s))) / 2
//	         + uctC * sqrt(ln(totalVisits) / max(visits(a), 1))
//
// where successor(s) is the state key with its tier suffix incremented.
// Unseen actions use the neutral 0.5 prior and visits=0, which gives
// them the largest exploration bonus. Ties keep the earliest candidate,
// so the search is deterministic for a fixed table.
func (p *Planner) BestAction(stateKey string, candidates []string) PlannedAction {
	if len(candidates) == 0 {
		return PlannedAction{Action: string(judge.VerdictWag)}
	}

	visits, total := p.table.VisitCounts(stateKey)
	if total < 1 {
		total = 1
	}
	successorQ := p.successorValue(stateKey)

	best := PlannedAction{Action: candidates[0], Estimate: math.Inf(-1)}
	trace := make([]string, 0, len(candidates))

	for _, action := range candidates {
		q := p.table.PredictQ(stateKey, action)
		v := visits[action]

		avg := (q + successorQ) / 2.0
		bonus := uctC * math.Sqrt(math.Log(float64(total))/float64(max(v, 1)))
		estimate := avg + bonus

		trace = append(trace, fmt.Sprintf(
			"%s: q=%.3f succ=%.3f visits=%d uct=%.3f", action, q, successorQ, v, estimate))

		if estimate > best.Estimate {
			best.Action = action
			best.Estimate = estimate
		}
	}
	best.Trace = trace
	return best
}

// successorValue is the leaf estimate for the lookahead: the best known
// value at the state one tier deeper, or the 0.5 neutral prior when that
// state has never been visited.
func (p *Planner) successorValue(stateKey string) float64 {
	if v, ok := p.table.BestValue(successorKey(stateKey)); ok {
		return v
	}
	return 0.5
}

// successorKey increments the numeric tier suffix of a state key.
// Keys without a numeric suffix map to themselves.
func successorKey(stateKey string) string {
	idx := strings.LastIndex(stateKey, ":")
	if idx < 0 {
		return stateKey
	}
	tier, err := strconv.Atoi(stateKey[idx+1:])
	if err != nil {
		return stateKey
	}
	return stateKey[:idx+1] + strconv.Itoa(tier+1)
}

// Counts reports how many judgments produced decisions and how many
// were filtered out.
func (p *Planner) Counts() (decided, skipped int64) {
	return p.decided.Load(), p.skipped.Load()
}
