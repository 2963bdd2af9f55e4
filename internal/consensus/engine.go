// Package consensus aggregates per-analyzer votes for one Cell under a
// Byzantine-style weighted quorum: veto dominance, 2f+1 quorum, weighted
// geometric-mean scoring. The four-phase naming (pre-prepare, prepare,
// commit, reply) models the distributed protocol but runs synchronously
// within one scheduling cycle; the phase log exists for audit narration.
package consensus

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"cynic/internal/judge"
	"cynic/internal/logging"
	"cynic/internal/phi"
)

// Phase names one step of the aggregation round.
type Phase string

const (
	PhasePrePrepare Phase = "PRE_PREPARE"
	PhasePrepare    Phase = "PREPARE"
	PhaseCommit     Phase = "COMMIT"
	PhaseReply      Phase = "REPLY"
)

// zeroScoreFloor replaces exact-zero votes before the geometric mean so
// a single zero cannot collapse the whole product.
const zeroScoreFloor = 0.001

// recentRounds is how many completed rounds are retained for audit.
const recentRounds = 89 // F(11)

// PhaseEvent is one audit entry in a round's phase log.
type PhaseEvent struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// Round is the audit record of one aggregation.
type Round struct {
	ID        string       `json:"id"`
	CellID    string       `json:"cell_id"`
	Votes     int          `json:"votes"`
	Consensus bool         `json:"consensus"`
	Verdict   string       `json:"verdict,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Phases    []PhaseEvent `json:"phases"`
	StartedAt time.Time    `json:"started_at"`
}

func (r *Round) record(phase Phase, format string, args ...any) {
	r.Phases = append(r.Phases, PhaseEvent{
		Phase:     phase,
		Timestamp: time.Now(),
		Note:      fmt.Sprintf(format, args...),
	})
}

// WeightFunc resolves an analyzer's fixed priority weight. Unknown
// analyzers weigh 1.
type WeightFunc func(analyzerID string) float64

// Engine aggregates votes. Safe for concurrent Run calls; only the
// audit cache is shared.
type Engine struct {
	weights WeightFunc
	logger  logging.Logger

	mu        sync.Mutex
	completed *lru.Cache[string, *Round]
	rounds    int
	reached   int
	vetoed    int
}

// NewEngine builds an engine with the given weight lookup (nil means
// every vote weighs 1).
func NewEngine(weights WeightFunc, logger logging.Logger) *Engine {
	cache, _ := lru.New[string, *Round](recentRounds)
	if weights == nil {
		weights = func(string) float64 { return 1 }
	}
	return &Engine{
		weights:   weights,
		logger:    logging.OrNop(logger),
		completed: cache,
	}
}

// Run executes one aggregation round over the collected votes.
//
// Order is fixed: veto check, quorum check, weighted geometric-mean
// score, mean confidence, verdict. Veto and missing quorum produce a
// failed-but-valid ConsensusResult, never an error.
func (e *Engine) Run(cell judge.Cell, results []judge.AnalyzerResult) judge.ConsensusResult {
	round := &Round{
		ID:        uuid.NewString(),
		CellID:    cell.ID,
		Votes:     len(results),
		StartedAt: time.Now(),
	}
	round.record(PhasePrePrepare, "proposing cell %s with %d collected votes", cell.ID, len(results))

	// PREPARE: vote collection and veto scan.
	var vetoers []string
	for _, r := range results {
		if r.Veto {
			vetoers = append(vetoers, r.AnalyzerID)
		}
	}
	sort.Strings(vetoers)
	round.record(PhasePrepare, "votes=%d vetoes=%d", len(results), len(vetoers))

	if len(vetoers) > 0 {
		reason := fmt.Sprintf("veto by %s", strings.Join(vetoers, ", "))
		round.record(PhaseReply, "consensus blocked: %s", reason)
		result := judge.ConsensusResult{
			Consensus:    false,
			Votes:        len(results),
			Quorum:       phi.Quorum,
			Reason:       reason,
			Contributing: results,
		}
		e.finish(round, result, true)
		return result
	}

	// COMMIT: every prepared vote commits in-process.
	round.record(PhaseCommit, "committed %d votes", len(results))

	if len(results) < phi.Quorum {
		reason := fmt.Sprintf("insufficient votes: %d/%d", len(results), phi.Quorum)
		round.record(PhaseReply, "consensus failed: %s", reason)
		result := judge.ConsensusResult{
			Consensus:    false,
			Votes:        len(results),
			Quorum:       phi.Quorum,
			Reason:       reason,
			Contributing: results,
		}
		e.finish(round, result, false)
		return result
	}

	// REPLY: weighted aggregation.
	scores := make([]float64, 0, len(results))
	weights := make([]float64, 0, len(results))
	confidenceSum := 0.0
	for _, r := range results {
		score := r.Score
		if score <= 0 {
			score = zeroScoreFloor
		}
		scores = append(scores, score)
		weights = append(weights, e.weights(r.AnalyzerID))
		confidenceSum += r.Confidence
	}

	finalScore := phi.BoundScore(phi.WeightedGeometricMean(scores, weights))
	finalConfidence := phi.BoundConfidence(confidenceSum / float64(len(results)))
	verdict := judge.VerdictFromScore(finalScore)
	round.record(PhaseReply, "consensus reached: score=%.2f verdict=%s confidence=%.3f",
		finalScore, verdict, finalConfidence)

	result := judge.ConsensusResult{
		Consensus:       true,
		Votes:           len(results),
		Quorum:          phi.Quorum,
		FinalScore:      finalScore,
		FinalConfidence: finalConfidence,
		FinalVerdict:    verdict,
		Contributing:    results,
	}
	e.finish(round, result, false)
	return result
}

func (e *Engine) finish(round *Round, result judge.ConsensusResult, vetoed bool) {
	round.Consensus = result.Consensus
	round.Verdict = string(result.FinalVerdict)
	round.Reason = result.Reason

	e.mu.Lock()
	e.rounds++
	if result.Consensus {
		e.reached++
	}
	if vetoed {
		e.vetoed++
	}
	e.completed.Add(round.ID, round)
	e.mu.Unlock()

	if result.Consensus {
		e.logger.Debug("round %s: consensus score=%.2f votes=%d", round.ID, result.FinalScore, result.Votes)
	} else {
		e.logger.Info("round %s: no consensus (%s)", round.ID, result.Reason)
	}
}

// Recent returns up to n of the most recently completed rounds, newest
// last.
func (e *Engine) Recent(n int) []*Round {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := e.completed.Keys()
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := make([]*Round, 0, len(keys))
	for _, k := range keys {
		if round, ok := e.completed.Peek(k); ok {
			out = append(out, round)
		}
	}
	return out
}

// Stats summarizes engine activity.
type Stats struct {
	Rounds      int     `json:"rounds"`
	Reached     int     `json:"reached"`
	Vetoed      int     `json:"vetoed"`
	SuccessRate float64 `json:"success_rate"`
	Quorum      int     `json:"quorum"`
}

// Stats returns aggregate counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	rate := 0.0
	if e.rounds > 0 {
		rate = float64(e.reached) / float64(e.rounds)
	}
	return Stats{
		Rounds:      e.rounds,
		Reached:     e.reached,
		Vetoed:      e.vetoed,
		SuccessRate: rate,
		Quorum:      phi.Quorum,
	}
}

// SuccessRate returns the recent consensus success rate, assuming
// moderate health before any rounds have completed.
func (e *Engine) SuccessRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rounds == 0 {
		return phi.PhiInv
	}
	return float64(e.reached) / float64(e.rounds)
}
