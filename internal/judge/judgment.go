package judge

import (
	"time"

	"github.com/google/uuid"

	"cynic/internal/phi"
)

// Judgment is the durable, immutable record of one full evaluation
// cycle. Created once when the cycle completes; consumed by the decision
// layer and by external persistence.
type Judgment struct {
	ID   string
	Cell Cell

	Score      float64 // [0, phi.MaxScore]
	Verdict    Verdict
	Confidence float64 // [0, phi.MaxConfidence]

	AxiomScores  map[string]float64
	ActiveAxioms []string

	Votes     map[string]float64 // analyzer id → score
	Consensus ConsensusResult

	// ResidualVariance is the unexplained spread across analyzer votes,
	// normalized to [0,1]. High residual marks the round as carrying
	// structure none of the analyzers could name.
	ResidualVariance float64
	ResidualHigh     bool

	CostUSD  float64
	Duration time.Duration

	CreatedAt time.Time
}

// NewJudgment assembles the record, enforcing score and confidence
// bounds one final time so no out-of-range value survives aggregation.
func NewJudgment(cell Cell, score, confidence float64, consensus ConsensusResult) Judgment {
	score = phi.BoundScore(score)
	votes := make(map[string]float64, len(consensus.Contributing))
	cost := 0.0
	for _, r := range consensus.Contributing {
		votes[r.AnalyzerID] = r.Score
		cost += r.CostUSD
	}
	return Judgment{
		ID:         uuid.NewString(),
		Cell:       cell,
		Score:      score,
		Verdict:    VerdictFromScore(score),
		Confidence: phi.BoundConfidence(confidence),
		Votes:      votes,
		Consensus:  consensus,
		CostUSD:    cost,
		CreatedAt:  time.Now(),
	}
}

// Reward normalizes the judgment score into the [0,1] reward the
// Q-policy learns from.
func (j Judgment) Reward() float64 {
	return phi.Bound(j.Score/phi.MaxScore, 0, 1)
}
