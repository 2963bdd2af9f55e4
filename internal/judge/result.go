package judge

import (
	"time"

	"cynic/internal/phi"
)

// AnalyzerResult is one analyzer's vote on a Cell.
//
// Score and confidence are clamped at construction; no caller ever
// observes an out-of-range value.
type AnalyzerResult struct {
	AnalyzerID string
	CellID     string
	Score      float64 // [0, phi.MaxScore]
	Confidence float64 // [0, phi.MaxConfidence]
	Reasoning  string
	Evidence   map[string]any
	Veto       bool
	Latency    time.Duration
	CostUSD    float64
	Timestamp  time.Time
}

// NewAnalyzerResult builds a bounds-enforced vote.
func NewAnalyzerResult(analyzerID, cellID string, score, confidence float64) AnalyzerResult {
	return AnalyzerResult{
		AnalyzerID: analyzerID,
		CellID:     cellID,
		Score:      phi.BoundScore(score),
		Confidence: phi.BoundConfidence(confidence),
		Timestamp:  time.Now(),
	}
}

// WithReasoning returns a copy carrying the human-readable explanation.
func (r AnalyzerResult) WithReasoning(reasoning string) AnalyzerResult {
	r.Reasoning = reasoning
	return r
}

// WithEvidence returns a copy carrying structured supporting data.
func (r AnalyzerResult) WithEvidence(evidence map[string]any) AnalyzerResult {
	r.Evidence = evidence
	return r
}

// WithVeto returns a copy with the veto flag set. A veto blocks consensus
// regardless of every other vote.
func (r AnalyzerResult) WithVeto() AnalyzerResult {
	r.Veto = true
	return r
}

// WithLatency returns a copy carrying the observed analyze latency.
func (r AnalyzerResult) WithLatency(d time.Duration) AnalyzerResult {
	r.Latency = d
	return r
}

// WithCost returns a copy carrying the spend attributed to this vote.
func (r AnalyzerResult) WithCost(usd float64) AnalyzerResult {
	if usd > 0 {
		r.CostUSD = usd
	}
	return r
}

// ConsensusResult is the output of one aggregation round.
type ConsensusResult struct {
	Consensus       bool
	Votes           int
	Quorum          int
	FinalScore      float64
	FinalConfidence float64
	FinalVerdict    Verdict
	Reason          string
	Contributing    []AnalyzerResult
}
