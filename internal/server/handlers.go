package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cynic/internal/health"
	"cynic/internal/judge"
)

// judgeRequest mirrors judge.CellSpec over the wire. Novelty and
// complexity are pointers so "absent" and "zero" stay distinguishable.
type judgeRequest struct {
	Domain     string   `json:"domain" binding:"required"`
	Analysis   string   `json:"analysis" binding:"required"`
	Content    any      `json:"content"`
	Context    string   `json:"context"`
	Novelty    *float64 `json:"novelty"`
	Complexity *float64 `json:"complexity"`
	Risk       float64  `json:"risk"`
	BudgetUSD  float64  `json:"budget_usd"`
	Tier       int      `json:"tier"`
}

type judgeResponse struct {
	JudgmentID   string             `json:"judgment_id"`
	CellID       string             `json:"cell_id"`
	Score        float64            `json:"score"`
	Verdict      string             `json:"verdict"`
	Confidence   float64            `json:"confidence"`
	Consensus    bool               `json:"consensus"`
	Reason       string             `json:"reason,omitempty"`
	Votes        map[string]float64 `json:"votes"`
	AxiomScores  map[string]float64 `json:"axiom_scores"`
	ActiveAxioms []string           `json:"active_axioms"`
	Residual     float64            `json:"residual_variance"`
	ResidualHigh bool               `json:"residual_high"`
	Level        string             `json:"level"`
	Tier         int                `json:"tier"`
	CostUSD      float64            `json:"cost_usd"`
	DurationMS   int64              `json:"duration_ms"`
	Decision     any                `json:"decision,omitempty"`
}

func (s *Server) handleJudge(c *gin.Context) {
	var req judgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cell, err := judge.NewCell(judge.CellSpec{
		Domain:     judge.Domain(req.Domain),
		Analysis:   judge.Analysis(req.Analysis),
		Content:    req.Content,
		Context:    req.Context,
		Novelty:    req.Novelty,
		Complexity: req.Complexity,
		Risk:       req.Risk,
		BudgetUSD:  req.BudgetUSD,
		Tier:       req.Tier,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.deps.Orchestrator.Run(c.Request.Context(), cell, cell.Tier)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	j := res.Judgment
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Append(j); err != nil {
			s.log.Warn("audit append failed: %v", err)
		}
	}

	resp := judgeResponse{
		JudgmentID:   j.ID,
		CellID:       j.Cell.ID,
		Score:        j.Score,
		Verdict:      string(j.Verdict),
		Confidence:   j.Confidence,
		Consensus:    j.Consensus.Consensus,
		Reason:       j.Consensus.Reason,
		Votes:        j.Votes,
		AxiomScores:  j.AxiomScores,
		ActiveAxioms: j.ActiveAxioms,
		Residual:     j.ResidualVariance,
		ResidualHigh: j.ResidualHigh,
		Level:        res.Level.String(),
		Tier:         res.Tier,
		CostUSD:      j.CostUSD,
		DurationMS:   j.Duration.Milliseconds(),
	}
	if res.Decision != nil {
		resp.Decision = res.Decision
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthReport(c *gin.Context) {
	var sample health.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level := s.deps.Monitor.Report(sample)
	c.JSON(http.StatusOK, gin.H{
		"level":         level.String(),
		"allows_models": level.AllowsModels(),
		"max_tier":      level.MaxTier(),
	})
}

type forceRequest struct {
	Level string `json:"level"`
	Clear bool   `json:"clear"`
}

func (s *Server) handleHealthForce(c *gin.Context) {
	var req forceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Clear {
		s.deps.Monitor.ClearForce()
		c.JSON(http.StatusOK, gin.H{"level": s.deps.Monitor.Current().String(), "forced": false})
		return
	}
	level, ok := health.ParseLevel(req.Level)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level " + req.Level})
		return
	}
	s.deps.Monitor.Force(level)
	c.JSON(http.StatusOK, gin.H{"level": level.String(), "forced": true})
}

// feedbackRequest is an external learning signal: a collaborator telling
// the policy how an earlier recommendation actually worked out.
type feedbackRequest struct {
	StateKey string  `json:"state_key" binding:"required"`
	Action   string  `json:"action" binding:"required"`
	Reward   float64 `json:"reward"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := s.deps.Table.Update(req.StateKey, req.Action, req.Reward)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state_key": entry.StateKey,
		"action":    entry.Action,
		"value":     entry.Value,
		"visits":    entry.Visits,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"health":         s.deps.Monitor.Status(),
		"orchestrator":   s.deps.Orchestrator.Stats(),
		"breakers":       s.deps.Registry.BreakerMetrics(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"consensus":    s.deps.Engine.Stats(),
		"orchestrator": s.deps.Orchestrator.Stats(),
		"policy":       s.deps.Table.Stats(),
		"activations":  s.deps.Orchestrator.Activations(),
	})
}

func (s *Server) handleRecentRounds(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "10"))
	c.JSON(http.StatusOK, gin.H{"rounds": s.deps.Engine.Recent(n)})
}

func (s *Server) handlePolicyStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Table.Stats())
}

func (s *Server) handlePolicyTop(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "10"))
	c.JSON(http.StatusOK, gin.H{"states": s.deps.Table.TopStates(n)})
}
