// Package orchestrator runs the full judgment cycle: health-gated
// analyzer selection, concurrent fan-out, consensus aggregation, axiom
// scoring, and the learning write-back into the Q-policy.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cynic/internal/analyzer"
	"cynic/internal/consensus"
	"cynic/internal/decision"
	"cynic/internal/health"
	"cynic/internal/judge"
	"cynic/internal/logging"
	"cynic/internal/observability"
	"cynic/internal/phi"
	"cynic/internal/policy"
)

// Config tunes one orchestrator instance.
type Config struct {
	// AnalyzerTimeout bounds each analyzer call independently.
	AnalyzerTimeout time.Duration
	// MaxConcurrent caps the fan-out worker count.
	MaxConcurrent int
	// Planning enables the decision layer after each judgment.
	Planning bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AnalyzerTimeout: 10 * time.Second,
		MaxConcurrent:   phi.AnalyzersTotal,
		Planning:        true,
	}
}

// Deps carries the collaborators a cycle needs. Metrics, Tracer, and
// Planner are optional; Logger defaults to a no-op.
type Deps struct {
	Registry *analyzer.Registry
	Engine   *consensus.Engine
	Monitor  *health.Monitor
	Table    *policy.QTable
	Planner  *decision.Planner
	Metrics  *observability.MetricsCollector
	Tracer   *observability.TracerProvider
	Logger   logging.Logger
}

// CycleResult is the outcome of one Run call. Decision is nil when
// planning is disabled or the judgment did not warrant action.
type CycleResult struct {
	Judgment judge.Judgment
	Decision *decision.RoutingDecision
	Level    health.DetailLevel
	Tier     int
	Eligible int
}

// Stats is a point-in-time view of orchestrator counters.
type Stats struct {
	Cycles       int64    `json:"cycles"`
	Vetoes       int64    `json:"vetoes"`
	NoConsensus  int64    `json:"no_consensus"`
	AbsentVotes  int64    `json:"absent_votes"`
	ActiveAxioms []string `json:"active_axioms"`
}

// Orchestrator coordinates judgment cycles. Cycles for different cells
// are independent and may run concurrently; the health monitor and the
// Q-table are the only shared mutable state.
type Orchestrator struct {
	cfg      Config
	registry *analyzer.Registry
	engine   *consensus.Engine
	monitor  *health.Monitor
	table    *policy.QTable
	planner  *decision.Planner
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	axioms   *axiomTracker
	log      logging.Logger

	cycles      atomic.Int64
	vetoes      atomic.Int64
	noConsensus atomic.Int64
	absentVotes atomic.Int64
}

// New wires an orchestrator from its collaborators.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Engine == nil || deps.Monitor == nil || deps.Table == nil {
		return nil, fmt.Errorf("invalid configuration: registry, engine, monitor, and table are required")
	}
	if cfg.AnalyzerTimeout <= 0 {
		cfg.AnalyzerTimeout = DefaultConfig().AnalyzerTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.Planning && deps.Planner == nil {
		deps.Planner = decision.NewPlanner(deps.Table, deps.Logger)
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: deps.Registry,
		engine:   deps.Engine,
		monitor:  deps.Monitor,
		table:    deps.Table,
		planner:  deps.Planner,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		axioms:   newAxiomTracker(),
		log:      logging.OrNop(deps.Logger),
	}, nil
}

// Run executes one judgment cycle for the cell. tierHint asks for a
// detail tier; the current health level caps what is actually granted.
// Every completed cycle yields a judgment, consensus or not. The only
// error cases are caller cancellation and an invalid cell.
func (o *Orchestrator) Run(ctx context.Context, cell judge.Cell, tierHint int) (CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}

	start := time.Now()
	level := o.monitor.Assess()
	tier := effectiveTier(tierHint, level)

	var span trace.Span
	if o.tracer != nil {
		attrs := observability.CellAttrs(string(cell.Domain), string(cell.Analysis), tier)
		attrs = append(attrs, attribute.String(observability.AttrLevel, level.String()))
		ctx, span = o.tracer.StartSpan(ctx, observability.SpanJudgeCycle, attrs...)
		defer span.End()
	}

	if o.metrics != nil {
		o.metrics.RecordDetailLevel(ctx, int(level))
	}

	actx := analyzer.Context{
		Level:        level,
		ActiveAxioms: o.axioms.Count(),
		BudgetUSD:    cell.BudgetUSD,
	}

	eligible := o.registry.Eligible(cell, level, tier)
	o.log.Debug("cycle start: cell=%s level=%s tier=%d eligible=%d",
		cell.ID, level, tier, len(eligible))

	results, err := o.fanOut(ctx, cell, actx, eligible)
	if err != nil {
		return CycleResult{}, err
	}

	var consSpan trace.Span
	if o.tracer != nil {
		_, consSpan = o.tracer.StartSpan(ctx, observability.SpanConsensusRound)
	}
	cons := o.engine.Run(cell, results)
	if consSpan != nil {
		consSpan.SetAttributes(
			attribute.Bool(observability.AttrConsensus, cons.Consensus),
			attribute.Bool(observability.AttrVeto, !cons.Consensus && isVetoReason(cons.Reason)),
			attribute.Float64(observability.AttrScore, cons.FinalScore),
		)
		consSpan.End()
	}

	residual := residualVariance(results)
	axiomScores := scoreAxioms(cell, cons, residual)
	activated := o.axioms.Observe(consensusStrength(cons), residual)
	for _, name := range activated {
		o.log.Info("emergent axiom activated: %s (residual=%.3f)", name, residual)
	}

	j := judge.NewJudgment(cell, cons.FinalScore, cons.FinalConfidence, cons)
	j.AxiomScores = axiomScores
	j.ActiveAxioms = o.axioms.Active()
	j.ResidualVariance = residual
	j.ResidualHigh = residual > phi.PhiInv
	j.Duration = time.Since(start)

	if span != nil {
		span.SetAttributes(observability.VerdictAttrs(string(j.Verdict), j.Score, j.Confidence)...)
		span.SetAttributes(attribute.Float64(observability.AttrCost, j.CostUSD))
	}

	o.learn(ctx, j)
	o.record(ctx, j)

	var routed *decision.RoutingDecision
	if o.cfg.Planning && o.planner != nil {
		routed = o.planner.Decide(j)
	}

	return CycleResult{
		Judgment: j,
		Decision: routed,
		Level:    level,
		Tier:     tier,
		Eligible: len(eligible),
	}, nil
}

// fanOut invokes every eligible analyzer concurrently, each under its
// own timeout. Failed or timed-out calls become absent votes and feed
// the analyzer's breaker; they never fail the cycle. Aggregation input
// is returned only after every call has settled.
func (o *Orchestrator) fanOut(ctx context.Context, cell judge.Cell, actx analyzer.Context, eligible []analyzer.Analyzer) ([]judge.AnalyzerResult, error) {
	votes := make([]*judge.AnalyzerResult, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)

	for i, a := range eligible {
		g.Go(func() error {
			caps := a.Capabilities()
			callCtx, cancel := context.WithTimeout(gctx, o.cfg.AnalyzerTimeout)
			defer cancel()

			var span trace.Span
			if o.tracer != nil {
				callCtx, span = o.tracer.StartSpan(callCtx, observability.SpanAnalyzerCall,
					observability.AnalyzerAttrs(caps.ID)...)
			}

			callStart := time.Now()
			res, err := a.Analyze(callCtx, cell, actx)
			latency := time.Since(callStart)

			breaker := o.registry.Breaker(caps.ID)
			if err != nil {
				if span != nil {
					span.SetAttributes(observability.StatusAttrs("absent")...)
					span.SetAttributes(observability.ErrorAttrs(err)...)
					span.End()
				}
				// A cycle the caller abandoned is not the analyzer's
				// failure; leave its breaker and the counters alone.
				if gctx.Err() != nil {
					return nil
				}
				if breaker != nil {
					breaker.Mark(err)
				}
				o.absentVotes.Add(1)
				if o.metrics != nil {
					o.metrics.RecordAnalyzerCall(ctx, caps.ID, "absent", latency)
				}
				o.log.Warn("analyzer %s absent: %v", caps.ID, err)
				return nil
			}
			if span != nil {
				span.SetAttributes(observability.StatusAttrs("ok")...)
				span.End()
			}
			if breaker != nil {
				breaker.Mark(nil)
			}
			if o.metrics != nil {
				o.metrics.RecordAnalyzerCall(ctx, caps.ID, "ok", latency)
			}

			res.AnalyzerID = caps.ID
			res.CellID = cell.ID
			votes[i] = &res
			votes[i].Latency = latency
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The caller abandoning the cycle outranks any votes collected so far.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settled := make([]judge.AnalyzerResult, 0, len(eligible))
	for _, v := range votes {
		if v != nil {
			settled = append(settled, *v)
		}
	}
	return settled, nil
}

// learn writes the cycle outcome back into the Q-policy: the verdict is
// the action taken, the normalized score is the reward.
func (o *Orchestrator) learn(ctx context.Context, j judge.Judgment) {
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartSpan(ctx, observability.SpanPolicyUpdate,
			attribute.String(observability.AttrVerdict, string(j.Verdict)))
		defer span.End()
	}
	if _, err := o.table.Update(j.Cell.StateKey(), string(j.Verdict), j.Reward()); err != nil {
		o.log.Warn("policy update failed: %v", err)
		return
	}
	if o.metrics != nil {
		o.metrics.RecordPolicyUpdate(ctx, string(j.Verdict))
	}
}

func (o *Orchestrator) record(ctx context.Context, j judge.Judgment) {
	o.cycles.Add(1)
	veto := !j.Consensus.Consensus && isVetoReason(j.Consensus.Reason)
	if veto {
		o.vetoes.Add(1)
	}
	if !j.Consensus.Consensus {
		o.noConsensus.Add(1)
	}
	if o.metrics != nil {
		o.metrics.RecordCycle(ctx,
			string(j.Cell.Domain), string(j.Cell.Analysis), string(j.Verdict),
			j.Consensus.Consensus, veto, j.Duration, j.CostUSD)
	}
	o.log.Info("cycle done: cell=%s verdict=%s score=%.1f confidence=%.3f consensus=%v votes=%d",
		j.Cell.ID, j.Verdict, j.Score, j.Confidence, j.Consensus.Consensus, j.Consensus.Votes)
}

// Stats returns cycle counters and the currently active axiom set.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Cycles:       o.cycles.Load(),
		Vetoes:       o.vetoes.Load(),
		NoConsensus:  o.noConsensus.Load(),
		AbsentVotes:  o.absentVotes.Load(),
		ActiveAxioms: o.axioms.Active(),
	}
}

// Activations exposes the emergent-axiom activation log.
func (o *Orchestrator) Activations() []Activation {
	return o.axioms.Activations()
}

// effectiveTier clamps the requested tier to what the current detail
// level allows.
func effectiveTier(hint int, level health.DetailLevel) int {
	maxTier := level.MaxTier()
	if hint < 0 {
		return 0
	}
	if hint > maxTier {
		return maxTier
	}
	return hint
}

// consensusStrength measures how decisively a round settled: reached
// consensus weighted by vote participation over quorum.
func consensusStrength(c judge.ConsensusResult) float64 {
	if !c.Consensus || c.Quorum < 1 {
		return 0
	}
	return phi.Bound(float64(c.Votes)/float64(c.Quorum), 0, 1)
}

func isVetoReason(reason string) bool {
	return strings.HasPrefix(reason, "veto")
}
