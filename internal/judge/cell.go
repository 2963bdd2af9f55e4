// Package judge defines the immutable data model of the judgment
// pipeline: the Cell going in, the per-analyzer votes, the consensus
// outcome, and the final Judgment record.
package judge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain is the reality dimension a Cell belongs to.
type Domain string

const (
	DomainCode   Domain = "CODE"
	DomainSolana Domain = "SOLANA"
	DomainMarket Domain = "MARKET"
	DomainSocial Domain = "SOCIAL"
	DomainHuman  Domain = "HUMAN"
	DomainCynic  Domain = "CYNIC"
	DomainCosmos Domain = "COSMOS"
)

// Analysis is the type of analysis requested for a Cell.
type Analysis string

const (
	AnalysisPerceive Analysis = "PERCEIVE"
	AnalysisJudge    Analysis = "JUDGE"
	AnalysisDecide   Analysis = "DECIDE"
	AnalysisAct      Analysis = "ACT"
	AnalysisLearn    Analysis = "LEARN"
	AnalysisAccount  Analysis = "ACCOUNT"
	AnalysisEmerge   Analysis = "EMERGE"
)

var validDomains = map[Domain]bool{
	DomainCode: true, DomainSolana: true, DomainMarket: true,
	DomainSocial: true, DomainHuman: true, DomainCynic: true,
	DomainCosmos: true,
}

var validAnalyses = map[Analysis]bool{
	AnalysisPerceive: true, AnalysisJudge: true, AnalysisDecide: true,
	AnalysisAct: true, AnalysisLearn: true, AnalysisAccount: true,
	AnalysisEmerge: true,
}

// MaxTier is the deepest scheduling tier a Cell may request.
const MaxTier = 3

// Cell is one immutable unit of work submitted for judgment.
//
// Created once by the caller and never mutated afterwards; the
// orchestrator and analyzers only ever read it.
type Cell struct {
	ID         string
	Domain     Domain
	Analysis   Analysis
	Content    any
	Context    string
	Novelty    float64 // prior, [0,1]
	Complexity float64 // prior, [0,1]
	Risk       float64 // prior, [0,1]
	BudgetUSD  float64
	Tier       int // detail-level hint, [0, MaxTier]
	CreatedAt  time.Time
}

// CellSpec carries the caller-supplied fields for NewCell. Zero priors
// default to the neutral 0.5; zero budget defaults to 1 USD.
type CellSpec struct {
	Domain     Domain
	Analysis   Analysis
	Content    any
	Context    string
	Novelty    *float64
	Complexity *float64
	Risk       float64
	BudgetUSD  float64
	Tier       int
}

// NewCell validates spec and mints an immutable Cell.
//
// Unknown domain or analysis tags and out-of-range priors are rejected
// at this boundary; they are never silently defaulted.
func NewCell(spec CellSpec) (Cell, error) {
	if !validDomains[spec.Domain] {
		return Cell{}, fmt.Errorf("invalid configuration: unknown domain %q", spec.Domain)
	}
	if !validAnalyses[spec.Analysis] {
		return Cell{}, fmt.Errorf("invalid configuration: unknown analysis %q", spec.Analysis)
	}
	if spec.Tier < 0 || spec.Tier > MaxTier {
		return Cell{}, fmt.Errorf("invalid configuration: tier %d outside [0,%d]", spec.Tier, MaxTier)
	}
	novelty, err := priorOrDefault("novelty", spec.Novelty)
	if err != nil {
		return Cell{}, err
	}
	complexity, err := priorOrDefault("complexity", spec.Complexity)
	if err != nil {
		return Cell{}, err
	}
	if spec.Risk < 0 || spec.Risk > 1 {
		return Cell{}, fmt.Errorf("invalid configuration: risk %v outside [0,1]", spec.Risk)
	}
	budget := spec.BudgetUSD
	if budget == 0 {
		budget = 1.0
	}
	if budget < 0 {
		return Cell{}, fmt.Errorf("invalid configuration: negative budget %v", budget)
	}
	return Cell{
		ID:         uuid.NewString(),
		Domain:     spec.Domain,
		Analysis:   spec.Analysis,
		Content:    spec.Content,
		Context:    spec.Context,
		Novelty:    novelty,
		Complexity: complexity,
		Risk:       spec.Risk,
		BudgetUSD:  budget,
		Tier:       spec.Tier,
		CreatedAt:  time.Now(),
	}, nil
}

func priorOrDefault(name string, v *float64) (float64, error) {
	if v == nil {
		return 0.5, nil
	}
	if *v < 0 || *v > 1 {
		return 0, fmt.Errorf("invalid configuration: %s %v outside [0,1]", name, *v)
	}
	return *v, nil
}

// StateKey is the composite key the Q-policy learns against:
// "DOMAIN:ANALYSIS:tier".
func (c Cell) StateKey() string {
	return StateKey(c.Domain, c.Analysis, c.Tier)
}

// StateKeyAtTier returns the state key with the tier replaced.
func (c Cell) StateKeyAtTier(tier int) string {
	return StateKey(c.Domain, c.Analysis, tier)
}

// StateKey builds a policy state key from its components.
func StateKey(domain Domain, analysis Analysis, tier int) string {
	return fmt.Sprintf("%s:%s:%d", domain, analysis, tier)
}
