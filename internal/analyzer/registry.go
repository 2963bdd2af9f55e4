package analyzer

import (
	"fmt"
	"sort"
	"sync"

	"cynic/internal/errors"
	"cynic/internal/health"
	"cynic/internal/judge"
	"cynic/internal/logging"
	"cynic/internal/phi"
)

// Registry tracks registered analyzers, their fixed metadata, and one
// circuit breaker per analyzer. An analyzer whose breaker is open is
// silently excluded from the eligible set; exclusion is never an error.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
	breakers  map[string]*errors.CircuitBreaker
	order     []string
	logger    logging.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		analyzers: make(map[string]Analyzer),
		breakers:  make(map[string]*errors.CircuitBreaker),
		logger:    logging.OrNop(logger),
	}
}

// Register adds an analyzer. The id must be unique and the weight
// positive; both are fixed for the analyzer's lifetime. The pool holds
// at most phi.AnalyzersTotal analyzers, the count the quorum math is
// sized for.
func (r *Registry) Register(a Analyzer) error {
	caps := a.Capabilities()
	if caps.ID == "" {
		return fmt.Errorf("invalid configuration: analyzer with empty id")
	}
	if caps.Weight <= 0 {
		return fmt.Errorf("invalid configuration: analyzer %q has non-positive weight %v", caps.ID, caps.Weight)
	}
	if len(caps.Domains) == 0 || len(caps.Analyses) == 0 {
		return fmt.Errorf("invalid configuration: analyzer %q declares no coverage", caps.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.analyzers[caps.ID]; exists {
		return fmt.Errorf("invalid configuration: analyzer %q already registered", caps.ID)
	}
	if len(r.analyzers) >= phi.AnalyzersTotal {
		return fmt.Errorf("invalid configuration: analyzer pool is full (%d)", phi.AnalyzersTotal)
	}
	r.analyzers[caps.ID] = a
	r.breakers[caps.ID] = errors.NewCircuitBreaker(caps.ID, errors.DefaultCircuitBreakerConfig())
	r.order = append(r.order, caps.ID)
	r.logger.Info("registered analyzer %s (weight=%.3f model=%v minTier=%d)",
		caps.ID, caps.Weight, caps.RequiresModel, caps.MinTier)
	return nil
}

// Get returns the analyzer with the given id.
func (r *Registry) Get(id string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[id]
	return a, ok
}

// All returns analyzers in registration order.
func (r *Registry) All() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Analyzer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.analyzers[id])
	}
	return out
}

// Len returns the number of registered analyzers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.analyzers)
}

// Eligible selects the analyzers allowed to vote on cell at the given
// detail level and effective tier:
//   - capability coverage of the cell's domain and analysis type,
//   - analyzer's minimum tier reachable (deep analyzers drop out when
//     the tier is clamped down),
//   - model-dependent analyzers excluded when the level forbids models,
//   - open circuit breaker excludes the analyzer outright.
func (r *Registry) Eligible(cell judge.Cell, level health.DetailLevel, tier int) []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eligible []Analyzer
	for _, id := range r.order {
		a := r.analyzers[id]
		caps := a.Capabilities()
		if !caps.Covers(cell) {
			continue
		}
		if caps.MinTier > tier {
			continue
		}
		if caps.RequiresModel && !level.AllowsModels() {
			continue
		}
		if breaker := r.breakers[id]; breaker != nil {
			if err := breaker.Allow(); err != nil {
				r.logger.Debug("analyzer %s excluded: %v", id, err)
				continue
			}
		}
		eligible = append(eligible, a)
	}
	return eligible
}

// Breaker returns the circuit breaker for an analyzer id so the
// orchestrator can record call outcomes.
func (r *Registry) Breaker(id string) *errors.CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[id]
}

// BreakerMetrics returns per-analyzer breaker state, sorted by id.
func (r *Registry) BreakerMetrics() []errors.CircuitBreakerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]errors.CircuitBreakerMetrics, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Weights returns the fixed priority weight per analyzer id.
func (r *Registry) Weights() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.analyzers))
	for id, a := range r.analyzers {
		out[id] = a.Capabilities().Weight
	}
	return out
}
