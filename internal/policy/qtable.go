// Package policy implements the reinforcement-learning policy: a
// state→action value table updated by a TD(0) rule, protected against
// catastrophic forgetting by per-entry consolidation, and explored via
// Thompson sampling.
package policy

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"cynic/internal/judge"
	"cynic/internal/logging"
	"cynic/internal/phi"
)

// maxEntriesPerState bounds memory per state key; oldest entries are
// evicted first.
const maxEntriesPerState = 13 // F(7)

// Entry is one (state, action) pair. Mutated only through Update.
type Entry struct {
	StateKey    string    `json:"state_key"`
	Action      string    `json:"action"`
	Value       float64   `json:"value"` // TD(0) estimate ∈ [0,1]
	Visits      int       `json:"visits"`
	Wins        int       `json:"wins"`   // Thompson arm: rewards > 0.5
	Losses      int       `json:"losses"` // Thompson arm: rewards ≤ 0.5
	LastUpdated time.Time `json:"last_updated"`
}

// fisher is the consolidation weight: 0 for fresh entries, 1 once the
// visit count reaches the consolidation threshold.
func (e *Entry) fisher() float64 {
	f := float64(e.Visits) / phi.ConsolidationVisits
	if f > 1 {
		return 1
	}
	return f
}

// QTable is the policy memory. All per-state mutation happens under one
// mutex, so updates from concurrent cycles are atomic per state key.
type QTable struct {
	mu           sync.Mutex
	table        map[string]map[string]*Entry
	rng          *rand.Rand
	alpha        float64
	totalUpdates int
	createdAt    time.Time
	logger       logging.Logger
}

// NewQTable returns an empty table with the φ-derived learning rate.
func NewQTable(logger logging.Logger) *QTable {
	return newQTable(logger, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewQTableWithSeed returns a deterministically seeded table for tests.
func NewQTableWithSeed(logger logging.Logger, seed int64) *QTable {
	return newQTable(logger, rand.New(rand.NewSource(seed)))
}

func newQTable(logger logging.Logger, rng *rand.Rand) *QTable {
	return &QTable{
		table:     make(map[string]map[string]*Entry),
		rng:       rng,
		alpha:     phi.LearningRate,
		createdAt: time.Now(),
		logger:    logging.OrNop(logger),
	}
}

func validateKey(stateKey, action string) error {
	if stateKey == "" {
		return fmt.Errorf("invalid configuration: empty state key")
	}
	if !judge.ValidVerdict(action) {
		return fmt.Errorf("invalid configuration: unknown action %q", action)
	}
	return nil
}

// Update applies the temporal-difference rule
//
//	value ← value + α·(reward − value)
//
// with the effective α shrunk for consolidated entries:
// α_eff = α·(1 − λ·fisher), fisher = min(visits/21, 1). A fresh entry
// learns at full rate; a consolidated one at 0.382·α, so a single noisy
// observation cannot overwrite a well-reinforced estimate.
func (q *QTable) Update(stateKey, action string, reward float64) (Entry, error) {
	if err := validateKey(stateKey, action); err != nil {
		return Entry{}, err
	}
	reward = phi.Bound(reward, 0, 1)

	q.mu.Lock()
	defer q.mu.Unlock()

	entry := q.getOrCreateLocked(stateKey, action)
	old := entry.Value
	effectiveAlpha := q.alpha * (1 - phi.ConsolidationPenalty*entry.fisher())
	entry.Value = phi.Bound(old+effectiveAlpha*(reward-old), 0, 1)

	if reward > 0.5 {
		entry.Wins++
	} else {
		entry.Losses++
	}
	entry.Visits++
	entry.LastUpdated = time.Now()
	q.totalUpdates++

	q.logger.Debug("Q[%s][%s]: %.3f -> %.3f (reward=%.3f visits=%d)",
		stateKey, action, old, entry.Value, reward, entry.Visits)
	return *entry, nil
}

// Exploit returns the highest-value action for the state. Unseen states
// get the cautious GROWL default, never blind optimism.
func (q *QTable) Exploit(stateKey string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions := q.table[stateKey]
	if len(actions) == 0 {
		return string(judge.VerdictGrowl)
	}
	best := ""
	bestValue := -1.0
	// Deterministic iteration for reproducible ties.
	for _, action := range judge.Verdicts {
		if e, ok := actions[action]; ok && e.Value > bestValue {
			best = action
			bestValue = e.Value
		}
	}
	if best == "" {
		return string(judge.VerdictGrowl)
	}
	return best
}

// Explore samples each action's Beta posterior (wins+1, losses+1 over
// the Fibonacci prior) and returns the argmax: Thompson sampling, a
// natural balance between trying under-visited actions and exploiting
// known-good ones.
func (q *QTable) Explore(stateKey string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := string(judge.VerdictGrowl)
	bestSample := -1.0
	for _, action := range judge.Verdicts {
		entry := q.getOrCreateLocked(stateKey, action)
		sample := sampleBeta(float64(entry.Wins+1), float64(entry.Losses+1), q.rng)
		if sample > bestSample {
			best = action
			bestSample = sample
		}
	}
	return best
}

// PredictQ returns Q(s,a), or the neutral 0.5 prior when unseen.
func (q *QTable) PredictQ(stateKey, action string) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.table[stateKey][action]; ok {
		return e.Value
	}
	return 0.5
}

// BestValue returns the highest value at a state and whether any entry
// exists there.
func (q *QTable) BestValue(stateKey string) (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions := q.table[stateKey]
	if len(actions) == 0 {
		return 0, false
	}
	best := 0.0
	for _, e := range actions {
		if e.Value > best {
			best = e.Value
		}
	}
	return best, true
}

// VisitCounts returns per-action visits and the state total, for the
// planner's UCB bonus.
func (q *QTable) VisitCounts(stateKey string) (map[string]int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[string]int)
	total := 0
	for action, e := range q.table[stateKey] {
		counts[action] = e.Visits
		total += e.Visits
	}
	return counts, total
}

// Confidence derives a scalar from total visits at the state: more
// visits means higher confidence, capped at MaxConfidence.
func (q *QTable) Confidence(stateKey string) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, e := range q.table[stateKey] {
		total += e.Visits
	}
	return phi.Bound(float64(total)/phi.ConsolidationVisits, 0, phi.MaxConfidence)
}

func (q *QTable) getOrCreateLocked(stateKey, action string) *Entry {
	actions, ok := q.table[stateKey]
	if !ok {
		actions = make(map[string]*Entry)
		q.table[stateKey] = actions
	}
	entry, ok := actions[action]
	if !ok {
		if len(actions) >= maxEntriesPerState {
			q.evictOldestLocked(actions)
		}
		entry = &Entry{
			StateKey:    stateKey,
			Action:      action,
			Value:       0.5, // neutral start: the policy doubts itself
			Wins:        phi.ThompsonPrior,
			Losses:      phi.ThompsonPrior,
			LastUpdated: time.Now(),
		}
		actions[action] = entry
	}
	return entry
}

func (q *QTable) evictOldestLocked(actions map[string]*Entry) {
	oldestKey := ""
	var oldest time.Time
	for action, e := range actions {
		if oldestKey == "" || e.LastUpdated.Before(oldest) {
			oldestKey = action
			oldest = e.LastUpdated
		}
	}
	if oldestKey != "" {
		delete(actions, oldestKey)
	}
}

// Stats summarizes the learning system.
type Stats struct {
	States            int                `json:"states"`
	Entries           int                `json:"entries"`
	TotalUpdates      int                `json:"total_updates"`
	TotalVisits       int                `json:"total_visits"`
	LearningRate      float64            `json:"learning_rate"`
	EffectiveAlphaAvg float64            `json:"effective_alpha_avg"`
	Consolidated      int                `json:"consolidated"`
	StateAverages     map[string]float64 `json:"state_averages"`
	UptimeSeconds     float64            `json:"uptime_s"`
}

// Stats returns learning health metrics.
func (q *QTable) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		States:        len(q.table),
		TotalUpdates:  q.totalUpdates,
		LearningRate:  q.alpha,
		StateAverages: make(map[string]float64, len(q.table)),
		UptimeSeconds: time.Since(q.createdAt).Seconds(),
	}
	fisherSum := 0.0
	for stateKey, actions := range q.table {
		valueSum := 0.0
		for _, e := range actions {
			stats.Entries++
			stats.TotalVisits += e.Visits
			valueSum += e.Value
			fisherSum += e.fisher()
			if e.Visits >= phi.ConsolidationVisits {
				stats.Consolidated++
			}
		}
		stats.StateAverages[stateKey] = valueSum / float64(len(actions))
	}
	if stats.Entries > 0 {
		avgFisher := fisherSum / float64(stats.Entries)
		stats.EffectiveAlphaAvg = q.alpha * (1 - phi.ConsolidationPenalty*avgFisher)
	} else {
		stats.EffectiveAlphaAvg = q.alpha
	}
	return stats
}

// StateSummary describes one state for introspection.
type StateSummary struct {
	StateKey   string  `json:"state_key"`
	Visits     int     `json:"visits"`
	BestAction string  `json:"best_action"`
	BestValue  float64 `json:"best_value"`
	Confidence float64 `json:"confidence"`
}

// TopStates returns the n most-visited states with their best actions.
func (q *QTable) TopStates(n int) []StateSummary {
	q.mu.Lock()
	defer q.mu.Unlock()

	summaries := make([]StateSummary, 0, len(q.table))
	for stateKey, actions := range q.table {
		total := 0
		bestAction := ""
		bestValue := -1.0
		for action, e := range actions {
			total += e.Visits
			if e.Value > bestValue || (e.Value == bestValue && action < bestAction) {
				bestAction = action
				bestValue = e.Value
			}
		}
		summaries = append(summaries, StateSummary{
			StateKey:   stateKey,
			Visits:     total,
			BestAction: bestAction,
			BestValue:  bestValue,
			Confidence: phi.Bound(float64(total)/phi.ConsolidationVisits, 0, phi.MaxConfidence),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Visits != summaries[j].Visits {
			return summaries[i].Visits > summaries[j].Visits
		}
		return summaries[i].StateKey < summaries[j].StateKey
	})
	if n > 0 && len(summaries) > n {
		summaries = summaries[:n]
	}
	return summaries
}

// Reset clears the table. For tests only; does not touch persistence.
func (q *QTable) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.table = make(map[string]map[string]*Entry)
	q.totalUpdates = 0
	q.createdAt = time.Now()
}
