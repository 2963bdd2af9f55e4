package health

import (
	"sync"
	"time"

	"cynic/internal/logging"
)

// hysteresisN is the number of consecutive healthy assessments required
// before the level improves. A single healthy reading is never enough.
const hysteresisN = 3

const maxTransitions = 100

// Transition records one level change for introspection.
type Transition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Metrics   `json:"snapshot"`
}

// Status is the monitor's read-only introspection view.
type Status struct {
	Level          string            `json:"level"`
	AllowsModels   bool              `json:"allows_models"`
	MaxTier        int               `json:"max_tier"`
	Forced         bool              `json:"forced"`
	HealthyStreak  int               `json:"healthy_streak"`
	HysteresisN    int               `json:"hysteresis_n"`
	Assessments    int               `json:"assessments"`
	Snapshot       Metrics           `json:"snapshot"`
	DimensionLevel map[string]string `json:"dimension_level"`
	Transitions    []Transition      `json:"recent_transitions"`
}

// Monitor owns the accumulated health snapshot and the active detail
// level. Degradation is immediate; recovery is asymmetric, one level at
// a time, and only after hysteresisN consecutive healthy assessments
// with no intervening degradation.
//
// Multiple health-reporting sources call Report concurrently; all state
// is guarded by one mutex.
type Monitor struct {
	mu            sync.Mutex
	current       DetailLevel
	forced        *DetailLevel
	snapshot      Metrics
	healthyStreak int
	assessments   int
	transitions   []Transition
	logger        logging.Logger
}

// NewMonitor returns a monitor starting at FULL with an empty snapshot.
func NewMonitor(logger logging.Logger) *Monitor {
	return &Monitor{
		current: LevelFull,
		logger:  logging.OrNop(logger),
	}
}

// Report merges the measured dimensions of sample into the retained
// snapshot, then assesses. Omitted dimensions keep their previous
// readings: reporting "memory OK" cannot erase a prior "disk critical".
func (m *Monitor) Report(sample Sample) DetailLevel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sample.ErrorRate != nil {
		m.snapshot.ErrorRate = clamp01(*sample.ErrorRate)
	}
	if sample.LatencyMS != nil {
		m.snapshot.LatencyMS = *sample.LatencyMS
		if m.snapshot.LatencyMS < 0 {
			m.snapshot.LatencyMS = 0
		}
	}
	if sample.QueueDepth != nil {
		m.snapshot.QueueDepth = *sample.QueueDepth
		if m.snapshot.QueueDepth < 0 {
			m.snapshot.QueueDepth = 0
		}
	}
	if sample.MemoryPct != nil {
		m.snapshot.MemoryPct = clamp01(*sample.MemoryPct)
	}
	if sample.DiskPct != nil {
		m.snapshot.DiskPct = clamp01(*sample.DiskPct)
	}
	m.snapshot.Timestamp = time.Now()

	return m.assessLocked()
}

// Assess re-evaluates the retained snapshot without new readings.
func (m *Monitor) Assess() DetailLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assessLocked()
}

func (m *Monitor) assessLocked() DetailLevel {
	if m.forced != nil {
		return *m.forced
	}
	m.assessments++

	target := m.snapshot.WorstLevel()
	switch {
	case target > m.current:
		// Degrade immediately and unconditionally.
		m.transitionLocked(target)
		m.healthyStreak = 0
	case target < m.current:
		m.healthyStreak++
		if m.healthyStreak >= hysteresisN {
			// Recover exactly one level, never straight to target.
			m.transitionLocked(m.current - 1)
			m.healthyStreak = 0
		}
	default:
		m.healthyStreak = 0
	}
	return m.current
}

func (m *Monitor) transitionLocked(to DetailLevel) {
	from := m.current
	if from == to {
		return
	}
	m.current = to
	m.transitions = append(m.transitions, Transition{
		From:      from.String(),
		To:        to.String(),
		Timestamp: time.Now(),
		Snapshot:  m.snapshot,
	})
	if len(m.transitions) > maxTransitions {
		m.transitions = m.transitions[1:]
	}
	if to > from {
		m.logger.Warn("detail level degraded %s -> %s (err=%.2f lat=%.0fms queue=%d mem=%.2f disk=%.2f)",
			from, to, m.snapshot.ErrorRate, m.snapshot.LatencyMS,
			m.snapshot.QueueDepth, m.snapshot.MemoryPct, m.snapshot.DiskPct)
	} else {
		m.logger.Info("detail level recovered %s -> %s", from, to)
	}
}

// Force pins the level, bypassing assessment until ClearForce. Used for
// operational drills and maintenance windows.
func (m *Monitor) Force(level DetailLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Warn("detail level forced to %s", level)
	m.forced = &level
}

// ClearForce resumes health-based assessment.
func (m *Monitor) ClearForce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = nil
}

// Current returns the active level (the forced one when set).
func (m *Monitor) Current() DetailLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forced != nil {
		return *m.forced
	}
	return m.current
}

// Snapshot returns a copy of the accumulated metrics.
func (m *Monitor) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Status returns the full introspection view.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	level := m.current
	if m.forced != nil {
		level = *m.forced
	}
	dims := make(map[string]string)
	for name, l := range m.snapshot.Levels() {
		dims[name] = l.String()
	}
	recent := m.transitions
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	out := make([]Transition, len(recent))
	copy(out, recent)

	return Status{
		Level:          level.String(),
		AllowsModels:   level.AllowsModels(),
		MaxTier:        level.MaxTier(),
		Forced:         m.forced != nil,
		HealthyStreak:  m.healthyStreak,
		HysteresisN:    hysteresisN,
		Assessments:    m.assessments,
		Snapshot:       m.snapshot,
		DimensionLevel: dims,
		Transitions:    out,
	}
}
