package health

import (
	"time"

	"cynic/internal/phi"
)

// Per-dimension thresholds, one per non-FULL level, ascending.
var (
	errRateThresholds = [3]float64{phi.PhiInv2, phi.PhiInv, 1.0}         // 0.382 / 0.618 / 1.0
	latencyThresholds = [3]float64{1000, 2850, 5000}                     // ms
	queueThresholds   = [3]int{34, 89, 144}                              // F(9) / F(11) / F(12)
	diskThresholds    = [3]float64{phi.PhiInv, 1 - phi.PhiInv3, 0.90}    // 0.618 / 0.764 / 0.90
	memoryThresholds  = [3]float64{phi.PhiInv, 1 - phi.PhiInv3, 0.90}
)

// Metrics is a snapshot of the five independent pressure dimensions.
type Metrics struct {
	ErrorRate  float64   `json:"error_rate"` // [0,1]
	LatencyMS  float64   `json:"latency_ms"` // recent p95
	QueueDepth int       `json:"queue_depth"`
	MemoryPct  float64   `json:"memory_pct"` // [0,1]
	DiskPct    float64   `json:"disk_pct"`   // [0,1]
	Timestamp  time.Time `json:"timestamp"`
}

// Sample is a partial health report: only the dimensions the reporter
// actually measured are set. Nil fields leave the retained snapshot
// untouched, so one subsystem can never erase another's reading.
type Sample struct {
	ErrorRate  *float64 `json:"error_rate,omitempty"`
	LatencyMS  *float64 `json:"latency_ms,omitempty"`
	QueueDepth *int     `json:"queue_depth,omitempty"`
	MemoryPct  *float64 `json:"memory_pct,omitempty"`
	DiskPct    *float64 `json:"disk_pct,omitempty"`
}

func levelFor(value float64, thresholds [3]float64) DetailLevel {
	switch {
	case value >= thresholds[2]:
		return LevelMinimal
	case value >= thresholds[1]:
		return LevelEmergency
	case value >= thresholds[0]:
		return LevelReduced
	default:
		return LevelFull
	}
}

// Levels returns the per-dimension severity of this snapshot.
func (m Metrics) Levels() map[string]DetailLevel {
	queue := LevelFull
	switch {
	case m.QueueDepth >= queueThresholds[2]:
		queue = LevelMinimal
	case m.QueueDepth >= queueThresholds[1]:
		queue = LevelEmergency
	case m.QueueDepth >= queueThresholds[0]:
		queue = LevelReduced
	}
	return map[string]DetailLevel{
		"error_rate":  levelFor(m.ErrorRate, errRateThresholds),
		"latency_ms":  levelFor(m.LatencyMS, latencyThresholds),
		"queue_depth": queue,
		"disk_pct":    levelFor(m.DiskPct, diskThresholds),
		"memory_pct":  levelFor(m.MemoryPct, memoryThresholds),
	}
}

// WorstLevel is the maximum severity across all five dimensions. No
// dimension may mask another.
func (m Metrics) WorstLevel() DetailLevel {
	worst := LevelFull
	for _, level := range m.Levels() {
		if level > worst {
			worst = level
		}
	}
	return worst
}

func clamp01(v float64) float64 {
	return phi.Bound(v, 0, 1)
}
