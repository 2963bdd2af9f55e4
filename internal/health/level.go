// Package health converts raw pressure signals into a discrete detail
// level and decides how much of the analyzer pool is reachable. It is
// the single shared-mutable-state surface of the pipeline (besides the
// Q-table) and is safe for concurrent reporters.
package health

import "cynic/internal/judge"

// DetailLevel is the degradation tier. Lower value = healthier system.
type DetailLevel int

const (
	// LevelFull: all analyzers, deepest tier, model calls allowed.
	LevelFull DetailLevel = iota
	// LevelReduced: skip the slowest analyzers, model calls still allowed.
	LevelReduced
	// LevelEmergency: deterministic analyzers only, no model calls.
	LevelEmergency
	// LevelMinimal: survival mode: guardian-class analyzers only.
	LevelMinimal
)

func (l DetailLevel) String() string {
	switch l {
	case LevelFull:
		return "FULL"
	case LevelReduced:
		return "REDUCED"
	case LevelEmergency:
		return "EMERGENCY"
	case LevelMinimal:
		return "MINIMAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name back to its DetailLevel.
func ParseLevel(name string) (DetailLevel, bool) {
	switch name {
	case "FULL":
		return LevelFull, true
	case "REDUCED":
		return LevelReduced, true
	case "EMERGENCY":
		return LevelEmergency, true
	case "MINIMAL":
		return LevelMinimal, true
	}
	return LevelFull, false
}

// AllowsModels reports whether model-dependent analyzers may run at this
// level. Disallowed below REDUCED.
func (l DetailLevel) AllowsModels() bool {
	return l <= LevelReduced
}

// MaxTier is the deepest scheduling tier reachable at this level.
// EMERGENCY and MINIMAL pin the pipeline to the shallowest,
// deterministic-only tier.
func (l DetailLevel) MaxTier() int {
	switch l {
	case LevelFull:
		return judge.MaxTier
	case LevelReduced:
		return judge.MaxTier - 1
	default:
		return 0
	}
}
