package judge

import "cynic/internal/phi"

// Verdict is the 4-tier classification of a final score.
type Verdict string

const (
	// VerdictHowl is exceptional, score ≥ 82.
	VerdictHowl Verdict = "HOWL"
	// VerdictWag is good, score ≥ 61.8.
	VerdictWag Verdict = "WAG"
	// VerdictGrowl is needs-work, score ≥ 38.2.
	VerdictGrowl Verdict = "GROWL"
	// VerdictBark is critical, anything below 38.2.
	VerdictBark Verdict = "BARK"
)

// Verdicts lists all verdicts, the action space of the Q-policy.
var Verdicts = []string{string(VerdictBark), string(VerdictGrowl), string(VerdictWag), string(VerdictHowl)}

// VerdictFromScore maps a score to its verdict tier. Pure function of the
// fixed thresholds; the same score always yields the same verdict.
func VerdictFromScore(score float64) Verdict {
	switch {
	case score >= phi.HowlMin:
		return VerdictHowl
	case score >= phi.WagMin:
		return VerdictWag
	case score >= phi.GrowlMin:
		return VerdictGrowl
	default:
		return VerdictBark
	}
}

// ValidVerdict reports whether s names a known verdict.
func ValidVerdict(s string) bool {
	switch Verdict(s) {
	case VerdictHowl, VerdictWag, VerdictGrowl, VerdictBark:
		return true
	}
	return false
}
