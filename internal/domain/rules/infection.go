// Package rules contains the pure calculation logic for infection mechanics.
// This package is PURE and must NOT import any infrastructure packages.
// Random rolls are passed in by the caller so every rule is deterministic.
package rules

// InContactSq reports whether two agents whose squared centre distance is
// distanceSq are close enough for transmission. The contact reach is the
// agent radius plus the infection radius, and the threshold is strict.
func InContactSq(distanceSq, agentRadius, infectionRadius float64) bool {
	reach := agentRadius + infectionRadius
	return distanceSq < reach*reach
}

// Transmits decides a contact given a uniform roll in [0,1).
// A rate of 0 never transmits, a rate of 1 always does.
func Transmits(rate, roll float64) bool {
	return roll < rate
}

// IsFatal decides the Bernoulli fatality trial given a uniform roll in [0,1).
func IsFatal(fatalityRate, roll float64) bool {
	return roll < fatalityRate
}

// RecoveryDeadline returns base + offset where offset is the jitter roll,
// an integer in [0, 2*jitter], re-centred on zero.
func RecoveryDeadline(baseTicks, jitterTicks, jitterRoll int) int {
	return baseTicks + jitterRoll - jitterTicks
}

// NudgeSpeed replaces an exact zero velocity component with a unit speed so
// an agent never freezes on one axis.
func NudgeSpeed(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
