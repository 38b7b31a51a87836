package balloon

import (
	"math"
	"math/rand"

	"balloon-game-server/config"
)

// popChanceBase sets the pop probability 1/(popChanceBase - pumpCount).
const popChanceBase = 11

// Rand is the uniform random source used by the pop policy.
// It must be safe for concurrent use; *rand.Rand is not, unless guarded.
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// PumpPoints returns the points earned by the k-th pump of a round: base * 2^(k-1).
// The result saturates at math.MaxUint64.
func PumpPoints(base uint64, k int) uint64 {
	if k < 1 || base == 0 {
		return 0
	}
	shift := uint(k - 1)
	if shift >= 64 || base > math.MaxUint64>>shift {
		return math.MaxUint64
	}
	return base << shift
}

// satAdd returns a+b, saturating at math.MaxUint64.
func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// PopProbability returns the chance that the k-th pump pops the balloon under the pop
// policy. Pumps below threshold never pop; the chance is 1 once the divisor drops to 1 or less.
func PopProbability(k, threshold int) float64 {
	if k < threshold {
		return 0
	}
	d := popChanceBase - k
	if d <= 1 {
		return 1
	}
	return 1 / float64(d)
}

func withDefaults(r config.GameRules) config.GameRules {
	if r.PumpPolicy == "" {
		r.PumpPolicy = config.PolicyCapped
	}
	return r
}
