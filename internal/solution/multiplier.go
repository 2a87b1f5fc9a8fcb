package solution

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// Multiplier decides how many copies of an accepted solution are
// credited, based on the miner's percent ratio against the pool average.
// Inefficient miners get extra copies to even out their payout;
// suspiciously efficient miners get their submissions randomly thinned.
type Multiplier struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMultiplier creates a multiplier drawing from the given source.
func NewMultiplier(rng *rand.Rand) *Multiplier {
	return &Multiplier{rng: rng}
}

// Copies returns the number of solution copies to credit for a miner with
// the given percent ratio. Zero means the submission is dropped without a
// trace.
func (m *Multiplier) Copies(percentRatio decimal.Decimal) int {
	ratio := percentRatio.IntPart()

	if ratio > 120 {
		m.mu.Lock()
		draw := m.rng.Int63n(ratio)
		m.mu.Unlock()

		if draw > 100 {
			return 0
		}
		return 1
	}

	switch {
	case ratio < 30:
		return 4
	case ratio < 40:
		return 3
	case ratio < 60:
		return 2
	}

	return 1
}
