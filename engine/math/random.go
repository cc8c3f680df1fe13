package math

import (
	"golang.org/x/exp/rand"
)

// Random is a seeded generator. Passes that need noise use their own instance
// so the output does not depend on call order elsewhere in the engine.
type Random struct {
	r *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{r: rand.New(rand.NewSource(seed))}
}

// Float returns a value in [0, 1).
func (r *Random) Float() float32 {
	return r.r.Float32()
}

// FloatInRange returns a value in [min, max).
func (r *Random) FloatInRange(min, max float32) float32 {
	return min + r.r.Float32()*(max-min)
}
