package vm

import "math/rand/v2"

// RandomSource supplies bytes for the rand instruction.
type RandomSource interface {
	RandomByte() uint8
}

type mathRandom struct {
	rnd *rand.Rand
}

// NewRandom returns a RandomSource backed by the global math/rand generator.
func NewRandom() RandomSource {
	return mathRandom{}
}

// NewSeededRandom returns a deterministic RandomSource.
func NewSeededRandom(seed uint64) RandomSource {
	return mathRandom{rnd: rand.New(rand.NewPCG(seed, seed))}
}

func (r mathRandom) RandomByte() uint8 {
	if r.rnd == nil {
		return uint8(rand.IntN(256))
	}
	return uint8(r.rnd.IntN(256))
}
