package engine

import "math/bits"

const pcgMultiplier uint64 = 6364136223846793005

// Pcg32 is the permuted congruential generator keyed by a session's
// random seed. The scoring path does not draw from it; the host uses it to
// lay out deterministic spawn schedules a verifier can replay.
type Pcg32 struct {
	state uint64
	inc   uint64
}

// NewPcg32 seeds a generator. The increment is fixed at 1.
func NewPcg32(seed uint64) *Pcg32 {
	return &Pcg32{state: seed, inc: 1}
}

// NextU32 returns the next output and advances the state.
func (p *Pcg32) NextU32() uint32 {
	old := p.state
	p.state = old*pcgMultiplier + (p.inc | 1)
	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := int(old >> 59)
	return bits.RotateLeft32(xorshifted, -rot)
}

// NextFloat32 returns a float in [0, 1) built from the top 24 bits of the
// next output, so every value is exactly representable.
func (p *Pcg32) NextFloat32() float32 {
	return float32(p.NextU32()>>8) / (1 << 24)
}

// Floats draws count floats from a fresh generator seeded with seed.
func Floats(seed uint64, count int) []float32 {
	return FloatsInto(nil, seed, count)
}

// FloatsInto fills dst with count floats, reallocating only when dst is too
// small.
func FloatsInto(dst []float32, seed uint64, count int) []float32 {
	if count <= 0 {
		return dst[:0]
	}
	if cap(dst) < count {
		dst = make([]float32, count)
	}
	dst = dst[:count]

	p := NewPcg32(seed)
	for i := range dst {
		dst[i] = p.NextFloat32()
	}
	return dst
}
