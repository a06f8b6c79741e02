package engine

import "math"

// Aggregate returns the mean and population standard deviation of times.
//
// Every intermediate is narrowed to float32 with an explicit conversion.
// Go may otherwise fuse a multiply and an add into one FMA instruction on
// some architectures, which changes the committed bits.
func Aggregate(times []float32) (avg, stdDev float32) {
	n := len(times)
	if n == 0 {
		return 0, 0
	}

	sum := negZero
	for _, t := range times {
		sum = float32(sum + t)
	}
	avg = float32(sum / float32(n))

	if n == 1 {
		return avg, 0
	}

	var sq float32
	for _, t := range times {
		diff := float32(avg - t)
		sq = float32(sq + float32(diff*diff))
	}
	variance := float32(sq / float32(n))

	return avg, sqrt32(variance)
}

// negZero seeds the running sum so a session of all -0.0 rounds keeps its
// sign, as an f32 iterator sum does.
var negZero = float32(math.Copysign(0, -1))

// FiniteMean reports whether the left-to-right float32 sum of times, and so
// the committed average, stays finite.
func FiniteMean(times []float32) bool {
	avg, _ := Aggregate(times)
	return !math.IsNaN(float64(avg)) && !math.IsInf(float64(avg), 0)
}

// sqrt32 is a correctly rounded float32 square root. The float64 root of a
// float32 has enough spare precision that narrowing it cannot double-round.
func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
