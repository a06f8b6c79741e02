package engine

import "math"

// IQ model constants.
const (
	iqBase          float32 = 80
	speedPivotMs    float32 = 150
	speedRangeMs    float32 = 500
	consistencyRate float32 = 0.4
	perfectBonus    uint32  = 2
)

// Breakdown exposes the intermediate values of one scoring pass.
type Breakdown struct {
	Avg                  float32 `json:"avg"`
	StdDev               float32 `json:"std_dev"`
	Consistency          uint32  `json:"consistency"`
	SpeedComponent       float32 `json:"speed_component"`
	ConsistencyComponent float32 `json:"consistency_component"`
	PerfectsComponent    float32 `json:"perfects_component"`
	BaseIQ               float32 `json:"base_iq"`
	IQScore              uint32  `json:"iq_score"`
}

// Consistency maps a mean and standard deviation onto 0..100. The
// conversion truncates; it never rounds up.
func Consistency(avg, stdDev float32) uint32 {
	if !(avg > 0) {
		return 0
	}
	raw := float32(100 * float32(1-float32(stdDev/avg)))
	return truncU32(atLeastZero(raw))
}

// IQ combines speed, consistency and perfect taps into a score in [70, 180].
func IQ(avg float32, consistency, totalPerfects uint32) uint32 {
	return explainIQ(avg, consistency, totalPerfects).IQScore
}

func explainIQ(avg float32, consistency, totalPerfects uint32) Breakdown {
	slowdown := float32(float32(avg-speedPivotMs) / speedRangeMs)
	speed := atLeastZero(float32(100 * float32(1-slowdown)))
	cons := float32(float32(consistency) * consistencyRate)
	// u32 product first, wrapping like the guest build
	perf := float32(totalPerfects * perfectBonus)

	base := float32(iqBase + speed)
	base = float32(base + cons)
	base = float32(base + perf)

	return Breakdown{
		Avg:                  avg,
		Consistency:          consistency,
		SpeedComponent:       speed,
		ConsistencyComponent: cons,
		PerfectsComponent:    perf,
		BaseIQ:               base,
		IQScore:              truncU32(clampIQ(roundHalfAway(base))),
	}
}

// Score is the pure scoring kernel: GameInputs in, GameResult out.
func Score(in GameInputs) GameResult {
	b, ok := Explain(in)
	if !ok {
		return EmptyResult()
	}
	return GameResult{
		AvgReaction: b.Avg,
		IQScore:     b.IQScore,
		Consistency: b.Consistency,
		Rounds:      uint32(len(in.ReactionTimes)),
	}
}

// Explain runs the scoring pass and returns every intermediate. ok is false
// for an empty session, which has no breakdown.
func Explain(in GameInputs) (Breakdown, bool) {
	if len(in.ReactionTimes) == 0 {
		return Breakdown{}, false
	}
	avg, stdDev := Aggregate(in.ReactionTimes)
	consistency := Consistency(avg, stdDev)
	b := explainIQ(avg, consistency, in.TotalPerfects)
	b.StdDev = stdDev
	return b, true
}

// atLeastZero is max(v, 0) where a NaN operand yields the other one.
func atLeastZero(v float32) float32 {
	if v > 0 {
		return v
	}
	return 0
}

// roundHalfAway rounds to the nearest integer, ties away from zero.
func roundHalfAway(v float32) float32 {
	return float32(math.Round(float64(v)))
}

// clampIQ applies min(MaxIQ) before max(MinIQ). A NaN passes through the
// min untouched and fails the ordered comparison in the max, landing on 70.
func clampIQ(v float32) float32 {
	if v > float32(MaxIQ) {
		v = float32(MaxIQ)
	}
	if !(v > float32(MinIQ)) {
		v = float32(MinIQ)
	}
	return v
}

// truncU32 converts toward zero, saturating at the uint32 range. NaN maps
// to zero.
func truncU32(v float32) uint32 {
	switch {
	case !(v > 0):
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}
