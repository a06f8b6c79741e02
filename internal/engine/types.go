package engine

// Field order in these records is the wire contract with the verifier.
// Do not reorder, rename, or add fields.

// Click is one tap recorded by the host. The kernel carries clicks through
// the witness but never reads them.
type Click struct {
	TimestampMs uint64 `json:"timestamp_ms"`
}

// GameInputs is the private witness for one play session.
type GameInputs struct {
	Clicks        []Click   `json:"clicks"`
	RandomSeed    uint64    `json:"random_seed"` // reserved for deterministic spawning
	ReactionTimes []float32 `json:"reaction_times"`
	TotalPerfects uint32    `json:"total_perfects"`
}

// GameResult is the public journal committed by the kernel.
type GameResult struct {
	AvgReaction float32 `json:"avg_reaction"`
	IQScore     uint32  `json:"iq_score"`
	Consistency uint32  `json:"consistency"`
	Rounds      uint32  `json:"rounds"` // usize on the 32-bit guest
}

// Score bounds.
const (
	MinIQ          uint32 = 70
	MaxIQ          uint32 = 180
	MaxConsistency uint32 = 100
)

// EmptyResult is the fixed result for a session with no rounds.
func EmptyResult() GameResult {
	return GameResult{
		AvgReaction: 0.0,
		IQScore:     MinIQ,
		Consistency: 0,
		Rounds:      0,
	}
}
