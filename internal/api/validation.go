package api

import (
	"fmt"
	"math"

	"github.com/MJE43/reflex-iq/internal/engine"
)

const (
	maxRounds       = 10_000
	maxPlayerLen    = 64
	maxSpawnCount   = 1_000
	maxLeaderboard  = 100
	maxPerPage      = 200
	maxPage         = 1_000_000
	maxRequestBytes = 1 << 20
)

// FieldError names the request field a validation failure is about.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

func fieldErr(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateProveScoreRequest checks a prove-score request and narrows the
// reaction times to the kernel's float32 width. Non-finite times are
// rejected here so the kernel never sees them.
func ValidateProveScoreRequest(req *ProveScoreRequest) ([]float32, error) {
	if len(req.Player) > maxPlayerLen {
		return nil, fieldErr("player", "must be at most %d bytes", maxPlayerLen)
	}
	if len(req.ReactionTimes) > maxRounds {
		return nil, fieldErr("reaction_times", "too many rounds (max %d)", maxRounds)
	}
	if len(req.Clicks) > maxRounds {
		return nil, fieldErr("clicks", "too many clicks (max %d)", maxRounds)
	}

	times := make([]float32, len(req.ReactionTimes))
	for i, v := range req.ReactionTimes {
		f := float32(v)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fieldErr("reaction_times", "round %d is not a finite float32", i)
		}
		if f < 0 {
			return nil, fieldErr("reaction_times", "round %d is negative", i)
		}
		times[i] = f
	}
	if !engine.FiniteMean(times) {
		return nil, fieldErr("reaction_times", "float32 sum of the rounds overflows")
	}

	if len(req.TargetsMs) > 0 {
		if len(req.TargetsMs) != len(req.Clicks) || len(req.Clicks) != len(times) {
			return nil, fieldErr("targets_ms", "need one click and one target per round (%d rounds, %d clicks, %d targets)",
				len(times), len(req.Clicks), len(req.TargetsMs))
		}
		for i, v := range req.TargetsMs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fieldErr("targets_ms", "target %d is not finite", i)
			}
		}
	}
	return times, nil
}

// gameInputs assembles the kernel witness from a validated request.
func gameInputs(req *ProveScoreRequest, times []float32, perfects uint32) engine.GameInputs {
	return engine.GameInputs{
		Clicks:        req.Clicks,
		RandomSeed:    req.RandomSeed,
		ReactionTimes: times,
		TotalPerfects: perfects,
	}
}
