package journal

import (
	"fmt"

	"github.com/MJE43/reflex-iq/internal/engine"
)

// ResultWords is the fixed size of an encoded GameResult.
const ResultWords = 4

// EncodeResult writes avg_reaction, iq_score, consistency, rounds.
func EncodeResult(r engine.GameResult) []byte {
	e := NewEncoder(ResultWords)
	e.WriteF32(r.AvgReaction)
	e.WriteU32(r.IQScore)
	e.WriteU32(r.Consistency)
	e.WriteU32(r.Rounds)
	return e.Bytes()
}

// DecodeResult is the verifier-side inverse of EncodeResult.
func DecodeResult(b []byte) (engine.GameResult, error) {
	d, err := NewDecoder(b)
	if err != nil {
		return engine.GameResult{}, err
	}
	var r engine.GameResult
	if r.AvgReaction, err = d.ReadF32(); err != nil {
		return engine.GameResult{}, fmt.Errorf("avg_reaction: %w", err)
	}
	if r.IQScore, err = d.ReadU32(); err != nil {
		return engine.GameResult{}, fmt.Errorf("iq_score: %w", err)
	}
	if r.Consistency, err = d.ReadU32(); err != nil {
		return engine.GameResult{}, fmt.Errorf("consistency: %w", err)
	}
	if r.Rounds, err = d.ReadU32(); err != nil {
		return engine.GameResult{}, fmt.Errorf("rounds: %w", err)
	}
	if err := d.Finish(); err != nil {
		return engine.GameResult{}, err
	}
	return r, nil
}

// EncodeInputs writes clicks, random_seed, reaction_times, total_perfects.
func EncodeInputs(in engine.GameInputs) ([]byte, error) {
	e := NewEncoder(1 + 2*len(in.Clicks) + 2 + 1 + len(in.ReactionTimes) + 1)

	if err := e.WriteLen(len(in.Clicks)); err != nil {
		return nil, fmt.Errorf("clicks: %w", err)
	}
	for _, c := range in.Clicks {
		e.WriteU64(c.TimestampMs)
	}

	e.WriteU64(in.RandomSeed)

	if err := e.WriteLen(len(in.ReactionTimes)); err != nil {
		return nil, fmt.Errorf("reaction_times: %w", err)
	}
	for _, t := range in.ReactionTimes {
		e.WriteF32(t)
	}

	e.WriteU32(in.TotalPerfects)
	return e.Bytes(), nil
}

// DecodeInputs reads a witness produced by EncodeInputs.
func DecodeInputs(b []byte) (engine.GameInputs, error) {
	d, err := NewDecoder(b)
	if err != nil {
		return engine.GameInputs{}, err
	}

	var in engine.GameInputs

	n, err := d.ReadLen(2)
	if err != nil {
		return engine.GameInputs{}, fmt.Errorf("clicks: %w", err)
	}
	if n > 0 {
		in.Clicks = make([]engine.Click, n)
	}
	for i := range in.Clicks {
		if in.Clicks[i].TimestampMs, err = d.ReadU64(); err != nil {
			return engine.GameInputs{}, fmt.Errorf("clicks[%d]: %w", i, err)
		}
	}

	if in.RandomSeed, err = d.ReadU64(); err != nil {
		return engine.GameInputs{}, fmt.Errorf("random_seed: %w", err)
	}

	n, err = d.ReadLen(1)
	if err != nil {
		return engine.GameInputs{}, fmt.Errorf("reaction_times: %w", err)
	}
	if n > 0 {
		in.ReactionTimes = make([]float32, n)
	}
	for i := range in.ReactionTimes {
		if in.ReactionTimes[i], err = d.ReadF32(); err != nil {
			return engine.GameInputs{}, fmt.Errorf("reaction_times[%d]: %w", i, err)
		}
	}

	if in.TotalPerfects, err = d.ReadU32(); err != nil {
		return engine.GameInputs{}, fmt.Errorf("total_perfects: %w", err)
	}
	if err := d.Finish(); err != nil {
		return engine.GameInputs{}, err
	}
	return in, nil
}
