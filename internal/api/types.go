package api

import (
	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

// ProveScoreRequest is the game client's end-of-session report.
type ProveScoreRequest struct {
	Player        string         `json:"player,omitempty"`
	ReactionTimes []float64      `json:"reaction_times"`
	TotalPerfects *uint32        `json:"total_perfects,omitempty"`
	Clicks        []engine.Click `json:"clicks,omitempty"`
	RandomSeed    uint64         `json:"random_seed,omitempty"`
	TargetsMs     []float64      `json:"targets_ms,omitempty"`
}

// ProveScoreResponse carries the receipt and the result it attests.
type ProveScoreResponse struct {
	SessionID     string            `json:"session_id"`
	Proof         *zkvm.Receipt     `json:"proof"`
	Result        engine.GameResult `json:"result"`
	AvgReactionMs string            `json:"avg_reaction_ms"`
	EngineVersion string            `json:"engine_version"`
}

// VerifyResponse is returned when a receipt checks out.
type VerifyResponse struct {
	Valid         bool              `json:"valid"`
	ImageID       string            `json:"image_id"`
	Result        engine.GameResult `json:"result"`
	EngineVersion string            `json:"engine_version"`
}

// SessionsResponse wraps a page of stored sessions.
type SessionsResponse struct {
	*store.SessionsList
	EngineVersion string `json:"engine_version"`
}

// LeaderboardResponse lists each player's best session.
type LeaderboardResponse struct {
	Entries       []store.LeaderboardEntry `json:"entries"`
	EngineVersion string                   `json:"engine_version"`
}

// SpawnsResponse is a deterministic spawn schedule for a seed.
type SpawnsResponse struct {
	Seed          uint64    `json:"seed"`
	Count         int       `json:"count"`
	Values        []float32 `json:"values"`
	EngineVersion string    `json:"engine_version"`
}

// VersionInfo contains version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit"`
	BuildTime     string `json:"build_time"`
}
