package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

var ErrNotFound = errors.New("store: session not found")

// ErrNonFinite rejects a session whose average cannot be served back as JSON.
var ErrNonFinite = errors.New("store: avg_reaction is not finite")

// DB represents the database interface
type DB interface {
	Close() error
	Migrate() error
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, query SessionsQuery) (*SessionsList, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	AllSessions(ctx context.Context) ([]Session, error)
}

// SessionsQuery represents query parameters for listing sessions
type SessionsQuery struct {
	Player  string `json:"player,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// SessionsList represents a paginated sessions response
type SessionsList struct {
	Sessions   []Session `json:"sessions"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

// Session is one proved play session and the receipt that attests it.
// The private witness is never stored, only the random seed the host
// already published.
type Session struct {
	ID            string    `json:"id"`
	Player        string    `json:"player"`
	Rounds        uint32    `json:"rounds"`
	AvgReaction   float32   `json:"avg_reaction"`
	IQScore       uint32    `json:"iq_score"`
	Consistency   uint32    `json:"consistency"`
	RandomSeed    uint64    `json:"random_seed"`
	ImageID       string    `json:"image_id"`
	Journal       string    `json:"journal"` // hex
	JournalDigest string    `json:"journal_digest"`
	ClaimDigest   string    `json:"claim_digest"`
	Seal          string    `json:"seal"`
	EngineVersion string    `json:"engine_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// LeaderboardEntry is a player's best session.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	Player      string    `json:"player"`
	SessionID   string    `json:"session_id"`
	IQScore     uint32    `json:"iq_score"`
	AvgReaction float32   `json:"avg_reaction"`
	Consistency uint32    `json:"consistency"`
	Rounds      uint32    `json:"rounds"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSession builds a row from a receipt and the result it attests.
func NewSession(player string, seed uint64, res engine.GameResult, r *zkvm.Receipt, engineVersion string) *Session {
	return &Session{
		Player:        player,
		Rounds:        res.Rounds,
		AvgReaction:   res.AvgReaction,
		IQScore:       res.IQScore,
		Consistency:   res.Consistency,
		RandomSeed:    seed,
		ImageID:       r.ImageID,
		Journal:       hex.EncodeToString(r.Journal),
		JournalDigest: r.JournalDigest,
		ClaimDigest:   r.ClaimDigest,
		Seal:          r.Seal,
		EngineVersion: engineVersion,
	}
}

// Receipt reassembles the stored receipt.
func (s *Session) Receipt() (*zkvm.Receipt, error) {
	j, err := hex.DecodeString(s.Journal)
	if err != nil {
		return nil, fmt.Errorf("store: session %s journal: %w", s.ID, err)
	}
	return &zkvm.Receipt{
		ImageID:       s.ImageID,
		Journal:       j,
		JournalDigest: s.JournalDigest,
		ClaimDigest:   s.ClaimDigest,
		Seal:          s.Seal,
	}, nil
}

// Result returns the public result columns.
func (s *Session) Result() engine.GameResult {
	return engine.GameResult{
		AvgReaction: s.AvgReaction,
		IQScore:     s.IQScore,
		Consistency: s.Consistency,
		Rounds:      s.Rounds,
	}
}
