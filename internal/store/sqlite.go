package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	writeRetries   = 5
	writeRetryBase = 25 * time.Millisecond
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db     *sql.DB
	logger *log.Logger
}

// NewSQLiteDB opens the database at path. ":memory:" is accepted for tests.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes

	return &SQLiteDB{
		db:     db,
		logger: log.New(os.Stdout, "[STORE] ", log.LstdFlags),
	}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *SQLiteDB) Migrate() error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(context.Background())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	for _, r := range results {
		s.logger.Printf("migration_applied version=%d duration=%s", r.Source.Version, r.Duration)
	}
	return nil
}

// SaveSession inserts a session, assigning an id and timestamp if unset.
func (s *SQLiteDB) SaveSession(ctx context.Context, sess *Session) error {
	if math.IsNaN(float64(sess.AvgReaction)) || math.IsInf(float64(sess.AvgReaction), 0) {
		return ErrNonFinite
	}
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO sessions (
		id, player, rounds, avg_reaction, iq_score, consistency, random_seed,
		image_id, journal, journal_digest, claim_digest, seal, engine_version, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.withRetry(ctx, "save_session", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			sess.ID, sess.Player, sess.Rounds, float64(sess.AvgReaction), sess.IQScore,
			sess.Consistency, int64(sess.RandomSeed), sess.ImageID, sess.Journal,
			sess.JournalDigest, sess.ClaimDigest, sess.Seal, sess.EngineVersion, sess.CreatedAt,
		)
		return err
	})
}

// withRetry retries fn while SQLite reports the database as busy.
func (s *SQLiteDB) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(writeRetries, retry.NewExponential(writeRetryBase))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && isBusyError(err) {
			s.logger.Printf("retrying op=%s attempt=%d error=%q", op, attempt, err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// isBusyError checks if the error is a transient lock error
func isBusyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

const sessionColumns = `id, player, rounds, avg_reaction, iq_score, consistency, random_seed,
	image_id, journal, journal_digest, claim_digest, seal, engine_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var avg float64
	var seed int64
	err := row.Scan(
		&sess.ID, &sess.Player, &sess.Rounds, &avg, &sess.IQScore, &sess.Consistency, &seed,
		&sess.ImageID, &sess.Journal, &sess.JournalDigest, &sess.ClaimDigest, &sess.Seal,
		&sess.EngineVersion, &sess.CreatedAt,
	)
	if err != nil {
		return Session{}, err
	}
	sess.AvgReaction = float32(avg)
	sess.RandomSeed = uint64(seed)
	return sess, nil
}

// GetSession retrieves a session by ID
func (s *SQLiteDB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// ListSessions retrieves sessions with pagination and filtering
func (s *SQLiteDB) ListSessions(ctx context.Context, query SessionsQuery) (*SessionsList, error) {
	whereClause := ""
	args := []any{}

	if query.Player != "" {
		whereClause = "WHERE player = ?"
		args = append(args, query.Player)
	}

	var totalCount int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions "+whereClause, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	// Pages past the end read nothing; this also keeps the offset from
	// overflowing for huge page numbers.
	offset := totalCount
	if query.Page <= totalPages {
		offset = (query.Page - 1) * query.PerPage
	}

	mainQuery := `SELECT ` + sessionColumns + `
		FROM sessions ` + whereClause + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := s.db.QueryContext(ctx, mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return &SessionsList{
		Sessions:   sessions,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

// Leaderboard returns each named player's best session: highest score,
// then lower average reaction, then earliest.
func (s *SQLiteDB) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT player, id, iq_score, avg_reaction, consistency, rounds, created_at FROM (
		SELECT *, ROW_NUMBER() OVER (
			PARTITION BY player
			ORDER BY iq_score DESC, avg_reaction ASC, created_at ASC
		) AS rn
		FROM sessions
		WHERE player != '' AND rounds > 0
	) WHERE rn = 1
	ORDER BY iq_score DESC, avg_reaction ASC, created_at ASC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		var avg float64
		if err := rows.Scan(&e.Player, &e.SessionID, &e.IQScore, &avg, &e.Consistency, &e.Rounds, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.AvgReaction = float32(avg)
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AllSessions returns every stored session, oldest first.
func (s *SQLiteDB) AllSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
