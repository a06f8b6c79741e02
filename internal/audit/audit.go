// Package audit re-verifies stored receipts against the current kernel
// image and checks that each row's result columns match its journal.
package audit

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

var ErrResultMismatch = errors.New("audit: stored result differs from journal")

// Failure describes one session that did not pass.
type Failure struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player,omitempty"`
	Error     string `json:"error"`
}

// Report summarizes an audit run.
type Report struct {
	Checked  int           `json:"checked"`
	Failed   int           `json:"failed"`
	Failures []Failure     `json:"failures"`
	Duration time.Duration `json:"duration"`
}

// Auditor checks sessions with a bounded number of workers.
type Auditor struct {
	verifier    *zkvm.Verifier
	workerCount int
}

// New returns an auditor. workers <= 0 uses GOMAXPROCS.
func New(v *zkvm.Verifier, workers int) *Auditor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Auditor{verifier: v, workerCount: workers}
}

// Run audits every session in db. A context cancellation stops the run and
// is returned as the error; individual receipt failures are reported, not
// returned.
func (a *Auditor) Run(ctx context.Context, db store.DB) (*Report, error) {
	sessions, err := db.AllSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load sessions: %w", err)
	}
	return a.Check(ctx, sessions)
}

// Check audits the given sessions. Failures keep the input order.
func (a *Auditor) Check(ctx context.Context, sessions []store.Session) (*Report, error) {
	start := time.Now()
	results := make([]error, len(sessions))
	var checked atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workerCount)
	for i := range sessions {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.checkOne(&sessions[i])
			checked.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	report := &Report{Checked: int(checked.Load()), Failures: []Failure{}}
	for i, err := range results {
		if err == nil {
			continue
		}
		report.Failures = append(report.Failures, Failure{
			SessionID: sessions[i].ID,
			Player:    sessions[i].Player,
			Error:     err.Error(),
		})
	}
	report.Failed = len(report.Failures)
	report.Duration = time.Since(start)
	return report, nil
}

func (a *Auditor) checkOne(sess *store.Session) error {
	receipt, err := sess.Receipt()
	if err != nil {
		return err
	}
	res, err := a.verifier.Verify(receipt)
	if err != nil {
		return err
	}
	if res != sess.Result() {
		return fmt.Errorf("%w: journal %+v, row %+v", ErrResultMismatch, res, sess.Result())
	}
	return nil
}
