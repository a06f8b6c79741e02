// Package zkvm hosts the scoring kernel: an in-memory harness environment
// that feeds the witness and captures the journal, plus dev-mode receipts
// that bind a journal to the kernel image that produced it.
package zkvm

import (
	"errors"
	"fmt"

	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/journal"
)

var (
	ErrInputConsumed    = errors.New("zkvm: input already read")
	ErrAlreadyCommitted = errors.New("zkvm: journal already committed")
	ErrNoCommit         = errors.New("zkvm: kernel finished without committing")
)

// Env is a single-use harness environment. It implements engine.Harness.
type Env struct {
	input     []byte
	read      bool
	journal   []byte
	committed bool
}

// NewEnv wraps an encoded witness.
func NewEnv(input []byte) *Env {
	return &Env{input: input}
}

// ReadInput decodes the witness. It may be called once.
func (e *Env) ReadInput() (engine.GameInputs, error) {
	if e.read {
		return engine.GameInputs{}, ErrInputConsumed
	}
	e.read = true
	in, err := journal.DecodeInputs(e.input)
	if err != nil {
		return engine.GameInputs{}, fmt.Errorf("zkvm: read input: %w", err)
	}
	return in, nil
}

// Commit appends the encoded result to the journal. It may be called once.
func (e *Env) Commit(r engine.GameResult) error {
	if e.committed {
		return ErrAlreadyCommitted
	}
	e.committed = true
	e.journal = append(e.journal, journal.EncodeResult(r)...)
	return nil
}

// Journal returns the committed bytes.
func (e *Env) Journal() ([]byte, error) {
	if !e.committed {
		return nil, ErrNoCommit
	}
	return e.journal, nil
}

// Execute runs the kernel entry point on an encoded witness and returns
// the journal it committed.
func Execute(input []byte) ([]byte, error) {
	env := NewEnv(input)
	if err := engine.Main(env); err != nil {
		return nil, err
	}
	return env.Journal()
}
