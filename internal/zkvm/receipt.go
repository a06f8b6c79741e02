package zkvm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/journal"
)

const (
	imageDomain = "reflex-iq/kernel:"
	minKeyLen   = 16
)

var (
	ErrImageMismatch  = errors.New("zkvm: receipt was produced by a different kernel image")
	ErrDigestMismatch = errors.New("zkvm: digest does not match journal")
	ErrSealMismatch   = errors.New("zkvm: seal verification failed")
	ErrInvariant      = errors.New("zkvm: journal violates result invariants")
	ErrShortKey       = errors.New("zkvm: seal key too short")
)

// Receipt binds a journal to a kernel image. The seal is an HMAC under the
// prover's key (dev mode), not a zero-knowledge proof.
type Receipt struct {
	ImageID       string `json:"image_id"`
	Journal       []byte `json:"journal"`
	JournalDigest string `json:"journal_digest"`
	ClaimDigest   string `json:"claim_digest"`
	Seal          string `json:"seal"`
}

// ImageID derives the image identifier for a kernel version label.
func ImageID(label string) [32]byte {
	return sha256.Sum256([]byte(imageDomain + label))
}

// Prover runs the kernel and seals its journal.
type Prover struct {
	imageID [32]byte
	key     []byte
}

// NewProver returns a prover for the given kernel label and seal key.
func NewProver(imageLabel string, key []byte) (*Prover, error) {
	if len(key) < minKeyLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortKey, len(key), minKeyLen)
	}
	return &Prover{imageID: ImageID(imageLabel), key: append([]byte(nil), key...)}, nil
}

// ImageID returns the hex image id receipts from this prover carry.
func (p *Prover) ImageID() string { return hex.EncodeToString(p.imageID[:]) }

// Verifier returns a verifier sharing this prover's image and key.
func (p *Prover) Verifier() *Verifier {
	return &Verifier{imageID: p.imageID, key: p.key}
}

// Prove encodes the witness, executes the kernel and seals the journal.
func (p *Prover) Prove(ctx context.Context, in engine.GameInputs) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := journal.EncodeInputs(in)
	if err != nil {
		return nil, fmt.Errorf("zkvm: encode input: %w", err)
	}
	j, err := Execute(input)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(j)
	return &Receipt{
		ImageID:       p.ImageID(),
		Journal:       j,
		JournalDigest: hex.EncodeToString(digest[:]),
		ClaimDigest:   hex.EncodeToString(claimDigest(p.imageID, digest)),
		Seal:          hex.EncodeToString(seal(p.key, p.imageID, digest)),
	}, nil
}

// Verifier checks receipts for one kernel image.
type Verifier struct {
	imageID [32]byte
	key     []byte
}

// NewVerifier returns a verifier for the given kernel label and seal key.
func NewVerifier(imageLabel string, key []byte) (*Verifier, error) {
	if len(key) < minKeyLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortKey, len(key), minKeyLen)
	}
	return &Verifier{imageID: ImageID(imageLabel), key: append([]byte(nil), key...)}, nil
}

// Verify checks the receipt and returns the public result it attests.
func (v *Verifier) Verify(r *Receipt) (engine.GameResult, error) {
	if r == nil {
		return engine.GameResult{}, fmt.Errorf("zkvm: nil receipt")
	}
	if r.ImageID != hex.EncodeToString(v.imageID[:]) {
		return engine.GameResult{}, ErrImageMismatch
	}

	digest := sha256.Sum256(r.Journal)
	if r.JournalDigest != hex.EncodeToString(digest[:]) {
		return engine.GameResult{}, fmt.Errorf("%w: journal_digest", ErrDigestMismatch)
	}
	if r.ClaimDigest != hex.EncodeToString(claimDigest(v.imageID, digest)) {
		return engine.GameResult{}, fmt.Errorf("%w: claim_digest", ErrDigestMismatch)
	}

	got, err := hex.DecodeString(r.Seal)
	if err != nil || !hmac.Equal(got, seal(v.key, v.imageID, digest)) {
		return engine.GameResult{}, ErrSealMismatch
	}

	res, err := journal.DecodeResult(r.Journal)
	if err != nil {
		return engine.GameResult{}, fmt.Errorf("zkvm: decode journal: %w", err)
	}
	if err := CheckInvariants(res); err != nil {
		return engine.GameResult{}, err
	}
	return res, nil
}

// CheckInvariants enforces the bounds every committed result satisfies.
func CheckInvariants(r engine.GameResult) error {
	switch {
	case r.IQScore < engine.MinIQ || r.IQScore > engine.MaxIQ:
		return fmt.Errorf("%w: iq_score %d", ErrInvariant, r.IQScore)
	case r.Consistency > engine.MaxConsistency:
		return fmt.Errorf("%w: consistency %d", ErrInvariant, r.Consistency)
	case r.Rounds == 0 && r != engine.EmptyResult():
		return fmt.Errorf("%w: empty session %+v", ErrInvariant, r)
	}
	return nil
}

func seal(key []byte, imageID, digest [32]byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(imageID[:])
	h.Write(digest[:])
	return h.Sum(nil)
}

// claimDigest is the Keccak-256 commitment submitted on chain.
func claimDigest(imageID, digest [32]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(imageID[:])
	h.Write(digest[:])
	return h.Sum(nil)
}
