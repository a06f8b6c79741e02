// Package journal implements the structural word codec used by the proving
// harness: every value is a sequence of little-endian 32-bit words, structs
// are their fields in declaration order, and sequences carry a length word.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const wordSize = 4

var (
	ErrUnexpectedEOF = errors.New("journal: unexpected end of word stream")
	ErrTrailingData  = errors.New("journal: trailing words after value")
	ErrMisaligned    = errors.New("journal: byte length is not a multiple of 4")
	ErrLengthOverrun = errors.New("journal: sequence length exceeds remaining words")
)

// Encoder appends words to an in-memory buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with room for sizeHint words.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint*wordSize)}
}

// Bytes returns the encoded stream.
func (e *Encoder) Bytes() []byte { return e.buf }

// Words returns the number of words written.
func (e *Encoder) Words() int { return len(e.buf) / wordSize }

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// WriteU64 writes the low word first.
func (e *Encoder) WriteU64(v uint64) {
	e.WriteU32(uint32(v))
	e.WriteU32(uint32(v >> 32))
}

func (e *Encoder) WriteF32(v float32) {
	e.WriteU32(math.Float32bits(v))
}

// WriteLen writes a sequence length. Lengths are usize on the guest.
func (e *Encoder) WriteLen(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return fmt.Errorf("journal: sequence length %d does not fit a word", n)
	}
	e.WriteU32(uint32(n))
	return nil
}

// Decoder reads words from a byte stream.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder validates alignment and returns a decoder over b.
func NewDecoder(b []byte) (*Decoder, error) {
	if len(b)%wordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMisaligned, len(b))
	}
	return &Decoder{buf: b}, nil
}

// Remaining returns the number of unread words.
func (d *Decoder) Remaining() int { return (len(d.buf) - d.pos) / wordSize }

func (d *Decoder) ReadU32() (uint32, error) {
	if d.Remaining() < 1 {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += wordSize
	return v, nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	lo, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	hi, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

func (d *Decoder) ReadF32() (float32, error) {
	v, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadLen reads a sequence length and checks that elemWords words per
// element are still available.
func (d *Decoder) ReadLen(elemWords int) (int, error) {
	n, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(elemWords) > uint64(d.Remaining()) {
		return 0, fmt.Errorf("%w: %d elements", ErrLengthOverrun, n)
	}
	return int(n), nil
}

// Finish reports an error if any words are left unread.
func (d *Decoder) Finish() error {
	if r := d.Remaining(); r != 0 {
		return fmt.Errorf("%w: %d words", ErrTrailingData, r)
	}
	return nil
}
