// Package perfects classifies rounds as "perfect" taps with a sandboxed
// JavaScript rule, so operators can tune the rule without a rebuild.
package perfects

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/reflex-iq/internal/engine"
)

// DefaultRule is the game's stock rule: a tap within 100ms of the moment
// the item reaches its target line.
const DefaultRule = `function isPerfect(round) {
	return Math.abs(round.click_ms - round.target_ms) < 100;
}`

const (
	compileTimeout = 2 * time.Second
	countTimeout   = 1 * time.Second
)

var ErrLengthMismatch = errors.New("perfects: clicks, targets and reaction times differ in length")

// Round is what the rule sees for one tap.
type Round struct {
	Index      int
	ReactionMs float32
	ClickMs    uint64
	TargetMs   float64
}

// Classifier wraps one goja runtime holding a compiled isPerfect rule.
type Classifier struct {
	runtime *goja.Runtime
	fn      goja.Callable
	mu      sync.Mutex
}

// New compiles source, which must define isPerfect(round). An empty source
// selects DefaultRule.
func New(source string) (*Classifier, error) {
	if source == "" {
		source = DefaultRule
	}
	c := &Classifier{runtime: goja.New()}
	c.sandbox()

	err := c.runWithTimeout(compileTimeout, func() error {
		if _, err := c.runtime.RunString(source); err != nil {
			return fmt.Errorf("perfects: rule error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fn, ok := goja.AssertFunction(c.runtime.Get("isPerfect"))
	if !ok {
		return nil, fmt.Errorf("perfects: rule does not define isPerfect(round)")
	}
	c.fn = fn
	return c, nil
}

// Block globals a rule has no business touching.
func (c *Classifier) sandbox() {
	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		c.runtime.Set(name, goja.Undefined())
	}
}

// Count returns how many rounds the rule marks perfect.
func (c *Classifier) Count(rounds []Round) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n uint32
	err := c.runWithTimeout(countTimeout, func() error {
		for _, r := range rounds {
			v, err := c.fn(goja.Undefined(), c.runtime.ToValue(map[string]any{
				"index":       r.Index,
				"reaction_ms": float64(r.ReactionMs),
				"click_ms":    float64(r.ClickMs),
				"target_ms":   r.TargetMs,
			}))
			if err != nil {
				return fmt.Errorf("perfects: isPerfect(round %d): %w", r.Index, err)
			}
			if v.ToBoolean() {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Rounds zips the host's per-tap records into rule inputs.
func Rounds(clicks []engine.Click, targets []float64, reactions []float32) ([]Round, error) {
	if len(clicks) != len(targets) || len(clicks) != len(reactions) {
		return nil, fmt.Errorf("%w: %d clicks, %d targets, %d reaction times",
			ErrLengthMismatch, len(clicks), len(targets), len(reactions))
	}
	out := make([]Round, len(clicks))
	for i := range clicks {
		out[i] = Round{
			Index:      i,
			ReactionMs: reactions[i],
			ClickMs:    clicks[i].TimestampMs,
			TargetMs:   targets[i],
		}
	}
	return out, nil
}

func (c *Classifier) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		c.runtime.Interrupt("rule execution timeout")
		err := <-done
		c.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("perfects: rule timed out: %w", err)
		}
		return fmt.Errorf("perfects: rule timed out")
	}
}
