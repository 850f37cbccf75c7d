// Package testutil holds deterministic stand-ins for the clocks and
// identifiers a provisioning run consumes, so runs can be compared
// byte-for-byte in tests and golden files.
package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a resettable logical clock for step records.
// It satisfies engine.SeqClock. Safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last issued sequence number.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so a scenario can be replayed with identical seqs.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// Epoch is the wall time reported by FrozenNow.
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// FrozenNow always reports Epoch, so every step duration is zero.
func FrozenNow() time.Time {
	return Epoch
}
