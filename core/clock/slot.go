package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultSlotDuration matches the cadence of the original settlement host.
const DefaultSlotDuration = 400 * time.Millisecond

var errInvalidSlotDuration = errors.New("clock: slot duration must be positive")

// SlotClock converts wall-clock time since genesis into a monotonically
// non-decreasing slot counter.
type SlotClock struct {
	clock    clockwork.Clock
	genesis  time.Time
	duration time.Duration

	mu     sync.Mutex
	offset uint64
	last   uint64
}

// NewSlotClock returns a slot clock anchored at genesis. A nil clock falls
// back to the real clock.
func NewSlotClock(clk clockwork.Clock, genesis time.Time, duration time.Duration) (*SlotClock, error) {
	if duration <= 0 {
		return nil, errInvalidSlotDuration
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if genesis.IsZero() {
		genesis = clk.Now()
	}
	return &SlotClock{clock: clk, genesis: genesis, duration: duration}, nil
}

// Slot returns the current slot. Wall-clock regressions never move the slot
// backwards.
func (c *SlotClock) Slot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var elapsed uint64
	if since := c.clock.Since(c.genesis); since > 0 {
		elapsed = uint64(since / c.duration)
	}
	slot := elapsed + c.offset
	if slot < c.last {
		slot = c.last
	}
	c.last = slot
	return slot
}

// Warp advances the clock by slots without waiting. Intended for local
// development networks.
func (c *SlotClock) Warp(slots uint64) uint64 {
	c.mu.Lock()
	c.offset += slots
	c.mu.Unlock()
	return c.Slot()
}

// Genesis returns the instant of slot zero.
func (c *SlotClock) Genesis() time.Time { return c.genesis }

// SlotDuration returns the length of one slot.
func (c *SlotClock) SlotDuration() time.Duration { return c.duration }

// SlotTime estimates the wall-clock instant at which slot begins, ignoring
// any warp offset.
func (c *SlotClock) SlotTime(slot uint64) time.Time {
	return c.genesis.Add(time.Duration(slot) * c.duration)
}
