// Package clock provides the pausable countdown timer that backs each
// participant's time budget in a match.
//
// A Countdown is exclusively owned by its creator. It starts paused; Resume
// begins decrementing wall-clock elapsed time at a fixed tick interval and
// invokes the on-tick callback after every tick and after every
// Increase/Decrease. Remaining time is not clamped at zero - expiry policy
// belongs to the owner.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTickInterval is the tick granularity used when Config.Interval is zero.
const DefaultTickInterval = time.Second

// TickFunc receives the remaining duration after a tick or an adjustment.
//
// Ticks fire on the dispatch context configured in Config; adjustment
// callbacks (Increase/Decrease) fire inline on the caller's goroutine, which
// is assumed to already be serialized by the owner.
type TickFunc func(remaining time.Duration)

// DispatchFunc routes asynchronous tick callbacks through the owner's
// serialization point so that ticks never race owner-driven transitions.
type DispatchFunc func(fn func())

// Config configures a Countdown.
type Config struct {
	// Interval between ticks. Defaults to DefaultTickInterval.
	Interval time.Duration
	// OnTick is invoked with the updated remaining duration. Optional.
	OnTick TickFunc
	// Dispatch delivers asynchronous ticks. When nil, ticks run on the
	// internal timer goroutine.
	Dispatch DispatchFunc
}

// Countdown is a pausable, resumable duration counter.
//
// All methods are safe for concurrent use. After Clear, every method is a
// no-op.
type Countdown struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	interval time.Duration
	onTick   TickFunc
	dispatch DispatchFunc

	remaining time.Duration
	running   bool
	cleared   bool
	mark      time.Time     // last time remaining was reconciled while running
	stop      chan struct{} // closes when the current run ends
}

// NewCountdown creates a countdown holding the initial duration, paused.
func NewCountdown(clk clockwork.Clock, initial time.Duration, cfg Config) *Countdown {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	dispatch := cfg.Dispatch
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Countdown{
		clock:     clk,
		interval:  interval,
		onTick:    cfg.OnTick,
		dispatch:  dispatch,
		remaining: initial,
	}
}

// Resume starts decrementing the remaining duration. Resuming a running or
// cleared countdown is a no-op.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared || c.running {
		return
	}
	c.running = true
	c.mark = c.clock.Now()
	c.stop = make(chan struct{})
	go c.run(c.stop)
}

// Pause stops decrementing while preserving the remaining duration.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared || !c.running {
		return
	}
	c.reconcileLocked()
	c.running = false
	close(c.stop)
	c.stop = nil
}

// Increase adds to the remaining duration and fires the on-tick callback.
func (c *Countdown) Increase(d time.Duration) {
	c.adjust(d)
}

// Decrease subtracts from the remaining duration and fires the on-tick
// callback. Remaining time may go negative.
func (c *Countdown) Decrease(d time.Duration) {
	c.adjust(-d)
}

func (c *Countdown) adjust(delta time.Duration) {
	c.mu.Lock()
	if c.cleared {
		c.mu.Unlock()
		return
	}
	if c.running {
		c.reconcileLocked()
	}
	c.remaining += delta
	remaining := c.remaining
	onTick := c.onTick
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
}

// Clear permanently stops the countdown. Idempotent; every later call on the
// countdown is a no-op.
func (c *Countdown) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared {
		return
	}
	if c.running {
		c.reconcileLocked()
		close(c.stop)
		c.stop = nil
	}
	c.running = false
	c.cleared = true
}

// Paused reports whether the countdown is not currently counting down.
func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.running
}

// Cleared reports whether Clear has been called.
func (c *Countdown) Cleared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

// Remaining returns the remaining duration, reconciled against the clock if
// the countdown is running.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.reconcileLocked()
	}
	return c.remaining
}

// Minutes returns the minutes component of the remaining duration.
func (c *Countdown) Minutes() int {
	return int(c.Remaining().Minutes()) % 60
}

// Seconds returns the seconds component of the remaining duration.
func (c *Countdown) Seconds() int {
	return int(c.Remaining().Seconds()) % 60
}

// Milliseconds returns the total remaining duration in milliseconds.
func (c *Countdown) Milliseconds() int64 {
	return c.Remaining().Milliseconds()
}

// reconcileLocked charges elapsed wall-clock time since the last mark against
// the remaining duration. Caller must hold c.mu with c.running true.
func (c *Countdown) reconcileLocked() {
	now := c.clock.Now()
	c.remaining -= now.Sub(c.mark)
	c.mark = now
}

// run is the tick loop for one resume span. It exits when stop closes.
func (c *Countdown) run(stop chan struct{}) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.tick(stop)
		case <-stop:
			return
		}
	}
}

func (c *Countdown) tick(stop chan struct{}) {
	c.mu.Lock()
	if c.cleared || !c.running || c.stop != stop {
		c.mu.Unlock()
		return
	}
	c.reconcileLocked()
	onTick := c.onTick
	c.mu.Unlock()

	if onTick == nil {
		return
	}
	// Re-read at delivery time: the owner may have paused or credited the
	// countdown between the tick firing and the dispatch running, and a
	// stale snapshot must not clobber that adjustment.
	c.dispatch(func() {
		c.mu.Lock()
		if c.cleared {
			c.mu.Unlock()
			return
		}
		if c.running {
			c.reconcileLocked()
		}
		remaining := c.remaining
		c.mu.Unlock()
		onTick(remaining)
	})
}
