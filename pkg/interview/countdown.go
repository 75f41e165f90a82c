package interview

import (
	"context"
	"sync"
	"time"
)

// Countdown is a single-fire-per-tick periodic clock producing one decrement
// per second. It drives the total session time budget.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	paused    bool
	expired   bool
	cancel    context.CancelFunc

	// Callbacks for events
	onTick    func(remaining int)
	onExpired func()
}

// NewCountdown creates a countdown starting at the given number of seconds.
func NewCountdown(seconds int) *Countdown {
	return &Countdown{remaining: seconds}
}

// SetCallbacks sets the per-second tick and expiry callbacks.
func (c *Countdown) SetCallbacks(onTick func(remaining int), onExpired func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = onTick
	c.onExpired = onExpired
}

// Start begins ticking. Must not be called twice without an intervening Stop.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.tickLoop(ctx)
}

// Stop halts the countdown. Safe to call more than once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

// Pause suspends decrementing without stopping the tick loop.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume continues decrementing after a Pause.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// SetRemaining overwrites the seconds left (used by session recovery).
func (c *Countdown) SetRemaining(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
}

func (c *Countdown) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.paused || c.expired {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	onTick := c.onTick

	var onExpired func()
	if remaining == 0 {
		c.expired = true
		onExpired = c.onExpired
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if onExpired != nil {
		onExpired()
	}
}

// Stopwatch counts elapsed whole seconds for the current answer. It shares
// the countdown's one-tick-per-second discipline but runs upward and has no
// expiry.
type Stopwatch struct {
	mu       sync.Mutex
	started  time.Time
	paused   time.Duration
	pausedAt time.Time
}

// NewStopwatch creates a stopped stopwatch.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{}
}

// Restart zeroes the stopwatch and starts it.
func (w *Stopwatch) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = time.Now()
	w.paused = 0
	w.pausedAt = time.Time{}
}

// Pause suspends the elapsed clock.
func (w *Stopwatch) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pausedAt.IsZero() {
		w.pausedAt = time.Now()
	}
}

// Resume continues the elapsed clock after a Pause.
func (w *Stopwatch) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pausedAt.IsZero() {
		w.paused += time.Since(w.pausedAt)
		w.pausedAt = time.Time{}
	}
}

// ElapsedSeconds returns whole seconds elapsed, excluding paused time.
func (w *Stopwatch) ElapsedSeconds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started.IsZero() {
		return 0
	}
	elapsed := time.Since(w.started) - w.paused
	if !w.pausedAt.IsZero() {
		elapsed -= time.Since(w.pausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Second)
}
