package interview

import (
	"testing"
	"time"
)

func TestCountdown_TickDecrements(t *testing.T) {
	c := NewCountdown(10)

	var ticks []int
	c.SetCallbacks(func(remaining int) { ticks = append(ticks, remaining) }, nil)

	c.tick()
	c.tick()
	c.tick()

	if c.Remaining() != 7 {
		t.Errorf("Expected 7 remaining, got %d", c.Remaining())
	}
	if len(ticks) != 3 || ticks[0] != 9 || ticks[2] != 7 {
		t.Errorf("Expected tick callbacks 9,8,7, got %v", ticks)
	}
}

func TestCountdown_PauseBlocksDecrement(t *testing.T) {
	c := NewCountdown(10)

	c.Pause()
	c.tick()
	c.tick()
	if c.Remaining() != 10 {
		t.Errorf("Expected no decrement while paused, got %d", c.Remaining())
	}

	c.Resume()
	c.tick()
	if c.Remaining() != 9 {
		t.Errorf("Expected decrement after resume, got %d", c.Remaining())
	}
}

func TestCountdown_ExpiresOnce(t *testing.T) {
	c := NewCountdown(2)

	expirations := 0
	c.SetCallbacks(nil, func() { expirations++ })

	c.tick()
	c.tick()
	c.tick()
	c.tick()

	if expirations != 1 {
		t.Errorf("Expected exactly one expiry callback, got %d", expirations)
	}
	if c.Remaining() != 0 {
		t.Errorf("Expected 0 remaining, got %d", c.Remaining())
	}
}

func TestCountdown_SetRemainingClamps(t *testing.T) {
	c := NewCountdown(10)

	c.SetRemaining(842)
	if c.Remaining() != 842 {
		t.Errorf("Expected 842 remaining, got %d", c.Remaining())
	}

	c.SetRemaining(-5)
	if c.Remaining() != 0 {
		t.Errorf("Expected negative input clamped to 0, got %d", c.Remaining())
	}
}

func TestStopwatch_ExcludesPausedTime(t *testing.T) {
	w := NewStopwatch()

	if w.ElapsedSeconds() != 0 {
		t.Error("Expected zero elapsed before starting")
	}

	w.Restart()
	w.started = time.Now().Add(-10 * time.Second)
	if w.ElapsedSeconds() != 10 {
		t.Errorf("Expected 10 seconds elapsed, got %d", w.ElapsedSeconds())
	}

	// A pause that began 4 seconds ago freezes the clock at 6.
	w.pausedAt = time.Now().Add(-4 * time.Second)
	if w.ElapsedSeconds() != 6 {
		t.Errorf("Expected 6 seconds elapsed while paused, got %d", w.ElapsedSeconds())
	}

	w.Resume()
	if got := w.ElapsedSeconds(); got != 6 {
		t.Errorf("Expected 6 seconds elapsed after resume, got %d", got)
	}
}

func TestStopwatch_RestartZeroes(t *testing.T) {
	w := NewStopwatch()
	w.Restart()
	w.started = time.Now().Add(-30 * time.Second)
	w.paused = 5 * time.Second

	w.Restart()
	if w.ElapsedSeconds() != 0 {
		t.Errorf("Expected zero elapsed after restart, got %d", w.ElapsedSeconds())
	}
}
