package interview

import (
	"context"
	"sync"
	"time"
)

// ViolationKind identifies the kind of integrity violation.
type ViolationKind string

const (
	// ViolationFullscreenExit is a transition out of fullscreen mid-session.
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	// ViolationTabSwitch is the interview tab becoming hidden.
	ViolationTabSwitch ViolationKind = "tab_switch"
	// ViolationWindowBlur is the window losing focus. Softer signal: it
	// pauses the session but does not increment the violation count.
	ViolationWindowBlur ViolationKind = "window_blur"
)

// ViolationEvent is one entry in the monitor's append-only violation log.
type ViolationEvent struct {
	Kind        ViolationKind `json:"kind"`
	TimestampMs int64         `json:"timestamp_ms"`
	Duration    time.Duration `json:"duration_seconds"`
}

// SignalKind identifies a raw integrity signal from the hosting runtime.
type SignalKind string

const (
	// SignalFullscreenChange reports the new fullscreen state.
	SignalFullscreenChange SignalKind = "fullscreen_change"
	// SignalTabHidden reports the document becoming hidden.
	SignalTabHidden SignalKind = "tab_hidden"
	// SignalWindowBlur reports the window losing focus.
	SignalWindowBlur SignalKind = "window_blur"
)

// Signal is a raw event observed by a SignalSource.
type Signal struct {
	Kind SignalKind
	// Fullscreen is the resulting state for SignalFullscreenChange.
	Fullscreen bool
	At         time.Time
	Duration   time.Duration
}

// SignalSource delivers integrity signals from the hosting runtime. Browser
// hosts adapt fullscreen-change/visibility/blur events; tests inject
// synthetic ones.
type SignalSource interface {
	Signals() <-chan Signal
}

// IntegrityMonitor observes fullscreen and focus signals, counts violations,
// and invokes the orchestrator's pause handler on each detected exit/switch.
// Violations accumulate for the life of the session; they never invalidate it.
type IntegrityMonitor struct {
	mu         sync.Mutex
	fullscreen bool
	count      int
	events     []ViolationEvent

	sources []SignalSource
	cancel  context.CancelFunc

	// Callbacks for events
	onViolation func(ev ViolationEvent)
	onPause     func(kind ViolationKind)
}

// NewIntegrityMonitor creates a monitor fed by the given signal sources.
func NewIntegrityMonitor(sources ...SignalSource) *IntegrityMonitor {
	return &IntegrityMonitor{sources: sources}
}

// SetCallbacks sets the violation and pause callbacks.
func (m *IntegrityMonitor) SetCallbacks(
	onViolation func(ev ViolationEvent),
	onPause func(kind ViolationKind),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onViolation = onViolation
	m.onPause = onPause
}

// Start begins consuming signals from all sources.
func (m *IntegrityMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	sources := m.sources
	m.mu.Unlock()

	for _, src := range sources {
		go m.watch(ctx, src)
	}
}

// Stop halts signal consumption.
func (m *IntegrityMonitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

// SetFullscreen records the believed fullscreen state. Called by the
// orchestrator on session start and on resume after re-entering fullscreen.
func (m *IntegrityMonitor) SetFullscreen(fullscreen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullscreen = fullscreen
}

// Count returns the accumulated violation count.
func (m *IntegrityMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Events returns a copy of the violation log.
func (m *IntegrityMonitor) Events() []ViolationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ViolationEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *IntegrityMonitor) watch(ctx context.Context, src SignalSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-src.Signals():
			if !ok {
				return
			}
			m.handle(sig)
		}
	}
}

// Inject processes a single signal directly, bypassing the source channels.
func (m *IntegrityMonitor) Inject(sig Signal) {
	m.handle(sig)
}

func (m *IntegrityMonitor) handle(sig Signal) {
	at := sig.At
	if at.IsZero() {
		at = time.Now()
	}

	m.mu.Lock()
	var kind ViolationKind
	counted := false

	switch sig.Kind {
	case SignalFullscreenChange:
		wasFullscreen := m.fullscreen
		m.fullscreen = sig.Fullscreen
		if !wasFullscreen || sig.Fullscreen {
			// Entering fullscreen, or a repeat exit report: no violation.
			m.mu.Unlock()
			return
		}
		kind = ViolationFullscreenExit
		counted = true

	case SignalTabHidden:
		kind = ViolationTabSwitch
		counted = true

	case SignalWindowBlur:
		kind = ViolationWindowBlur

	default:
		m.mu.Unlock()
		return
	}

	ev := ViolationEvent{
		Kind:        kind,
		TimestampMs: at.UnixMilli(),
		Duration:    sig.Duration,
	}
	m.events = append(m.events, ev)
	if counted {
		m.count++
	}
	onViolation := m.onViolation
	onPause := m.onPause
	m.mu.Unlock()

	if counted && onViolation != nil {
		onViolation(ev)
	}
	if onPause != nil {
		onPause(kind)
	}
}
