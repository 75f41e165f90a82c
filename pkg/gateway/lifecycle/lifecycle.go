// Package lifecycle tracks process-level serving state. The gateway flips
// into draining at shutdown so readiness probes fail and new interview
// connections are refused while in-flight sessions finish.
package lifecycle

import "sync/atomic"

// Lifecycle holds the shared serving/draining flag. The zero value is
// serving; a nil receiver behaves like a serving instance so handlers can
// skip nil checks.
type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining marks the process as draining (or clears the mark).
func (l *Lifecycle) SetDraining(draining bool) {
	if l != nil {
		l.draining.Store(draining)
	}
}

// IsDraining reports whether shutdown has begun.
func (l *Lifecycle) IsDraining() bool {
	return l != nil && l.draining.Load()
}
