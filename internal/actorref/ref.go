// Package actorref implements the weak-reference discipline the core relies on to break
// the Session<->Room and Session<->Connection ownership cycles. Every actor that other
// actors may hold a non-owning handle to embeds a Liveness and hands out Ref values
// derived from it; the only strong reference is held by whichever directory owns the
// actor (RoomManager, SessionManager, the accept loop). A Ref never keeps its target
// alive: it only lets a holder ask whether the target is still live right before using
// it, and fail silently otherwise.
package actorref

import "sync/atomic"

// Liveness is embedded in any actor that hands out weak references to itself. It starts
// live and is marked stopped exactly once, on the actor's own shutdown path.
type Liveness struct {
	alive atomic.Bool
}

// NewLiveness returns a Liveness initialised to the live state.
func NewLiveness() *Liveness {
	l := &Liveness{}
	l.alive.Store(true)
	return l
}

// Stop marks the actor as no longer reachable. Idempotent.
func (l *Liveness) Stop() { l.alive.Store(false) }

// IsLive reports whether the actor has not yet stopped.
func (l *Liveness) IsLive() bool { return l.alive.Load() }

// Ref is a non-owning handle to an actor of type T. T may be a concrete pointer type or an
// interface; storing the value directly (rather than *T) lets two packages hand each other
// weak references to one another's actors through locally-defined interfaces, without
// either package importing the other. The zero Ref is invalid and never upgrades.
type Ref[T any] struct {
	target T
	life   *Liveness
	set    bool
}

// New wraps target in a Ref backed by the given Liveness.
func New[T any](target T, life *Liveness) Ref[T] {
	return Ref[T]{target: target, life: life, set: true}
}

// Upgrade attempts to resolve the reference. It returns the zero value and false if the
// Ref is the zero value or its target has stopped; callers must check the second return
// value before using the first and must drop the Ref from their own state on failure.
func (r Ref[T]) Upgrade() (T, bool) {
	var zero T
	if !r.set || r.life == nil || !r.life.IsLive() {
		return zero, false
	}
	return r.target, true
}

// Valid reports whether the Ref was constructed with a target, independent of whether that
// target is still live. Useful for distinguishing "never set" from "set but stopped" in
// tests.
func (r Ref[T]) Valid() bool { return r.set }
