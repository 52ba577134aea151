// Package throttle provides a single-flight gate: at most one unit of work
// holds it at a time and everyone else is turned away instead of queued.
package throttle

import "sync/atomic"

// Gate admits one holder at a time. The zero value is an open gate.
type Gate struct {
	busy     atomic.Bool
	admitted atomic.Uint64
	dropped  atomic.Uint64
}

// Admit tries to take the gate. It returns true for exactly one caller per
// busy period; concurrent callers get false and are expected to drop their
// work.
func (g *Gate) Admit() bool {
	if g.busy.CompareAndSwap(false, true) {
		g.admitted.Add(1)
		return true
	}
	g.dropped.Add(1)
	return false
}

// Release reopens the gate. Call it exactly once for every Admit that
// returned true, and never otherwise.
func (g *Gate) Release() {
	if !g.busy.CompareAndSwap(true, false) {
		panic("throttle: Release called on an open gate")
	}
}

// Busy reports whether the gate is currently held
func (g *Gate) Busy() bool {
	return g.busy.Load()
}

// Stats returns how many Admit calls succeeded and how many were dropped
func (g *Gate) Stats() (admitted, dropped uint64) {
	return g.admitted.Load(), g.dropped.Load()
}
