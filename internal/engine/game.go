package engine

import (
	"math/rand"
	"time"
)

// Game is the per-game strategy the Loop drives: catcher physics or quiz
// answering. Every method is invoked from the loop goroutine, so a Game
// mutates its own state without locking.
type Game interface {
	// Begin starts a fresh round. Any timers from a previous round are
	// already cancelled; the game resets its state and schedules the
	// timers it needs through ctl.
	Begin(ctl Control)

	// Resume is called when the resume countdown completes. Timers are
	// torn down on pause, so the game reschedules here.
	Resume(ctl Control)

	// Step advances the game by dt. dt is zero on the first tick of a
	// run and clamped by the loop otherwise. Only called while running.
	Step(dt time.Duration, ctl Control)

	// Timer delivers a fired timer previously scheduled via ctl.After.
	// Only delivered while running.
	Timer(id int, ctl Control)

	// Input delivers an event posted via Loop.Post. Only delivered while
	// running.
	Input(ev any, ctl Control)

	// Render returns presentation state for the throttled snapshot. The
	// returned value must not alias game-owned mutable state.
	Render() any
}

// Control is the surface a Game uses to affect its session. It is only
// valid inside Game callbacks.
type Control struct {
	l *Loop
}

// Session exposes the current session for reads. Score and lives move
// through AddScore and LoseLives only.
func (c Control) Session() *Session {
	return &c.l.s
}

// AddScore awards n points. No-ops unless the session is running.
func (c Control) AddScore(n int) {
	c.l.s.addScore(n)
}

// LoseLives deducts n lives as one batched deduction. Reaching zero ends
// the session immediately; the loop settles after the current callback
// returns.
func (c Control) LoseLives(n int) {
	c.l.s.loseLives(n)
}

// End finishes the session. Settlement fires once after the current
// callback returns.
func (c Control) End() {
	c.l.s.end()
}

// After schedules a one-shot timer and returns its id. The timer is
// generation-guarded: pause, restart and stop cancel it, and a callback
// from a previous round can never reach the current one.
func (c Control) After(d time.Duration) int {
	return c.l.after(d)
}

// Cancel stops a pending timer. Unknown or already-fired ids are ignored.
func (c Control) Cancel(id int) {
	c.l.cancel(id)
}

// Rand is the per-round random source, reseeded on every restart.
func (c Control) Rand() *rand.Rand {
	return c.l.rng
}
