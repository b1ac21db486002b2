package engine

import "time"

// Harness drives a Loop deterministically for tests: no loop goroutine, no
// real timers. The harness owns the clock; Step advances it one frame at a
// time and Advance fires scheduled timers in deadline order. Game tests in
// other packages build on it instead of sleeping.
type Harness struct {
	Loop *Loop

	now     time.Time
	pending []*manualTimer
}

type manualTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// NewHarness builds a loop around c with an injected clock and manual
// timers, then begins the first session. A zero Seed config still gets a
// fixed seed so runs are reproducible.
func NewHarness(c Config) *Harness {
	h := &Harness{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	c.Now = func() time.Time { return h.now }
	if c.Seed == nil {
		c.Seed = func() int64 { return 1 }
	}

	l := newLoop(c)
	l.newTimer = func(d time.Duration, f func()) stopper {
		t := &manualTimer{deadline: h.now.Add(d), f: f}
		h.pending = append(h.pending, t)
		return t
	}
	h.Loop = l

	l.begin()
	h.drain()

	return h
}

// Now returns the harness clock.
func (h *Harness) Now() time.Time { return h.now }

// Step advances the clock by dt and runs one frame.
func (h *Harness) Step(dt time.Duration) {
	h.now = h.now.Add(dt)
	h.Loop.tick(h.now)
	h.drain()
}

// Advance moves the clock forward by d, firing every scheduled timer that
// comes due, in deadline order. Frames do not run; interleave with Step
// when a test needs both.
func (h *Harness) Advance(d time.Duration) {
	target := h.now.Add(d)

	for {
		next := h.nextDue(target)
		if next == nil {
			break
		}

		if next.deadline.After(h.now) {
			h.now = next.deadline
		}
		next.stopped = true
		next.f()
		h.drain()
	}

	h.now = target
}

func (h *Harness) nextDue(target time.Time) *manualTimer {
	var best *manualTimer
	for _, t := range h.pending {
		if t.stopped || t.deadline.After(target) {
			continue
		}
		if best == nil || t.deadline.Before(best.deadline) {
			best = t
		}
	}
	return best
}

func (h *Harness) Pause()      { h.Loop.Pause(); h.drain() }
func (h *Harness) Resume()     { h.Loop.Resume(); h.drain() }
func (h *Harness) Restart()    { h.Loop.Restart(); h.drain() }
func (h *Harness) Post(ev any) { h.Loop.Post(ev); h.drain() }

// Session returns a copy of the loop-owned session state.
func (h *Harness) Session() Session { return h.Loop.s }

// PendingTimers counts timers scheduled and not yet fired or cancelled.
func (h *Harness) PendingTimers() int { return len(h.Loop.timers) }

// WaitSettlements blocks until in-flight settlement callbacks return.
func (h *Harness) WaitSettlements() { h.Loop.wg.Wait() }

// drain dispatches everything queued on the loop's channels. Commands and
// timer fires land here instead of in the (absent) loop goroutine.
func (h *Harness) drain() {
	for {
		select {
		case f := <-h.Loop.timerCh:
			h.Loop.fire(f)
		case cmd := <-h.Loop.cmdCh:
			h.Loop.handle(cmd)
		default:
			return
		}
	}
}
