// Package engine implements the timed-session game loop shared by the
// catcher and quiz games: fixed-cadence stepping with clamped frame deltas,
// generation-guarded timers, the pause / resume-countdown state machine, and
// at-most-once reward settlement when a session ends.
//
// All session and game state is owned by a single loop goroutine. External
// callers talk to it through commands (Pause, Resume, Restart, Post) and read
// it through throttled snapshots, so no two mutations ever race.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLives          = 3
	defaultFrameInterval  = 16 * time.Millisecond
	defaultMaxFrameDelta  = 32 * time.Millisecond
	defaultRenderInterval = 33 * time.Millisecond
	defaultCountdownFrom  = 3
)

// SettleFunc converts a finished session into a wallet credit. The loop
// invokes it at most once per session, off the loop goroutine, with the
// final score and the session duration in whole seconds (at least 1).
// Implementations never fail upward: a lost network call degrades to local
// crediting inside the settler.
type SettleFunc func(ctx context.Context, sessionID string, score, durationSec int)

type Config struct {
	Game Game

	Lives          int
	FrameInterval  time.Duration
	MaxFrameDelta  time.Duration
	RenderInterval time.Duration
	CountdownFrom  int

	Settle SettleFunc

	// Now and Seed are injectable for tests; both default to wall clock.
	Now  func() time.Time
	Seed func() int64
}

func (c *Config) setDefaults() {
	if c.Lives <= 0 {
		c.Lives = defaultLives
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.MaxFrameDelta <= 0 {
		c.MaxFrameDelta = defaultMaxFrameDelta
	}
	if c.RenderInterval <= 0 {
		c.RenderInterval = defaultRenderInterval
	}
	if c.CountdownFrom <= 0 {
		c.CountdownFrom = defaultCountdownFrom
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Seed == nil {
		c.Seed = func() int64 { return time.Now().UnixNano() }
	}
}

// Snapshot is the presentation view of a session, published at a throttled
// cadence so per-frame mutation does not pay a per-mutation render cost.
type Snapshot struct {
	SessionID string
	Status    Status
	Countdown int
	Score     int
	Lives     int
	Game      any
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdRestart
	cmdInput
)

type command struct {
	kind cmdKind
	ev   any
}

type timerFire struct {
	gen uint64
	id  int
}

type stopper interface {
	Stop() bool
}

type Loop struct {
	c    Config
	game Game

	cmdCh   chan command
	timerCh chan timerFire
	stopCh  chan struct{}
	done    chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Everything below is owned by the loop goroutine.
	s           Session
	gen         uint64
	rng         *rand.Rand
	timers      map[int]stopper
	nextTimerID int
	countdownID int
	hasTick     bool
	lastTick    time.Time
	lastRender  time.Time

	snapshot atomic.Pointer[Snapshot]
	dirty    chan struct{}

	newTimer func(d time.Duration, f func()) stopper
}

// New creates a loop and begins a fresh running session. Call Start to
// drive it in real time.
func New(c Config) *Loop {
	l := newLoop(c)
	l.begin()
	return l
}

func newLoop(c Config) *Loop {
	c.setDefaults()

	l := &Loop{
		c:       c,
		game:    c.Game,
		cmdCh:   make(chan command, 64),
		timerCh: make(chan timerFire, 64),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		timers:  make(map[int]stopper),
		dirty:   make(chan struct{}, 1),
	}
	l.newTimer = func(d time.Duration, f func()) stopper {
		return time.AfterFunc(d, f)
	}

	return l
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	if l.started.CompareAndSwap(false, true) {
		go l.run()
	}
}

// Stop tears the loop down: cancels every pending timer, waits for an
// in-flight settlement, and releases all callers. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		if !l.started.Load() {
			// Loop goroutine never ran; clean up directly.
			l.cancelTimers()
			close(l.done)
		}
	})

	<-l.done
	l.wg.Wait()
}

func (l *Loop) Pause()   { l.post(command{kind: cmdPause}) }
func (l *Loop) Resume()  { l.post(command{kind: cmdResume}) }
func (l *Loop) Restart() { l.post(command{kind: cmdRestart}) }

// Post delivers a game input event, e.g. a paddle move or an answer
// selection. Events arriving outside StatusRunning are dropped.
func (l *Loop) Post(ev any) { l.post(command{kind: cmdInput, ev: ev}) }

func (l *Loop) post(c command) {
	select {
	case l.cmdCh <- c:
	case <-l.done:
	}
}

// Snapshot returns the latest published view. Safe from any goroutine.
func (l *Loop) Snapshot() Snapshot {
	return *l.snapshot.Load()
}

// Updates signals that a fresh snapshot is available, at most once per
// render interval. The channel never blocks the loop.
func (l *Loop) Updates() <-chan struct{} {
	return l.dirty
}

func (l *Loop) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.c.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			l.cancelTimers()
			return
		case <-ticker.C:
			l.tick(l.c.Now())
		case f := <-l.timerCh:
			l.fire(f)
		case cmd := <-l.cmdCh:
			l.handle(cmd)
		}
	}
}

// tick runs one frame step. Within the tick, integration, collision
// resolution, life deduction and the end check happen in that order inside
// Game.Step; settlement observes the final score because it only fires
// after the step returns.
func (l *Loop) tick(now time.Time) {
	if l.s.Status != StatusRunning {
		return
	}

	var dt time.Duration
	if l.hasTick {
		dt = now.Sub(l.lastTick)
		if dt < 0 {
			dt = 0
		}
		if dt > l.c.MaxFrameDelta {
			dt = l.c.MaxFrameDelta
		}
	}
	l.hasTick = true
	l.lastTick = now

	l.game.Step(dt, Control{l})
	l.finish(now, false)
}

func (l *Loop) fire(f timerFire) {
	if f.gen != l.gen {
		return
	}
	if _, ok := l.timers[f.id]; !ok {
		return
	}
	delete(l.timers, f.id)

	if f.id == l.countdownID && l.s.Status == StatusCountdown {
		l.countdownTick()
		return
	}

	if l.s.Status != StatusRunning {
		return
	}

	l.game.Timer(f.id, Control{l})
	l.finish(l.c.Now(), false)
}

func (l *Loop) countdownTick() {
	l.s.Countdown--
	if l.s.Countdown > 0 {
		l.countdownID = l.after(time.Second)
		l.finish(l.c.Now(), true)
		return
	}

	l.s.Countdown = 0
	l.s.Status = StatusRunning
	l.hasTick = false // fresh first tick, no dt spike from the pause
	l.game.Resume(Control{l})
	l.finish(l.c.Now(), true)
}

func (l *Loop) handle(cmd command) {
	switch cmd.kind {
	case cmdPause:
		if l.s.Status != StatusRunning {
			return
		}
		l.cancelTimers()
		l.s.Status = StatusPaused
		l.finish(l.c.Now(), true)

	case cmdResume:
		if l.s.Status != StatusPaused {
			return
		}
		l.s.Status = StatusCountdown
		l.s.Countdown = l.c.CountdownFrom
		l.countdownID = l.after(time.Second)
		l.finish(l.c.Now(), true)

	case cmdRestart:
		l.begin()

	case cmdInput:
		if l.s.Status != StatusRunning {
			return
		}
		l.game.Input(cmd.ev, Control{l})
		l.finish(l.c.Now(), false)
	}
}

// begin starts a fresh round: new session, new seed, new timer generation.
// Nothing scheduled by a previous round survives into this one.
func (l *Loop) begin() {
	l.cancelTimers()

	l.s = Session{
		SessionID: uuid.NewString(),
		Status:    StatusRunning,
		Lives:     l.c.Lives,
		StartedAt: l.c.Now(),
	}
	l.hasTick = false
	l.rng = rand.New(rand.NewSource(l.c.Seed()))

	l.game.Begin(Control{l})
	l.finish(l.c.Now(), true)
}

// finish completes a game callback: fires settlement on the first
// transition to StatusEnded and publishes the render snapshot.
func (l *Loop) finish(now time.Time, force bool) {
	if l.s.Status == StatusEnded && !l.s.submitted {
		l.settle(now)
		force = true
	}
	l.publish(now, force)
}

func (l *Loop) settle(now time.Time) {
	l.s.submitted = true
	l.cancelTimers()

	if l.c.Settle == nil {
		return
	}

	var (
		id     = l.s.SessionID
		score  = l.s.Score
		durSec = int(now.Sub(l.s.StartedAt) / time.Second)
	)
	if durSec < 1 {
		durSec = 1
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.c.Settle(context.Background(), id, score, durSec)
	}()
}

func (l *Loop) after(d time.Duration) int {
	l.nextTimerID++
	id := l.nextTimerID
	gen := l.gen

	l.timers[id] = l.newTimer(d, func() {
		select {
		case l.timerCh <- timerFire{gen: gen, id: id}:
		case <-l.done:
		}
	})

	return id
}

func (l *Loop) cancel(id int) {
	if t, ok := l.timers[id]; ok {
		t.Stop()
		delete(l.timers, id)
	}
}

// cancelTimers stops every pending timer and bumps the generation so a
// callback already in flight can never mutate the next round.
func (l *Loop) cancelTimers() {
	l.gen++
	for id, t := range l.timers {
		t.Stop()
		delete(l.timers, id)
	}
}

func (l *Loop) publish(now time.Time, force bool) {
	if !force && now.Sub(l.lastRender) < l.c.RenderInterval {
		return
	}
	l.lastRender = now

	l.snapshot.Store(&Snapshot{
		SessionID: l.s.SessionID,
		Status:    l.s.Status,
		Countdown: l.s.Countdown,
		Score:     l.s.Score,
		Lives:     l.s.Lives,
		Game:      l.game.Render(),
	})

	select {
	case l.dirty <- struct{}{}:
	default:
	}
}
