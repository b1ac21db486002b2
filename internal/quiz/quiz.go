// Package quiz implements the timed multiple-choice quiz round: per-session
// question selection, the per-question countdown, and answer evaluation with
// a short reveal delay before advancing.
package quiz

import (
	"time"

	"github.com/greenworld/greenworld/internal/engine"
)

const (
	defaultLimit       = 10
	defaultRevealDelay = 700 * time.Millisecond

	countdownTick = time.Second

	// noSelection marks a timeout outcome: a life was lost but no option
	// was chosen.
	noSelection = -1
)

type Outcome int

const (
	OutcomeCorrect Outcome = iota
	OutcomeIncorrect
	OutcomeTimeout
)

type Config struct {
	Bank  Bank
	Limit int

	// TimePerQuestion of zero disables the countdown entirely: only an
	// explicit selection advances.
	TimePerQuestion time.Duration
	RevealDelay     time.Duration
}

func (c *Config) setDefaults() {
	if c.Limit <= 0 {
		c.Limit = defaultLimit
	}
	if c.RevealDelay <= 0 {
		c.RevealDelay = defaultRevealDelay
	}
}

// Choose selects option Index for the current question.
type Choose struct {
	Index int
}

// View is the render snapshot of a quiz round.
type View struct {
	Question Question
	Index    int
	Total    int
	Selected int // option index, noSelection when none
	Locked   bool
	TimeLeft time.Duration
}

// Game holds one quiz round. Questions are precomputed at session start;
// the round advances an index into that fixed sequence.
type Game struct {
	c Config

	questions []Question
	idx       int
	selected  int
	locked    bool
	timeLeft  time.Duration

	countdownID int
	advanceID   int

	outcomes []Outcome
}

func New(c Config) *Game {
	c.setDefaults()
	return &Game{c: c}
}

// Outcomes reports the per-question results recorded so far, in order.
// Timeouts are distinct from incorrect answers.
func (g *Game) Outcomes() []Outcome {
	out := make([]Outcome, len(g.outcomes))
	copy(out, g.outcomes)
	return out
}

func (g *Game) Begin(ctl engine.Control) {
	g.questions = g.c.Bank.Build(ctl.Rand(), g.c.Limit)
	g.idx = 0
	g.selected = noSelection
	g.locked = false
	g.outcomes = g.outcomes[:0]

	if len(g.questions) == 0 {
		ctl.End()
		return
	}

	g.startQuestion(ctl)
}

func (g *Game) Resume(ctl engine.Control) {
	// The reveal delay does not survive a pause; if the question was
	// locked mid-reveal, advance immediately on resume.
	if g.locked {
		g.advanceID = ctl.After(g.c.RevealDelay)
		return
	}

	g.scheduleCountdown(ctl)
}

func (g *Game) startQuestion(ctl engine.Control) {
	g.selected = noSelection
	g.locked = false
	g.timeLeft = g.c.TimePerQuestion
	g.scheduleCountdown(ctl)
}

func (g *Game) scheduleCountdown(ctl engine.Control) {
	if g.c.TimePerQuestion <= 0 {
		return
	}
	g.countdownID = ctl.After(countdownTick)
}

// Step is a no-op: the quiz is driven entirely by timers and inputs.
func (g *Game) Step(_ time.Duration, _ engine.Control) {}

func (g *Game) Timer(id int, ctl engine.Control) {
	switch id {
	case g.countdownID:
		g.countdown(ctl)
	case g.advanceID:
		g.advance(ctl)
	}
}

func (g *Game) countdown(ctl engine.Control) {
	if g.locked {
		return
	}

	g.timeLeft -= countdownTick
	if g.timeLeft > 0 {
		g.countdownID = ctl.After(countdownTick)
		return
	}
	g.timeLeft = 0

	// Timeout behaves like a wrong answer but records no selection.
	g.locked = true
	g.selected = noSelection
	g.outcomes = append(g.outcomes, OutcomeTimeout)
	ctl.LoseLives(1)
	if ctl.Session().Status == engine.StatusRunning {
		g.advanceID = ctl.After(g.c.RevealDelay)
	}
}

func (g *Game) Input(ev any, ctl engine.Control) {
	ch, ok := ev.(Choose)
	if !ok || g.locked {
		return
	}

	q := g.questions[g.idx]
	if ch.Index < 0 || ch.Index >= len(q.Options) {
		return
	}

	ctl.Cancel(g.countdownID)
	g.locked = true
	g.selected = ch.Index

	if ch.Index == q.CorrectIndex {
		g.outcomes = append(g.outcomes, OutcomeCorrect)
		ctl.AddScore(1)
	} else {
		g.outcomes = append(g.outcomes, OutcomeIncorrect)
		ctl.LoseLives(1)
	}

	if ctl.Session().Status == engine.StatusRunning {
		g.advanceID = ctl.After(g.c.RevealDelay)
	}
}

func (g *Game) advance(ctl engine.Control) {
	g.idx++
	if g.idx >= len(g.questions) {
		ctl.End()
		return
	}

	g.startQuestion(ctl)
}

func (g *Game) Render() any {
	v := View{
		Index:    g.idx,
		Total:    len(g.questions),
		Selected: g.selected,
		Locked:   g.locked,
		TimeLeft: g.timeLeft,
	}
	if g.idx < len(g.questions) {
		v.Question = g.questions[g.idx]
	}
	return v
}
