// Package catch implements the falling-object catcher: gravity integration,
// paddle collision, spawn scheduling and batched miss handling, plugged into
// the engine loop.
package catch

import (
	"time"

	"github.com/greenworld/greenworld/internal/engine"
)

const (
	defaultGravity      = 1200 // px/s²
	defaultSpawnMin     = 600 * time.Millisecond
	defaultSpawnMax     = 1100 * time.Millisecond
	defaultMaxBalls     = 12
	defaultBallRadius   = 12
	defaultBottomMargin = 60

	defaultFieldWidth   = 350
	defaultFieldHeight  = 600
	defaultPaddleWidth  = 56
	defaultPaddleHeight = 120
	defaultPaddleBottom = 28

	spawnEdgePad = 6
)

type Config struct {
	FieldWidth  float64
	FieldHeight float64

	Gravity      float64
	SpawnMin     time.Duration
	SpawnMax     time.Duration
	MaxBalls     int
	BallRadius   float64
	BottomMargin float64

	PaddleWidth  float64
	PaddleHeight float64
	PaddleBottom float64
}

func (c *Config) setDefaults() {
	if c.FieldWidth <= 0 {
		c.FieldWidth = defaultFieldWidth
	}
	if c.FieldHeight <= 0 {
		c.FieldHeight = defaultFieldHeight
	}
	if c.Gravity <= 0 {
		c.Gravity = defaultGravity
	}
	if c.SpawnMin <= 0 {
		c.SpawnMin = defaultSpawnMin
	}
	if c.SpawnMax < c.SpawnMin {
		c.SpawnMax = defaultSpawnMax
	}
	if c.MaxBalls <= 0 {
		c.MaxBalls = defaultMaxBalls
	}
	if c.BallRadius <= 0 {
		c.BallRadius = defaultBallRadius
	}
	if c.BottomMargin <= 0 {
		c.BottomMargin = defaultBottomMargin
	}
	if c.PaddleWidth <= 0 {
		c.PaddleWidth = defaultPaddleWidth
	}
	if c.PaddleHeight <= 0 {
		c.PaddleHeight = defaultPaddleHeight
	}
	if c.PaddleBottom <= 0 {
		c.PaddleBottom = defaultPaddleBottom
	}
}

// Ball is one falling object. Y grows downward; VY accumulates gravity.
type Ball struct {
	ID int
	X  float64
	Y  float64
	VY float64
	R  float64
}

// MovePaddle positions the paddle center at X (field coordinates).
type MovePaddle struct {
	X float64
}

// View is the render snapshot of a round.
type View struct {
	Balls   []Ball
	PaddleX float64
}

// Game holds one round's mutable state. All fields are owned by the engine
// loop goroutine.
type Game struct {
	c Config

	balls   []Ball
	nextID  int
	paddleX float64
	spawnID int
}

func New(c Config) *Game {
	c.setDefaults()
	return &Game{c: c}
}

func (g *Game) Begin(ctl engine.Control) {
	g.balls = g.balls[:0]
	g.nextID = 1
	g.paddleX = (g.c.FieldWidth - g.c.PaddleWidth) / 2
	g.scheduleSpawn(ctl)
}

func (g *Game) Resume(ctl engine.Control) {
	g.scheduleSpawn(ctl)
}

func (g *Game) scheduleSpawn(ctl engine.Control) {
	span := g.c.SpawnMax - g.c.SpawnMin
	d := g.c.SpawnMin
	if span > 0 {
		d += time.Duration(ctl.Rand().Int63n(int64(span)))
	}
	g.spawnID = ctl.After(d)
}

func (g *Game) Timer(id int, ctl engine.Control) {
	if id != g.spawnID {
		return
	}

	// A spawn at the cap is a no-op but still reschedules.
	if len(g.balls) < g.c.MaxBalls {
		r := g.c.BallRadius
		x := clamp(ctl.Rand().Float64()*g.c.FieldWidth, r+spawnEdgePad, g.c.FieldWidth-r-spawnEdgePad)
		g.balls = append(g.balls, Ball{
			ID: g.nextID,
			X:  x,
			Y:  -r - 10,
			VY: 0,
			R:  r,
		})
		g.nextID++
	}

	g.scheduleSpawn(ctl)
}

// Step integrates gravity, resolves paddle overlaps, then applies all of
// this tick's misses as a single batched life deduction. Survivors keep
// their arrival order.
func (g *Game) Step(dt time.Duration, ctl engine.Control) {
	if dt <= 0 {
		return
	}
	sec := dt.Seconds()

	paddle := struct{ x1, x2, y1, y2 float64 }{
		x1: g.paddleX,
		x2: g.paddleX + g.c.PaddleWidth,
		y1: g.c.FieldHeight - g.c.PaddleHeight - g.c.PaddleBottom,
		y2: g.c.FieldHeight - g.c.PaddleBottom,
	}

	var (
		keep   = g.balls[:0]
		caught int
		missed int
	)

	for i := range g.balls {
		b := g.balls[i]
		b.VY += g.c.Gravity * sec
		b.Y += b.VY * sec

		// Loose AABB test: the ball's bounding box against the paddle
		// rectangle. Intentionally approximate for game feel.
		hitX := b.X+b.R >= paddle.x1 && b.X-b.R <= paddle.x2
		hitY := b.Y+b.R >= paddle.y1 && b.Y-b.R <= paddle.y2
		if hitX && hitY {
			caught++
			continue
		}

		if b.Y-b.R > g.c.FieldHeight+g.c.BottomMargin {
			missed++
			continue
		}

		keep = append(keep, b)
	}
	g.balls = keep

	ctl.AddScore(caught)
	if missed > 0 {
		ctl.LoseLives(missed)
	}
}

func (g *Game) Input(ev any, ctl engine.Control) {
	m, ok := ev.(MovePaddle)
	if !ok {
		return
	}

	g.paddleX = clamp(m.X-g.c.PaddleWidth/2, 0, g.c.FieldWidth-g.c.PaddleWidth)
}

func (g *Game) Render() any {
	v := View{
		Balls:   make([]Ball, len(g.balls)),
		PaddleX: g.paddleX,
	}
	copy(v.Balls, g.balls)
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
