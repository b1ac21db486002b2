package engine

import "time"

type Status int

const (
	StatusRunning Status = iota
	StatusPaused
	StatusCountdown
	StatusEnded
)

var status2str = map[Status]string{
	StatusRunning:   "running",
	StatusPaused:    "paused",
	StatusCountdown: "countdown",
	StatusEnded:     "ended",
}

func (s Status) String() string {
	return status2str[s]
}

// Session is the bookkeeping for one play-through. Score never decreases,
// lives never increase, and lives reaching zero forces StatusEnded on the
// same tick. All mutation happens on the loop goroutine.
type Session struct {
	SessionID string
	Status    Status
	Countdown int
	Score     int
	Lives     int
	StartedAt time.Time

	// submitted guards reward settlement: set exactly once on the first
	// transition to StatusEnded, no matter how many end conditions fire.
	submitted bool
}

func (s *Session) addScore(n int) {
	if s.Status != StatusRunning || n <= 0 {
		return
	}

	s.Score += n
}

// loseLives applies a batched deduction. Multiple losses in one tick cost a
// single clamped deduction, and at most one transition to StatusEnded
// happens even when n exceeds the remaining lives.
func (s *Session) loseLives(n int) {
	if s.Status != StatusRunning || n <= 0 {
		return
	}

	s.Lives -= n
	if s.Lives <= 0 {
		s.Lives = 0
		s.Status = StatusEnded
	}
}

func (s *Session) end() {
	if s.Status == StatusEnded {
		return
	}

	s.Status = StatusEnded
}
