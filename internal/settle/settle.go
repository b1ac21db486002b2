// Package settle converts a finished session's score into a wallet credit.
// The server is the authority when it answers; any failure degrades to a
// deterministic local credit, never to "no reward".
package settle

import (
	"context"
	"log/slog"
	"time"

	"github.com/greenworld/greenworld/internal/client"
	"github.com/greenworld/greenworld/internal/wallet"
)

const defaultTimeout = 15 * time.Second

// Submitter posts a game result to the backend. The client package
// satisfies it.
type Submitter interface {
	SubmitGameResult(ctx context.Context, resultID, game string, score, durationSec int) (client.GameResult, error)
}

type Config struct {
	Game      string
	Submitter Submitter
	Wallet    *wallet.Service
	Timeout   time.Duration

	// OnResult, when set, receives every settlement outcome. This is the
	// only thing a presentation layer needs to display.
	OnResult func(Result)
}

type Result struct {
	Awarded int64
	Total   int64
	Source  wallet.Source
}

type Settler struct {
	c Config
}

func New(c Config) *Settler {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return &Settler{c: c}
}

// ComputeAward is the deterministic local fallback: a pure function of the
// final score and duration.
func ComputeAward(score, _ int) int64 {
	if score < 0 {
		return 0
	}
	return int64(score)
}

// Settle submits the result, preferring the server's awarded amount and
// balance, and credits locally on any failure. It never returns an error;
// the engine invokes it at most once per session.
func (s *Settler) Settle(ctx context.Context, sessionID string, score, durationSec int) Result {
	fallback := ComputeAward(score, durationSec)

	ctx, cancel := context.WithTimeout(ctx, s.c.Timeout)
	defer cancel()

	resp, err := s.c.Submitter.SubmitGameResult(ctx, sessionID, s.c.Game, score, durationSec)
	if err != nil {
		slog.WarnContext(ctx, "settle: submit failed, crediting locally",
			"session", sessionID,
			"score", score,
			"error", err,
		)
		return s.deliver(s.local(fallback))
	}

	awarded := fallback
	if resp.Awarded != nil {
		awarded = *resp.Awarded
	}

	if resp.Coins != nil {
		// Server-reported total is the source of truth; resync the cache.
		s.c.Wallet.SetLocal(*resp.Coins)
		return s.deliver(Result{Awarded: awarded, Total: *resp.Coins, Source: wallet.SourceServer})
	}

	return s.deliver(s.local(awarded))
}

func (s *Settler) local(awarded int64) Result {
	total := s.c.Wallet.Credit(awarded)
	return Result{Awarded: awarded, Total: total, Source: wallet.SourceLocal}
}

func (s *Settler) deliver(r Result) Result {
	if s.c.OnResult != nil {
		s.c.OnResult(r)
	}
	return r
}

// Func adapts the settler to the engine's settlement hook.
func (s *Settler) Func() func(ctx context.Context, sessionID string, score, durationSec int) {
	return func(ctx context.Context, sessionID string, score, durationSec int) {
		s.Settle(ctx, sessionID, score, durationSec)
	}
}
