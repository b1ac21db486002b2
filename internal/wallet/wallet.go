// Package wallet holds the player's coin balance: a read-through cache over
// the server value, with the local KV copy as the offline fallback and sync
// target. The balance is never negative; a debit that would go below zero
// is rejected, not clamped.
package wallet

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/storage"
)

const coinsKey = "local_coins"

type Source string

const (
	SourceServer Source = "server"
	SourceLocal  Source = "local"
)

// Remote fetches the live server balance. The client package satisfies it.
type Remote interface {
	CurrentUserCoins(ctx context.Context) (int64, error)
}

type Config struct {
	Storage storage.Store
	Remote  Remote // optional; nil means local-only
}

type Service struct {
	kv     storage.Store
	remote Remote
}

func NewService(c Config) *Service {
	return &Service{
		kv:     c.Storage,
		remote: c.Remote,
	}
}

type Balance struct {
	Amount int64
	Source Source
}

// GetBalance prefers the live server value and resyncs the cache with it;
// any fetch failure degrades to the last-known local value. It never
// returns an error.
func (s *Service) GetBalance(ctx context.Context) Balance {
	if s.remote != nil {
		coins, err := s.remote.CurrentUserCoins(ctx)
		if err == nil {
			s.SetLocal(coins)
			return Balance{Amount: coins, Source: SourceServer}
		}

		slog.WarnContext(ctx, "wallet: balance fetch failed, using cached value", "error", err)
	}

	return Balance{Amount: s.Local(), Source: SourceLocal}
}

// Local returns the cached balance. Unparseable or missing cache reads as 0.
func (s *Service) Local() int64 {
	raw, ok := s.kv.Get(coinsKey)
	if !ok {
		return 0
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SetLocal overwrites the cached balance, clamped at zero.
func (s *Service) SetLocal(v int64) {
	if v < 0 {
		v = 0
	}
	if err := s.kv.Set(coinsKey, strconv.FormatInt(v, 10)); err != nil {
		slog.Warn("wallet: persist balance failed", "error", err)
	}
}

// Credit adds amount to the cached balance and returns the new total.
func (s *Service) Credit(amount int64) int64 {
	next := s.Local() + amount
	s.SetLocal(next)
	return next
}

// Debit subtracts amount, failing with InsufficientFunds when the balance
// does not cover it. Nothing mutates on failure.
func (s *Service) Debit(amount int64) (int64, error) {
	cur := s.Local()
	if cur < amount {
		return cur, errors.New(errors.CodeInsufficientFunds,
			errors.WithMessagef("balance %d does not cover %d", cur, amount))
	}

	next := cur - amount
	s.SetLocal(next)
	return next, nil
}

// Reset clears the cached balance.
func (s *Service) Reset() {
	s.SetLocal(0)
}
