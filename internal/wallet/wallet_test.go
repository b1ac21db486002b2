package wallet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/storage"
	"github.com/greenworld/greenworld/internal/wallet"
)

type fakeRemote struct {
	coins int64
	err   error
}

func (f *fakeRemote) CurrentUserCoins(_ context.Context) (int64, error) {
	return f.coins, f.err
}

func TestService_CreditDebit(t *testing.T) {
	s := wallet.NewService(wallet.Config{Storage: storage.NewMemory()})

	require.Equal(t, int64(0), s.Local())
	require.Equal(t, int64(10), s.Credit(10))

	got, err := s.Debit(4)
	require.NoError(t, err)
	require.Equal(t, int64(6), got)
	require.Equal(t, int64(6), s.Local())
}

func TestService_DebitInsufficientFundsRejectsWithoutMutating(t *testing.T) {
	s := wallet.NewService(wallet.Config{Storage: storage.NewMemory()})
	s.SetLocal(15)

	got, err := s.Debit(20)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeInsufficientFunds))
	require.Equal(t, int64(15), got, "failed debit reports the untouched balance")
	require.Equal(t, int64(15), s.Local(), "balance is rejected, never clamped")
}

func TestService_LocalToleratesGarbage(t *testing.T) {
	kv := storage.NewMemory()
	s := wallet.NewService(wallet.Config{Storage: kv})

	require.NoError(t, kv.Set("local_coins", "not a number"))
	require.Equal(t, int64(0), s.Local())

	require.NoError(t, kv.Set("local_coins", "-5"))
	require.Equal(t, int64(0), s.Local(), "negative cache reads as zero")
}

func TestService_SetLocalClampsAtZero(t *testing.T) {
	s := wallet.NewService(wallet.Config{Storage: storage.NewMemory()})

	s.SetLocal(-10)
	require.Equal(t, int64(0), s.Local())
}

func TestService_GetBalancePrefersServerAndResyncs(t *testing.T) {
	kv := storage.NewMemory()
	s := wallet.NewService(wallet.Config{
		Storage: kv,
		Remote:  &fakeRemote{coins: 42},
	})
	s.SetLocal(7) // stale cache

	b := s.GetBalance(context.Background())
	require.Equal(t, wallet.Balance{Amount: 42, Source: wallet.SourceServer}, b)
	require.Equal(t, int64(42), s.Local(), "cache resyncs with the server value")
}

func TestService_GetBalanceDegradesToCache(t *testing.T) {
	s := wallet.NewService(wallet.Config{
		Storage: storage.NewMemory(),
		Remote:  &fakeRemote{err: errors.New(errors.CodeUnavailable)},
	})
	s.SetLocal(7)

	b := s.GetBalance(context.Background())
	require.Equal(t, wallet.Balance{Amount: 7, Source: wallet.SourceLocal}, b)
}

func TestService_GetBalanceLocalOnly(t *testing.T) {
	s := wallet.NewService(wallet.Config{Storage: storage.NewMemory()})
	s.SetLocal(9)

	b := s.GetBalance(context.Background())
	require.Equal(t, wallet.Balance{Amount: 9, Source: wallet.SourceLocal}, b)
}
