//go:build integration_test

package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/greenworld/greenworld/internal/api"
	"github.com/greenworld/greenworld/internal/catch"
	"github.com/greenworld/greenworld/internal/client"
	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/engine"
	"github.com/greenworld/greenworld/internal/settle"
	"github.com/greenworld/greenworld/internal/storage"
	"github.com/greenworld/greenworld/internal/wallet"
)

const (
	baseURL   = "http://localhost:8080"
	redisAddr = "localhost:6379"
)

// TestGreenworld drives the whole stack against a locally running server:
// register, play a catcher round headlessly, settle the result, then read
// the rating and buy a tree. Rating pushes are observed over redis pubsub.
func TestGreenworld(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	run := uuid.New().String()[:8]
	emails := []string{
		fmt.Sprintf("u1-%s@demo.local", run),
		fmt.Sprintf("u2-%s@demo.local", run),
		fmt.Sprintf("u3-%s@demo.local", run),
	}

	// Watch the first user's notification channel for rating pushes.
	wg := new(sync.WaitGroup)
	subscribeAsUser(t, makeRedis(t), wg, emails[0])

	var (
		mu      sync.Mutex
		clients = map[string]*client.Client{}
	)

	var eg errgroup.Group
	for _, email := range emails {
		email := email
		eg.Go(func() error {
			c, err := playOneRound(ctx, t, email)
			if err != nil {
				return fmt.Errorf("user %q: %w", email, err)
			}

			mu.Lock()
			clients[email] = c
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	// Every player settled, so every player should be on the rating.
	c := clients[emails[0]]
	entries, err := c.Rating(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		t.Logf("rating: %s: %.0f", e.Email, e.Coins)
	}

	// Tree purchase goes through whenever the round earned enough.
	tree, err := c.BuyTree(ctx, "d1")
	if err != nil {
		t.Logf("buy tree: %v", err)
	} else {
		t.Logf("bought tree %s at level %d", tree.SlotID, tree.Level)
	}

	wg.Wait()
}

// playOneRound registers a fresh user and lets a catcher session run until
// its lives are gone. Settlement happens through the engine hook exactly as
// it does in the app.
func playOneRound(ctx context.Context, t *testing.T, email string) (*client.Client, error) {
	kv := storage.NewMemory()
	c := client.New(client.Config{BaseURL: baseURL, Storage: kv})

	if _, err := c.Register(ctx, "Demo User", email, "secret-pw"); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if err := c.Login(ctx, email, "secret-pw"); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	w := wallet.NewService(wallet.Config{Storage: kv, Remote: c})
	settler := settle.New(settle.Config{
		Game:      "catch",
		Submitter: c,
		Wallet:    w,
		OnResult: func(r settle.Result) {
			t.Logf("user %q settled: awarded=%d total=%d source=%s", email, r.Awarded, r.Total, r.Source)
		},
	})

	l := engine.New(engine.Config{
		Game:   catch.New(catch.Config{}),
		Settle: settler.Func(),
	})
	l.Start()
	defer l.Stop()

	// Nobody moves the paddle, so three misses end the round on their own.
	deadline := time.After(30 * time.Second)
	for l.Snapshot().Status != engine.StatusEnded {
		select {
		case <-l.Updates():
		case <-deadline:
			return nil, fmt.Errorf("session did not end in time")
		}
	}

	b := w.GetBalance(ctx)
	t.Logf("user %q balance: %d (%s)", email, b.Amount, b.Source)
	return c, nil
}

func subscribeAsUser(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, email string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("local:pubsub:user:%s", email))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			switch n.Event {
			case domain.EventNameRatingUpdated:
				var r api.Rating
				if err := json.Unmarshal(n.Data, &r); err != nil {
					t.Logf("unmarshal rating: %v", err)
					continue
				}

				t.Logf("%s rating:\n%s", email, formatRating(r))
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sub := rc.PSubscribe(ctx, pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{redisAddr},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatRating(r api.Rating) string {
	var s string
	for _, e := range r.Entries {
		s += fmt.Sprintf("%s: %s\n", e.Email, e.Coins)
	}
	return s
}
