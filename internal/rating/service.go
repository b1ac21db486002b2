// Package rating maintains the coins leaderboard shown on the rating
// screen, backed by a redis sorted set and updated from coin-award events.
package rating

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond

	defaultLimit = 100
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameCoinsAwarded, func(ctx context.Context, e event.Event) error {
		return s.UpdateRating(ctx, e.(domain.EventCoinsAwarded))
	})

	return s
}

type GetRatingRequest struct {
	Limit int
}

// GetRating returns the leaderboard, highest balance first.
func (s *Service) GetRating(ctx context.Context, req GetRatingRequest) (*domain.Rating, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.ratingKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get rating: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("rating is empty"))
	}

	entries := make([]domain.RatingEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.RatingEntry{
			Email: z.Member.(string),
			Coins: z.Score,
		})
	}

	return &domain.Rating{Entries: entries}, nil
}

// UpdateRating overwrites the user's balance in the leaderboard.
func (s *Service) UpdateRating(ctx context.Context, e domain.EventCoinsAwarded) error {
	a := e.Award

	if err := s.redis.ZAdd(ctx, s.ratingKey(), redis.Z{
		Score:  a.TotalCoins.InexactFloat64(),
		Member: a.Email,
	}).Err(); err != nil {
		return fmt.Errorf("update rating: %w", err)
	}

	return s.schedulePublishRating(ctx, a)
}

// schedulePublishRating publishes rating changes at most once per interval.
// Awards arrive in bursts at round end; batching keeps the published event
// volume bounded. The SetNX lock also keeps multiple service instances
// from publishing the same change.
func (s *Service) schedulePublishRating(ctx context.Context, a domain.Award) error {
	ok, err := s.redis.SetNX(ctx, s.ratingTimeKey(), a.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishRating(ctx, a)
}

func (s *Service) publishRating(ctx context.Context, a domain.Award) error {
	r, err := s.GetRating(ctx, GetRatingRequest{})
	if err != nil {
		return fmt.Errorf("get rating failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventRatingUpdated{
		Rating: *r,
	})

	return s.redis.Set(ctx, s.ratingTimeKey(), a.UpdateTime.UnixMilli(), publishInterval).Err()
}

func (s *Service) ratingKey() string {
	return fmt.Sprintf("%s:rating", s.prefix)
}

func (s *Service) ratingTimeKey() string {
	return fmt.Sprintf("%s:rating:time", s.prefix)
}
