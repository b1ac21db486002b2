package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/greenworld/greenworld/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Rating struct {
		Entries []RatingEntry `json:"entries"`
	}

	RatingEntry struct {
		Email string `json:"email"`
		Coins string `json:"coins"`
	}
)

// PublishRatingUpdated pushes the fresh rating to every listed user's
// notification channel.
func (a *API) PublishRatingUpdated(ctx context.Context, e domain.EventRatingUpdated) error {
	r := e.Rating

	data := Rating{
		Entries: make([]RatingEntry, 0, len(r.Entries)),
	}

	for _, entry := range r.Entries {
		data.Entries = append(data.Entries, RatingEntry{
			Email: entry.Email,
			Coins: strconv.FormatFloat(entry.Coins, 'f', -1, 64),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Email, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
