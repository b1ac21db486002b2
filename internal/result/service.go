// Package result persists submitted game results and converts them into
// coin awards, atomically with the balance update. The client-generated
// result_id is unique, so a retried submission can never award twice.
package result

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/event"
)

const codeUniqueViolation = "23505"

var resultsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "greenworld_results_submitted_total",
	Help: "Game results credited, by game.",
}, []string{"game"})

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		eb: c.EventBus,
		db: c.DB,
	}
}

type SubmitResultRequest struct {
	ResultID    string
	User        domain.User
	Game        string
	Score       int
	DurationSec int
	SubmitTime  time.Time
}

type SubmitResultResponse struct {
	Awarded int64
	Coins   int64
}

// SubmitResult awards coins for one finished session and returns the new
// balance. Duplicate result IDs fail with AlreadyExists and award nothing.
func (s *Service) SubmitResult(ctx context.Context, req SubmitResultRequest) (*SubmitResultResponse, error) {
	if req.Score < 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("score must not be negative"))
	}

	awarded := int64(req.Score / 2)

	coins, err := s.insertResult(ctx, req, awarded)
	if err != nil {
		return nil, err
	}

	resultsSubmitted.WithLabelValues(req.Game).Inc()

	s.eb.Publish(ctx, domain.EventCoinsAwarded{
		Award: domain.Award{
			UserID:     req.User.UserID,
			Email:      req.User.Email,
			Awarded:    awarded,
			TotalCoins: decimal.NewFromInt(coins),
			UpdateTime: req.SubmitTime,
		},
	})

	return &SubmitResultResponse{
		Awarded: awarded,
		Coins:   coins,
	}, nil
}

func (s *Service) insertResult(ctx context.Context, req SubmitResultRequest, awarded int64) (coins int64, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const insStmt = `
INSERT INTO game_results (result_id, user_id, game, score, duration_sec, awarded, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = tx.Exec(ctx, insStmt,
		req.ResultID, req.User.UserID, req.Game, req.Score, req.DurationSec, awarded, req.SubmitTime)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return 0, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("result %s is already submitted", req.ResultID),
			errors.WithCause(err))
	}
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}

	const updStmt = `UPDATE users SET coins = coins + $2 WHERE user_id = $1 RETURNING coins;`

	if err = tx.QueryRow(ctx, updStmt, req.User.UserID, awarded).Scan(&coins); err != nil {
		return 0, fmt.Errorf("update coins: %w", err)
	}

	return coins, tx.Commit(ctx)
}

type ListResultsRequest struct {
	UserID int64
}

type UserResults struct {
	Results      []domain.GameResult
	TotalAwarded decimal.Decimal
}

// ListResults returns a user's submitted results, newest first, with the
// summed award total.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) (*UserResults, error) {
	const stmt = `
SELECT result_id, game, score, duration_sec, awarded, create_time
FROM game_results
WHERE user_id = $1
ORDER BY create_time DESC;`

	rows, err := s.db.Query(ctx, stmt, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := &UserResults{TotalAwarded: decimal.Zero}
	for rows.Next() {
		r := domain.GameResult{UserID: req.UserID}
		if err := rows.Scan(&r.ResultID, &r.Game, &r.Score, &r.DurationSec, &r.Awarded, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out.Results = append(out.Results, r)
		out.TotalAwarded = out.TotalAwarded.Add(decimal.NewFromInt(r.Awarded))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	return out, nil
}
