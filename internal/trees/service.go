// Package trees is the server-side progression store: per-user slot trees
// with coin-debited planting and level-capped, cooldown-gated upgrades.
package trees

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/errors"
)

const (
	codeUniqueViolation = "23505"

	maxLevel         = 2
	defaultBasePrice = 100

	cooldownPerLevel = 15 * time.Minute
)

// AllSlots mirrors the client's fixed slot set.
var AllSlots = []string{"d1", "d2", "d3", "d4", "d5"}

type Config struct {
	DB        *pgxpool.Pool
	BasePrice int64
}

type Service struct {
	db        *pgxpool.Pool
	basePrice int64
}

func NewService(c Config) *Service {
	if c.BasePrice <= 0 {
		c.BasePrice = defaultBasePrice
	}
	return &Service{
		db:        c.DB,
		basePrice: c.BasePrice,
	}
}

// UpgradeCost is the price of raising a tree to the given level:
// round(base * 1.6^(level-1)).
func UpgradeCost(base int64, level int) int64 {
	if level <= 1 {
		return base
	}
	return int64(math.Round(float64(base) * math.Pow(1.6, float64(level-1))))
}

func (s *Service) List(ctx context.Context, userID int64) ([]domain.Tree, error) {
	const stmt = `
SELECT slot_id, level, create_time
FROM trees
WHERE user_id = $1
ORDER BY slot_id;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}

	trees, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Tree, error) {
		var t domain.Tree
		if err := r.Scan(&t.SlotID, &t.Level, &t.PlantedAt); err != nil {
			return domain.Tree{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect trees: %w", err)
	}

	return trees, nil
}

// Buy plants a level-0 tree into an empty slot, debiting the base price
// from the user's coins in the same transaction.
func (s *Service) Buy(ctx context.Context, userID int64, slotID string) (t domain.Tree, err error) {
	if !slices.Contains(AllSlots, slotID) {
		return domain.Tree{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown slot %q", slotID))
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Tree{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	var coins int64
	if err = tx.QueryRow(ctx, `SELECT coins FROM users WHERE user_id = $1 FOR UPDATE;`, userID).Scan(&coins); err != nil {
		return domain.Tree{}, fmt.Errorf("load coins: %w", err)
	}
	if coins < s.basePrice {
		return domain.Tree{}, errors.New(errors.CodeInsufficientFunds,
			errors.WithMessagef("balance %d does not cover %d", coins, s.basePrice))
	}

	now := time.Now()

	const insStmt = `
INSERT INTO trees (user_id, slot_id, level, next_upgrade_time, create_time)
VALUES ($1, $2, 0, $3, $3);`

	_, err = tx.Exec(ctx, insStmt, userID, slotID, now)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return domain.Tree{}, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("slot %s is already occupied", slotID),
			errors.WithCause(err))
	}
	if err != nil {
		return domain.Tree{}, fmt.Errorf("insert tree: %w", err)
	}

	if _, err = tx.Exec(ctx, `UPDATE users SET coins = coins - $2 WHERE user_id = $1;`, userID, s.basePrice); err != nil {
		return domain.Tree{}, fmt.Errorf("debit coins: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Tree{}, err
	}

	return domain.Tree{SlotID: slotID, Level: 0, PlantedAt: now}, nil
}

// Upgrade raises the slot's tree one level, debiting the level-scaled cost.
// Fails with NotFound on an empty slot, InvalidArgument at max level or
// while the upgrade cooldown is running, InsufficientFunds when coins do
// not cover the cost.
func (s *Service) Upgrade(ctx context.Context, userID int64, slotID string) (t domain.Tree, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Tree{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const selStmt = `
SELECT t.level, t.next_upgrade_time, t.create_time, u.coins
FROM trees t
JOIN users u ON u.user_id = t.user_id
WHERE t.user_id = $1 AND t.slot_id = $2
FOR UPDATE;`

	var (
		level       int
		nextUpgrade time.Time
		createTime  time.Time
		coins       int64
	)
	err = tx.QueryRow(ctx, selStmt, userID, slotID).Scan(&level, &nextUpgrade, &createTime, &coins)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Tree{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("slot %s is empty", slotID))
	}
	if err != nil {
		return domain.Tree{}, fmt.Errorf("load tree: %w", err)
	}

	if level >= maxLevel {
		return domain.Tree{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("slot %s is already at max level", slotID))
	}

	now := time.Now()
	if now.Before(nextUpgrade) {
		return domain.Tree{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("slot %s upgrade available at %s", slotID, nextUpgrade.Format(time.RFC3339)))
	}

	cost := UpgradeCost(s.basePrice, level+1)
	if coins < cost {
		return domain.Tree{}, errors.New(errors.CodeInsufficientFunds,
			errors.WithMessagef("balance %d does not cover %d", coins, cost))
	}

	next := now.Add(time.Duration(level+1) * cooldownPerLevel)

	const updStmt = `
UPDATE trees SET level = level + 1, next_upgrade_time = $3
WHERE user_id = $1 AND slot_id = $2;`

	if _, err = tx.Exec(ctx, updStmt, userID, slotID, next); err != nil {
		return domain.Tree{}, fmt.Errorf("upgrade tree: %w", err)
	}

	if _, err = tx.Exec(ctx, `UPDATE users SET coins = coins - $2 WHERE user_id = $1;`, userID, cost); err != nil {
		return domain.Tree{}, fmt.Errorf("debit coins: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Tree{}, err
	}

	return domain.Tree{SlotID: slotID, Level: level + 1, PlantedAt: createTime}, nil
}
