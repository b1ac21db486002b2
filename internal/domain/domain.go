package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a registered player account. Coins is the server-side balance and
// the source of truth whenever the backend is reachable.
type User struct {
	UserID    int64
	FullName  string
	Email     string
	Coins     int64
	CreatedAt time.Time
}

// GameResult is one settled play-through submitted by a client.
// ResultID is client-generated and unique, so a retried submission of the
// same session cannot award coins twice.
type GameResult struct {
	ResultID    string
	UserID      int64
	Game        string
	Score       int
	DurationSec int
	Awarded     int64
	CreatedAt   time.Time
}

// Award is the outcome of crediting a game result.
type Award struct {
	UserID     int64
	Email      string
	Awarded    int64
	TotalCoins decimal.Decimal
	UpdateTime time.Time
}

// Tree is a planted tree in one of the fixed garden slots.
type Tree struct {
	SlotID    string
	Level     int
	PlantedAt time.Time
}

// Rating is the coins leaderboard across all users, sorted descending.
type Rating struct {
	Entries []RatingEntry
}

type RatingEntry struct {
	Email string
	Coins float64
}
