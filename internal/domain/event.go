package domain

const (
	EventNameCoinsAwarded  = "coins.awarded"
	EventNameRatingUpdated = "rating.updated"
)

type EventCoinsAwarded struct {
	Award Award
}

func (EventCoinsAwarded) Name() string { return EventNameCoinsAwarded }

type EventRatingUpdated struct {
	Rating Rating
}

func (EventRatingUpdated) Name() string { return EventNameRatingUpdated }
