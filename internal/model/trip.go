package model

import "greencredits/internal/timestamp"

// Trip is a read-only trip document scoped to its owning user. Credits and
// Distance keep whatever the document held; they are coerced to numbers only
// when aggregated.
type Trip struct {
	ID            string
	UserID        string
	Status        string
	TransportMode string
	Credits       any
	Distance      any
	CreatedAt     timestamp.Value
	StartTime     timestamp.Value
	LastUpdated   timestamp.Value
}

// Range selects the window of the credits time series.
type Range string

const (
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeYear  Range = "year"
)

// Period selects the window of the trip statistics card.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
)
