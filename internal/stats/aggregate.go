package stats

import (
	"time"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

// UnknownCategory stands in for a missing transport mode or status.
const UnknownCategory = "unknown"

// AggregateTrips computes one user's totals. TotalTrips is len(trips), and
// every trip lands in exactly one transport and one status bucket, so both
// histograms sum to TotalTrips.
func AggregateTrips(user model.User, trips []model.Trip) model.UserAggregate {
	agg := model.UserAggregate{
		UserID:     user.UserID,
		Email:      user.Email,
		TotalTrips: len(trips),
	}

	var lastTrip, lastUpdated time.Time
	for _, trip := range trips {
		agg.CarbonCredits += Number(trip.Credits)
		agg.TotalDistance += Number(trip.Distance)
		agg.TransportModes.Inc(categoryOrUnknown(trip.TransportMode))
		agg.TripStatuses.Inc(categoryOrUnknown(trip.Status))

		if t, ok := tripInstant(trip); ok && t.After(lastTrip) {
			lastTrip = t
		}
		if t, ok := timestamp.Normalize(trip.LastUpdated); ok && t.After(lastUpdated) {
			lastUpdated = t
		}
	}

	if !lastTrip.IsZero() {
		agg.LastTripAt = &lastTrip
	}
	if !lastUpdated.IsZero() {
		agg.LastUpdatedAt = &lastUpdated
	}
	return agg
}

// FailedAggregate is the placeholder for a user whose trips could not be
// fetched: zero counts, the error message attached.
func FailedAggregate(user model.User, err error) model.UserAggregate {
	agg := AggregateTrips(user, nil)
	if err != nil {
		agg.Error = err.Error()
	}
	return agg
}

// tripInstant picks the moment a trip happened: creation, then start, then
// last update.
func tripInstant(trip model.Trip) (time.Time, bool) {
	for _, v := range []timestamp.Value{trip.CreatedAt, trip.StartTime, trip.LastUpdated} {
		if t, ok := timestamp.Normalize(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func categoryOrUnknown(s string) string {
	if s == "" {
		return UnknownCategory
	}
	return s
}
