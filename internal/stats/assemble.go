package stats

import "greencredits/internal/model"

// TripFetch is the settled result of fetching one user's trips.
type TripFetch struct {
	UserID string
	Trips  []model.Trip
	Err    error
}

// Result is everything derived from one load.
type Result struct {
	Trips      []model.Trip
	Aggregates []model.UserAggregate
	Rows       []model.UserRow
	Summary    model.DashboardSummary
}

// Assemble runs aggregation, join and rollup over settled fetches. Each user
// gets exactly one aggregate: from its fetch, a failure placeholder, or a zero
// aggregate when no fetch was recorded for it.
func Assemble(users []model.User, fetches []TripFetch) Result {
	byUser := make(map[string]TripFetch, len(fetches))
	for _, f := range fetches {
		byUser[f.UserID] = f
	}

	res := Result{
		Trips:      []model.Trip{},
		Aggregates: make([]model.UserAggregate, 0, len(users)),
	}
	for _, user := range users {
		f, ok := byUser[user.UserID]
		switch {
		case !ok:
			res.Aggregates = append(res.Aggregates, AggregateTrips(user, nil))
		case f.Err != nil:
			res.Aggregates = append(res.Aggregates, FailedAggregate(user, f.Err))
		default:
			res.Aggregates = append(res.Aggregates, AggregateTrips(user, f.Trips))
			res.Trips = append(res.Trips, f.Trips...)
		}
	}

	res.Rows = JoinUsers(users, res.Aggregates)
	res.Summary = Rollup(res.Aggregates)
	return res
}
