package stats

import (
	"errors"
	"fmt"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

var ErrInvalidPeriod = errors.New("invalid period: must be all, month or week")

func ParsePeriod(s string) (model.Period, error) {
	switch p := model.Period(s); p {
	case model.PeriodAll, model.PeriodMonth, model.PeriodWeek:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// ComputeTripStats backs the trip statistics card. The month window starts at
// midnight of the same day one month earlier, in now's location.
func ComputeTripStats(trips []model.Trip, period model.Period, now time.Time) (model.TripStats, error) {
	var start time.Time
	switch period {
	case model.PeriodAll:
	case model.PeriodWeek:
		start = now.Add(-7 * 24 * time.Hour)
	case model.PeriodMonth:
		start = time.Date(now.Year(), now.Month()-1, now.Day(), 0, 0, 0, 0, now.Location())
	default:
		return model.TripStats{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	out := model.TripStats{Period: period, TransportTypes: []model.TransportShare{}}
	var credits float64
	var modes model.Histogram
	for _, trip := range trips {
		if period != model.PeriodAll {
			t, ok := timestamp.Normalize(trip.LastUpdated)
			if !ok || t.Before(start) {
				continue
			}
		}
		out.TotalTrips++
		out.TotalDistance += Number(trip.Distance)
		credits += Number(trip.Credits)
		modes.Inc(categoryOrUnknown(trip.TransportMode))
	}

	if out.TotalTrips == 0 {
		return out, nil
	}
	out.AverageCarbonCredits = credits / float64(out.TotalTrips)
	for _, mode := range modes.Keys() {
		count := modes.Count(mode)
		out.TransportTypes = append(out.TransportTypes, model.TransportShare{
			Mode:    mode,
			Count:   count,
			Percent: 100 * float64(count) / float64(out.TotalTrips),
		})
	}
	return out, nil
}
