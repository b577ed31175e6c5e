package stats

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

var ErrInvalidRange = errors.New("invalid range: must be week, month or year")

// ParseRange validates a range name.
func ParseRange(s string) (model.Range, error) {
	switch r := model.Range(s); r {
	case model.RangeWeek, model.RangeMonth, model.RangeYear:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
}

// WindowStart is the earliest instant included for r: now minus 7 days, one
// calendar month, or one calendar year.
func WindowStart(r model.Range, now time.Time) (time.Time, error) {
	switch r {
	case model.RangeWeek:
		return now.Add(-7 * 24 * time.Hour), nil
	case model.RangeMonth:
		return now.AddDate(0, -1, 0), nil
	case model.RangeYear:
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRange, r)
	}
}

type bucketKey struct {
	month time.Month
	other int
}

type bucket struct {
	start   time.Time
	credits float64
	trips   int
}

// BuildSeries buckets trips by their last-updated instant for the chart.
// Calendar math and labels use now's location.
//
// Week and month ranges bucket by (month, day) and year by (month, year).
// Trips from different years sharing a month and day therefore land in the
// same week/month bucket. A bucket is dated by the first trip that fell into
// it. Trips with unparseable timestamps are skipped. An empty result means
// there is nothing to chart.
func BuildSeries(trips []model.Trip, r model.Range, now time.Time) ([]model.SeriesPoint, error) {
	start, err := WindowStart(r, now)
	if err != nil {
		return nil, err
	}
	loc := now.Location()

	buckets := make(map[bucketKey]*bucket)
	var order []bucketKey
	for _, trip := range trips {
		t, ok := timestamp.Normalize(trip.LastUpdated)
		if !ok || t.Before(start) {
			continue
		}
		t = t.In(loc)

		key := bucketKey{month: t.Month(), other: t.Day()}
		if r == model.RangeYear {
			key.other = t.Year()
		}

		b, ok := buckets[key]
		if !ok {
			b = &bucket{start: t}
			buckets[key] = b
			order = append(order, key)
		}
		b.credits += Number(trip.Credits)
		b.trips++
	}

	points := make([]model.SeriesPoint, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		points = append(points, model.SeriesPoint{
			Label:         seriesLabel(r, b.start),
			BucketStart:   b.start,
			CarbonCredits: b.credits,
			TripCount:     b.trips,
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].BucketStart.Before(points[j].BucketStart)
	})
	return points, nil
}

func seriesLabel(r model.Range, t time.Time) string {
	if r == model.RangeYear {
		return t.Format("Jan 2006")
	}
	return t.Format("Jan 02")
}
