package stats

import (
	"errors"
	"testing"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

func tripAt(s string, credits any) model.Trip {
	return model.Trip{LastUpdated: timestamp.Text(s), Credits: credits}
}

func TestBuildSeriesWeekWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	trips := []model.Trip{
		tripAt("2024-03-01T10:00:00Z", 5),
		tripAt("2024-03-14T10:00:00Z", 2),
	}

	points, err := BuildSeries(trips, model.RangeWeek, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1: %+v", len(points), points)
	}
	if points[0].Label != "Mar 14" || points[0].TripCount != 1 || points[0].CarbonCredits != 2 {
		t.Errorf("unexpected point %+v", points[0])
	}
}

func TestBuildSeriesBucketsAndOrder(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	trips := []model.Trip{
		tripAt("2024-03-10T18:00:00Z", 1),
		tripAt("2024-02-20T09:00:00Z", "3"),
		tripAt("2024-03-10T07:00:00Z", 4),
		tripAt("not a date", 100),
		{Credits: 100},
	}

	points, err := BuildSeries(trips, model.RangeMonth, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2: %+v", len(points), points)
	}
	if points[0].Label != "Feb 20" || points[0].CarbonCredits != 3 {
		t.Errorf("first point %+v", points[0])
	}
	if points[1].Label != "Mar 10" || points[1].TripCount != 2 || points[1].CarbonCredits != 5 {
		t.Errorf("second point %+v", points[1])
	}
	// The bucket is dated by the first trip seen in it.
	if !points[1].BucketStart.Equal(time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("BucketStart = %v", points[1].BucketStart)
	}
}

func TestBuildSeriesYear(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	trips := []model.Trip{
		tripAt("2023-04-02T00:00:00Z", 1),
		tripAt("2023-04-28T00:00:00Z", 1),
		tripAt("2024-03-01T00:00:00Z", 1),
		tripAt("2023-03-01T00:00:00Z", 1),
	}
	points, err := BuildSeries(trips, model.RangeYear, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2: %+v", len(points), points)
	}
	if points[0].Label != "Apr 2023" || points[0].TripCount != 2 {
		t.Errorf("first point %+v", points[0])
	}
	if points[1].Label != "Mar 2024" {
		t.Errorf("second point %+v", points[1])
	}
}

func TestBuildSeriesUsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, loc)
	// 20:00 UTC on the 13th is the 14th in UTC+10.
	points, err := BuildSeries([]model.Trip{tripAt("2024-03-13T20:00:00Z", 1)}, model.RangeWeek, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || points[0].Label != "Mar 14" {
		t.Errorf("unexpected points %+v", points)
	}
}

func TestBuildSeriesEmptyAndInvalid(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	points, err := BuildSeries(nil, model.RangeWeek, now)
	if err != nil || len(points) != 0 || points == nil {
		t.Errorf("expected empty non-nil series, got %v, %v", points, err)
	}
	if _, err := BuildSeries(nil, model.Range("decade"), now); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := ParseRange("year"); err != nil {
		t.Errorf("ParseRange(year): %v", err)
	}
}

func TestWindowStartCalendarMath(t *testing.T) {
	now := time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)
	got, _ := WindowStart(model.RangeMonth, now)
	// Feb 31 normalizes to Mar 2 in a leap year.
	if want := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("month start = %v, want %v", got, want)
	}
	got, _ = WindowStart(model.RangeYear, now)
	if want := time.Date(2023, 3, 31, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("year start = %v, want %v", got, want)
	}
}
