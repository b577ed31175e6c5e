package stats

import (
	"errors"
	"math"
	"testing"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

func TestComputeTripStats(t *testing.T) {
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	trips := []model.Trip{
		{TransportMode: "bike", Credits: 4, Distance: 2, LastUpdated: timestamp.Text("2024-03-14T00:00:00Z")},
		{TransportMode: "bus", Credits: 2, Distance: "3", LastUpdated: timestamp.Text("2024-02-15T01:00:00Z")},
		{TransportMode: "", Credits: "x", Distance: nil, LastUpdated: timestamp.Text("2024-01-01T00:00:00Z")},
		{TransportMode: "bike", Credits: 6},
	}

	t.Run("all", func(t *testing.T) {
		s, err := ComputeTripStats(trips, model.PeriodAll, now)
		if err != nil {
			t.Fatal(err)
		}
		if s.TotalTrips != 4 || s.TotalDistance != 5 || s.AverageCarbonCredits != 3 {
			t.Errorf("unexpected stats %+v", s)
		}
		if len(s.TransportTypes) != 3 || s.TransportTypes[0].Mode != "bike" || s.TransportTypes[0].Count != 2 {
			t.Errorf("transport types %+v", s.TransportTypes)
		}
		if math.Abs(s.TransportTypes[0].Percent-50) > 1e-9 {
			t.Errorf("bike percent = %v", s.TransportTypes[0].Percent)
		}
		if s.TransportTypes[2].Mode != UnknownCategory {
			t.Errorf("missing mode should be %q, got %q", UnknownCategory, s.TransportTypes[2].Mode)
		}
	})

	t.Run("month starts at midnight a month back", func(t *testing.T) {
		s, _ := ComputeTripStats(trips, model.PeriodMonth, now)
		if s.TotalTrips != 2 {
			t.Errorf("TotalTrips = %d, want 2", s.TotalTrips)
		}
	})

	t.Run("week", func(t *testing.T) {
		s, _ := ComputeTripStats(trips, model.PeriodWeek, now)
		if s.TotalTrips != 1 || s.AverageCarbonCredits != 4 {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("empty", func(t *testing.T) {
		s, _ := ComputeTripStats(nil, model.PeriodWeek, now)
		if s.TotalTrips != 0 || s.AverageCarbonCredits != 0 || s.TransportTypes == nil {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := ComputeTripStats(trips, "decade", now); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("expected ErrInvalidPeriod, got %v", err)
		}
	})
}
