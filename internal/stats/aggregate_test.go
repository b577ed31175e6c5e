package stats

import (
	"errors"
	"testing"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{5, 5},
		{int64(7), 7},
		{2.5, 2.5},
		{"3.25", 3.25},
		{" 4 ", 4},
		{"abc", 0},
		{"", 0},
		{"NaN", 0},
		{true, 0},
		{false, 0},
		{[]int{1}, 0},
	}
	for _, tc := range tests {
		if got := Number(tc.in); got != tc.want {
			t.Errorf("Number(%#v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAggregateTrips(t *testing.T) {
	user := model.User{UserID: "a@x.com", Email: "a@x.com"}

	t.Run("non-numeric credits count as zero", func(t *testing.T) {
		trips := []model.Trip{{Credits: "abc"}, {Credits: 5}, {}}
		agg := AggregateTrips(user, trips)
		if agg.CarbonCredits != 5 {
			t.Errorf("CarbonCredits = %v, want 5", agg.CarbonCredits)
		}
	})

	t.Run("histograms sum to trip count", func(t *testing.T) {
		trips := []model.Trip{
			{TransportMode: "bike", Status: "completed", Distance: 3},
			{TransportMode: "bike", Status: "pending", Distance: "1.5"},
			{TransportMode: "", Status: ""},
			{TransportMode: "bus", Status: "completed"},
		}
		agg := AggregateTrips(user, trips)
		if agg.TotalTrips != len(trips) {
			t.Errorf("TotalTrips = %d, want %d", agg.TotalTrips, len(trips))
		}
		if got := agg.TransportModes.Total(); got != len(trips) {
			t.Errorf("transport histogram total = %d, want %d", got, len(trips))
		}
		if got := agg.TripStatuses.Total(); got != len(trips) {
			t.Errorf("status histogram total = %d, want %d", got, len(trips))
		}
		if got := agg.TransportModes.Count(UnknownCategory); got != 1 {
			t.Errorf("unknown mode count = %d, want 1", got)
		}
		if agg.TotalDistance != 4.5 {
			t.Errorf("TotalDistance = %v, want 4.5", agg.TotalDistance)
		}
	})

	t.Run("empty trips", func(t *testing.T) {
		agg := AggregateTrips(user, nil)
		if agg.TotalTrips != 0 || agg.CarbonCredits != 0 || agg.TransportModes.Len() != 0 {
			t.Errorf("expected zero aggregate, got %+v", agg)
		}
		if agg.LastTripAt != nil {
			t.Errorf("LastTripAt = %v, want nil", agg.LastTripAt)
		}
	})

	t.Run("last trip instants", func(t *testing.T) {
		early := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		late := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		trips := []model.Trip{
			{CreatedAt: timestamp.Instant(late), LastUpdated: timestamp.Text("2024-03-02T00:00:00Z")},
			{CreatedAt: timestamp.Instant(early), LastUpdated: timestamp.Text("garbage")},
		}
		agg := AggregateTrips(user, trips)
		if agg.LastTripAt == nil || !agg.LastTripAt.Equal(late) {
			t.Errorf("LastTripAt = %v, want %v", agg.LastTripAt, late)
		}
		want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		if agg.LastUpdatedAt == nil || !agg.LastUpdatedAt.Equal(want) {
			t.Errorf("LastUpdatedAt = %v, want %v", agg.LastUpdatedAt, want)
		}
	})
}

func TestFailedAggregate(t *testing.T) {
	agg := FailedAggregate(model.User{UserID: "u", Email: "u"}, errors.New("permission denied"))
	if agg.TotalTrips != 0 || agg.CarbonCredits != 0 {
		t.Errorf("expected zero counts, got %+v", agg)
	}
	if agg.Error != "permission denied" {
		t.Errorf("Error = %q", agg.Error)
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(10.0 / 3); got != 3.33 {
		t.Errorf("Round2(10/3) = %v", got)
	}
	if got := Round2(2.675001); got != 2.68 {
		t.Errorf("Round2(2.675001) = %v", got)
	}
	if got := Round2(0); got != 0 {
		t.Errorf("Round2(0) = %v", got)
	}
}
