package model

import "greencredits/internal/timestamp"

// User is a read-only snapshot of one users_data document. The document ID is
// the user's email and acts as the primary key.
type User struct {
	UserID     string          `json:"user_id"`
	Email      string          `json:"email"`
	Home       string          `json:"home,omitempty"`
	LastActive timestamp.Value `json:"-"`
}

// UserRow is a user joined with its aggregate, flattened for display.
type UserRow struct {
	UserID         string          `json:"user_id"`
	Email          string          `json:"email"`
	Home           string          `json:"home,omitempty"`
	LastActive     timestamp.Value `json:"-"`
	TotalTrips     int             `json:"total_trips"`
	CarbonCredits  float64         `json:"carbon_credits"`
	TotalDistance  float64         `json:"total_distance"`
	TransportModes Histogram       `json:"transport_modes"`
	TripStatuses   Histogram       `json:"trip_statuses"`
	MostUsedMode   string          `json:"most_used_mode"`
	Error          string          `json:"error,omitempty"`
}

func (r UserRow) SortKeys() (string, int, float64) {
	return r.Email, r.TotalTrips, r.CarbonCredits
}
