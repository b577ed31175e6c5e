package model

import "time"

// UserAggregate holds one user's trip statistics. Error is set when the
// user's trips could not be fetched; the counts are then zero.
type UserAggregate struct {
	UserID         string     `json:"user_id"`
	Email          string     `json:"email"`
	TotalTrips     int        `json:"total_trips"`
	CarbonCredits  float64    `json:"carbon_credits"`
	TotalDistance  float64    `json:"total_distance"`
	TransportModes Histogram  `json:"transport_modes"`
	TripStatuses   Histogram  `json:"trip_statuses"`
	LastTripAt     *time.Time `json:"last_trip_date,omitempty"`
	LastUpdatedAt  *time.Time `json:"last_updated_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

func (a UserAggregate) SortKeys() (string, int, float64) {
	return a.Email, a.TotalTrips, a.CarbonCredits
}

// DashboardSummary is the rollup over every user aggregate.
type DashboardSummary struct {
	TotalUsers                  int             `json:"total_users"`
	TotalTrips                  int             `json:"total_trips"`
	TotalCarbonCredits          float64         `json:"total_carbon_credits"`
	AverageCarbonCreditsPerUser float64         `json:"average_carbon_credits_per_user"`
	AverageTripsPerUser         float64         `json:"average_trips_per_user"`
	MostPopularTransportMode    string          `json:"most_popular_transport_mode"`
	UserStats                   []UserAggregate `json:"user_stats"`
}

// SeriesPoint is one bucket of the credits-over-time chart.
type SeriesPoint struct {
	Label         string    `json:"label"`
	BucketStart   time.Time `json:"bucket_start"`
	CarbonCredits float64   `json:"carbon_credits"`
	TripCount     int       `json:"trip_count"`
}

// TransportShare is one transport mode's slice of the trip count.
type TransportShare struct {
	Mode    string  `json:"mode"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// TripStats backs the trip statistics card.
type TripStats struct {
	Period               Period           `json:"period"`
	TotalTrips           int              `json:"total_trips"`
	TotalDistance        float64          `json:"total_distance"`
	AverageCarbonCredits float64          `json:"average_carbon_credits"`
	TransportTypes       []TransportShare `json:"transport_types"`
}

// SnapshotRecord is the persisted summary of one dashboard load.
type SnapshotRecord struct {
	ID                       int64     `db:"id" json:"id"`
	Generation               uint64    `db:"generation" json:"generation"`
	LoadedAt                 time.Time `db:"loaded_at" json:"loaded_at"`
	TotalUsers               int       `db:"total_users" json:"total_users"`
	TotalTrips               int       `db:"total_trips" json:"total_trips"`
	TotalCarbonCredits       float64   `db:"total_carbon_credits" json:"total_carbon_credits"`
	FailedUsers              int       `db:"failed_users" json:"failed_users"`
	MostPopularTransportMode string    `db:"most_popular_transport_mode" json:"most_popular_transport_mode"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
}
