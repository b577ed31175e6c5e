package dto

import (
	"time"

	"greencredits/internal/model"
	"greencredits/internal/stats"
)

// SeriesQueryDTO binds GET /dashboard/series query parameters
type SeriesQueryDTO struct {
	Range string `validate:"omitempty,oneof=week month year"`
}

// UsersQueryDTO binds GET /dashboard/users query parameters. Select is the
// column the user just clicked and is applied to Sort/Dir.
type UsersQueryDTO struct {
	Filter string `validate:"max=256"`
	Sort   string `validate:"omitempty,oneof=email totalTrips carbonCredits"`
	Dir    string `validate:"omitempty,oneof=asc desc"`
	Select string `validate:"omitempty,oneof=email totalTrips carbonCredits"`
}

type TripStatsQueryDTO struct {
	Period string `validate:"omitempty,oneof=all month week"`
}

type HistoryQueryDTO struct {
	Limit int `validate:"omitempty,min=1,max=100"`
}

type ExportQueryDTO struct {
	Range string `validate:"omitempty,oneof=week month year"`
}

// SummaryResponseDTO is returned by GET /dashboard/summary
type SummaryResponseDTO struct {
	Generation                    uint64                `json:"generation"`
	LoadedAt                      time.Time             `json:"loaded_at"`
	TotalUsers                    int                   `json:"total_users"`
	TotalTrips                    int                   `json:"total_trips"`
	TotalCarbonCredits            float64               `json:"total_carbon_credits"`
	AverageCarbonCreditsPerUser   float64               `json:"average_carbon_credits_per_user"`
	AverageTripsPerUser           float64               `json:"average_trips_per_user"`
	MostPopularTransportMode      string                `json:"most_popular_transport_mode"`
	MostPopularTransportModeLabel string                `json:"most_popular_transport_mode_label"`
	FailedUsers                   int                   `json:"failed_users"`
	UserStats                     []model.UserAggregate `json:"user_stats"`
}

type SeriesResponseDTO struct {
	Generation uint64              `json:"generation"`
	Range      model.Range         `json:"range"`
	Points     []model.SeriesPoint `json:"points"`
}

// EmptySeriesResponseDTO replaces the chart when no trip falls in the window
type EmptySeriesResponseDTO struct {
	Empty   bool   `json:"empty"`
	Message string `json:"message"`
}

// UserRowResponseDTO is one display-ready table row
type UserRowResponseDTO struct {
	UserID            string          `json:"user_id"`
	Email             string          `json:"email"`
	Home              string          `json:"home"`
	LastActive        string          `json:"last_active"`
	TotalTrips        int             `json:"total_trips"`
	CarbonCredits     float64         `json:"carbon_credits"`
	TotalDistance     float64         `json:"total_distance"`
	TransportModes    model.Histogram `json:"transport_modes"`
	TripStatuses      model.Histogram `json:"trip_statuses"`
	MostUsedMode      string          `json:"most_used_mode"`
	MostUsedModeLabel string          `json:"most_used_mode_label"`
	Error             string          `json:"error,omitempty"`
}

type UsersResponseDTO struct {
	Generation uint64               `json:"generation"`
	Filter     string               `json:"filter"`
	Sort       stats.SortState      `json:"sort"`
	Total      int                  `json:"total"`
	Users      []UserRowResponseDTO `json:"users"`
}

type TripStatsResponseDTO struct {
	Generation uint64 `json:"generation"`
	model.TripStats
}

type HistoryResponseDTO struct {
	Snapshots []model.SnapshotRecord `json:"snapshots"`
}

type RefreshResponseDTO struct {
	Generation  uint64    `json:"generation"`
	LoadedAt    time.Time `json:"loaded_at"`
	TotalUsers  int       `json:"total_users"`
	TotalTrips  int       `json:"total_trips"`
	FailedUsers int       `json:"failed_users"`
}

type ExportResponseDTO struct {
	Key string `json:"key"`
}
