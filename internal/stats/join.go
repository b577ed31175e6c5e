package stats

import (
	"strings"

	"greencredits/internal/model"
	"greencredits/internal/timestamp"
)

// NoMode is shown when a user or the whole dashboard has no trips.
const NoMode = "none"

// JoinUsers returns one row per user, in user order. A user without a
// matching aggregate is joined against a zero aggregate instead of dropped.
func JoinUsers(users []model.User, aggregates []model.UserAggregate) []model.UserRow {
	byID := make(map[string]model.UserAggregate, len(aggregates))
	for _, agg := range aggregates {
		if _, seen := byID[agg.UserID]; !seen {
			byID[agg.UserID] = agg
		}
	}

	rows := make([]model.UserRow, 0, len(users))
	for _, user := range users {
		agg, ok := byID[user.UserID]
		if !ok {
			agg = AggregateTrips(user, nil)
		}

		lastActive := user.LastActive
		if agg.LastUpdatedAt != nil {
			lastActive = timestamp.Instant(*agg.LastUpdatedAt)
		}

		rows = append(rows, model.UserRow{
			UserID:         user.UserID,
			Email:          user.Email,
			Home:           user.Home,
			LastActive:     lastActive,
			TotalTrips:     agg.TotalTrips,
			CarbonCredits:  agg.CarbonCredits,
			TotalDistance:  agg.TotalDistance,
			TransportModes: agg.TransportModes,
			TripStatuses:   agg.TripStatuses,
			MostUsedMode:   agg.TransportModes.Top(NoMode),
			Error:          agg.Error,
		})
	}
	return rows
}

// DisplayMode shortens namespaced modes such as "TransportMode.bike" to their
// second dot-separated segment. Plain modes are returned unchanged.
func DisplayMode(mode string) string {
	if parts := strings.Split(mode, "."); len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return mode
}

// DisplayHome renders a user's home location for tables.
func DisplayHome(home string) string {
	if strings.TrimSpace(home) == "" {
		return "Not set"
	}
	return home
}
