package stats

import "greencredits/internal/model"

// Rollup folds every user aggregate into the dashboard summary. With no users
// the averages are exactly 0 and the most popular mode is NoMode.
func Rollup(aggregates []model.UserAggregate) model.DashboardSummary {
	summary := model.DashboardSummary{
		TotalUsers: len(aggregates),
		UserStats:  make([]model.UserAggregate, len(aggregates)),
	}
	copy(summary.UserStats, aggregates)

	var modes model.Histogram
	for _, agg := range aggregates {
		summary.TotalTrips += agg.TotalTrips
		summary.TotalCarbonCredits += agg.CarbonCredits
		modes.Merge(agg.TransportModes)
	}

	if summary.TotalUsers > 0 {
		summary.AverageCarbonCreditsPerUser = summary.TotalCarbonCredits / float64(summary.TotalUsers)
		summary.AverageTripsPerUser = float64(summary.TotalTrips) / float64(summary.TotalUsers)
	}
	summary.MostPopularTransportMode = modes.Top(NoMode)
	return summary
}
