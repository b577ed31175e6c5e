package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"greencredits/internal/api/v1/dto"
	"greencredits/internal/model"
	"greencredits/internal/repository"
	"greencredits/internal/service"
	"greencredits/internal/stats"
	"greencredits/internal/timestamp"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const noSeriesDataMessage = "No data available for the selected time period"

// DashboardHandler serves the admin dashboard endpoints
type DashboardHandler struct {
	dashboardService service.DashboardService
	exportService    service.ExportService
	validate         *validator.Validate
	loc              *time.Location
	logger           zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(
	dashboardService service.DashboardService,
	exportService service.ExportService,
	validate *validator.Validate,
	loc *time.Location,
	logger zerolog.Logger,
) *DashboardHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardHandler{
		dashboardService: dashboardService,
		exportService:    exportService,
		validate:         validate,
		loc:              loc,
		logger:           logger,
	}
}

// RegisterRoutes mounts dashboard routes
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/dashboard/summary", h.getSummary)
	mux.HandleFunc("/dashboard/series", h.getSeries)
	mux.HandleFunc("/dashboard/users", h.listUsers)
	mux.HandleFunc("/dashboard/trip-stats", h.getTripStats)
	mux.HandleFunc("/dashboard/history", h.getHistory)
	mux.HandleFunc("/dashboard/export.xlsx", h.downloadExport)
	mux.HandleFunc("/dashboard/export", h.uploadExport)
	mux.HandleFunc("/dashboard/refresh", h.refresh)
}

// getSummary godoc
// @Summary Dashboard totals
// @Description Totals, per-user averages and the most popular transport mode for the latest load.
// @Tags dashboard
// @Produce json
// @Success 200 {object} dto.SummaryResponseDTO
// @Failure 503 {string} string "Dashboard data has not been loaded yet"
// @Router /dashboard/summary [get]
func (h *DashboardHandler) getSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.dashboardService.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	sum := snap.Result.Summary
	resp := dto.SummaryResponseDTO{
		Generation:                    snap.Generation,
		LoadedAt:                      snap.LoadedAt,
		TotalUsers:                    sum.TotalUsers,
		TotalTrips:                    sum.TotalTrips,
		TotalCarbonCredits:            sum.TotalCarbonCredits,
		AverageCarbonCreditsPerUser:   stats.Round2(sum.AverageCarbonCreditsPerUser),
		AverageTripsPerUser:           stats.Round2(sum.AverageTripsPerUser),
		MostPopularTransportMode:      sum.MostPopularTransportMode,
		MostPopularTransportModeLabel: stats.DisplayMode(sum.MostPopularTransportMode),
		FailedUsers:                   snap.FailedUsers,
		UserStats:                     sum.UserStats,
	}
	writeJSON(w, http.StatusOK, resp)
}

// getSeries godoc
// @Summary Credits over time
// @Tags dashboard
// @Produce json
// @Param range query string false "week, month or year" default(week)
// @Success 200 {object} dto.SeriesResponseDTO
// @Failure 400 {string} string "Validation failed"
// @Router /dashboard/series [get]
func (h *DashboardHandler) getSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := dto.SeriesQueryDTO{Range: r.URL.Query().Get("range")}
	if err := h.validate.Struct(&q); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	rng := model.RangeWeek
	if q.Range != "" {
		rng = model.Range(q.Range)
	}

	snap, err := h.dashboardService.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	points, err := h.dashboardService.Series(snap, rng)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(points) == 0 {
		writeJSON(w, http.StatusOK, dto.EmptySeriesResponseDTO{Empty: true, Message: noSeriesDataMessage})
		return
	}
	writeJSON(w, http.StatusOK, dto.SeriesResponseDTO{Generation: snap.Generation, Range: rng, Points: points})
}

// listUsers godoc
// @Summary Per-user table
// @Description Filters by email substring and sorts. select applies a column click to sort/dir.
// @Tags dashboard
// @Produce json
// @Param filter query string false "Case-insensitive email substring"
// @Param sort query string false "email, totalTrips or carbonCredits" default(email)
// @Param dir query string false "asc or desc" default(asc)
// @Param select query string false "Column clicked"
// @Success 200 {object} dto.UsersResponseDTO
// @Router /dashboard/users [get]
func (h *DashboardHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	q := dto.UsersQueryDTO{
		Filter: query.Get("filter"),
		Sort:   query.Get("sort"),
		Dir:    query.Get("dir"),
		Select: query.Get("select"),
	}
	if err := h.validate.Struct(&q); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	state := stats.DefaultSortState()
	if q.Sort != "" {
		state.Field = stats.SortField(q.Sort)
	}
	if q.Dir != "" {
		state.Direction = stats.Direction(q.Dir)
	}
	if q.Select != "" {
		state = state.Select(stats.SortField(q.Select))
	}

	snap, err := h.dashboardService.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	rows, err := h.dashboardService.Rows(snap, stats.ViewParams{Filter: q.Filter, Sort: state})
	if err != nil {
		h.writeError(w, err)
		return
	}

	users := make([]dto.UserRowResponseDTO, 0, len(rows))
	for _, row := range rows {
		users = append(users, dto.UserRowResponseDTO{
			UserID:            row.UserID,
			Email:             row.Email,
			Home:              stats.DisplayHome(row.Home),
			LastActive:        timestamp.Display(row.LastActive, h.loc),
			TotalTrips:        row.TotalTrips,
			CarbonCredits:     stats.Round2(row.CarbonCredits),
			TotalDistance:     stats.Round2(row.TotalDistance),
			TransportModes:    row.TransportModes,
			TripStatuses:      row.TripStatuses,
			MostUsedMode:      row.MostUsedMode,
			MostUsedModeLabel: stats.DisplayMode(row.MostUsedMode),
			Error:             row.Error,
		})
	}
	writeJSON(w, http.StatusOK, dto.UsersResponseDTO{
		Generation: snap.Generation,
		Filter:     q.Filter,
		Sort:       state,
		Total:      len(users),
		Users:      users,
	})
}

// getTripStats godoc
// @Summary Trip statistics card
// @Tags dashboard
// @Produce json
// @Param period query string false "all, month or week" default(all)
// @Success 200 {object} dto.TripStatsResponseDTO
// @Router /dashboard/trip-stats [get]
func (h *DashboardHandler) getTripStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := dto.TripStatsQueryDTO{Period: r.URL.Query().Get("period")}
	if err := h.validate.Struct(&q); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	period := model.PeriodAll
	if q.Period != "" {
		period = model.Period(q.Period)
	}

	snap, err := h.dashboardService.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	ts, err := h.dashboardService.TripStats(snap, period)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TripStatsResponseDTO{Generation: snap.Generation, TripStats: ts})
}

// getHistory godoc
// @Summary Recent load totals
// @Tags dashboard
// @Produce json
// @Param limit query int false "1-100" default(20)
// @Success 200 {object} dto.HistoryResponseDTO
// @Failure 501 {string} string "Snapshot history is not configured"
// @Router /dashboard/history [get]
func (h *DashboardHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var q dto.HistoryQueryDTO
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit: "+err.Error(), http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}
	if err := h.validate.Struct(&q); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.dashboardService.History(r.Context(), q.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []model.SnapshotRecord{}
	}
	writeJSON(w, http.StatusOK, dto.HistoryResponseDTO{Snapshots: records})
}

// downloadExport godoc
// @Summary Download the dashboard as XLSX
// @Tags dashboard
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param range query string false "Series range" default(month)
// @Router /dashboard/export.xlsx [get]
func (h *DashboardHandler) downloadExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rng, ok := h.exportRange(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.exportService.WriteWorkbook(&buf, rng); err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="greencredits-dashboard.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write export response")
	}
}

// uploadExport godoc
// @Summary Upload the XLSX export to object storage
// @Tags dashboard
// @Produce json
// @Param range query string false "Series range" default(month)
// @Success 201 {object} dto.ExportResponseDTO
// @Failure 501 {string} string "Export bucket is not configured"
// @Router /dashboard/export [post]
func (h *DashboardHandler) uploadExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rng, ok := h.exportRange(w, r)
	if !ok {
		return
	}
	key, err := h.exportService.Upload(r.Context(), rng)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ExportResponseDTO{Key: key})
}

func (h *DashboardHandler) exportRange(w http.ResponseWriter, r *http.Request) (model.Range, bool) {
	q := dto.ExportQueryDTO{Range: r.URL.Query().Get("range")}
	if err := h.validate.Struct(&q); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	if q.Range == "" {
		return model.RangeMonth, true
	}
	return model.Range(q.Range), true
}

// refresh godoc
// @Summary Reload users and trips now
// @Tags dashboard
// @Produce json
// @Success 200 {object} dto.RefreshResponseDTO
// @Failure 409 {string} string "Load superseded by a newer generation"
// @Failure 502 {string} string "Failed to load dashboard data"
// @Router /dashboard/refresh [post]
func (h *DashboardHandler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// A client disconnect must not cancel a load that is about to commit.
	snap, err := h.dashboardService.Load(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrStaleLoad) {
			h.writeError(w, err)
			return
		}
		h.logger.Error().Err(err).Msg("Manual dashboard refresh failed")
		http.Error(w, "Failed to load dashboard data", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, dto.RefreshResponseDTO{
		Generation:  snap.Generation,
		LoadedAt:    snap.LoadedAt,
		TotalUsers:  snap.Result.Summary.TotalUsers,
		TotalTrips:  snap.Result.Summary.TotalTrips,
		FailedUsers: snap.FailedUsers,
	})
}

func (h *DashboardHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoSnapshot):
		http.Error(w, "Dashboard data has not been loaded yet", http.StatusServiceUnavailable)
	case errors.Is(err, service.ErrStaleLoad):
		http.Error(w, "Load superseded by a newer generation", http.StatusConflict)
	case errors.Is(err, service.ErrExportBucketNotConfigured):
		http.Error(w, "Export bucket is not configured", http.StatusNotImplemented)
	case errors.Is(err, repository.ErrHistoryDisabled):
		http.Error(w, "Snapshot history is not configured", http.StatusNotImplemented)
	case errors.Is(err, stats.ErrInvalidRange),
		errors.Is(err, stats.ErrInvalidSortField),
		errors.Is(err, stats.ErrInvalidDirection),
		errors.Is(err, stats.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error().Err(err).Msg("Dashboard request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
