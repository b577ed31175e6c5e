package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"greencredits/internal/cache"
	"greencredits/internal/model"
	"greencredits/internal/pubsub"
	"greencredits/internal/repository"
	"greencredits/internal/stats"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoSnapshot is returned by read operations before the first load commits.
	ErrNoSnapshot = errors.New("dashboard data has not been loaded yet")
	// ErrStaleLoad is returned when a load finishes after a newer one committed.
	ErrStaleLoad = errors.New("load superseded by a newer generation")
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// DashboardService loads users and trips and serves views derived from a
// committed snapshot. Callers resolve the snapshot once with Current and pass
// it to each view so a concurrent commit cannot mix generations.
type DashboardService interface {
	Load(ctx context.Context) (*Snapshot, error)
	Current() (*Snapshot, error)
	Series(snap *Snapshot, r model.Range) ([]model.SeriesPoint, error)
	Rows(snap *Snapshot, params stats.ViewParams) ([]model.UserRow, error)
	TripStats(snap *Snapshot, period model.Period) (model.TripStats, error)
	History(ctx context.Context, limit int) ([]model.SnapshotRecord, error)
	RunRefreshLoop(ctx context.Context, interval time.Duration)
}

// DashboardConfig tunes a DashboardService.
type DashboardConfig struct {
	FetchConcurrency int
	FetchTimeout     time.Duration
	Location         *time.Location
	RefreshTopic     string
	// Now defaults to time.Now.
	Now func() time.Time
}

// RefreshEvent is published after every committed load.
type RefreshEvent struct {
	Generation  uint64    `json:"generation"`
	LoadedAt    time.Time `json:"loaded_at"`
	TotalUsers  int       `json:"total_users"`
	TotalTrips  int       `json:"total_trips"`
	FailedUsers int       `json:"failed_users"`
}

type dashboardService struct {
	users     repository.UserRepository
	trips     repository.TripRepository
	snapshots repository.SnapshotRepository
	publisher pubsub.Publisher
	cache     *cache.Cache
	cfg       DashboardConfig
	store     snapshotStore
	logger    zerolog.Logger
}

// NewDashboardService creates a new DashboardService. views may be nil, in
// which case every view is recomputed on each call.
func NewDashboardService(
	users repository.UserRepository,
	trips repository.TripRepository,
	snapshots repository.SnapshotRepository,
	publisher pubsub.Publisher,
	views *cache.Cache,
	cfg DashboardConfig,
	logger zerolog.Logger,
) DashboardService {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if snapshots == nil {
		snapshots = repository.NewDisabledSnapshotRepo()
	}
	if publisher == nil {
		publisher = pubsub.NopPublisher{}
	}
	return &dashboardService{
		users:     users,
		trips:     trips,
		snapshots: snapshots,
		publisher: publisher,
		cache:     views,
		cfg:       cfg,
		logger:    logger,
	}
}

// Load fetches every user and their trips, derives the dashboard and commits
// it as the new snapshot. A failure to list users, a cancelled ctx or every
// user's trips failing fails the load and leaves the previous snapshot in
// place; a failure to list one user's trips only marks that user's aggregate.
func (s *dashboardService) Load(ctx context.Context) (*Snapshot, error) {
	gen := s.store.Begin()
	start := time.Now()

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Uint64("generation", gen).Msg("Dashboard load failed")
		return nil, fmt.Errorf("listing users: %w", err)
	}

	fetches := s.fetchTrips(ctx, users)
	if err := ctx.Err(); err != nil {
		s.logger.Error().Err(err).Uint64("generation", gen).Msg("Dashboard load cancelled")
		return nil, fmt.Errorf("fetching trips: %w", err)
	}

	failed := 0
	var firstErr error
	for _, f := range fetches {
		if f.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = f.Err
			}
		}
	}
	if len(users) > 0 && failed == len(users) {
		s.logger.Error().Err(firstErr).Uint64("generation", gen).Int("users", failed).Msg("Dashboard load failed")
		return nil, fmt.Errorf("fetching trips: all %d users failed: %w", failed, firstErr)
	}

	res := stats.Assemble(users, fetches)

	snap := &Snapshot{
		Generation:  gen,
		LoadedAt:    s.cfg.Now().UTC(),
		Users:       users,
		Result:      res,
		FailedUsers: failed,
	}
	if !s.store.Commit(snap) {
		s.logger.Warn().Uint64("generation", gen).Msg("Discarding stale dashboard load")
		return nil, ErrStaleLoad
	}

	s.logger.Info().
		Uint64("generation", gen).
		Int("users", len(users)).
		Int("trips", len(res.Trips)).
		Int("failed_users", failed).
		Dur("duration", time.Since(start)).
		Msg("Dashboard loaded")

	s.recordHistory(ctx, snap)
	s.publishRefresh(ctx, snap)
	return snap, nil
}

// fetchTrips lists each user's trips concurrently. Errors are kept per user
// and never cancel the other fetches.
func (s *dashboardService) fetchTrips(ctx context.Context, users []model.User) []stats.TripFetch {
	fetches := make([]stats.TripFetch, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, user := range users {
		g.Go(func() error {
			fctx := gctx
			if s.cfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, s.cfg.FetchTimeout)
				defer cancel()
			}
			trips, err := s.trips.ListTripsByUser(fctx, user.UserID)
			if err != nil {
				s.logger.Warn().Err(err).Str("user_id", user.UserID).Msg("Failed to fetch trips for user")
			}
			fetches[i] = stats.TripFetch{UserID: user.UserID, Trips: trips, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return fetches
}

func (s *dashboardService) recordHistory(ctx context.Context, snap *Snapshot) {
	sum := snap.Result.Summary
	rec := &model.SnapshotRecord{
		Generation:               snap.Generation,
		LoadedAt:                 snap.LoadedAt,
		TotalUsers:               sum.TotalUsers,
		TotalTrips:               sum.TotalTrips,
		TotalCarbonCredits:       sum.TotalCarbonCredits,
		FailedUsers:              snap.FailedUsers,
		MostPopularTransportMode: sum.MostPopularTransportMode,
	}
	err := s.snapshots.Save(ctx, rec)
	if err != nil && !errors.Is(err, repository.ErrHistoryDisabled) {
		s.logger.Warn().Err(err).Uint64("generation", snap.Generation).Msg("Failed to record snapshot history")
	}
}

func (s *dashboardService) publishRefresh(ctx context.Context, snap *Snapshot) {
	if s.cfg.RefreshTopic == "" {
		return
	}
	payload, err := json.Marshal(RefreshEvent{
		Generation:  snap.Generation,
		LoadedAt:    snap.LoadedAt,
		TotalUsers:  snap.Result.Summary.TotalUsers,
		TotalTrips:  snap.Result.Summary.TotalTrips,
		FailedUsers: snap.FailedUsers,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal refresh event")
		return
	}
	msgID, err := s.publisher.Publish(ctx, s.cfg.RefreshTopic, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", s.cfg.RefreshTopic).Msg("Failed to publish refresh event")
		return
	}
	s.logger.Debug().Str("message_id", msgID).Uint64("generation", snap.Generation).Msg("Published refresh event")
}

func (s *dashboardService) Current() (*Snapshot, error) {
	snap := s.store.Current()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// now is truncated to the minute so cached and recomputed windows agree.
func (s *dashboardService) now() time.Time {
	return s.cfg.Now().In(s.cfg.Location).Truncate(time.Minute)
}

// Series buckets the snapshot's trips for the given range. Results are cached
// per generation and minute.
func (s *dashboardService) Series(snap *Snapshot, r model.Range) ([]model.SeriesPoint, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	now := s.now()
	key := fmt.Sprintf("g%d:series:%s:%s", snap.Generation, r, now.Format("2006-01-02T15:04"))
	if v, ok := s.cache.Get(key); ok {
		return v.([]model.SeriesPoint), nil
	}
	points, err := stats.BuildSeries(snap.Result.Trips, r, now)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, points, int64(len(points)+1)*64)
	return points, nil
}

func (s *dashboardService) Rows(snap *Snapshot, params stats.ViewParams) ([]model.UserRow, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	key := fmt.Sprintf("g%d:rows:%s:%s:%q", snap.Generation, params.Sort.Field, params.Sort.Direction, params.Filter)
	if v, ok := s.cache.Get(key); ok {
		return v.([]model.UserRow), nil
	}
	rows, err := stats.ApplyView(snap.Result.Rows, params)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, rows, int64(len(rows)+1)*256)
	return rows, nil
}

func (s *dashboardService) TripStats(snap *Snapshot, period model.Period) (model.TripStats, error) {
	if snap == nil {
		return model.TripStats{}, ErrNoSnapshot
	}
	now := s.now()
	key := fmt.Sprintf("g%d:tripstats:%s:%s", snap.Generation, period, now.Format("2006-01-02T15:04"))
	if v, ok := s.cache.Get(key); ok {
		return v.(model.TripStats), nil
	}
	out, err := stats.ComputeTripStats(snap.Result.Trips, period, now)
	if err != nil {
		return model.TripStats{}, err
	}
	s.cache.Set(key, out, int64(len(out.TransportTypes)+1)*64)
	return out, nil
}

// History returns recent snapshot totals, newest first. limit is clamped to
// [1, 100] with a default of 20.
func (s *dashboardService) History(ctx context.Context, limit int) ([]model.SnapshotRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.snapshots.ListRecent(ctx, limit)
}

// RunRefreshLoop reloads the dashboard every interval until ctx is done.
// It returns immediately when interval is not positive.
func (s *dashboardService) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("Periodic dashboard refresh started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Load(ctx); err != nil && !errors.Is(err, ErrStaleLoad) && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Periodic dashboard refresh failed")
			}
		}
	}
}
