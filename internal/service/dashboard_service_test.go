package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"greencredits/internal/cache"
	"greencredits/internal/model"
	"greencredits/internal/repository"
	"greencredits/internal/stats"
	"greencredits/internal/timestamp"

	"github.com/rs/zerolog"
)

type fakeUserRepo struct {
	users []model.User
	err   error
	// gate, when set, blocks the first ListUsers call until closed.
	gate    chan struct{}
	started chan struct{}
	calls   atomic.Int32
}

func (f *fakeUserRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	if f.calls.Add(1) == 1 && f.gate != nil {
		close(f.started)
		<-f.gate
	}
	return f.users, f.err
}

type fakeTripRepo struct {
	trips map[string][]model.Trip
	errs  map[string]error
	delay time.Duration

	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeTripRepo) ListTripsByUser(ctx context.Context, userID string) ([]model.Trip, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	return f.trips[userID], nil
}

type fakeSnapshotRepo struct {
	mu    sync.Mutex
	saved []model.SnapshotRecord
}

func (f *fakeSnapshotRepo) Save(ctx context.Context, rec *model.SnapshotRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, *rec)
	return nil
}

func (f *fakeSnapshotRepo) ListRecent(ctx context.Context, limit int) ([]model.SnapshotRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.SnapshotRecord{}
	for i := len(f.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.saved[i])
	}
	return out, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return "msg-1", nil
}

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func testTrips() map[string][]model.Trip {
	return map[string][]model.Trip{
		"alice@example.com": {
			{ID: "t1", UserID: "alice@example.com", TransportMode: "bike", Status: "completed", Credits: 3,
				LastUpdated: timestamp.Instant(testNow.Add(-24 * time.Hour))},
			{ID: "t2", UserID: "alice@example.com", TransportMode: "bus", Status: "completed", Credits: "2",
				LastUpdated: timestamp.Text("garbage")},
		},
		"bob@example.com": {
			{ID: "t3", UserID: "bob@example.com", TransportMode: "bike", Credits: 5,
				LastUpdated: timestamp.Instant(testNow.Add(-48 * time.Hour))},
		},
	}
}

func testUsers() []model.User {
	return []model.User{
		{UserID: "alice@example.com", Email: "alice@example.com"},
		{UserID: "bob@example.com", Email: "bob@example.com"},
		{UserID: "carol@example.com", Email: "carol@example.com"},
	}
}

func newTestService(t *testing.T, users *fakeUserRepo, trips *fakeTripRepo, views *cache.Cache) (DashboardService, *fakeSnapshotRepo, *fakePublisher) {
	t.Helper()
	history := &fakeSnapshotRepo{}
	pub := &fakePublisher{}
	svc := NewDashboardService(users, trips, history, pub, views, DashboardConfig{
		FetchConcurrency: 2,
		FetchTimeout:     time.Second,
		Location:         time.UTC,
		RefreshTopic:     "dashboard-refreshed",
		Now:              func() time.Time { return testNow },
	}, zerolog.Nop())
	return svc, history, pub
}

func TestReadsBeforeFirstLoad(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeUserRepo{}, &fakeTripRepo{}, nil)

	if _, err := svc.Current(); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Current error = %v, want ErrNoSnapshot", err)
	}
	if _, err := svc.Series(nil, model.RangeWeek); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Series error = %v, want ErrNoSnapshot", err)
	}
	if _, err := svc.Rows(nil, stats.ViewParams{Sort: stats.DefaultSortState()}); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Rows error = %v, want ErrNoSnapshot", err)
	}
	if _, err := svc.TripStats(nil, model.PeriodAll); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("TripStats error = %v, want ErrNoSnapshot", err)
	}
}

func TestLoadContainsPerUserFailures(t *testing.T) {
	trips := &fakeTripRepo{
		trips: testTrips(),
		errs:  map[string]error{"bob@example.com": errors.New("permission denied")},
	}
	svc, history, pub := newTestService(t, &fakeUserRepo{users: testUsers()}, trips, nil)

	snap, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Generation != 1 {
		t.Errorf("Generation = %d, want 1", snap.Generation)
	}
	if snap.FailedUsers != 1 {
		t.Errorf("FailedUsers = %d, want 1", snap.FailedUsers)
	}

	sum := snap.Result.Summary
	if sum.TotalUsers != 3 || sum.TotalTrips != 2 || sum.TotalCarbonCredits != 5 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(snap.Result.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(snap.Result.Rows))
	}
	if bob := snap.Result.Rows[1]; bob.Error != "permission denied" || bob.TotalTrips != 0 {
		t.Errorf("failed user row = %+v", bob)
	}

	if len(history.saved) != 1 || history.saved[0].FailedUsers != 1 || history.saved[0].TotalTrips != 2 {
		t.Errorf("history = %+v", history.saved)
	}

	if len(pub.payloads) != 1 || pub.topics[0] != "dashboard-refreshed" {
		t.Fatalf("published %d events to %v", len(pub.payloads), pub.topics)
	}
	var ev RefreshEvent
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Generation != 1 || ev.TotalUsers != 3 || ev.FailedUsers != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestLoadFailsWhenUsersUnavailable(t *testing.T) {
	users := &fakeUserRepo{users: testUsers()}
	svc, _, _ := newTestService(t, users, &fakeTripRepo{trips: testTrips()}, nil)

	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("first load: %v", err)
	}

	users.err = errors.New("unavailable")
	if _, err := svc.Load(context.Background()); err == nil {
		t.Fatal("expected error when users cannot be listed")
	}

	snap, err := svc.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if snap.Generation != 1 {
		t.Errorf("previous snapshot replaced: generation %d", snap.Generation)
	}
}

// cancellingUserRepo cancels the load's context once users are listed.
type cancellingUserRepo struct {
	users  []model.User
	cancel context.CancelFunc
}

func (c *cancellingUserRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	c.cancel()
	return c.users, nil
}

func TestCancelledLoadKeepsPreviousSnapshot(t *testing.T) {
	trips := &fakeTripRepo{trips: testTrips()}
	users := &fakeUserRepo{users: testUsers()}
	history := &fakeSnapshotRepo{}
	pub := &fakePublisher{}
	cfg := DashboardConfig{FetchConcurrency: 2, RefreshTopic: "dashboard-refreshed", Now: func() time.Time { return testNow }}
	svc := NewDashboardService(users, trips, history, pub, nil, cfg, zerolog.Nop())

	good, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := NewDashboardService(&cancellingUserRepo{users: testUsers(), cancel: cancel}, trips, history, pub, nil, cfg, zerolog.Nop())
	if _, err := cancelling.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled load error = %v, want context.Canceled", err)
	}
	if _, err := cancelling.Current(); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("cancelled load committed a snapshot: %v", err)
	}

	snap, err := svc.Current()
	if err != nil || snap.Generation != good.Generation || snap.Result.Summary.TotalTrips != 3 {
		t.Errorf("current = %+v, %v", snap, err)
	}
	if len(history.saved) != 1 || len(pub.payloads) != 1 {
		t.Errorf("history = %d records, events = %d, want 1 each", len(history.saved), len(pub.payloads))
	}
}

func TestLoadFailsWhenEveryUserFails(t *testing.T) {
	users := &fakeUserRepo{users: testUsers()}
	trips := &fakeTripRepo{trips: testTrips()}
	svc, history, _ := newTestService(t, users, trips, nil)

	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("first load: %v", err)
	}

	denied := errors.New("permission denied")
	trips.errs = map[string]error{
		"alice@example.com": denied,
		"bob@example.com":   denied,
		"carol@example.com": denied,
	}
	if _, err := svc.Load(context.Background()); !errors.Is(err, denied) {
		t.Fatalf("load error = %v, want wrapped permission denied", err)
	}
	snap, _ := svc.Current()
	if snap.Generation != 1 || snap.FailedUsers != 0 {
		t.Errorf("previous snapshot replaced: %+v", snap)
	}
	if len(history.saved) != 1 {
		t.Errorf("history = %d records, want 1", len(history.saved))
	}

	// An empty user list is not a failure.
	empty, _, _ := newTestService(t, &fakeUserRepo{}, &fakeTripRepo{}, nil)
	if _, err := empty.Load(context.Background()); err != nil {
		t.Errorf("empty load: %v", err)
	}
}

func TestLoadRespectsFetchConcurrency(t *testing.T) {
	var users []model.User
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		users = append(users, model.User{UserID: id, Email: id})
	}
	trips := &fakeTripRepo{delay: 20 * time.Millisecond}
	svc, _, _ := newTestService(t, &fakeUserRepo{users: users}, trips, nil)

	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p := trips.peak.Load(); p > 2 {
		t.Errorf("peak concurrent fetches = %d, want at most 2", p)
	}
}

func TestStaleLoadDoesNotOverwrite(t *testing.T) {
	users := &fakeUserRepo{
		users:   testUsers(),
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	svc, _, _ := newTestService(t, users, &fakeTripRepo{trips: testTrips()}, nil)

	slow := make(chan error, 1)
	go func() {
		_, err := svc.Load(context.Background())
		slow <- err
	}()
	<-users.started

	fresh, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("fresh load: %v", err)
	}
	close(users.gate)

	if err := <-slow; !errors.Is(err, ErrStaleLoad) {
		t.Fatalf("slow load error = %v, want ErrStaleLoad", err)
	}
	snap, _ := svc.Current()
	if snap.Generation != fresh.Generation {
		t.Errorf("current generation = %d, want %d", snap.Generation, fresh.Generation)
	}
}

func TestDerivedViews(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeUserRepo{users: testUsers()}, &fakeTripRepo{trips: testTrips()}, nil)
	snap, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	points, err := svc.Series(snap, model.RangeWeek)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(points) != 2 || points[0].Label != "Mar 13" || points[1].Label != "Mar 14" {
		t.Errorf("points = %+v", points)
	}

	rows, err := svc.Rows(snap, stats.ViewParams{Sort: stats.SortState{Field: stats.SortByCarbonCredits, Direction: stats.Descending}})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if rows[0].Email != "alice@example.com" || rows[2].Email != "carol@example.com" {
		t.Errorf("unexpected order %s, %s, %s", rows[0].Email, rows[1].Email, rows[2].Email)
	}

	ts, err := svc.TripStats(snap, model.PeriodAll)
	if err != nil {
		t.Fatalf("TripStats: %v", err)
	}
	if ts.TotalTrips != 3 {
		t.Errorf("TotalTrips = %d, want 3", ts.TotalTrips)
	}

	if _, err := svc.Series(snap, model.Range("decade")); !errors.Is(err, stats.ErrInvalidRange) {
		t.Errorf("invalid range error = %v", err)
	}
}

func TestViewsUseTheGivenSnapshot(t *testing.T) {
	trips := &fakeTripRepo{trips: testTrips()}
	svc, _, _ := newTestService(t, &fakeUserRepo{users: testUsers()}, trips, nil)
	old, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	trips.trips = map[string][]model.Trip{}
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	points, err := svc.Series(old, model.RangeWeek)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("points = %d, want 2 from generation %d", len(points), old.Generation)
	}
	ts, err := svc.TripStats(old, model.PeriodAll)
	if err != nil {
		t.Fatalf("TripStats: %v", err)
	}
	if ts.TotalTrips != 3 {
		t.Errorf("TotalTrips = %d, want 3", ts.TotalTrips)
	}
}

func TestWindowsAreStableWithinAMinute(t *testing.T) {
	edge := testNow.AddDate(0, 0, -7).Add(30 * time.Second)
	trips := &fakeTripRepo{trips: map[string][]model.Trip{
		"alice@example.com": {{ID: "t1", UserID: "alice@example.com", TransportMode: "bike", Credits: 1,
			LastUpdated: timestamp.Instant(edge)}},
	}}
	now := testNow.Add(10 * time.Second)
	svc := NewDashboardService(&fakeUserRepo{users: testUsers()}, trips, nil, nil, nil, DashboardConfig{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, zerolog.Nop())
	snap, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, sec := range []time.Duration{10, 50} {
		now = testNow.Add(sec * time.Second)
		points, err := svc.Series(snap, model.RangeWeek)
		if err != nil {
			t.Fatalf("Series: %v", err)
		}
		if len(points) != 1 {
			t.Errorf("at %s: points = %d, want 1", now.Format(time.TimeOnly), len(points))
		}
		ts, err := svc.TripStats(snap, model.PeriodWeek)
		if err != nil {
			t.Fatalf("TripStats: %v", err)
		}
		if ts.TotalTrips != 1 {
			t.Errorf("at %s: TotalTrips = %d, want 1", now.Format(time.TimeOnly), ts.TotalTrips)
		}
	}
}

func TestDerivedViewsAreCachedPerGeneration(t *testing.T) {
	views, err := cache.New(cache.Config{MaxSizeMB: 1, TTL: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer views.Close()

	trips := &fakeTripRepo{trips: testTrips()}
	svc, _, _ := newTestService(t, &fakeUserRepo{users: testUsers()}, trips, views)
	snap, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	first, err := svc.Series(snap, model.RangeWeek)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	views.Wait()
	if _, err := svc.Series(snap, model.RangeWeek); err != nil {
		t.Fatalf("Series: %v", err)
	}
	if views.Metrics().Hits == 0 {
		t.Error("expected second Series call to hit the cache")
	}

	// A new generation with different data must not see the old entry.
	trips.trips = map[string][]model.Trip{}
	next, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	second, err := svc.Series(next, model.RangeWeek)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(first) == 0 || len(second) != 0 {
		t.Errorf("first = %d points, second = %d points", len(first), len(second))
	}
}

func TestHistoryLimits(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeUserRepo{users: testUsers()}, &fakeTripRepo{trips: testTrips()}, nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	recs, err := svc.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recs) != 2 || recs[0].Generation != 3 {
		t.Errorf("history = %+v", recs)
	}

	disabled := NewDashboardService(&fakeUserRepo{}, &fakeTripRepo{}, nil, nil, nil, DashboardConfig{}, zerolog.Nop())
	if _, err := disabled.History(context.Background(), 0); !errors.Is(err, repository.ErrHistoryDisabled) {
		t.Errorf("disabled history error = %v", err)
	}
}

func TestRunRefreshLoop(t *testing.T) {
	users := &fakeUserRepo{users: testUsers()}
	svc, _, _ := newTestService(t, users, &fakeTripRepo{trips: testTrips()}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	svc.RunRefreshLoop(ctx, 20*time.Millisecond)

	if users.calls.Load() < 2 {
		t.Errorf("expected several periodic loads, got %d", users.calls.Load())
	}
	// Non-positive intervals return immediately.
	svc.RunRefreshLoop(context.Background(), 0)
}
