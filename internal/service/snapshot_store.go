package service

import (
	"sync"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/stats"
)

// Snapshot is the immutable result of one dashboard load.
type Snapshot struct {
	Generation  uint64
	LoadedAt    time.Time
	Users       []model.User
	Result      stats.Result
	FailedUsers int
}

// snapshotStore hands out load generations and keeps the freshest committed
// snapshot. A commit is accepted only if its generation is newer than the one
// already held, so a slow load can never replace a faster, later one.
type snapshotStore struct {
	mu        sync.RWMutex
	issued    uint64
	committed uint64
	current   *Snapshot
}

// Begin reserves the next generation for a load that is about to start.
func (s *snapshotStore) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Commit publishes snap and reports whether it was accepted.
func (s *snapshotStore) Commit(snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Generation <= s.committed {
		return false
	}
	s.committed = snap.Generation
	s.current = snap
	return true
}

// Current returns the latest committed snapshot, or nil before the first load.
func (s *snapshotStore) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
