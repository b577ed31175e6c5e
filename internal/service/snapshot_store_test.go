package service

import "testing"

func TestSnapshotStoreRejectsStaleCommit(t *testing.T) {
	var s snapshotStore
	if s.Current() != nil {
		t.Fatal("expected no snapshot before first commit")
	}

	slow := s.Begin()
	fast := s.Begin()
	if fast <= slow {
		t.Fatalf("generations not increasing: %d then %d", slow, fast)
	}

	if !s.Commit(&Snapshot{Generation: fast}) {
		t.Fatal("fresh commit rejected")
	}
	if s.Commit(&Snapshot{Generation: slow}) {
		t.Fatal("stale commit accepted")
	}
	if got := s.Current().Generation; got != fast {
		t.Fatalf("current generation = %d, want %d", got, fast)
	}
	if s.Commit(&Snapshot{Generation: fast}) {
		t.Fatal("re-commit of the same generation accepted")
	}
}
