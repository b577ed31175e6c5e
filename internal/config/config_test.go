package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "greencredits-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UsersCollection != "users_data" || cfg.TripsCollection != "trips" {
		t.Errorf("unexpected collections %q / %q", cfg.UsersCollection, cfg.TripsCollection)
	}
	if cfg.FetchConcurrency != 8 || cfg.FetchTimeout() != 30*time.Second {
		t.Errorf("unexpected fetch settings %d / %v", cfg.FetchConcurrency, cfg.FetchTimeout())
	}
	if cfg.RefreshInterval() != 0 {
		t.Errorf("refresh should be off by default")
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v", loc, err)
	}
}

func TestLoadRequiresProject(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when GCP_PROJECT_ID is empty")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "p")

	t.Run("timezone", func(t *testing.T) {
		t.Setenv("DASHBOARD_TIMEZONE", "Mars/Olympus")
		if _, err := Load(); err == nil {
			t.Fatal("expected timezone error")
		}
	})

	t.Run("concurrency", func(t *testing.T) {
		t.Setenv("FETCH_CONCURRENCY", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected concurrency error")
		}
	})
}
