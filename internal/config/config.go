package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"production"`

	// Firestore settings
	GCPProjectID               string `envconfig:"GCP_PROJECT_ID" required:"true"`
	FirestoreDatabaseID        string `envconfig:"FIRESTORE_DATABASE_ID" default:"(default)"`
	FirestoreCredentialsSecret string `envconfig:"FIRESTORE_CREDENTIALS_SECRET"`
	UsersCollection            string `envconfig:"USERS_COLLECTION" default:"users_data"`
	TripsCollection            string `envconfig:"TRIPS_COLLECTION" default:"trips"`

	// Load pipeline settings
	FetchConcurrency   int    `envconfig:"FETCH_CONCURRENCY" default:"8"`
	FetchTimeoutSec    int    `envconfig:"FETCH_TIMEOUT_SEC" default:"30"`
	RefreshIntervalSec int    `envconfig:"REFRESH_INTERVAL_SEC" default:"0"`
	DashboardTimezone  string `envconfig:"DASHBOARD_TIMEZONE" default:"UTC"`

	// Derived view cache
	CacheMaxSizeMB int `envconfig:"CACHE_MAX_SIZE_MB" default:"16"`
	CacheTTLSec    int `envconfig:"CACHE_TTL_SEC" default:"300"`

	// Optional integrations, disabled when empty
	PubSubRefreshTopic string `envconfig:"PUBSUB_REFRESH_TOPIC"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`
	ExportS3Bucket     string `envconfig:"EXPORT_S3_BUCKET"`
	S3URL              string `envconfig:"S3_URL"`
	S3Region           string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey        string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey        string `envconfig:"S3_SECRET_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID must not be empty")
	}
	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", cfg.FetchConcurrency)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location is the time zone used for calendar windows and chart labels.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DashboardTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", c.DashboardTimezone, err)
	}
	return loc, nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}
