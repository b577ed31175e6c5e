package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"greencredits/internal/api/v1/handler"
	"greencredits/internal/cache"
	"greencredits/internal/config"
	"greencredits/internal/middleware"
	"greencredits/internal/pubsub"
	"greencredits/internal/repository"
	"greencredits/internal/service"

	"cloud.google.com/go/firestore"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Deps holds the long-lived clients and services shared by the HTTP server
// and the report command.
type Deps struct {
	Dashboard service.DashboardService
	Exports   service.ExportService

	closers []func()
}

// Close releases every client opened by Build, in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Build connects to Firestore and the optional integrations and wires the
// dashboard services.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Deps, error) {
	deps := &Deps{}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	logger.Info().Str("environment", cfg.Environment).Str("project_id", cfg.GCPProjectID).Msg("App environment loaded")

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 1. Firestore client, with credentials from Secret Manager when configured
	var opts []option.ClientOption
	if cfg.FirestoreCredentialsSecret != "" {
		secrets, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		creds, err := secrets.AccessSecret(ctx, cfg.FirestoreCredentialsSecret)
		secrets.Close()
		if err != nil {
			return nil, fmt.Errorf("loading Firestore credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
		logger.Info().Msg("Firestore credentials loaded from Secret Manager")
	}
	fsClient, err := firestore.NewClientWithDatabase(ctx, cfg.GCPProjectID, cfg.FirestoreDatabaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	deps.closers = append(deps.closers, func() { fsClient.Close() })
	logger.Info().Str("database", cfg.FirestoreDatabaseID).Msg("Firestore client initialized")

	// 2. Snapshot history (optional)
	snapshotRepo := repository.NewDisabledSnapshotRepo()
	if cfg.DBConnectionString != "" {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
		if err := repository.EnsureSnapshotSchema(ctx, pool); err != nil {
			return nil, err
		}
		snapshotRepo = repository.NewSnapshotRepo(pool)
		logger.Info().Msg("Database connection successful")
	}

	// 3. Refresh events (optional)
	var publisher pubsub.Publisher = pubsub.NopPublisher{}
	if cfg.PubSubRefreshTopic != "" {
		pub, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { pub.Close() })
		publisher = pub
	}

	// 4. Derived view cache
	views, err := cache.New(cache.Config{MaxSizeMB: cfg.CacheMaxSizeMB, TTL: cfg.CacheTTL()}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}
	deps.closers = append(deps.closers, views.Close)

	// 5. Export upload (optional)
	var uploader service.ObjectUploader
	if cfg.ExportS3Bucket != "" {
		s3Client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		uploader = s3Client
	}

	// 6. Repositories & services
	userRepo := repository.NewUserRepo(fsClient, cfg.UsersCollection, logger)
	tripRepo := repository.NewTripRepo(fsClient, cfg.UsersCollection, cfg.TripsCollection)

	deps.Dashboard = service.NewDashboardService(userRepo, tripRepo, snapshotRepo, publisher, views, service.DashboardConfig{
		FetchConcurrency: cfg.FetchConcurrency,
		FetchTimeout:     cfg.FetchTimeout(),
		Location:         loc,
		RefreshTopic:     cfg.PubSubRefreshTopic,
	}, logger)
	deps.Exports = service.NewExportService(deps.Dashboard, uploader, cfg.ExportS3Bucket, loc, logger)

	ok = true
	return deps, nil
}

// New builds the HTTP handler for deps.
func New(cfg *config.Config, deps *Deps, logger zerolog.Logger) (http.Handler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	dashboardHandler := handler.NewDashboardHandler(deps.Dashboard, deps.Exports, validate, loc, logger)

	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	dashboardHandler.RegisterRoutes(apiV1Mux)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Redirect all other root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || strings.HasPrefix(r.URL.Path, "/v1/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	logger.Info().Msg("Router initialized")
	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.DBConnectionString
	// In a development environment, we want to ensure that SSL is disabled for
	// local testing.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn = appendDSNParam(dsn, "sslmode=disable")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONNECTION_STRING: %w", err)
	}
	// Transaction poolers like pgbouncer break server-side prepared statements.
	if cfg.Environment != "development" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 5
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return pool, nil
}

// appendDSNParam adds a parameter to either a URL or a key=value DSN.
func appendDSNParam(dsn, param string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&" + param
		}
		return dsn + "?" + param
	}
	return dsn + " " + param
}

func newS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	s3Config, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		if cfg.S3URL != "" {
			o.BaseEndpoint = aws.String(cfg.S3URL)
			o.UsePathStyle = true
		}
	}), nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
