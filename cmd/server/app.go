package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/plantwatch/plantdata-api/internal/config"
	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/platform/postgres"
	"github.com/plantwatch/plantdata-api/internal/queue"
	"github.com/plantwatch/plantdata-api/internal/quota"
	"github.com/plantwatch/plantdata-api/internal/service/auth"
	"github.com/plantwatch/plantdata-api/internal/store"
	"github.com/plantwatch/plantdata-api/internal/worker"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	rdb    redis.UniversalClient

	// Stores
	userStore     store.UserStore
	dataFileStore store.DataFileStore

	// Services
	jwtService       auth.JWTService
	passwordHasher   auth.PasswordHasher
	passwordVerifier auth.PasswordVerifier
	downloadService  *download.Service

	// Pipeline infrastructure
	downloadQueue *queue.RedisQueue
	workerPool    *worker.Pool
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Redis backs the quota ledger, the task/result stores and the queue.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	app.rdb = redis.NewClient(redisOpts)
	if err := app.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info("Redis connection established")

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	bcryptVerifier := auth.NewBcryptVerifier()
	app.passwordHasher = bcryptVerifier
	app.passwordVerifier = bcryptVerifier

	app.userStore = postgres.NewPostgresUserStore(db)
	app.dataFileStore = postgres.NewPostgresDataFileStore(db)

	ledger := quota.NewLedger(app.rdb, cfg.Download.DailyQuota)
	taskStore := download.NewRedisTaskStore(app.rdb, cfg.Download.TaskTTL)
	resultStore := download.NewRedisResultStore(app.rdb)

	app.downloadQueue = queue.NewRedisQueue(app.rdb, queue.Config{
		Stream:        cfg.Download.Stream,
		ConsumerGroup: cfg.Download.ConsumerGroup,
	})
	if err := app.downloadQueue.EnsureGroup(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure download queue group: %w", err)
	}

	app.downloadService = download.NewService(
		ledger,
		taskStore,
		resultStore,
		app.dataFileStore,
		app.downloadQueue,
	)

	app.workerPool = worker.NewPool(
		app.downloadQueue,
		taskStore,
		resultStore,
		app.dataFileStore,
		worker.PoolConfig{
			WorkerCount:     cfg.Download.WorkerCount,
			ResultTTL:       cfg.Download.ResultTTL,
			ResultTTLJitter: cfg.Download.ResultTTLJitter,
		},
		logger.With("component", "packaging_worker"),
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the packaging workers and the HTTP server, handling lifecycle
// and cleanup.
func (app *application) Run(ctx context.Context) error {
	app.workerPool.Start(ctx)

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.workerPool != nil {
		app.workerPool.Stop()
	}

	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
