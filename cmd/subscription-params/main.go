package main

// @title           Subscription Parameters API
// @version         1.0
// @description     Stores the deployment template parameters recorded for each marketplace subscription and renders them as ARM parameter files.

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description HS256 JWT issued to the calling service. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/subscription-params/internal/adapters/driven/auth"
	"github.com/custodia-labs/subscription-params/internal/adapters/driven/memory"
	"github.com/custodia-labs/subscription-params/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/subscription-params/internal/adapters/driven/redis"
	"github.com/custodia-labs/subscription-params/internal/adapters/driving/http"
	"github.com/custodia-labs/subscription-params/internal/config"
	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
	"github.com/custodia-labs/subscription-params/internal/core/services"
	"github.com/custodia-labs/subscription-params/internal/logging"
)

var version = "dev"

func main() {
	// Command line arg overrides RUN_MODE
	if len(os.Args) > 1 {
		_ = os.Setenv("RUN_MODE", os.Args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.RunMode == config.RunModeToken {
		if err := issueToken(cfg, auth.NewAdapter(cfg.APITokenSecret), os.Stdout, time.Now()); err != nil {
			logger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("subscription-params exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("subscription-params starting",
		"version", version,
		"mode", cfg.RunMode,
		"backend", cfg.StoreBackend,
	)

	// Cancelled on shutdown signal while connecting
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ===== Initialize PostgreSQL =====
	var db *postgres.DB
	if cfg.StoreBackend == config.BackendPostgres {
		var err error
		db, err = openPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	if cfg.RunMode == config.RunModeMigrate {
		logger.Info("migration complete")
		return nil
	}

	// ===== Initialize Redis (optional unless it is the store) =====
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		redisClient, err = openRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	// ===== Parameter store =====
	var store driven.ParameterStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		store = postgres.NewParameterStore(db)
	case config.BackendRedis:
		store = redisadapter.NewParameterStore(redisClient)
	case config.BackendMemory:
		store = memory.NewParameterStore()
		logger.Warn("using in-memory parameter store; data is lost on restart")
	}
	logger.Info("parameter store ready", "backend", cfg.StoreBackend, "replace", store.Atomicity())

	// ===== Replace lock (Redis if available, otherwise PostgreSQL advisory locks) =====
	var lock driven.DistributedLock
	if cfg.ReplaceLockEnabled {
		switch {
		case redisClient != nil:
			lock = redisadapter.NewLock(redisClient)
			logger.Info("using Redis replace lock")
		case db != nil:
			lock = postgres.NewAdvisoryLock(db)
			logger.Info("using PostgreSQL advisory replace lock")
		default:
			logger.Warn("replace lock enabled but no lock backend configured; replacements are not coordinated")
		}
	}

	parameterService := services.NewParameterService(services.ParameterServiceConfig{
		Store:   store,
		Lock:    lock,
		LockTTL: cfg.ReplaceLockTTL,
		Logger:  logger,
	})

	server := http.NewServer(
		http.Config{
			Host:    cfg.Host,
			Port:    cfg.Port,
			Version: version,
		},
		parameterService,
		auth.NewAdapter(cfg.APITokenSecret),
		logger,
	)

	// Start blocks until SIGINT/SIGTERM
	stop()
	return server.Start()
}

// issueToken prints a signed API token for TOKEN_SUBJECT to w
func issueToken(cfg *config.Config, verifier driven.TokenVerifier, w io.Writer, now time.Time) error {
	token, err := verifier.GenerateToken(domain.NewTokenClaims(cfg.TokenSubject, now, cfg.TokenTTL))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.DB, error) {
	logger.Info("connecting to PostgreSQL")
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Idempotent
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connected and schema initialized")
	return db, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	logger.Info("connecting to Redis")
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	logger.Info("Redis connected")
	return client, nil
}
