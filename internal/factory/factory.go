package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mcoot/gamewallet/internal/api"
	"github.com/mcoot/gamewallet/internal/api/sse"
	"github.com/mcoot/gamewallet/internal/config"
	"github.com/mcoot/gamewallet/internal/dependencies/clock"
	"github.com/mcoot/gamewallet/internal/dependencies/random"
	"github.com/mcoot/gamewallet/internal/metrics"
	"github.com/mcoot/gamewallet/internal/middleware"
	"github.com/mcoot/gamewallet/internal/services/auth"
	"github.com/mcoot/gamewallet/internal/services/ledger"
	"github.com/mcoot/gamewallet/internal/storage"
	"github.com/mcoot/gamewallet/internal/storage/memory"
	"github.com/mcoot/gamewallet/internal/storage/postgres"
	redisstorage "github.com/mcoot/gamewallet/internal/storage/redis"
	"github.com/mcoot/gamewallet/internal/storage/sqlite"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Metrics       *metrics.Metrics
	HubManager    *sse.HubManager
	LedgerService *ledger.Service
	AuthService   *auth.Service

	// Router is the complete HTTP handler
	Router http.Handler
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("storage ready", slog.String("type", cfg.Storage.Type))

	authCfg := auth.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}
	if len(authCfg.Secret) == 0 {
		logger.Warn("auth.jwt_secret is not set; using a random secret, sessions will not survive a restart")
		authCfg.Secret = random.Bytes(32)
	}

	deps := dependencies{
		storage: store,
		clock:   clock.New(),
		random:  random.New(),
		metrics: metrics.New(),
		logger:  logger,
		auth:    authCfg,
		ledger:  ledger.Config{MaxTopUp: cfg.Ledger.MaxTopUp},
		cors:    corsConfig(cfg.CORS),
	}
	return newWithDependencies(deps), nil
}

// NewStorage opens the storage backend selected by cfg.Storage.Type
func NewStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory, "":
		return memory.NewWithLockTimeout(cfg.Ledger.LockTimeout), nil

	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		if cfg.Redis.PoolSize > 0 {
			redisCfg.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MaxRetries > 0 {
			redisCfg.MaxRetries = cfg.Redis.MaxRetries
		}
		redisCfg.LockTimeout = cfg.Ledger.LockTimeout
		return redisstorage.New(redisCfg)

	case config.StoragePostgres:
		if cfg.Postgres.DSN == "" {
			return nil, errors.New("postgres.dsn required when storage.type is postgres")
		}
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = cfg.Postgres.DSN
		if cfg.Postgres.MaxConns > 0 {
			pgCfg.MaxConns = cfg.Postgres.MaxConns
		}
		pgCfg.LockTimeout = cfg.Ledger.LockTimeout
		return postgres.New(ctx, pgCfg)

	case config.StorageSQLite:
		return sqlite.New(ctx, cfg.SQLite.Path, cfg.Ledger.LockTimeout)

	default:
		return nil, fmt.Errorf("invalid storage type %q: must be memory, redis, postgres or sqlite", cfg.Storage.Type)
	}
}

// Close stops event streams and releases storage
func (a *App) Close() error {
	a.HubManager.Close()
	return a.Storage.Close()
}

// dependencies are the externally supplied parts of an App
type dependencies struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	metrics *metrics.Metrics
	logger  *slog.Logger
	auth    auth.Config
	ledger  ledger.Config
	cors    middleware.CORSConfig
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(d dependencies) *App {
	hubManager := sse.NewHubManager(d.metrics, d.logger)
	broadcaster := sse.NewBroadcaster(hubManager, d.logger)
	ledgerService := ledger.NewService(d.storage, d.clock, d.random, broadcaster, d.metrics, d.logger, d.ledger)
	authService := auth.New(ledgerService, d.storage, d.clock, d.logger, d.auth)

	router := api.NewRouter(api.RouterConfig{
		Logger:        d.logger,
		AuthService:   authService,
		LedgerService: ledgerService,
		Storage:       d.storage,
		Clock:         d.clock,
		HubManager:    hubManager,
		Metrics:       d.metrics,
		CORS:          d.cors,
	})

	return &App{
		Storage:       d.storage,
		Clock:         d.clock,
		Random:        d.random,
		Metrics:       d.metrics,
		HubManager:    hubManager,
		LedgerService: ledgerService,
		AuthService:   authService,
		Router:        router,
	}
}

func corsConfig(cfg config.CORSConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.AllowedOrigins
	}
	return cors
}
