package wire

import (
	"context"
	"fmt"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/db/redis"
	"github.com/remibonds525-star/loyalty-engine/game"
	"github.com/remibonds525-star/loyalty-engine/ledger"
	"github.com/remibonds525-star/loyalty-engine/logging"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
	"github.com/remibonds525-star/loyalty-engine/pkg/rng"
	"github.com/remibonds525-star/loyalty-engine/quota"
	"github.com/remibonds525-star/loyalty-engine/server"
)

// ProvideLogger provides a zerolog.Logger
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}

// ProvideRedisClient provides a Redis client
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	return redis.New(cfg.Redis)
}

// ProvideRandomSource provides the shared random outcome source
func ProvideRandomSource() rng.Source {
	return rng.New()
}

// ProvideLedgerStore provides a ledger store for the configured backend.
// The Redis client may be nil when the backend is "memory".
func ProvideLedgerStore(cfg *config.Config, client *redis.Client) (ledger.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("storage backend is redis but no client is configured")
		}
		return ledger.NewRedisStore(client), nil
	case "", "memory":
		return ledger.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ProvideLedgerService provides the wallet ledger service
func ProvideLedgerService(store ledger.Store, logger zerolog.Logger) *ledger.Service {
	return ledger.NewService(store, logger)
}

// ProvideQuotaStore provides a quota store for the configured backend
func ProvideQuotaStore(cfg *config.Config, client *redis.Client) (quota.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("storage backend is redis but no client is configured")
		}
		return quota.NewRedisStore(client), nil
	case "", "memory":
		return quota.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ProvideQuotaTracker provides the daily free-play tracker
func ProvideQuotaTracker(store quota.Store, cfg *config.Config, logger zerolog.Logger) (*quota.Tracker, error) {
	return quota.NewTracker(store, cfg.Quota, logger)
}

// ProvideJackpotStore provides a jackpot pool store for the configured backend
func ProvideJackpotStore(ctx context.Context, cfg *config.Config, client *redis.Client) (jackpot.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("storage backend is redis but no client is configured")
		}
		return jackpot.NewRedisStore(ctx, client, cfg.Games.Jackpot.BaseValue)
	case "", "memory":
		return jackpot.NewMemoryStore(cfg.Games.Jackpot.BaseValue), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ProvideJackpotService provides the jackpot pool service
func ProvideJackpotService(store jackpot.Store, logger zerolog.Logger) *jackpot.Service {
	return jackpot.NewService(jackpot.ServiceConfig{
		Store:  store,
		Logger: logger,
	})
}

// ProvideSawEngine provides the saw game engine
func ProvideSawEngine(cfg *config.Config, pool *jackpot.Service, src rng.Source) *game.SawEngine {
	return game.NewSawEngine(cfg.Games.Jackpot, pool, src)
}

// ProvideMinesEngine provides the job-site game engine
func ProvideMinesEngine(cfg *config.Config, src rng.Source) *game.MinesEngine {
	return game.NewMinesEngine(cfg.Games.Mines.CellReward, src)
}

// ProvideDailyEngine provides the daily bonus wheel engine
func ProvideDailyEngine(cfg *config.Config, src rng.Source) *game.DailyEngine {
	return game.NewDailyEngine(cfg.Games.Daily.Prizes, src)
}

// ProvideBoardRegistry provides the in-flight board registry
func ProvideBoardRegistry() *game.BoardRegistry {
	return game.NewBoardRegistry()
}

// ProvideServerOptions provides server options
func ProvideServerOptions(cfg *config.Config, logger zerolog.Logger, play *server.PlayService, pool *jackpot.Service) server.Options {
	return server.Options{
		Config:  cfg,
		Logger:  logger,
		Play:    play,
		Jackpot: pool,
	}
}

// ProvideApp provides the main application
func ProvideApp(opts server.Options) *server.App {
	return server.New(opts)
}

// ConfigSet is the wire provider set for configuration
var ConfigSet = wire.NewSet(
	config.Load,
)

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// RedisSet is the wire provider set for Redis
var RedisSet = wire.NewSet(
	ProvideRedisClient,
)

// StorageSet is the wire provider set for backend stores
var StorageSet = wire.NewSet(
	ProvideLedgerStore,
	ProvideQuotaStore,
	ProvideJackpotStore,
)

// GameSet is the wire provider set for the game engines
var GameSet = wire.NewSet(
	ProvideRandomSource,
	ProvideSawEngine,
	ProvideMinesEngine,
	ProvideDailyEngine,
	ProvideBoardRegistry,
)

// ServiceSet is the wire provider set for domain services
var ServiceSet = wire.NewSet(
	ProvideLedgerService,
	ProvideQuotaTracker,
	ProvideJackpotService,
)

// ServerSet is the wire provider set for server
var ServerSet = wire.NewSet(
	ProvideServerOptions,
	ProvideApp,
)

// DefaultSet is the default wire provider set including all common providers
var DefaultSet = wire.NewSet(
	LoggingSet,
	StorageSet,
	GameSet,
	ServiceSet,
	ServerSet,
)

// FullSet includes all providers including Redis
var FullSet = wire.NewSet(
	DefaultSet,
	RedisSet,
)
