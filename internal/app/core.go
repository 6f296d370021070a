package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"go-auth-server/internal/cache"
	"go-auth-server/internal/config"
	"go-auth-server/internal/database"
	"go-auth-server/internal/event"
	"go-auth-server/internal/repository"
	"go-auth-server/internal/service"
)

// Core holds the stores and services shared by the server and the admin CLI.
type Core struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *database.DB
	Redis       *redis.Client
	Store       *cache.RedisStore
	Bus         *event.InMemoryBus
	Credentials *service.CredentialService
	Tokens      *service.TokenService

	closers []func()
}

func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	core := &Core{Config: cfg, Logger: logger}

	logger.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, database.Options{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	core.DB = db
	core.closers = append(core.closers, db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		core.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	core.Redis = rdb
	core.Store = cache.NewRedisStore(rdb)
	core.closers = append(core.closers, func() { _ = rdb.Close() })

	key, err := cfg.EncryptionKey()
	if err != nil {
		core.Close()
		return nil, err
	}
	sealer, err := service.NewSecretSealer(key)
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("failed to initialize secret sealer: %w", err)
	}

	core.Bus = event.NewBus(logger)

	core.Credentials = service.NewCredentialService(
		repository.NewUserRepository(db.Pool),
		repository.NewClientRepository(db.Pool),
		repository.NewPolicyRepository(db.Pool),
		sealer,
		service.LockoutConfig{MaxAttempts: cfg.LoginMaxAttempts, Window: cfg.LoginLockoutWindow},
		core.Bus,
		logger,
	)

	core.Tokens = service.NewTokenService(
		repository.NewTokenRepository(core.Store),
		service.NewSigner(cfg.JWTSecret, cfg.JWTIssuer),
		service.TokenConfig{
			ClientCredentialsRefresh: cfg.ClientCredentialsRefresh,
			AllowPlainPKCE:           cfg.AllowPlainPKCE,
		},
		core.Bus,
		logger,
	)

	logger.Info("stores ready")
	return core, nil
}

// Close releases connections in reverse order of acquisition.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
