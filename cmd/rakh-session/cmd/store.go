package cmd

import (
	"context"

	"github.com/adeilh/go-rakh-session/cache"
	"github.com/adeilh/go-rakh-session/cache/postgres"
	"github.com/adeilh/go-rakh-session/cache/redis"
	"github.com/adeilh/go-rakh-session/internal/config"
)

// openSharedStore returns the configured key set store, or nil when key sets
// are cached in process.
func openSharedStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, func() error, error) {
	switch {
	case cfg.RedisAddr != "":
		store := redis.NewStore(redis.Options{Addr: cfg.RedisAddr, Prefix: cfg.RedisPrefix})
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case cfg.PostgresDSN != "":
		store, err := postgres.OpenStore(ctx, postgres.WithDSN(cfg.PostgresDSN), postgres.WithAutoMigrate())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, func() error { return nil }, nil
	}
}
