package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/adeilh/go-rakh-session/internal/config"
)

func TestOpenSharedStoreDefault(t *testing.T) {
	store, closeStore, err := openSharedStore(context.Background(), config.CacheConfig{})
	if err != nil {
		t.Fatalf("openSharedStore() error = %v", err)
	}
	if store != nil {
		t.Fatalf("store = %T, want nil", store)
	}
	if err := closeStore(); err != nil {
		t.Fatalf("close error = %v", err)
	}
}

func TestOpenSharedStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, closeStore, err := openSharedStore(ctx, config.CacheConfig{RedisAddr: mr.Addr(), RedisPrefix: "cli"})
	if err != nil {
		t.Fatalf("openSharedStore() error = %v", err)
	}
	defer func() { _ = closeStore() }()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("cli:k") {
		t.Fatalf("key cli:k missing from redis, keys = %v", mr.Keys())
	}
}

func TestOpenSharedStoreRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, _, err := openSharedStore(context.Background(), config.CacheConfig{RedisAddr: addr}); err == nil {
		t.Fatal("expected ping error for closed redis")
	}
}
