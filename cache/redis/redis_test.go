package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/adeilh/go-rakh-session/cache"
)

func newTestStore(t *testing.T, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewStore(Options{Addr: mr.Addr(), Prefix: prefix})
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStoreSetGetDelete(t *testing.T) {
	store, _ := newTestStore(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	value := []byte(`{"keys":[]}`)
	if err := store.Set(ctx, "keyset_client_1", value, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	payload, err := store.Get(ctx, "keyset_client_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(payload) != string(value) {
		t.Fatalf("Get() = %q, want %q", payload, value)
	}

	if err := store.Delete(ctx, "keyset_client_1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "keyset_client_1"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "keyset_client_1"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("Delete() of missing key = %v, want ErrNotFound", err)
	}
}

func TestStoreTTL(t *testing.T) {
	store, mr := newTestStore(t, "")
	ctx := context.Background()

	if err := store.Set(ctx, "short", []byte("v"), 5*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	mr.FastForward(4 * time.Minute)
	if _, err := store.Get(ctx, "short"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "short"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestStorePrefix(t *testing.T) {
	store, mr := newTestStore(t, "rakh")
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("rakh:k") {
		t.Fatalf("expected prefixed key in redis, keys = %v", mr.Keys())
	}
}

func TestStoreGetSurfacesConnectionErrors(t *testing.T) {
	store, mr := newTestStore(t, "")
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := store.Get(ctx, "k")
	if err == nil || errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("Get() against closed server = %v, want transport error", err)
	}
}
