package jwks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adeilh/go-rakh-session/cache"
)

// DefaultTTL is how long a fetched key set is reused.
const DefaultTTL = 5 * time.Minute

// CacheKey is the cache key under which a client's key set is stored.
func CacheKey(clientID string) string { return "keyset_" + clientID }

// Cache resolves key sets through an in-process TTLCache, so each client's
// keys are fetched at most once per TTL by every session sharing the cache.
type Cache struct {
	entries *cache.TTLCache
	fetcher *Fetcher
	ttl     time.Duration
}

// NewCache builds a Cache. A nil entries cache gets a private TTLCache.
func NewCache(entries *cache.TTLCache, fetcher *Fetcher) *Cache {
	if entries == nil {
		entries = cache.New()
	}
	return &Cache{entries: entries, fetcher: fetcher, ttl: DefaultTTL}
}

// Resolve returns the cached key set for clientID or fetches it from url.
func (c *Cache) Resolve(ctx context.Context, clientID, url string) (*KeySet, error) {
	return c.resolve(ctx, clientID, url, false)
}

// Refresh refetches the key set even if a live entry exists.
func (c *Cache) Refresh(ctx context.Context, clientID, url string) (*KeySet, error) {
	return c.resolve(ctx, clientID, url, true)
}

// Invalidate drops the cached key set for clientID.
func (c *Cache) Invalidate(clientID string) {
	c.entries.Delete(CacheKey(clientID))
}

func (c *Cache) resolve(ctx context.Context, clientID, url string, force bool) (*KeySet, error) {
	v, err := c.entries.Fetch(CacheKey(clientID), cache.FetchOptions{TTL: c.ttl, Force: force}, func() (any, error) {
		return c.fetcher.Fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	keys, ok := v.(*KeySet)
	if !ok {
		return nil, fmt.Errorf("jwks: cache entry %s holds %T", CacheKey(clientID), v)
	}
	return keys, nil
}

// StoreCache keeps raw key set documents in a cache.Store such as Redis or
// PostgreSQL so that several processes share one fetch per TTL.
type StoreCache struct {
	store   cache.Store
	fetcher *Fetcher
	ttl     time.Duration
}

// NewStoreCache builds a StoreCache.
func NewStoreCache(store cache.Store, fetcher *Fetcher) *StoreCache {
	return &StoreCache{store: store, fetcher: fetcher, ttl: DefaultTTL}
}

// Resolve reads the document from the store, fetching and storing it on a
// miss. Store read failures fall back to a direct fetch.
func (s *StoreCache) Resolve(ctx context.Context, clientID, url string) (*KeySet, error) {
	key := CacheKey(clientID)

	doc, err := s.store.Get(ctx, key)
	if err == nil {
		if keys, perr := Parse(doc); perr == nil {
			return keys, nil
		}
	} else if !errors.Is(err, cache.ErrNotFound) {
		s.fetcher.logger.WarnContext(ctx, "key set store read failed", slog.String("key", key), slog.Any("error", err))
	}

	doc, err = s.fetcher.FetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}
	keys, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, key, doc, s.ttl); err != nil {
		s.fetcher.logger.WarnContext(ctx, "key set store write failed", slog.String("key", key), slog.Any("error", err))
	}
	return keys, nil
}
