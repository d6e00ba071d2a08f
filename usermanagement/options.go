package usermanagement

import (
	"log/slog"
	"time"

	"github.com/adeilh/go-rakh-session/cache"
	"github.com/adeilh/go-rakh-session/seal"
)

type Options struct {
	// BaseURL of the identity platform API, e.g. https://api.example.com.
	BaseURL string
	// APIKey is sent as the client secret on token exchanges.
	APIKey   string
	ClientID string
	Timeout  time.Duration
	// Encryptor seals refreshed sessions when the caller does not pick one.
	Encryptor seal.Encryptor
	// KeySets backs the key set cache shared by every session the client
	// loads. Nil gets a private cache.
	KeySets *cache.TTLCache
	// SharedStore, when set, caches key set documents out of process
	// instead of in KeySets.
	SharedStore cache.Store
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Encryptor == nil {
		o.Encryptor = seal.AESGCM{}
	}
	if o.KeySets == nil {
		o.KeySets = cache.New()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
