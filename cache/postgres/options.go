package postgres

import "time"

// Options configures the cache's connection pool and table.
type Options struct {
	DSN   string
	Table string
	// Pool sizes the connection pool; key set caching needs only a few
	// connections.
	Pool Pool
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
	// AutoMigrate creates the table on OpenStore.
	AutoMigrate bool
}

type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

type Option func(*Options)

func WithDSN(dsn string) Option {
	return func(o *Options) { o.DSN = dsn }
}

// WithTable overrides DefaultTable.
func WithTable(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Table = name
		}
	}
}

func WithPool(p Pool) Option {
	return func(o *Options) {
		if p.MaxOpen > 0 {
			o.Pool.MaxOpen = p.MaxOpen
		}
		if p.MaxIdle >= 0 {
			o.Pool.MaxIdle = p.MaxIdle
		}
		if p.MaxLifetime > 0 {
			o.Pool.MaxLifetime = p.MaxLifetime
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ConnectTimeout = d
		}
	}
}

func WithAutoMigrate() Option {
	return func(o *Options) { o.AutoMigrate = true }
}

func defaultOptions() Options {
	return Options{
		Table:          DefaultTable,
		Pool:           Pool{MaxOpen: 4, MaxIdle: 2, MaxLifetime: 30 * time.Minute},
		ConnectTimeout: 5 * time.Second,
	}
}

func applyOptions(opts []Option) Options {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
