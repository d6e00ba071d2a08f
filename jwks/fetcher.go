package jwks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrFetch = errors.New("jwks: fetch failed")

// Client is the transport used to download key set documents; httpx.Client
// satisfies it.
type Client interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads and parses key sets. It does not retry; callers bound the
// request through ctx or the client's timeout.
type Fetcher struct {
	client Client
	logger *slog.Logger
}

type FetcherOption func(*Fetcher)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher builds a Fetcher on client.
func NewFetcher(client Client, opts ...FetcherOption) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("jwks: fetcher requires a client")
	}
	f := &Fetcher{client: client, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// FetchDocument returns the raw JWKS document at url.
func (f *Fetcher) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	f.logger.DebugContext(ctx, "fetching key set", slog.String("url", url))
	doc, err := f.client.GetBytes(ctx, url)
	if err != nil {
		f.logger.WarnContext(ctx, "key set fetch failed", slog.String("url", url), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return doc, nil
}

// Fetch downloads and parses the key set at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*KeySet, error) {
	doc, err := f.FetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}
