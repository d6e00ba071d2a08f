package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Middleware authenticates requests carrying a sealed session and exposes the
// AuthenticationResult to downstream handlers.
type Middleware struct {
	loader       SessionLoader
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
	authOptions  []AuthenticateOption
}

type resultContextKey struct{}

func NewMiddleware(loader SessionLoader, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(loader, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		loader:       cfg.loader,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
		authOptions:  cfg.authOptions,
	}, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		sealed, err := m.extractor(r)
		if err != nil && !errors.Is(err, ErrTokenNotFound) {
			m.errorHandler(w, r, err)
			return
		}

		session, err := m.loader(r.Context(), sealed)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}

		result := session.Authenticate(m.authOptions...)
		if !result.Authenticated {
			m.errorHandler(w, r, fmt.Errorf("%w: %s", ErrNotAuthenticated, result.Reason))
			return
		}

		ctx := context.WithValue(r.Context(), resultContextKey{}, result)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ResultFromContext returns the result stored by Middleware.
func ResultFromContext(ctx context.Context) (AuthenticationResult, bool) {
	if ctx == nil {
		return AuthenticationResult{}, false
	}
	result, ok := ctx.Value(resultContextKey{}).(AuthenticationResult)
	return result, ok
}
