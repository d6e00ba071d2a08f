package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie read by the default extractor.
const DefaultCookieName = "rakh-session"

var (
	ErrTokenNotFound     = errors.New("auth: sealed session not found")
	ErrTokenInvalidInput = errors.New("auth: invalid sealed session source")
)

// SessionLoader builds a Session around a sealed cookie value.
type SessionLoader func(ctx context.Context, sealed string) (*Session, error)

type TokenExtractor func(*http.Request) (string, error)

type MiddlewareSkipper func(*http.Request) bool

type MiddlewareErrorHandler func(http.ResponseWriter, *http.Request, error)

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	loader       SessionLoader
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
	authOptions  []AuthenticateOption
}

func newMiddlewareConfig(loader SessionLoader, opts ...MiddlewareOption) (middlewareConfig, error) {
	if loader == nil {
		return middlewareConfig{}, errors.New("auth: middleware requires a session loader")
	}
	cfg := middlewareConfig{
		loader:       loader,
		extractor:    CookieTokenExtractor(DefaultCookieName),
		skipper:      defaultSkipper,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.extractor == nil {
		cfg.extractor = CookieTokenExtractor(DefaultCookieName)
	}
	if cfg.skipper == nil {
		cfg.skipper = defaultSkipper
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = defaultErrorHandler
	}
	return cfg, nil
}

func WithTokenExtractor(extractor TokenExtractor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if extractor != nil {
			cfg.extractor = extractor
		}
	}
}

func WithSkipper(skipper MiddlewareSkipper) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

func WithErrorHandler(handler MiddlewareErrorHandler) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if handler != nil {
			cfg.errorHandler = handler
		}
	}
}

// WithAuthenticateOptions forwards opts to every Session.Authenticate call.
func WithAuthenticateOptions(opts ...AuthenticateOption) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.authOptions = append(cfg.authOptions, opts...)
	}
}

func CookieTokenExtractor(name string) TokenExtractor {
	name = strings.TrimSpace(name)
	return func(r *http.Request) (string, error) {
		if name == "" {
			return "", ErrTokenInvalidInput
		}
		cookie, err := r.Cookie(name)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return "", ErrTokenNotFound
			}
			return "", err
		}
		value := strings.TrimSpace(cookie.Value)
		if value == "" {
			return "", ErrTokenNotFound
		}
		return value, nil
	}
}

// HeaderTokenExtractor reads the sealed session from a request header, for
// clients that cannot send cookies.
func HeaderTokenExtractor(header string) TokenExtractor {
	header = strings.TrimSpace(header)
	return func(r *http.Request) (string, error) {
		if header == "" {
			return "", ErrTokenInvalidInput
		}
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			return "", ErrTokenNotFound
		}
		return value, nil
	}
}

func ChainExtractors(extractors ...TokenExtractor) TokenExtractor {
	copied := append([]TokenExtractor(nil), extractors...)
	return func(r *http.Request) (string, error) {
		var lastErr error = ErrTokenNotFound
		for _, extractor := range copied {
			if extractor == nil {
				continue
			}
			token, err := extractor(r)
			if err == nil {
				return token, nil
			}
			lastErr = err
		}
		return "", lastErr
	}
}

func defaultSkipper(*http.Request) bool { return false }

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), status)
}
