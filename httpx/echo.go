package httpx

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Status codes used by the session and webhook handlers.
const (
	StatusOK              = http.StatusOK
	StatusNoContent       = http.StatusNoContent
	StatusBadRequest      = http.StatusBadRequest
	StatusUnauthorized    = http.StatusUnauthorized
	StatusNotFound        = http.StatusNotFound
	StatusConflict        = http.StatusConflict
	StatusPayloadTooLarge = http.StatusRequestEntityTooLarge
	StatusInternalError   = http.StatusInternalServerError
)

type Context = echo.Context

type HandlerFunc = echo.HandlerFunc

type MiddlewareFunc = echo.MiddlewareFunc

// Echo wraps the echo instance a Server routes through.
type Echo struct{ *echo.Echo }

func NewEcho() *Echo { return &Echo{echo.New()} }

func (e *Echo) Use(mw ...MiddlewareFunc) { e.Echo.Use(mw...) }

func (e *Echo) GET(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	e.Echo.GET(path, h, mw...)
}

func (e *Echo) POST(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	e.Echo.POST(path, h, mw...)
}

// HTTPError builds an echo HTTP error without importing echo in callers.
func HTTPError(code int, message any) error { return echo.NewHTTPError(code, message) }

func RecoverMiddleware() MiddlewareFunc { return middleware.Recover() }

func LoggerMiddleware() MiddlewareFunc { return middleware.Logger() }

// CORSMiddleware builds a CORS middleware; nil uses DefaultCORSConfig.
func CORSMiddleware(cfg *middleware.CORSConfig) MiddlewareFunc {
	if cfg == nil {
		return middleware.CORSWithConfig(middleware.DefaultCORSConfig)
	}
	return middleware.CORSWithConfig(*cfg)
}

var DefaultCORSConfig = middleware.DefaultCORSConfig

// CookieOptions shape the sealed session cookie.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   time.Duration
	Insecure bool
	SameSite http.SameSite
}

// SetSessionCookie stores a sealed session, e.g. the result of a refresh. The
// cookie is HttpOnly and, unless Insecure is set, Secure.
func SetSessionCookie(c Context, name, sealed string, opts CookieOptions) {
	c.SetCookie(sessionCookie(name, sealed, opts))
}

// ClearSessionCookie expires the named session cookie.
func ClearSessionCookie(c Context, name string, opts CookieOptions) {
	cookie := sessionCookie(name, "", opts)
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	c.SetCookie(cookie)
}

func sessionCookie(name, value string, opts CookieOptions) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		HttpOnly: true,
		Secure:   !opts.Insecure,
		SameSite: opts.SameSite,
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteLaxMode
	}
	if opts.MaxAge > 0 {
		cookie.MaxAge = int(opts.MaxAge.Seconds())
	}
	return cookie
}
