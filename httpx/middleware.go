package httpx

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/adeilh/go-rakh-session/auth"
	"github.com/adeilh/go-rakh-session/webhooks"
)

const webhookEventKey = "httpx.webhook_event"

// DefaultWebhookBodyLimit caps the webhook body read into memory.
const DefaultWebhookBodyLimit int64 = 1 << 20

// AuthMiddleware runs an auth.Middleware inside the echo chain. The
// authentication result is available through auth.ResultFromContext.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var nextErr error
			downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})
			mw.Handler(downstream).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}

type WebhookOptions struct {
	Header    string
	Tolerance time.Duration
	BodyLimit int64
	Logger    *slog.Logger
	Verifier  *webhooks.Verifier
}

type WebhookOption func(*WebhookOptions)

func WithWebhookHeader(name string) WebhookOption {
	return func(o *WebhookOptions) {
		if name != "" {
			o.Header = name
		}
	}
}

func WithWebhookTolerance(d time.Duration) WebhookOption {
	return func(o *WebhookOptions) {
		if d > 0 {
			o.Tolerance = d
		}
	}
}

func WithWebhookBodyLimit(n int64) WebhookOption {
	return func(o *WebhookOptions) {
		if n > 0 {
			o.BodyLimit = n
		}
	}
}

func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(o *WebhookOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithWebhookVerifier replaces the verifier built from the tolerance option.
func WithWebhookVerifier(v *webhooks.Verifier) WebhookOption {
	return func(o *WebhookOptions) {
		if v != nil {
			o.Verifier = v
		}
	}
}

// WebhookMiddleware verifies the signature of the raw request body before the
// handler runs. Verified events are available through WebhookEvent; the body
// is left readable for the handler.
func WebhookMiddleware(secret string, opts ...WebhookOption) MiddlewareFunc {
	cfg := WebhookOptions{
		Header:    webhooks.SignatureHeader,
		Tolerance: webhooks.DefaultTolerance,
		BodyLimit: DefaultWebhookBodyLimit,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Verifier == nil {
		cfg.Verifier = webhooks.NewVerifier(webhooks.WithTolerance(cfg.Tolerance), webhooks.WithLogger(cfg.Logger))
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			req := c.Request()
			body, err := io.ReadAll(io.LimitReader(req.Body, cfg.BodyLimit+1))
			if err != nil {
				return HTTPError(StatusBadRequest, "unreadable webhook body")
			}
			if int64(len(body)) > cfg.BodyLimit {
				return HTTPError(StatusPayloadTooLarge, "webhook body too large")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			event, err := cfg.Verifier.ConstructEvent(body, req.Header.Get(cfg.Header), secret)
			if err != nil {
				cfg.Logger.Warn("webhook rejected",
					slog.String("path", req.URL.Path),
					slog.String("remote", c.RealIP()),
					slog.Any("error", err))
				if errors.Is(err, webhooks.ErrSignatureVerification) || errors.Is(err, webhooks.ErrMissingSecret) {
					return HTTPError(StatusUnauthorized, err.Error())
				}
				return HTTPError(StatusBadRequest, err.Error())
			}
			c.Set(webhookEventKey, event)
			return next(c)
		}
	}
}

// WebhookEvent returns the event verified by WebhookMiddleware.
func WebhookEvent(c Context) (webhooks.Event, bool) {
	event, ok := c.Get(webhookEventKey).(webhooks.Event)
	return event, ok
}
