// Package webhooks verifies signed webhook deliveries.
//
// A delivery carries a header of the form
//
//	t=<unix milliseconds>, v1=<hex HMAC-SHA256>
//
// where the HMAC is computed over "<t>.<raw body>" with the endpoint secret.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTolerance is how old a signature timestamp may be.
	DefaultTolerance = 180 * time.Second

	// SignatureHeader is the HTTP header carrying the signature.
	SignatureHeader = "Rakh-Signature"

	signatureScheme = "v1"
)

var (
	ErrSignatureVerification = errors.New("webhooks: signature verification failed")

	ErrMalformedHeader   = fmt.Errorf("%w: unable to extract timestamp and signature hash from header", ErrSignatureVerification)
	ErrNoSignature       = fmt.Errorf("%w: no signature hash found with expected scheme %s", ErrSignatureVerification, signatureScheme)
	ErrTimestampExpired  = fmt.Errorf("%w: timestamp outside the tolerance zone", ErrSignatureVerification)
	ErrSignatureMismatch = fmt.Errorf("%w: signature hash does not match the expected signature hash for payload", ErrSignatureVerification)
	ErrMissingSecret     = errors.New("webhooks: secret is required")
)

// Event is a verified webhook delivery.
type Event struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Verifier checks webhook signatures against a clock.
type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Verifier)

// WithTolerance overrides DefaultTolerance.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{tolerance: DefaultTolerance, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Tolerance returns the configured maximum signature age.
func (v *Verifier) Tolerance() time.Duration { return v.tolerance }

// VerifyHeader checks header against payload and secret. Timestamps in the
// future are accepted.
func (v *Verifier) VerifyHeader(payload []byte, header, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	timestamp, signature, err := parseHeader(header)
	if err != nil {
		return err
	}

	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}
	if time.UnixMilli(ms).Before(v.now().Add(-v.tolerance)) {
		v.logger.Debug("webhook timestamp outside tolerance", slog.Int64("timestamp", ms), slog.Duration("tolerance", v.tolerance))
		return ErrTimestampExpired
	}

	expected := ComputeSignature(timestamp, payload, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// ConstructEvent verifies the delivery and decodes it.
func (v *Verifier) ConstructEvent(payload []byte, header, secret string) (Event, error) {
	if err := v.VerifyHeader(payload, header, secret); err != nil {
		return Event{}, err
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("webhooks: decode event: %w", err)
	}
	return event, nil
}

// ComputeSignature returns the lowercase hex v1 signature for payload sent at
// timestamp (milliseconds, as it appears in the header).
func ComputeSignature(timestamp string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a signature header for payload at t.
func SignHeader(payload []byte, secret string, t time.Time) string {
	timestamp := strconv.FormatInt(t.UnixMilli(), 10)
	return "t=" + timestamp + ", " + signatureScheme + "=" + ComputeSignature(timestamp, payload, secret)
}

func parseHeader(header string) (timestamp, signature string, err error) {
	parts := strings.Split(header, ",")
	if len(parts) != 2 {
		return "", "", ErrMalformedHeader
	}
	t, ok := strings.CutPrefix(strings.TrimSpace(parts[0]), "t=")
	if !ok || t == "" {
		return "", "", ErrMalformedHeader
	}
	sig, ok := strings.CutPrefix(strings.TrimSpace(parts[1]), signatureScheme+"=")
	if !ok {
		return "", "", ErrMalformedHeader
	}
	if sig == "" {
		return "", "", ErrNoSignature
	}
	return t, sig, nil
}

var defaultVerifier = NewVerifier()

// VerifyHeader checks header with a tolerance; zero means DefaultTolerance.
func VerifyHeader(payload []byte, header, secret string, tolerance time.Duration) error {
	return verifierFor(tolerance).VerifyHeader(payload, header, secret)
}

// ConstructEvent verifies and decodes a delivery with a tolerance; zero means
// DefaultTolerance.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (Event, error) {
	return verifierFor(tolerance).ConstructEvent(payload, header, secret)
}

func verifierFor(tolerance time.Duration) *Verifier {
	if tolerance <= 0 || tolerance == DefaultTolerance {
		return defaultVerifier
	}
	return NewVerifier(WithTolerance(tolerance))
}
