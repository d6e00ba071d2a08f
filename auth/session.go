package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adeilh/go-rakh-session/jwks"
	"github.com/adeilh/go-rakh-session/seal"
)

var (
	ErrMissingCookiePassword = errors.New("auth: cookie password is required")
	ErrMissingClientID       = errors.New("auth: client id is required")
	ErrMissingUserManagement = errors.New("auth: user management client is required")
	ErrMissingKeySets        = errors.New("auth: key set resolver is required")
	ErrNotAuthenticated      = errors.New("auth: session is not authenticated")
	ErrMissingSealedSession  = errors.New("auth: refresh response has no sealed session")
)

// SessionConfig wires the dependencies of a Session.
type SessionConfig struct {
	UserManagement UserManagement
	KeySets        KeySetResolver
	ClientID       string
	CookiePassword string
	// SessionData is the sealed cookie; empty means no cookie was sent.
	SessionData string
	// Encryptor defaults to seal.AESGCM.
	Encryptor seal.Encryptor
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session is the state of one sealed session cookie together with the key set
// that verifies its access token. A Session is not safe for concurrent use;
// Refresh leaves the receiver untouched and returns the next state instead.
type Session struct {
	userManagement UserManagement
	keySets        KeySetResolver
	clientID       string
	cookiePassword string
	sessionData    string
	encryptor      seal.Encryptor
	keySet         *jwks.KeySet
	algorithms     []string
	logger         *slog.Logger
	now            func() time.Time
}

// NewSession validates cfg and resolves the client's key set. The resolver
// decides how often the key set is actually fetched.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.CookiePassword == "" {
		return nil, ErrMissingCookiePassword
	}
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if cfg.UserManagement == nil {
		return nil, ErrMissingUserManagement
	}
	if cfg.KeySets == nil {
		return nil, ErrMissingKeySets
	}

	url, err := cfg.UserManagement.JWKSURL(cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("auth: jwks url: %w", err)
	}
	keySet, err := cfg.KeySets.Resolve(ctx, cfg.ClientID, url)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve key set: %w", err)
	}

	s := &Session{
		userManagement: cfg.UserManagement,
		keySets:        cfg.KeySets,
		clientID:       cfg.ClientID,
		cookiePassword: cfg.CookiePassword,
		sessionData:    cfg.SessionData,
		encryptor:      cfg.Encryptor,
		keySet:         keySet,
		algorithms:     keySet.Algorithms(),
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
	if s.encryptor == nil {
		s.encryptor = seal.AESGCM{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ClientID returns the client the session belongs to.
func (s *Session) ClientID() string { return s.clientID }

// SessionData returns the sealed cookie value.
func (s *Session) SessionData() string { return s.sessionData }

// CookiePassword returns the password the cookie is sealed with.
func (s *Session) CookiePassword() string { return s.cookiePassword }

// Algorithms returns the signing algorithms accepted for access tokens.
func (s *Session) Algorithms() []string {
	out := make([]string, len(s.algorithms))
	copy(out, s.algorithms)
	return out
}

// ClaimsExtractor derives additional values from verified access token claims.
type ClaimsExtractor func(claims map[string]any) (map[string]any, error)

type AuthenticateOption func(*authenticateConfig)

type authenticateConfig struct {
	includeExpired bool
	extractor      ClaimsExtractor
}

// WithIncludeExpired returns the claims of an expired but correctly signed
// token, flagged unauthenticated with ReasonInvalidJWT.
func WithIncludeExpired() AuthenticateOption {
	return func(cfg *authenticateConfig) { cfg.includeExpired = true }
}

// WithClaimsExtractor merges fn's output into AuthenticationResult.ExtraClaims.
func WithClaimsExtractor(fn ClaimsExtractor) AuthenticateOption {
	return func(cfg *authenticateConfig) { cfg.extractor = fn }
}

// Authenticate unseals the cookie and verifies its access token. Failures are
// reported through the result, never as errors.
func (s *Session) Authenticate(opts ...AuthenticateOption) AuthenticationResult {
	var cfg authenticateConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if s.sessionData == "" {
		return unauthenticated(ReasonNoSessionCookieProvided)
	}

	payload, err := s.unseal(s.cookiePassword)
	if err != nil {
		s.logger.Debug("session cookie rejected", slog.String("reason", ReasonInvalidSessionCookie), slog.Any("error", err))
		return unauthenticated(ReasonInvalidSessionCookie)
	}
	if payload.AccessToken == "" {
		s.logger.Debug("session cookie has no access token", slog.String("reason", ReasonInvalidSessionCookie))
		return unauthenticated(ReasonInvalidSessionCookie)
	}

	claims, err := s.verify(payload.AccessToken)
	if err != nil {
		s.logger.Debug("access token rejected", slog.String("reason", ReasonInvalidJWT), slog.Any("error", err))
		return unauthenticated(ReasonInvalidJWT)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return unauthenticated(err.Error())
	}
	expired := exp != nil && exp.Unix() < s.now().Unix()
	if expired && !cfg.includeExpired {
		return unauthenticated(ReasonInvalidJWT)
	}

	result := AuthenticationResult{
		Authenticated:  !expired,
		SessionID:      stringClaim(claims, "sid"),
		OrganizationID: stringClaim(claims, "org_id"),
		Role:           stringClaim(claims, "role"),
		Roles:          stringsClaim(claims, "roles"),
		Permissions:    stringsClaim(claims, "permissions"),
		Entitlements:   stringsClaim(claims, "entitlements"),
		FeatureFlags:   stringsClaim(claims, "feature_flags"),
		User:           payload.User,
		Impersonator:   payload.Impersonator,
	}
	if expired {
		result.Reason = ReasonInvalidJWT
	}
	if cfg.extractor != nil {
		extra, err := cfg.extractor(claims)
		if err != nil {
			return unauthenticated(err.Error())
		}
		result.ExtraClaims = extra
	}
	return result
}

type RefreshOption func(*refreshConfig)

type refreshConfig struct {
	cookiePassword string
	organizationID string
}

// WithRefreshCookiePassword unseals and reseals with password instead of the
// session's own, e.g. during password rotation.
func WithRefreshCookiePassword(password string) RefreshOption {
	return func(cfg *refreshConfig) {
		if password != "" {
			cfg.cookiePassword = password
		}
	}
}

// WithOrganizationID switches the refreshed session to organizationID.
func WithOrganizationID(organizationID string) RefreshOption {
	return func(cfg *refreshConfig) { cfg.organizationID = organizationID }
}

// RefreshResult is the outcome of Session.Refresh.
type RefreshResult struct {
	Authenticated bool
	SealedSession string
	// Session is the user-management response.
	Session *RefreshedSession
	Reason  string
	// Next is the session state after the refresh; nil when it failed.
	Next *Session
}

// Refresh exchanges the cookie's refresh token for new tokens and seals them
// into a new cookie. The receiver is not modified.
func (s *Session) Refresh(ctx context.Context, opts ...RefreshOption) RefreshResult {
	cfg := refreshConfig{cookiePassword: s.cookiePassword}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	payload, err := s.unseal(cfg.cookiePassword)
	if err != nil {
		s.logger.Debug("session cookie rejected on refresh", slog.Any("error", err))
		return RefreshResult{Reason: ReasonInvalidSessionCookie}
	}
	if payload.RefreshToken == "" || payload.User == nil {
		return RefreshResult{Reason: ReasonInvalidSessionCookie}
	}

	resp, err := s.userManagement.AuthenticateWithRefreshToken(ctx, RefreshTokenRequest{
		ClientID:       s.clientID,
		RefreshToken:   payload.RefreshToken,
		OrganizationID: cfg.organizationID,
		Seal:           &SealInstructions{Password: cfg.cookiePassword, Encryptor: s.encryptor},
	})
	if err == nil && (resp == nil || resp.SealedSession == "") {
		err = ErrMissingSealedSession
	}
	if err != nil {
		s.logger.Debug("refresh failed", slog.String("client_id", s.clientID), slog.Any("error", err))
		return RefreshResult{Reason: err.Error()}
	}

	next := *s
	next.sessionData = resp.SealedSession
	next.cookiePassword = cfg.cookiePassword

	return RefreshResult{
		Authenticated: true,
		SealedSession: resp.SealedSession,
		Session:       resp,
		Next:          &next,
	}
}

// LogoutURL returns the URL that ends the session at the identity platform,
// redirecting to returnTo when set.
func (s *Session) LogoutURL(returnTo string) (string, error) {
	result := s.Authenticate()
	if !result.Authenticated {
		return "", fmt.Errorf("%w: %s", ErrNotAuthenticated, result.Reason)
	}
	return s.userManagement.LogoutURL(result.SessionID, returnTo)
}

func (s *Session) unseal(password string) (SessionPayload, error) {
	var payload SessionPayload
	if err := seal.UnsealData(s.encryptor, s.sessionData, password, &payload); err != nil {
		return SessionPayload{}, err
	}
	return payload, nil
}

// verify checks the signature only; expiry is evaluated by the caller.
func (s *Session) verify(raw string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(s.algorithms),
		jwt.WithoutClaimsValidation(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, s.keySet.Keyfunc); err != nil {
		return nil, err
	}
	return claims, nil
}
