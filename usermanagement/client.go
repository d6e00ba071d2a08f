// Package usermanagement talks to the identity platform's user-management
// API: key set discovery, refresh-token exchange and logout URLs.
package usermanagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/adeilh/go-rakh-session/auth"
	"github.com/adeilh/go-rakh-session/httpx"
	"github.com/adeilh/go-rakh-session/jwks"
	"github.com/adeilh/go-rakh-session/seal"
)

const (
	jwksPath         = "sso/jwks"
	authenticatePath = "/user_management/authenticate"
	logoutPath       = "user_management/sessions/logout"

	grantTypeRefreshToken = "refresh_token"
	requestIDHeader       = "X-Request-ID"
)

var (
	ErrMissingBaseURL   = errors.New("usermanagement: base url is required")
	ErrMissingClientID  = errors.New("usermanagement: client id is required")
	ErrMissingSessionID = errors.New("usermanagement: session id is required")
)

// Client implements auth.UserManagement over HTTP.
type Client struct {
	http      *httpx.Client
	baseURL   *url.URL
	apiKey    string
	clientID  string
	encryptor seal.Encryptor
	keySets   auth.KeySetResolver
	logger    *slog.Logger
}

var _ auth.UserManagement = (*Client)(nil)

func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("usermanagement: invalid base url %q", opts.BaseURL)
	}

	client := httpx.NewClient(
		httpx.WithBaseURL(base.String()),
		httpx.WithClientTimeout(opts.Timeout),
		httpx.WithUserAgent("go-rakh-session/usermanagement"),
	)
	fetcher, err := jwks.NewFetcher(client, jwks.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	var keySets auth.KeySetResolver = jwks.NewCache(opts.KeySets, fetcher)
	if opts.SharedStore != nil {
		keySets = jwks.NewStoreCache(opts.SharedStore, fetcher)
	}

	return &Client{
		http:      client,
		baseURL:   base,
		apiKey:    opts.APIKey,
		clientID:  opts.ClientID,
		encryptor: opts.Encryptor,
		keySets:   keySets,
		logger:    opts.Logger,
	}, nil
}

// KeySets returns the resolver shared by sessions loaded through c.
func (c *Client) KeySets() auth.KeySetResolver { return c.keySets }

// JWKSURL returns the key set location for clientID.
func (c *Client) JWKSURL(clientID string) (string, error) {
	if clientID == "" {
		return "", ErrMissingClientID
	}
	return c.baseURL.JoinPath(jwksPath, clientID).String(), nil
}

type authenticateRequest struct {
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret,omitempty"`
	GrantType      string `json:"grant_type"`
	RefreshToken   string `json:"refresh_token"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// AuthenticateWithRefreshToken exchanges a refresh token for a new token
// pair. With sealing instructions the result is also sealed into
// SealedSession.
func (c *Client) AuthenticateWithRefreshToken(ctx context.Context, req auth.RefreshTokenRequest) (*auth.RefreshedSession, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = c.clientID
	}
	if clientID == "" {
		return nil, ErrMissingClientID
	}

	requestID := uuid.NewString()
	var out auth.RefreshedSession
	_, err := c.http.Post(ctx, authenticatePath, authenticateRequest{
		ClientID:       clientID,
		ClientSecret:   c.apiKey,
		GrantType:      grantTypeRefreshToken,
		RefreshToken:   req.RefreshToken,
		OrganizationID: req.OrganizationID,
	}, &out, httpx.WithRequestHeaders(map[string]string{requestIDHeader: requestID}))
	if err != nil {
		c.logger.WarnContext(ctx, "refresh token exchange failed",
			slog.String("client_id", clientID),
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return nil, fmt.Errorf("usermanagement: authenticate: %w", err)
	}

	if req.Seal != nil {
		enc := req.Seal.Encryptor
		if enc == nil {
			enc = c.encryptor
		}
		sealed, err := seal.SealData(enc, auth.SessionPayload{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			User:         out.User,
			Impersonator: out.Impersonator,
		}, req.Seal.Password)
		if err != nil {
			return nil, fmt.Errorf("usermanagement: seal session: %w", err)
		}
		out.SealedSession = sealed
	}
	return &out, nil
}

// LogoutURL returns the URL that ends sessionID, redirecting to returnTo when
// set.
func (c *Client) LogoutURL(sessionID, returnTo string) (string, error) {
	if sessionID == "" {
		return "", ErrMissingSessionID
	}
	u := c.baseURL.JoinPath(logoutPath)
	q := url.Values{"session_id": {sessionID}}
	if returnTo != "" {
		q.Set("return_to", returnTo)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LoadSealedSession builds a session for a sealed cookie using the client's
// id and shared key set cache.
func (c *Client) LoadSealedSession(ctx context.Context, sessionData, cookiePassword string) (*auth.Session, error) {
	return auth.NewSession(ctx, auth.SessionConfig{
		UserManagement: c,
		KeySets:        c.keySets,
		ClientID:       c.clientID,
		CookiePassword: cookiePassword,
		SessionData:    sessionData,
		Encryptor:      c.encryptor,
		Logger:         c.logger,
	})
}

// SessionLoader adapts LoadSealedSession for auth.NewMiddleware.
func (c *Client) SessionLoader(cookiePassword string) auth.SessionLoader {
	return func(ctx context.Context, sealed string) (*auth.Session, error) {
		return c.LoadSealedSession(ctx, sealed, cookiePassword)
	}
}
