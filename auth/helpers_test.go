package auth

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/adeilh/go-rakh-session/cache"
	"github.com/adeilh/go-rakh-session/internal/testutil/jwkstest"
	"github.com/adeilh/go-rakh-session/jwks"
	"github.com/adeilh/go-rakh-session/seal"
)

const (
	testClientID  = "client_01HXYZ"
	testPassword  = "an-extremely-secret-cookie-password-000"
	otherPassword = "another-extremely-secret-cookie-password"
)

// docClient serves a fixed JWKS document without a network round trip.
type docClient struct {
	doc  []byte
	hits atomic.Int32
}

func (c *docClient) GetBytes(context.Context, string) ([]byte, error) {
	c.hits.Add(1)
	return c.doc, nil
}

type stubUserManagement struct {
	refreshErr  error
	refreshed   *RefreshedSession
	lastRequest RefreshTokenRequest
	urlErr      error
}

func (s *stubUserManagement) JWKSURL(clientID string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://api.example.com/sso/jwks/" + clientID, nil
}

func (s *stubUserManagement) AuthenticateWithRefreshToken(_ context.Context, req RefreshTokenRequest) (*RefreshedSession, error) {
	s.lastRequest = req
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	if s.refreshed == nil {
		return nil, errors.New("no refreshed session configured")
	}
	out := *s.refreshed
	if req.Seal != nil {
		sealed, err := seal.SealData(req.Seal.Encryptor, SessionPayload{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			User:         out.User,
			Impersonator: out.Impersonator,
		}, req.Seal.Password)
		if err != nil {
			return nil, err
		}
		out.SealedSession = sealed
	}
	return &out, nil
}

func (s *stubUserManagement) LogoutURL(sessionID, returnTo string) (string, error) {
	q := url.Values{"session_id": {sessionID}}
	if returnTo != "" {
		q.Set("return_to", returnTo)
	}
	return "https://api.example.com/user_management/sessions/logout?" + q.Encode(), nil
}

type fixture struct {
	signer  *jwkstest.Signer
	client  *docClient
	keySets *jwks.Cache
	um      *stubUserManagement
	user    *User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer := jwkstest.NewSigner(t, "sso_oidc_key_pair_1")
	client := &docClient{doc: jwkstest.Document(t, signer.PublicJWK(t, "sig"))}
	fetcher, err := jwks.NewFetcher(client)
	if err != nil {
		t.Fatalf("NewFetcher() error = %v", err)
	}
	return &fixture{
		signer:  signer,
		client:  client,
		keySets: jwks.NewCache(cache.New(), fetcher),
		um:      &stubUserManagement{},
		user:    &User{Object: "user", ID: "user_01H", Email: "ada@example.com", EmailVerified: true},
	}
}

func (f *fixture) accessToken(t *testing.T, sid string, exp time.Time, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sid":         sid,
		"org_id":      "org_01H",
		"role":        "admin",
		"roles":       []string{"admin", "member"},
		"permissions": []string{"posts:read", "posts:write"},
		"exp":         exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return f.signer.Sign(t, claims)
}

func (f *fixture) sealPayload(t *testing.T, payload SessionPayload, password string) string {
	t.Helper()
	sealed, err := seal.SealData(seal.AESGCM{}, payload, password)
	if err != nil {
		t.Fatalf("SealData() error = %v", err)
	}
	return sealed
}

func (f *fixture) session(t *testing.T, sessionData string) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), SessionConfig{
		UserManagement: f.um,
		KeySets:        f.keySets,
		ClientID:       testClientID,
		CookiePassword: testPassword,
		SessionData:    sessionData,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func newSessionID() string { return "session_" + uuid.NewString() }
