package auth

import (
	"context"

	"github.com/adeilh/go-rakh-session/jwks"
	"github.com/adeilh/go-rakh-session/seal"
)

// Reason codes reported by unauthenticated results. Other reasons carry the
// message of an unexpected error.
const (
	ReasonNoSessionCookieProvided = "no_session_cookie_provided"
	ReasonInvalidSessionCookie    = "invalid_session_cookie"
	ReasonInvalidJWT              = "invalid_jwt"
)

// User is the identity stored in a sealed session.
type User struct {
	Object            string `json:"object,omitempty"`
	ID                string `json:"id"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	ExternalID        string `json:"external_id,omitempty"`
	LastSignInAt      string `json:"last_sign_in_at,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// Impersonator identifies an administrator acting as the session's user.
type Impersonator struct {
	Email  string `json:"email"`
	Reason string `json:"reason,omitempty"`
}

// SessionPayload is the plaintext sealed into a session cookie.
type SessionPayload struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *User         `json:"user,omitempty"`
	Impersonator *Impersonator `json:"impersonator,omitempty"`
}

// AuthenticationResult is the outcome of Session.Authenticate. When
// Authenticated is false, Reason says why; the claim fields are populated only
// for valid tokens, or for expired ones when expired tokens were requested.
type AuthenticationResult struct {
	Authenticated  bool           `json:"authenticated"`
	Reason         string         `json:"reason,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
	Permissions    []string       `json:"permissions,omitempty"`
	Entitlements   []string       `json:"entitlements,omitempty"`
	FeatureFlags   []string       `json:"feature_flags,omitempty"`
	User           *User          `json:"user,omitempty"`
	Impersonator   *Impersonator  `json:"impersonator,omitempty"`
	ExtraClaims    map[string]any `json:"extra_claims,omitempty"`
}

func unauthenticated(reason string) AuthenticationResult {
	return AuthenticationResult{Reason: reason}
}

// SealInstructions ask the user-management service to seal the refreshed
// session before returning it.
type SealInstructions struct {
	Password  string
	Encryptor seal.Encryptor
}

// RefreshTokenRequest is the input of UserManagement.AuthenticateWithRefreshToken.
type RefreshTokenRequest struct {
	ClientID       string
	RefreshToken   string
	OrganizationID string
	Seal           *SealInstructions
}

// RefreshedSession is what the user-management service returns for a
// successful refresh.
type RefreshedSession struct {
	User                 *User         `json:"user"`
	OrganizationID       string        `json:"organization_id,omitempty"`
	AccessToken          string        `json:"access_token"`
	RefreshToken         string        `json:"refresh_token"`
	Impersonator         *Impersonator `json:"impersonator,omitempty"`
	AuthenticationMethod string        `json:"authentication_method,omitempty"`
	SealedSession        string        `json:"sealed_session,omitempty"`
}

// UserManagement is the remote service that owns token issuance.
type UserManagement interface {
	JWKSURL(clientID string) (string, error)
	AuthenticateWithRefreshToken(ctx context.Context, req RefreshTokenRequest) (*RefreshedSession, error)
	LogoutURL(sessionID, returnTo string) (string, error)
}

// KeySetResolver returns the verification keys for a client, fetching them
// from url when not cached. jwks.Cache and jwks.StoreCache implement it.
type KeySetResolver interface {
	Resolve(ctx context.Context, clientID, url string) (*jwks.KeySet, error)
}
