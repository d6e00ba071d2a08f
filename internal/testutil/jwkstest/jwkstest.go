// Package jwkstest serves a signing key set over HTTP and mints tokens signed
// by it, for tests that exercise token verification end to end.
package jwkstest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Signer is an RSA key pair published as a JWKS document.
type Signer struct {
	KeyID   string
	private *rsa.PrivateKey
}

// NewSigner generates a 2048-bit RSA signer.
func NewSigner(t testing.TB, kid string) *Signer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &Signer{KeyID: kid, private: priv}
}

// PublicJWK returns the public half as a JWK with the given use.
func (s *Signer) PublicJWK(t testing.TB, use string) jwk.Key {
	t.Helper()
	key, err := jwk.FromRaw(&s.private.PublicKey)
	if err != nil {
		t.Fatalf("jwk from raw: %v", err)
	}
	for k, v := range map[string]any{
		jwk.KeyIDKey:     s.KeyID,
		jwk.AlgorithmKey: jwa.RS256,
		jwk.KeyUsageKey:  use,
	} {
		if err := key.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	return key
}

// Sign mints an RS256 token carrying claims and the signer's kid.
func (s *Signer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.KeyID
	signed, err := token.SignedString(s.private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Document renders keys as a JWKS document.
func Document(t testing.TB, keys ...jwk.Key) []byte {
	t.Helper()
	set := jwk.NewSet()
	for _, k := range keys {
		if err := set.AddKey(k); err != nil {
			t.Fatalf("add key: %v", err)
		}
	}
	doc, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return doc
}

// Server serves a JWKS document and counts requests.
type Server struct {
	*httptest.Server
	hits atomic.Int32
}

// NewServer serves doc at every path. The server is closed on test cleanup.
func NewServer(t testing.TB, doc []byte) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(s.Close)
	return s
}

// Hits reports how many requests the server has answered.
func (s *Server) Hits() int { return int(s.hits.Load()) }
