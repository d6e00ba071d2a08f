// Package jwks fetches, filters and caches the public keys used to verify
// access tokens issued by the identity platform.
package jwks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SignatureUse is the JWK "use" value retained after parsing.
const SignatureUse = "sig"

var (
	ErrInvalidDocument = errors.New("jwks: invalid key set document")
	ErrKeyNotFound     = errors.New("jwks: no key matches token")
	ErrAlgMismatch     = errors.New("jwks: token algorithm does not match key")
)

// KeySet is an immutable set of signature-use public keys.
type KeySet struct {
	set        jwk.Set
	algorithms []string
}

// Parse decodes a JWKS document and keeps only keys whose use is "sig". A
// document without signing keys yields an empty set that matches no token.
func Parse(doc []byte) (*KeySet, error) {
	parsed, err := jwk.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	filtered := jwk.NewSet()
	seen := make(map[string]struct{})
	for i := 0; i < parsed.Len(); i++ {
		key, ok := parsed.Key(i)
		if !ok || key.KeyUsage() != SignatureUse {
			continue
		}
		if err := filtered.AddKey(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if alg := keyAlgorithm(key); alg != "" {
			seen[alg] = struct{}{}
		}
	}

	algorithms := make([]string, 0, len(seen))
	for alg := range seen {
		algorithms = append(algorithms, alg)
	}
	sort.Strings(algorithms)

	return &KeySet{set: filtered, algorithms: algorithms}, nil
}

// Len reports how many signing keys the set holds.
func (k *KeySet) Len() int { return k.set.Len() }

// Algorithms returns the distinct signing algorithms in the set.
func (k *KeySet) Algorithms() []string {
	out := make([]string, len(k.algorithms))
	copy(out, k.algorithms)
	return out
}

// Keyfunc selects the verification key for token by its "kid" header. A
// token without kid is accepted only when the set holds exactly one key.
func (k *KeySet) Keyfunc(token *jwt.Token) (any, error) {
	var (
		key jwk.Key
		ok  bool
	)
	if kid, _ := token.Header["kid"].(string); kid != "" {
		key, ok = k.set.LookupKeyID(kid)
	} else if k.set.Len() == 1 {
		key, ok = k.set.Key(0)
	}
	if !ok {
		return nil, ErrKeyNotFound
	}

	if alg := keyAlgorithm(key); alg != "" && token.Method != nil && token.Method.Alg() != alg {
		return nil, ErrAlgMismatch
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("jwks: extract key %q: %w", key.KeyID(), err)
	}
	return raw, nil
}

// keyAlgorithm prefers the declared "alg" and otherwise falls back to the
// conventional algorithm for the key type.
func keyAlgorithm(key jwk.Key) string {
	if alg := key.Algorithm(); alg != nil && alg.String() != "" {
		return alg.String()
	}
	switch key.KeyType() {
	case jwa.RSA:
		return jwa.RS256.String()
	case jwa.EC:
		return jwa.ES256.String()
	case jwa.OKP:
		return jwa.EdDSA.String()
	default:
		return ""
	}
}
