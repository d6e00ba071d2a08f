package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Fe26Prefix is the literal first field of every Fe26.2 seal.
	Fe26Prefix = "Fe26.2"

	// DefaultFe26TTL applies when Fe26.TTL is zero.
	DefaultFe26TTL = 120 * time.Second

	fe26Components = 8
	fe26SaltSize   = 16
	fe26IVSize     = aes.BlockSize
	fe26KeySize    = 32
	// Fixed by the Fe26.2 format; other implementations derive with the same
	// parameters, so raising it breaks interoperability.
	fe26Iterations = 1
	fe26ClockSkew  = 60 * time.Second
)

var fe26Encoding = base64.RawURLEncoding

// Secret supplies the password used to unseal an Fe26.2 value. It is either a
// single Password or a PasswordMap keyed by the seal's password id.
type Secret interface {
	lookup(passwordID string) (string, error)
}

// Password is a single unseal password used regardless of password id.
type Password string

func (p Password) lookup(string) (string, error) { return string(p), nil }

// PasswordMap resolves rotating passwords by the id embedded in the seal.
type PasswordMap map[string]string

func (m PasswordMap) lookup(id string) (string, error) {
	pw, ok := m[id]
	if !ok {
		return "", ErrPasswordNotFound
	}
	return pw, nil
}

// Fe26 implements the Fe26.2 sealing format:
//
//	Fe26.2*<password id>*<encryption salt>*<iv>*<ciphertext>*<expiration ms>*<hmac salt>*<hmac>
//
// Keys are derived with PBKDF2-SHA1, encryption is AES-256-CBC and the
// integrity tag is HMAC-SHA256 over the first six fields.
type Fe26 struct {
	// TTL for Seal; zero means DefaultFe26TTL. Negative values produce seals
	// that are already expired.
	TTL time.Duration
	// SkipExpiration disables the expiry check in Unseal.
	SkipExpiration bool

	now    func() time.Time
	random io.Reader
}

var _ Encryptor = (*Fe26)(nil)

type Fe26Option func(*Fe26)

// WithFe26TTL sets the lifetime of seals produced by Seal.
func WithFe26TTL(d time.Duration) Fe26Option {
	return func(f *Fe26) { f.TTL = d }
}

// WithSkipExpiration makes Unseal ignore the expiration field.
func WithSkipExpiration() Fe26Option {
	return func(f *Fe26) { f.SkipExpiration = true }
}

// WithFe26Clock injects the time source.
func WithFe26Clock(fn func() time.Time) Fe26Option {
	return func(f *Fe26) {
		if fn != nil {
			f.now = fn
		}
	}
}

// WithFe26Rand replaces crypto/rand as the source of salts and IVs.
func WithFe26Rand(r io.Reader) Fe26Option {
	return func(f *Fe26) {
		if r != nil {
			f.random = r
		}
	}
}

// NewFe26 builds an Fe26 codec.
func NewFe26(opts ...Fe26Option) *Fe26 {
	f := &Fe26{}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Seal seals plaintext with a single password and an empty password id.
func (f *Fe26) Seal(plaintext []byte, password string) (string, error) {
	ttl := f.TTL
	if ttl == 0 {
		ttl = DefaultFe26TTL
	}
	return f.SealWith(plaintext, "", password, ttl)
}

// Unseal opens a seal produced with a single password.
func (f *Fe26) Unseal(sealed string, password string) ([]byte, error) {
	return f.UnsealWith(sealed, Password(password), f.SkipExpiration)
}

// SealWith seals plaintext under password, recording passwordID so that a
// PasswordMap can pick the right password on unseal. A zero ttl leaves the
// expiration field empty and the seal never expires.
func (f *Fe26) SealWith(plaintext []byte, passwordID, password string, ttl time.Duration) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}

	var expiration string
	if ttl != 0 {
		expiration = strconv.FormatInt(f.clock().UnixMilli()+ttl.Milliseconds(), 10)
	}

	encSalt, err := f.salt()
	if err != nil {
		return "", err
	}
	iv := make([]byte, fe26IVSize)
	if _, err := io.ReadFull(f.entropy(), iv); err != nil {
		return "", fmt.Errorf("seal: iv: %w", err)
	}

	ciphertext, err := encryptCBC(deriveKey(password, encSalt), iv, plaintext)
	if err != nil {
		return "", err
	}

	macBase := strings.Join([]string{
		Fe26Prefix,
		passwordID,
		encSalt,
		fe26Encoding.EncodeToString(iv),
		fe26Encoding.EncodeToString(ciphertext),
		expiration,
	}, "*")

	hmacSalt, err := f.salt()
	if err != nil {
		return "", err
	}
	mac := computeMAC(password, hmacSalt, macBase)

	return macBase + "*" + hmacSalt + "*" + mac, nil
}

// UnsealWith opens a seal, resolving its password through secret. A trailing
// "~<version>" marker is ignored.
func (f *Fe26) UnsealWith(sealed string, secret Secret, skipExpiration bool) ([]byte, error) {
	if secret == nil {
		return nil, ErrPasswordNotFound
	}
	if pw, ok := secret.(Password); ok {
		if err := checkPassword(string(pw)); err != nil {
			return nil, err
		}
	}

	if i := strings.LastIndexByte(sealed, '~'); i >= 0 {
		sealed = sealed[:i]
	}

	parts := strings.Split(sealed, "*")
	if len(parts) != fe26Components {
		return nil, ErrWrongComponentCount
	}
	prefix, passwordID, encSalt, ivB64, encryptedB64, expiration, hmacSalt, mac :=
		parts[0], parts[1], parts[2], parts[3], parts[4], parts[5], parts[6], parts[7]

	if prefix != Fe26Prefix {
		return nil, ErrWrongMacPrefix
	}

	if !skipExpiration && expiration != "" {
		expMs, err := strconv.ParseInt(expiration, 10, 64)
		if err != nil {
			return nil, ErrInvalidExpiration
		}
		if expMs <= f.clock().Add(-fe26ClockSkew).UnixMilli() {
			return nil, ErrExpired
		}
	}

	password, err := secret.lookup(passwordID)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	macBase := strings.Join(parts[:6], "*")
	expected := computeMAC(password, hmacSalt, macBase)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(mac)) != 1 {
		return nil, ErrBadHMAC
	}

	iv, err := fe26Encoding.DecodeString(ivB64)
	if err != nil {
		return nil, ErrMalformed
	}
	ciphertext, err := fe26Encoding.DecodeString(encryptedB64)
	if err != nil {
		return nil, ErrMalformed
	}
	return decryptCBC(deriveKey(password, encSalt), iv, ciphertext)
}

func (f *Fe26) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

func (f *Fe26) entropy() io.Reader {
	if f.random != nil {
		return f.random
	}
	return rand.Reader
}

// salt returns a fresh salt in its wire form. The wire string itself, not the
// raw bytes, is the PBKDF2 salt.
func (f *Fe26) salt() (string, error) {
	buf := make([]byte, fe26SaltSize)
	if _, err := io.ReadFull(f.entropy(), buf); err != nil {
		return "", fmt.Errorf("seal: salt: %w", err)
	}
	return fe26Encoding.EncodeToString(buf), nil
}

func deriveKey(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), fe26Iterations, fe26KeySize, sha1.New)
}

func computeMAC(password, salt, base string) string {
	h := hmac.New(sha256.New, deriveKey(password, salt))
	_, _ = h.Write([]byte(base))
	return fe26Encoding.EncodeToString(h.Sum(nil))
}

func encryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext), len(plaintext)+pad)
	copy(padded, plaintext)
	padded = append(padded, bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: invalid iv length", ErrDecrypt)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecrypt)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return out[:len(out)-pad], nil
}
