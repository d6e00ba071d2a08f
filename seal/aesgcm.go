package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	aesKeySize   = 32
	gcmNonceSize = 12
)

// AESGCM is the default Encryptor: base64(nonce || ciphertext || tag) under
// AES-256-GCM with a fresh random nonce per call. The first 32 bytes of the
// password are used as the key.
type AESGCM struct{}

var _ Encryptor = AESGCM{}

func (AESGCM) Seal(plaintext []byte, password string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}
	aead, err := newGCM(password)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("seal: nonce: %w", err)
	}

	out := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (AESGCM) Unseal(sealed string, password string) ([]byte, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	aead, err := newGCM(password)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(stripWhitespace(sealed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < gcmNonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed value too short", ErrDecrypt)
	}

	plaintext, err := aead.Open(nil, raw[:gcmNonceSize], raw[gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func newGCM(password string) (cipher.AEAD, error) {
	block, err := aes.NewCipher([]byte(password)[:aesKeySize])
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Line-wrapped base64 from other SDKs is accepted.
func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
}
