// Package seal turns structured session payloads into opaque, authenticated
// strings and back. Two wire formats are provided: AESGCM, the default, and
// Fe26, which interoperates with the Fe26.2 sealing scheme used by browser
// session libraries.
package seal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MinPasswordLength is the minimum password size accepted by every Encryptor.
const MinPasswordLength = 32

var (
	ErrPasswordTooShort = fmt.Errorf("seal: password must be at least %d characters", MinPasswordLength)
	ErrNilEncryptor     = errors.New("seal: encryptor is required")
	ErrDecrypt          = errors.New("seal: decryption failed")

	// ErrUnseal is the parent of every Fe26 framing error; match the concrete
	// cause with errors.Is against the values below.
	ErrUnseal              = errors.New("seal: cannot unseal")
	ErrWrongComponentCount = fmt.Errorf("%w: incorrect number of sealed components", ErrUnseal)
	ErrWrongMacPrefix      = fmt.Errorf("%w: wrong mac prefix", ErrUnseal)
	ErrExpired             = fmt.Errorf("%w: expired seal", ErrUnseal)
	ErrInvalidExpiration   = fmt.Errorf("%w: invalid expiration", ErrUnseal)
	ErrPasswordNotFound    = fmt.Errorf("%w: cannot find password", ErrUnseal)
	ErrBadHMAC             = fmt.Errorf("%w: bad hmac value", ErrUnseal)
	ErrMalformed           = fmt.Errorf("%w: invalid encoding", ErrUnseal)
)

// Encryptor seals and unseals raw payloads under a caller-supplied password.
// Implementations must reject passwords shorter than MinPasswordLength before
// doing any cryptographic work.
type Encryptor interface {
	Seal(plaintext []byte, password string) (string, error)
	Unseal(sealed string, password string) ([]byte, error)
}

// SealData JSON encodes data and seals it with enc. Byte slices and
// json.RawMessage are taken as already-encoded JSON and sealed verbatim; a
// string is encoded as a JSON string like any other value.
func SealData(enc Encryptor, data any, password string) (string, error) {
	if enc == nil {
		return "", ErrNilEncryptor
	}
	plaintext, err := payloadBytes(data)
	if err != nil {
		return "", err
	}
	return enc.Seal(plaintext, password)
}

// UnsealData reverses SealData and decodes the JSON payload into v.
func UnsealData(enc Encryptor, sealed, password string, v any) error {
	if enc == nil {
		return ErrNilEncryptor
	}
	plaintext, err := enc.Unseal(sealed, password)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("seal: decode payload: %w", err)
	}
	return nil
}

func payloadBytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		out, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("seal: encode payload: %w", err)
		}
		return out, nil
	}
}

func checkPassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
