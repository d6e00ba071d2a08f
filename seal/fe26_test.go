package seal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFe26WireFormat(t *testing.T) {
	sealed, err := NewFe26().Seal([]byte(`{"k":"v"}`), testPassword)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	parts := strings.Split(sealed, "*")
	if len(parts) != 8 {
		t.Fatalf("components = %d, want 8: %s", len(parts), sealed)
	}
	if parts[0] != Fe26Prefix {
		t.Fatalf("prefix = %q", parts[0])
	}
	if parts[1] != "" {
		t.Fatalf("password id = %q, want empty", parts[1])
	}
	// 16 random bytes, unpadded base64url
	for _, salt := range []string{parts[2], parts[6]} {
		if len(salt) != 22 || strings.ContainsAny(salt, "=+/") {
			t.Fatalf("salt %q is not unpadded base64url of 16 bytes", salt)
		}
	}
	if len(parts[3]) != 22 {
		t.Fatalf("iv %q is not 16 bytes", parts[3])
	}
}

func TestFe26ExpirationField(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	f := NewFe26(WithFe26Clock(func() time.Time { return now }), WithFe26TTL(30*time.Second))

	sealed, err := f.Seal([]byte("{}"), testPassword)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if got := strings.Split(sealed, "*")[5]; got != "1700000030000" {
		t.Fatalf("expiration = %s, want 1700000030000", got)
	}
}

func TestFe26DeterministicWithFixedEntropy(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	seal := func() string {
		f := NewFe26(
			WithFe26Clock(func() time.Time { return now }),
			WithFe26Rand(bytes.NewReader(bytes.Repeat([]byte{7}, 64))),
		)
		out, err := f.Seal([]byte(`{"k":"v"}`), testPassword)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		return out
	}
	if a, b := seal(), seal(); a != b {
		t.Fatalf("seals with identical inputs differ:\n%s\n%s", a, b)
	}
}

func TestFe26WrongComponentCount(t *testing.T) {
	inputs := []string{"", "Fe26.2", "Fe26.2*a*b*c*d*e*f", "Fe26.2*a*b*c*d*e*f*g*h", "no stars at all"}
	for _, in := range inputs {
		if _, err := NewFe26().Unseal(in, testPassword); !errors.Is(err, ErrWrongComponentCount) {
			t.Fatalf("Unseal(%q) error = %v, want ErrWrongComponentCount", in, err)
		}
	}
}

func TestFe26WrongPrefix(t *testing.T) {
	sealed, err := NewFe26().Seal([]byte("{}"), testPassword)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	altered := "Fe26.1" + strings.TrimPrefix(sealed, Fe26Prefix)

	_, err = NewFe26().Unseal(altered, testPassword)
	if !errors.Is(err, ErrWrongMacPrefix) {
		t.Fatalf("Unseal() error = %v, want ErrWrongMacPrefix", err)
	}
	if !errors.Is(err, ErrUnseal) {
		t.Fatalf("framing errors must match ErrUnseal, got %v", err)
	}
}

func TestFe26Expired(t *testing.T) {
	f := NewFe26(WithFe26TTL(-300 * time.Second))
	sealed, err := f.Seal([]byte(`{"user":"u1"}`), testPassword)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := NewFe26().Unseal(sealed, testPassword); !errors.Is(err, ErrExpired) {
		t.Fatalf("Unseal() error = %v, want ErrExpired", err)
	}

	out, err := NewFe26(WithSkipExpiration()).Unseal(sealed, testPassword)
	if err != nil {
		t.Fatalf("Unseal() with skip expiration error = %v", err)
	}
	if string(out) != `{"user":"u1"}` {
		t.Fatalf("Unseal() = %s", out)
	}
}

func TestFe26ClockSkewTolerance(t *testing.T) {
	now := time.Now()
	f := NewFe26(WithFe26Clock(func() time.Time { return now }))

	sealed, err := f.SealWith([]byte("{}"), "", testPassword, time.Second)
	if err != nil {
		t.Fatalf("SealWith() error = %v", err)
	}

	now = now.Add(30 * time.Second)
	if _, err := f.Unseal(sealed, testPassword); err != nil {
		t.Fatalf("Unseal() inside skew window error = %v", err)
	}

	now = now.Add(31 * time.Second)
	if _, err := f.Unseal(sealed, testPassword); !errors.Is(err, ErrExpired) {
		t.Fatalf("Unseal() past skew window error = %v, want ErrExpired", err)
	}
}

func TestFe26ZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	f := NewFe26(WithFe26Clock(func() time.Time { return now }))

	sealed, err := f.SealWith([]byte(`{"k":"v"}`), "", testPassword, 0)
	if err != nil {
		t.Fatalf("SealWith() error = %v", err)
	}
	if parts := strings.Split(sealed, "*"); len(parts) != 8 || parts[5] != "" {
		t.Fatalf("expiration field = %q, want empty: %s", parts[5], sealed)
	}

	now = now.Add(365 * 24 * time.Hour)
	out, err := f.Unseal(sealed, testPassword)
	if err != nil {
		t.Fatalf("Unseal() a year later error = %v", err)
	}
	if string(out) != `{"k":"v"}` {
		t.Fatalf("Unseal() = %s", out)
	}
}

func TestFe26BadHMAC(t *testing.T) {
	sealed, err := NewFe26().Seal([]byte(`{"k":"v"}`), testPassword)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	wrong := strings.Repeat("w", MinPasswordLength)
	if _, err := NewFe26().Unseal(sealed, wrong); !errors.Is(err, ErrBadHMAC) {
		t.Fatalf("Unseal() with wrong password error = %v, want ErrBadHMAC", err)
	}

	parts := strings.Split(sealed, "*")
	parts[4] = "A" + parts[4][1:]
	if parts[4] == strings.Split(sealed, "*")[4] {
		parts[4] = "B" + parts[4][1:]
	}
	if _, err := NewFe26().Unseal(strings.Join(parts, "*"), testPassword); !errors.Is(err, ErrBadHMAC) {
		t.Fatalf("Unseal() of tampered ciphertext error = %v, want ErrBadHMAC", err)
	}
}

func TestFe26VersionSuffix(t *testing.T) {
	sealed, err := NewFe26().Seal([]byte(`{"k":"v"}`), testPassword)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	plain, err := NewFe26().Unseal(sealed, testPassword)
	if err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	suffixed, err := NewFe26().Unseal(sealed+"~2", testPassword)
	if err != nil {
		t.Fatalf("Unseal() with ~2 suffix error = %v", err)
	}
	if !bytes.Equal(plain, suffixed) {
		t.Fatalf("suffixed unseal = %s, want %s", suffixed, plain)
	}
}

func TestFe26PasswordMap(t *testing.T) {
	current := strings.Repeat("c", MinPasswordLength)
	previous := strings.Repeat("p", MinPasswordLength)

	f := NewFe26()
	sealed, err := f.SealWith([]byte(`{"k":"v"}`), "2", current, time.Minute)
	if err != nil {
		t.Fatalf("SealWith() error = %v", err)
	}
	if id := strings.Split(sealed, "*")[1]; id != "2" {
		t.Fatalf("password id = %q, want 2", id)
	}

	out, err := f.UnsealWith(sealed, PasswordMap{"1": previous, "2": current}, false)
	if err != nil {
		t.Fatalf("UnsealWith() error = %v", err)
	}
	if string(out) != `{"k":"v"}` {
		t.Fatalf("UnsealWith() = %s", out)
	}

	if _, err := f.UnsealWith(sealed, PasswordMap{"1": previous}, false); !errors.Is(err, ErrPasswordNotFound) {
		t.Fatalf("UnsealWith() missing id error = %v, want ErrPasswordNotFound", err)
	}
}
