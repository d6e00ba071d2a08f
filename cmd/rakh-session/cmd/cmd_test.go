package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adeilh/go-rakh-session/auth"
	"github.com/adeilh/go-rakh-session/httpx"
	"github.com/adeilh/go-rakh-session/internal/testutil/jwkstest"
	"github.com/adeilh/go-rakh-session/seal"
	"github.com/adeilh/go-rakh-session/webhooks"
)

const (
	testPassword = "an-extremely-secret-cookie-password-000"
	testSecret   = "whsec_cli_secret"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rakh-session.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"seal": false, "unseal": false, "verify-webhook": false, "authenticate": false}
	for _, c := range NewRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered", name)
		}
	}
}

func TestSealUnsealRoundTrip(t *testing.T) {
	t.Setenv("RAKH_COOKIE_PASSWORD", testPassword)
	cfg := writeConfig(t, "log_level: error\n")
	payload := `{"access_token":"at","refresh_token":"rt"}`

	for _, format := range []string{"aes-gcm", "fe26"} {
		t.Run(format, func(t *testing.T) {
			sealed, err := run(t, payload, "seal", "--config", cfg, "--format", format)
			if err != nil {
				t.Fatalf("seal error = %v", err)
			}
			if format == "fe26" && !strings.HasPrefix(sealed, seal.Fe26Prefix+"*") {
				t.Fatalf("fe26 seal = %q", sealed)
			}

			opened, err := run(t, sealed, "unseal", "--config", cfg)
			if err != nil {
				t.Fatalf("unseal error = %v", err)
			}
			if strings.TrimSpace(opened) != payload {
				t.Fatalf("unseal = %q, want %q", opened, payload)
			}
		})
	}
}

func TestUnsealExpiredFe26(t *testing.T) {
	t.Setenv("RAKH_COOKIE_PASSWORD", testPassword)
	cfg := writeConfig(t, "seal:\n  format: fe26\n")

	sealed, err := run(t, "payload", "seal", "--config", cfg, "--ttl=-5m")
	if err != nil {
		t.Fatalf("seal error = %v", err)
	}
	sealed = strings.TrimSpace(sealed)

	if _, err := run(t, "", "unseal", "--config", cfg, sealed); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unseal error = %v, want expired", err)
	}
	opened, err := run(t, "", "unseal", "--config", cfg, "--skip-expiration", sealed)
	if err != nil {
		t.Fatalf("unseal --skip-expiration error = %v", err)
	}
	if strings.TrimSpace(opened) != "payload" {
		t.Fatalf("unseal = %q", opened)
	}
}

func TestSealRequiresPassword(t *testing.T) {
	t.Setenv("RAKH_COOKIE_PASSWORD", "")
	cfg := writeConfig(t, "log_level: error\n")
	if _, err := run(t, "x", "seal", "--config", cfg); err == nil || !strings.Contains(err.Error(), "RAKH_COOKIE_PASSWORD") {
		t.Fatalf("seal error = %v, want missing password", err)
	}
	if _, err := run(t, "x", "seal", "--config", cfg, "--format", "rot13"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestVerifyWebhook(t *testing.T) {
	t.Setenv("RAKH_WEBHOOK_SECRET", testSecret)
	cfg := writeConfig(t, "log_level: error\n")
	payload := `{"id":"wh_1","event":"user.updated","data":{"id":"user_1"},"created_at":"2024-05-01T00:00:00Z"}`
	header := webhooks.SignHeader([]byte(payload), testSecret, time.Now())

	out, err := run(t, payload, "verify-webhook", "--config", cfg, "--header", header)
	if err != nil {
		t.Fatalf("verify-webhook error = %v", err)
	}
	var event webhooks.Event
	if err := json.Unmarshal([]byte(out), &event); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if event.ID != "wh_1" || event.Event != "user.updated" {
		t.Fatalf("event = %+v", event)
	}

	file := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(file, []byte(payload), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := run(t, "", "verify-webhook", "--config", cfg, "--header", header, file); err != nil {
		t.Fatalf("verify-webhook from file error = %v", err)
	}

	stale := webhooks.SignHeader([]byte(payload), testSecret, time.Now().Add(-10*time.Minute))
	if _, err := run(t, payload, "verify-webhook", "--config", cfg, "--header", stale); err == nil {
		t.Fatalf("expected stale signature to fail")
	}
	if _, err := run(t, payload, "verify-webhook", "--config", cfg, "--header", stale, "--tolerance", "1h"); err != nil {
		t.Fatalf("verify-webhook with tolerance error = %v", err)
	}
	if _, err := run(t, payload, "verify-webhook", "--config", cfg); err == nil {
		t.Fatalf("expected error without --header")
	}
}

func TestAuthenticate(t *testing.T) {
	signer := jwkstest.NewSigner(t, "kid-1")
	doc := jwkstest.Document(t, signer.PublicJWK(t, "sig"))
	server := httpx.NewServer()
	server.RegisterRoutes(func(e *httpx.Echo) {
		e.GET("/sso/jwks/:client_id", func(c httpx.Context) error {
			return c.Blob(httpx.StatusOK, "application/json", doc)
		})
	})
	ts := httpx.NewTestServer(server.Handler())
	defer ts.Close()

	t.Setenv("RAKH_COOKIE_PASSWORD", testPassword)
	cfg := writeConfig(t, "log_level: error\napi:\n  base_url: "+ts.BaseURL()+"\n  client_id: client_1\n")

	sealed, err := seal.SealData(seal.AESGCM{}, auth.SessionPayload{
		AccessToken:  signer.Sign(t, jwt.MapClaims{"sid": "session_cli", "exp": time.Now().Add(time.Hour).Unix()}),
		RefreshToken: "rt",
		User:         &auth.User{ID: "user_1"},
	}, testPassword)
	if err != nil {
		t.Fatalf("SealData() error = %v", err)
	}

	out, err := run(t, sealed, "authenticate", "--config", cfg)
	if err != nil {
		t.Fatalf("authenticate error = %v", err)
	}
	var decoded struct {
		Result auth.AuthenticationResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !decoded.Result.Authenticated || decoded.Result.SessionID != "session_cli" {
		t.Fatalf("result = %+v", decoded.Result)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
