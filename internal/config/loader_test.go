package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedbackhq.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	secret := "s3cret"
	cfg, err := Load(LoaderOptions{FlagOverrides: FlagOverrides{SecretKey: &secret}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.Auth.OTPValidityMinutes != 5 || cfg.Auth.OTPResendLimit != 3 || cfg.Auth.OTPAttemptLimit != 5 || cfg.Auth.OTPLockMinutes != 30 {
		t.Errorf("otp defaults: %+v", cfg.Auth)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("cache driver: got %q", cfg.Cache.Driver)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
public_origin = "https://feedback.example.com"
listen_addr = ":9090"
media_dir = "/var/lib/feedbackhq/media"

[auth]
secret_key = "file-secret"
otp_validity_minutes = 10

[smtp]
host = "smtp.example.com"
port = 465
from = "hello@example.com"

[store]
data_dir = "/var/lib/feedbackhq"

[cache]
driver = "valkey"

[cache.drivers.valkey]
addr = "localhost:6379"

[ratelimit]
requests_per_window = 10
window_seconds = 30

[logging]
level = "debug"
`)

	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PublicOrigin != "https://feedback.example.com" {
		t.Errorf("public origin: got %q", cfg.PublicOrigin)
	}
	if cfg.Auth.SecretKey != "file-secret" {
		t.Error("secret not loaded")
	}
	if cfg.Auth.OTPValidityMinutes != 10 {
		t.Errorf("otp validity: got %d", cfg.Auth.OTPValidityMinutes)
	}
	// Untouched sections keep their defaults
	if cfg.Auth.OTPResendLimit != 3 {
		t.Errorf("resend limit default lost: got %d", cfg.Auth.OTPResendLimit)
	}
	if cfg.Cache.Driver != "valkey" {
		t.Errorf("cache driver: got %q", cfg.Cache.Driver)
	}
	opts := cfg.Cache.DriverOptions()
	if opts == nil || opts["addr"] != "localhost:6379" {
		t.Errorf("valkey options: %v", opts)
	}
	if cfg.RateLimit.RequestsPerWindow != 10 || cfg.RateLimit.WindowSeconds != 30 {
		t.Errorf("ratelimit: %+v", cfg.RateLimit)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":9090"

[auth]
secret_key = "file-secret"
`)

	addr := ":7070"
	secret := "flag-secret"
	cfg, err := Load(LoaderOptions{
		ConfigPath: path,
		FlagOverrides: FlagOverrides{
			ListenAddr: &addr,
			SecretKey:  &secret,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("flag did not override file: %q", cfg.ListenAddr)
	}
	if cfg.Auth.SecretKey != "flag-secret" {
		t.Error("secret flag did not override file")
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"missing secret", ``, "auth.secret_key"},
		{"bad cache driver", "[auth]\nsecret_key = \"s\"\n[cache]\ndriver = \"redis\"", "cache.driver"},
		{"bad log level", "[auth]\nsecret_key = \"s\"\n[logging]\nlevel = \"verbose\"", "logging.level"},
		{"origin with path", "public_origin = \"https://x.com/app\"\n[auth]\nsecret_key = \"s\"", "public_origin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoaderOptions{ConfigPath: writeConfig(t, tt.toml)})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(LoaderOptions{ConfigPath: "/nonexistent/feedbackhq.toml"}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.SecretKey = "super-secret"
	cfg.SMTP.Password = "mail-pass"

	out := cfg.Redacted()
	if strings.Contains(out, "super-secret") || strings.Contains(out, "mail-pass") {
		t.Error("Redacted leaks secrets")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("Redacted missing redaction markers")
	}
}
