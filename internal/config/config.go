// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// PublicOrigin is the public origin (scheme + host + port) used in
	// emailed links. Example: "https://app.feedback.com"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on. Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// MediaDir is the root directory for uploaded attachments.
	MediaDir string `toml:"media_dir"`

	// Auth holds token and OTP settings.
	Auth AuthConfig `toml:"auth"`

	// SMTP holds outbound mail settings.
	SMTP SMTPConfig `toml:"smtp"`

	// Store holds persistence settings.
	Store StoreConfig `toml:"store"`

	// Cache holds cache settings.
	Cache CacheConfig `toml:"cache"`

	// RateLimit holds OTP endpoint throttling settings.
	RateLimit RateLimitConfig `toml:"ratelimit"`

	// Logging holds logging settings.
	Logging LoggingConfig `toml:"logging"`
}

// AuthConfig holds token and OTP lifecycle settings.
type AuthConfig struct {
	// SecretKey signs session and feedback-view tokens. Required.
	SecretKey string `toml:"secret_key"`

	// TokenTTLMinutes is the session token lifetime. Default: 1440 (24h).
	TokenTTLMinutes int `toml:"token_ttl_minutes"`

	// OTPValidityMinutes is the code validity window. Default: 5.
	OTPValidityMinutes int `toml:"otp_validity_minutes"`

	// OTPResendLimit is the max sends per live code record. Default: 3.
	OTPResendLimit int `toml:"otp_resend_limit"`

	// OTPAttemptLimit is wrong codes before lockout. Default: 5.
	OTPAttemptLimit int `toml:"otp_attempt_limit"`

	// OTPLockMinutes is the lockout duration. Default: 30.
	OTPLockMinutes int `toml:"otp_lock_minutes"`
}

// TokenTTL returns the session token lifetime as a duration.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`

	// From is the sender address on all outbound mail.
	From string `toml:"from"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the store driver name: "sqlite" (default).
	Driver string `toml:"driver"`

	// DataDir is where the database lives. Default: ".feedbackhq"
	DataDir string `toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "valkey".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.valkey] addr = "localhost:6379"
	Drivers map[string]map[string]any `toml:"drivers"`
}

// DriverOptions returns the raw option map for the configured driver.
func (c CacheConfig) DriverOptions() map[string]any {
	if c.Drivers == nil {
		return nil
	}
	return c.Drivers[c.Driver]
}

// RateLimitConfig throttles the OTP request/verify endpoints.
type RateLimitConfig struct {
	// RequestsPerWindow is the per-client quota. Default: 30.
	RequestsPerWindow int64 `toml:"requests_per_window"`

	// WindowSeconds is the fixed window length. Default: 60.
	WindowSeconds int `toml:"window_seconds"`
}

// Window returns the rate limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level"`
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		PublicOrigin: "http://localhost:8080",
		ListenAddr:   ":8080",
		MediaDir:     "media",
		Auth: AuthConfig{
			TokenTTLMinutes:    1440,
			OTPValidityMinutes: 5,
			OTPResendLimit:     3,
			OTPAttemptLimit:    5,
			OTPLockMinutes:     30,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "no-reply@feedback.com",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".feedbackhq",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			WindowSeconds:     60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Redacted returns a string representation of the config with secrets
// redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  PublicOrigin: %q,\n", c.PublicOrigin))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString(fmt.Sprintf("  MediaDir: %q,\n", c.MediaDir))
	sb.WriteString("  Auth: {\n")
	sb.WriteString("    SecretKey: [REDACTED],\n")
	sb.WriteString(fmt.Sprintf("    TokenTTLMinutes: %d,\n", c.Auth.TokenTTLMinutes))
	sb.WriteString(fmt.Sprintf("    OTPValidityMinutes: %d,\n", c.Auth.OTPValidityMinutes))
	sb.WriteString(fmt.Sprintf("    OTPResendLimit: %d,\n", c.Auth.OTPResendLimit))
	sb.WriteString(fmt.Sprintf("    OTPAttemptLimit: %d,\n", c.Auth.OTPAttemptLimit))
	sb.WriteString(fmt.Sprintf("    OTPLockMinutes: %d,\n", c.Auth.OTPLockMinutes))
	sb.WriteString("  },\n")
	sb.WriteString("  SMTP: {\n")
	sb.WriteString(fmt.Sprintf("    Host: %q,\n", c.SMTP.Host))
	sb.WriteString(fmt.Sprintf("    Port: %d,\n", c.SMTP.Port))
	sb.WriteString(fmt.Sprintf("    Username: %q,\n", c.SMTP.Username))
	sb.WriteString("    Password: [REDACTED],\n")
	sb.WriteString(fmt.Sprintf("    From: %q,\n", c.SMTP.From))
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Store.DataDir))
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString(fmt.Sprintf("    DriversCount: %d,\n", len(c.Cache.Drivers)))
	sb.WriteString("  },\n")
	sb.WriteString("  RateLimit: {\n")
	sb.WriteString(fmt.Sprintf("    RequestsPerWindow: %d,\n", c.RateLimit.RequestsPerWindow))
	sb.WriteString(fmt.Sprintf("    WindowSeconds: %d,\n", c.RateLimit.WindowSeconds))
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}
