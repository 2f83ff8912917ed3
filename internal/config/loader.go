package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	PublicOrigin *string
	DataDir      *string
	MediaDir     *string
	SecretKey    *string
	CacheDriver  *string
	LoggingLevel *string
}

// fileConfig mirrors Config with pointer sections to detect presence.
type fileConfig struct {
	PublicOrigin string `toml:"public_origin"`
	ListenAddr   string `toml:"listen_addr"`
	MediaDir     string `toml:"media_dir"`

	Auth      *AuthConfig      `toml:"auth"`
	SMTP      *SMTPConfig      `toml:"smtp"`
	Store     *StoreConfig     `toml:"store"`
	Cache     *CacheConfig     `toml:"cache"`
	RateLimit *RateLimitConfig `toml:"ratelimit"`
	Logging   *LoggingConfig   `toml:"logging"`
}

// Load loads configuration with the following precedence:
//  1. Start from defaults
//  2. Overlay TOML config file values
//  3. Overlay CLI flags
//  4. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error. Unknown TOML keys produce a warning but do
// not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		var fc fileConfig
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.MediaDir != "" {
		cfg.MediaDir = fc.MediaDir
	}

	if fc.Auth != nil {
		if fc.Auth.SecretKey != "" {
			cfg.Auth.SecretKey = fc.Auth.SecretKey
		}
		if fc.Auth.TokenTTLMinutes != 0 {
			cfg.Auth.TokenTTLMinutes = fc.Auth.TokenTTLMinutes
		}
		if fc.Auth.OTPValidityMinutes != 0 {
			cfg.Auth.OTPValidityMinutes = fc.Auth.OTPValidityMinutes
		}
		if fc.Auth.OTPResendLimit != 0 {
			cfg.Auth.OTPResendLimit = fc.Auth.OTPResendLimit
		}
		if fc.Auth.OTPAttemptLimit != 0 {
			cfg.Auth.OTPAttemptLimit = fc.Auth.OTPAttemptLimit
		}
		if fc.Auth.OTPLockMinutes != 0 {
			cfg.Auth.OTPLockMinutes = fc.Auth.OTPLockMinutes
		}
	}

	if fc.SMTP != nil {
		if fc.SMTP.Host != "" {
			cfg.SMTP.Host = fc.SMTP.Host
		}
		if fc.SMTP.Port != 0 {
			cfg.SMTP.Port = fc.SMTP.Port
		}
		if fc.SMTP.Username != "" {
			cfg.SMTP.Username = fc.SMTP.Username
		}
		if fc.SMTP.Password != "" {
			cfg.SMTP.Password = fc.SMTP.Password
		}
		if fc.SMTP.From != "" {
			cfg.SMTP.From = fc.SMTP.From
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.RateLimit != nil {
		if fc.RateLimit.RequestsPerWindow != 0 {
			cfg.RateLimit.RequestsPerWindow = fc.RateLimit.RequestsPerWindow
		}
		if fc.RateLimit.WindowSeconds != 0 {
			cfg.RateLimit.WindowSeconds = fc.RateLimit.WindowSeconds
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.PublicOrigin != nil && *f.PublicOrigin != "" {
		cfg.PublicOrigin = *f.PublicOrigin
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.Store.DataDir = *f.DataDir
	}
	if f.MediaDir != nil && *f.MediaDir != "" {
		cfg.MediaDir = *f.MediaDir
	}
	if f.SecretKey != nil && *f.SecretKey != "" {
		cfg.Auth.SecretKey = *f.SecretKey
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

// validate checks required fields and enum values. Fail fast: a bad config
// should stop the server before it binds a port.
func validate(cfg *Config) error {
	if cfg.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}

	switch cfg.Store.Driver {
	case "sqlite":
		// valid
	default:
		return fmt.Errorf("invalid store.driver %q: must be sqlite", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "", "memory", "valkey":
		// valid (empty defaults to memory)
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, valkey", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	if err := validatePublicOrigin(cfg.PublicOrigin); err != nil {
		return err
	}
	return nil
}

// validatePublicOrigin checks the public_origin config value. Must be an
// absolute http/https URL with a host and no userinfo, query, fragment, or
// path.
func validatePublicOrigin(origin string) error {
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("invalid public_origin %q: must be an absolute URL with http or https scheme", origin)
	}
	switch u.Scheme {
	case "http", "https":
		// valid
	default:
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https, got %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}
	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string or fragment", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}
	return nil
}
