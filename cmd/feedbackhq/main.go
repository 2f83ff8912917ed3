// Package main is the entrypoint for the feedbackhq server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/api"
	"github.com/feedbackhq/feedbackhq/internal/auth"
	"github.com/feedbackhq/feedbackhq/internal/cache"
	"github.com/feedbackhq/feedbackhq/internal/config"
	"github.com/feedbackhq/feedbackhq/internal/feedback"
	"github.com/feedbackhq/feedbackhq/internal/notify"
	"github.com/feedbackhq/feedbackhq/internal/ratelimit"
	"github.com/feedbackhq/feedbackhq/internal/store"
	"github.com/feedbackhq/feedbackhq/internal/token"
	"github.com/feedbackhq/feedbackhq/internal/workspace"

	// Register drivers
	_ "github.com/feedbackhq/feedbackhq/internal/cache/loader"
	_ "github.com/feedbackhq/feedbackhq/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin for emailed links (overrides config)")
	dataDir := flag.String("data-dir", "", "Database directory (overrides config)")
	mediaDir := flag.String("media-dir", "", "Attachment directory (overrides config)")
	secretKey := flag.String("secret-key", "", "Token signing secret (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or valkey (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			PublicOrigin: publicOrigin,
			DataDir:      dataDir,
			MediaDir:     mediaDir,
			SecretKey:    secretKey,
			CacheDriver:  cacheDriver,
			LoggingLevel: loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	cacheInstance, err := cache.New(cfg.Cache.Driver, cfg.Cache.DriverOptions())
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	mailer := notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logger)

	tokens := token.New([]byte(cfg.Auth.SecretKey), cfg.Auth.TokenTTL())
	checker := access.New(db)

	limits := auth.Limits{
		Validity:     time.Duration(cfg.Auth.OTPValidityMinutes) * time.Minute,
		ResendLimit:  cfg.Auth.OTPResendLimit,
		AttemptLimit: cfg.Auth.OTPAttemptLimit,
		LockDuration: time.Duration(cfg.Auth.OTPLockMinutes) * time.Minute,
	}

	limiter := ratelimit.New(cacheInstance, &ratelimit.Config{
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		Window:            cfg.RateLimit.Window(),
		KeyPrefix:         "ratelimit:otp:",
	})

	srv := api.NewServer(api.Options{
		DB:         db,
		Tokens:     tokens,
		Auth:       auth.New(db, mailer, tokens, limits, logger),
		Workspaces: workspace.New(db, mailer, checker, cfg.PublicOrigin, logger),
		Feedback:   feedback.New(db, mailer, checker, tokens, cfg.PublicOrigin, cfg.MediaDir, logger),
		Limiter:    limiter,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
