// Command edgeauth runs the authentication service as a standalone HTTP
// server. Configuration comes entirely from the environment, so the same
// binary works in a container, a systemd unit, or an edge runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/wavecast/edgeauth"
	"github.com/wavecast/edgeauth/instrumentation"
	"github.com/wavecast/edgeauth/providers"
	"github.com/wavecast/edgeauth/providers/github"
	"github.com/wavecast/edgeauth/providers/google"
	"github.com/wavecast/edgeauth/providers/microsoft"
	"github.com/wavecast/edgeauth/security"
	"github.com/wavecast/edgeauth/storage"
	"github.com/wavecast/edgeauth/storage/memory"
	"github.com/wavecast/edgeauth/storage/valkey"
	"github.com/wavecast/edgeauth/token"
)

type config struct {
	Addr      string `env:"EDGEAUTH_ADDR" envDefault:":8080"`
	PublicURL string `env:"EDGEAUTH_PUBLIC_URL"`
	LogLevel  string `env:"EDGEAUTH_LOG_LEVEL" envDefault:"info"`

	TokenSecret   string        `env:"EDGEAUTH_TOKEN_SECRET,required"`
	TokenIssuer   string        `env:"EDGEAUTH_TOKEN_ISSUER" envDefault:"edgeauth"`
	TokenAudience string        `env:"EDGEAUTH_TOKEN_AUDIENCE" envDefault:"edgeauth-clients"`
	AccessTTL     time.Duration `env:"EDGEAUTH_ACCESS_TTL"`
	RefreshTTL    time.Duration `env:"EDGEAUTH_REFRESH_TTL"`
	SessionTTL    time.Duration `env:"EDGEAUTH_SESSION_TTL"`

	ValkeyAddr      string `env:"EDGEAUTH_VALKEY_ADDR"`
	ValkeyPassword  string `env:"EDGEAUTH_VALKEY_PASSWORD"`
	ValkeyDB        int    `env:"EDGEAUTH_VALKEY_DB"`
	ValkeyKeyPrefix string `env:"EDGEAUTH_VALKEY_KEY_PREFIX"`

	// Base64-encoded 32-byte key; empty disables encryption at rest.
	EncryptionKey string `env:"EDGEAUTH_ENCRYPTION_KEY"`

	TrustProxy        bool `env:"EDGEAUTH_TRUST_PROXY"`
	TrustedProxyCount int  `env:"EDGEAUTH_TRUSTED_PROXY_COUNT"`

	GoogleClientID        string `env:"EDGEAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"EDGEAUTH_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL     string `env:"EDGEAUTH_GOOGLE_REDIRECT_URL"`
	GitHubClientID        string `env:"EDGEAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret    string `env:"EDGEAUTH_GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL     string `env:"EDGEAUTH_GITHUB_REDIRECT_URL"`
	MicrosoftClientID     string `env:"EDGEAUTH_MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"EDGEAUTH_MICROSOFT_CLIENT_SECRET"`
	MicrosoftRedirectURL  string `env:"EDGEAUTH_MICROSOFT_REDIRECT_URL"`
	MicrosoftTenant       string `env:"EDGEAUTH_MICROSOFT_TENANT"`
}

func main() {
	genKey := flag.Bool("genkey", false, "print a fresh base64 key for EDGEAUTH_ENCRYPTION_KEY and exit")
	flag.Parse()

	if *genKey {
		if err := writeGeneratedKey(os.Stdout); err != nil {
			slog.Error("Key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

// writeGeneratedKey emits a base64-encoded AES-256 key suitable for the
// EDGEAUTH_ENCRYPTION_KEY variable.
func writeGeneratedKey(w io.Writer) error {
	key, err := security.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate encryption key: %w", err)
	}
	_, err = fmt.Fprintln(w, security.KeyToBase64(key))
	return err
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	tokens, err := token.New(token.Config{
		Secret:     []byte(cfg.TokenSecret),
		Issuer:     cfg.TokenIssuer,
		Audience:   cfg.TokenAudience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	providerSet, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	if len(providerSet) == 0 {
		return fmt.Errorf("no identity providers configured")
	}

	users, sessions, rateStore, cleanup, err := buildStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "edgeauth"})
	if err != nil {
		return fmt.Errorf("failed to create instrumentation: %w", err)
	}

	server, err := edgeauth.NewServer(providerSet, users, sessions, tokens, rateStore, inst, &edgeauth.Config{
		PublicURL:         cfg.PublicURL,
		SessionTTL:        cfg.SessionTTL,
		TrustProxy:        cfg.TrustProxy,
		TrustedProxyCount: cfg.TrustedProxyCount,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := inst.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Instrumentation shutdown failed", "error", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func buildProviders(cfg config) (map[string]providers.Provider, error) {
	set := make(map[string]providers.Provider)

	if cfg.GoogleClientID != "" {
		p, err := google.NewProvider(&google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure google provider: %w", err)
		}
		set[p.Name()] = p
	}

	if cfg.GitHubClientID != "" {
		p, err := github.NewProvider(&github.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure github provider: %w", err)
		}
		set[p.Name()] = p
	}

	if cfg.MicrosoftClientID != "" {
		p, err := microsoft.NewProvider(&microsoft.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURL,
			Tenant:       cfg.MicrosoftTenant,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure microsoft provider: %w", err)
		}
		set[p.Name()] = p
	}

	return set, nil
}

// buildStorage wires either the Valkey backend or, when no address is
// configured, the in-memory store. The memory store only suits local
// development: it shares nothing across processes.
func buildStorage(cfg config, logger *slog.Logger) (storage.UserStore, storage.SessionStore, storage.RateLimitStore, func(), error) {
	if cfg.ValkeyAddr == "" {
		logger.Warn("No Valkey address configured, using in-memory storage (development only)")
		store := memory.New(memory.Config{
			Logger:     logger,
			SessionTTL: cfg.SessionTTL,
		})
		return store, store, store, func() {}, nil
	}

	store, err := valkey.New(valkey.Config{
		Address:    cfg.ValkeyAddr,
		Password:   cfg.ValkeyPassword,
		DB:         cfg.ValkeyDB,
		KeyPrefix:  cfg.ValkeyKeyPrefix,
		Logger:     logger,
		SessionTTL: cfg.SessionTTL,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	if cfg.EncryptionKey != "" {
		key, err := security.KeyFromBase64(cfg.EncryptionKey)
		if err != nil {
			store.Close()
			return nil, nil, nil, nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		enc, err := security.NewEncryptor(key)
		if err != nil {
			store.Close()
			return nil, nil, nil, nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		store.SetEncryptor(enc)
	}

	return store, store, store, store.Close, nil
}
