package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finease/internal/admin"
	"finease/internal/api"
	"finease/internal/backend"
	"finease/internal/cache"
	"finease/internal/config"
	apphttp "finease/internal/http"
	"finease/internal/identity/local"
	"finease/internal/ledger"
	"finease/internal/log"
	"finease/internal/middleware/security"
	"finease/internal/prefs"
	"finease/internal/report"
	"finease/internal/session"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	}()
	be := result.Backend

	userPrefs := prefs.New(be.Prefs, logger)
	client := api.New(cfg.APIBaseURL, cfg.APITimeout, userPrefs, logger)

	provider := local.New(local.Options{
		Accounts: be.Accounts,
		Google: local.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		},
		BcryptCost: cfg.BcryptCost,
		Logger:     logger,
	})
	resolver := session.NewResolver(client, userPrefs, cfg.APITimeout, logger)
	store := session.NewStore(provider, resolver, logger)
	defer store.Close()

	reports := report.NewCache(cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(reports.Cleaner())

	transactions := ledger.NewController(client, ledger.Options{
		Publisher: be.Publisher,
		OnChange:  reports.Invalidate,
		Logger:    logger,
	})
	users := admin.NewController(client, be.Publisher, logger)

	opts := apphttp.Options{
		Addr:          cfg.Addr(),
		Session:       store,
		Prefs:         userPrefs,
		Ledger:        transactions,
		Admin:         users,
		Transactions:  client,
		Reports:       reports,
		Caches:        caches,
		CacheInterval: cfg.CacheTTL,
		GoogleEnabled: provider.FederatedEnabled(),
		RateLimit:     cfg.RateLimit,
		CSRF: security.CSRFConfig{
			AuthKey:        []byte(cfg.CSRFKey),
			TrustedOrigins: cfg.TrustedOrigins,
		},
		StaticMaxAge: staticMaxAge(cfg),
		Logger:       logger,
	}
	if be.Repository != nil {
		opts.Storage = be.Repository
	}
	srv := apphttp.NewServer(opts)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting FinEase server",
			"port", cfg.Port,
			"env", cfg.Env,
			"backend", cfg.DataBackend,
			"api", cfg.APIBaseURL,
			"amqp", cfg.AMQPEnabled(),
			"google", provider.FederatedEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	resolver.Wait()
	logger.Info("Server stopped gracefully")
}

func newLogger(cfg *config.Config) *log.Logger {
	level := log.ParseLevel(cfg.LogLevel)
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return log.New(log.Config{Level: level, Component: log.ComponentApp, Output: os.Stdout, Handler: handler})
}

// staticMaxAge caches embedded assets for a day in production only.
func staticMaxAge(cfg *config.Config) int {
	if cfg.IsDevelopment() {
		return 0
	}
	return 86400
}
