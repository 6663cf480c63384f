package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kihaan/backend/internal/cache"
	"kihaan/backend/internal/config"
	"kihaan/backend/internal/httpapi"
	"kihaan/backend/internal/mailer"
	"kihaan/backend/internal/notifier"
	"kihaan/backend/internal/service"
	"kihaan/backend/internal/store"
	"kihaan/backend/internal/store/memory"
	"kihaan/backend/internal/store/postgres"
)

type repository interface {
	store.Repository
	io.Closer
}

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("[server] config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := openStore(ctx, cfg)
	defer repo.Close()

	dash := openCache(ctx, cfg)
	mail := openMailer(cfg)

	svc := service.New(repo, dash, mail, service.Options{
		DashboardCacheTTL: cfg.DashboardCacheTTL,
		LowStockThreshold: cfg.LowStockThreshold,
		CompanyName:       cfg.CompanyName,
	})
	auth := httpapi.NewAuthManager(repo, cfg.AuthSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	api := httpapi.NewServer(svc, auth, cfg.AllowedOrigin)

	go notifier.New(repo, mail, cfg.AlertRecipients, cfg.LowStockThreshold, cfg.CompanyName).Run(ctx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", cfg.Address())
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("[server] shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] listen: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) repository {
	if cfg.DatabaseURL == "" {
		log.Printf("[server] DATABASE_URL not set, using seeded in-memory store")
		return memory.NewSeeded()
	}
	repo, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[server] postgres: %v", err)
	}
	log.Printf("[server] connected to postgres")
	return repo
}

func openCache(ctx context.Context, cfg config.Config) cache.DashboardCache {
	if cfg.RedisAddr == "" {
		return cache.NoopDashboardCache{}
	}
	redisCache := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Printf("[server] redis unreachable (%v), dashboard cache disabled", err)
		redisCache.Close()
		return cache.NoopDashboardCache{}
	}
	log.Printf("[server] redis cache enabled")
	return redisCache
}

func openMailer(cfg config.Config) mailer.Mailer {
	if cfg.SMTPAddr == "" {
		log.Printf("[server] SMTP_ADDR not set, outgoing mail disabled")
		return mailer.Noop{}
	}
	return mailer.NewSMTP(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
	}
	if len(cfg.RefreshSecret) < 32 {
		return fmt.Errorf("REFRESH_SECRET must be at least 32 characters")
	}
	if cfg.AuthSecret == cfg.RefreshSecret {
		return fmt.Errorf("AUTH_SECRET and REFRESH_SECRET must differ")
	}
	return nil
}
