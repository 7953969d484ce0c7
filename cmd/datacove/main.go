// DataCove — document sharing and client collaboration platform
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datacove/datacove/internal/api"
	"github.com/datacove/datacove/internal/api/handler"
	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/billing"
	"github.com/datacove/datacove/internal/config"
	"github.com/datacove/datacove/internal/db"
	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/health"
	"github.com/datacove/datacove/internal/invite"
	"github.com/datacove/datacove/internal/mailer"
	"github.com/datacove/datacove/internal/observability"
	"github.com/datacove/datacove/internal/provision"
	"github.com/datacove/datacove/internal/seed"
	"github.com/datacove/datacove/internal/storage"
	"github.com/datacove/datacove/internal/version"
	"github.com/datacove/datacove/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "datacove",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting datacove", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed owner ----------------------------------------------------------
	if err := seed.EnsureAdmin(ctx, gormDB, seed.AdminOptions{
		Email:        cfg.App.SeedAdminEmail,
		SeedPassword: cfg.App.SeedAdminPassword,
	}, log); err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}

	// --- Outbound services ---------------------------------------------------
	var store storage.ObjectStore
	if cfg.Storage.AccessKey != "" {
		s3store, err := storage.NewS3Store(ctx, &cfg.Storage)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		store = s3store
		log.Info("object storage ready", "region", cfg.Storage.Region)
	} else {
		store = storage.NewNoopStore(log)
	}

	var sender mailer.Sender
	if cfg.Email.APIKey != "" {
		sender = mailer.NewSendGridSender(cfg.Email.APIKey, cfg.Email.From)
	} else {
		sender = mailer.NewLogSender(log)
	}

	var processor billing.Processor
	if cfg.Billing.SecretKey != "" {
		processor = billing.NewStripeProcessor(cfg.Billing.SecretKey)
		log.Info("billing processor ready")
	}

	// --- Worker queue --------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	wq, err := worker.New(ctx, pool, cfg.DB.Driver, cfg.Worker.Concurrency, sender, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- Domain services -----------------------------------------------------
	dir := directory.New(gormDB)
	refresh := auth.NewRefreshStore(gormDB, cfg.JWT.RefreshTTL)
	prov := provision.New(gormDB, store, log)
	inviteLedger := invite.New(gormDB, dir, prov, wq, cfg.App.FrontendURL, log)
	billingLedger := billing.New(gormDB, dir, processor, cfg.Billing.WebhookSecret, cfg.App.FrontendURL, log)

	// --- HTTP routes ---------------------------------------------------------
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Handlers{
		Health:       health.New(db.NewPinger(gormDB)),
		Auth:         handler.NewAuthHandler(gormDB, dir, refresh, store, wq, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.App.FrontendURL, log),
		Invitation:   handler.NewInvitationHandler(inviteLedger, log),
		Subscription: handler.NewSubscriptionHandler(billingLedger, log),
		Note:         handler.NewNoteHandler(gormDB, log),
		Document:     handler.NewDocumentHandler(gormDB, dir, store, log),
	}, cfg.JWT.Secret)
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
