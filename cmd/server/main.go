// Package main runs the Swapam campus marketplace API server.
package main

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/swapam/marketplace/internal/app"
	"github.com/swapam/marketplace/internal/app/httpapi"
	"github.com/swapam/marketplace/internal/app/metrics"
	mongostore "github.com/swapam/marketplace/internal/app/storage/mongo"
	pgstore "github.com/swapam/marketplace/internal/app/storage/postgres"
	"github.com/swapam/marketplace/internal/config"
	"github.com/swapam/marketplace/internal/logging"
	"github.com/swapam/marketplace/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("swapam", cfg.Logging.Level, cfg.Logging.Format)

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("configure storage")
		os.Exit(1)
	}
	defer cleanup()

	application, err := app.New(stores, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	handler, err := httpapi.NewHandlerWithOptions(application, httpapi.Options{
		AuditFile: cfg.Audit.File,
		AuditMax:  cfg.Audit.Max,
	})
	if err != nil {
		log.WithError(err).Error("configure API handler")
		os.Exit(1)
	}

	chain := buildMiddleware(cfg, log, handler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", chain)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      metrics.InstrumentHandler(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("marketplace API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("stopped")
}

// buildStores selects the persistence backend. The returned cleanup closes
// any open connections.
func buildStores(cfg config.Config, log *logging.Logger) (app.Stores, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "memory":
		log.Info("using in-memory storage")
		return app.Stores{}, noop, nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := mongostore.Connect(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDB)
		if err != nil {
			return app.Stores{}, noop, fmt.Errorf("connect mongo: %w", err)
		}
		log.WithField("db", cfg.Storage.MongoDB).Info("using mongo storage")
		cleanup := func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = store.Close(closeCtx)
		}
		return app.Stores{Items: store, Swaps: store, Users: store}, cleanup, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.Postgres)
		if err != nil {
			return app.Stores{}, noop, fmt.Errorf("open postgres: %w", err)
		}
		store := pgstore.New(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return app.Stores{}, noop, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("using postgres storage")
		return app.Stores{Items: store, Swaps: store, Users: store}, func() { db.Close() }, nil

	default:
		return app.Stores{}, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildMiddleware assembles the request pipeline: tracing, CORS, rate
// limiting, then authentication.
func buildMiddleware(cfg config.Config, log *logging.Logger, handler http.Handler) http.Handler {
	publicKey, err := loadPublicKey(cfg.Auth.PublicKeyFile)
	if err != nil {
		log.WithError(err).Error("load JWT public key")
		os.Exit(1)
	}

	if publicKey != nil {
		auth := middleware.NewAuthMiddleware(publicKey, log, []string{"/healthz", "/metrics"})
		handler = auth.Handler(handler)
	} else {
		log.Warn("no JWT public key configured; API is unauthenticated")
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst, log)
	limiter.StartCleanup(10 * time.Minute)
	handler = limiter.Handler(handler)

	handler = middleware.NewCORSMiddleware(cfg.Server.CORSOrigins).Handler(handler)
	handler = middleware.NewTracingMiddleware(log).Handler(handler)
	return handler
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(data)
}
