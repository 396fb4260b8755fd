package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexthire/chatd/internal/api"
	"github.com/nexthire/chatd/internal/chat"
	"github.com/nexthire/chatd/internal/config"
	"github.com/nexthire/chatd/internal/handlers"
	"github.com/nexthire/chatd/internal/hub"
	"github.com/nexthire/chatd/internal/identity"
	"github.com/nexthire/chatd/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the message store: Postgres when configured, SQLite
	// otherwise.
	var msgStore store.MessageStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		msgStore = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		msgStore = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite message store")
	}
	defer msgStore.Close()

	// Redis backs the identity directory, the messaging policy and the
	// rate limiter.
	directory, err := identity.NewRedisDirectory(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer directory.Close()
	logger.Info().Msg("connected to Redis")

	if cfg.AuthPublicKey == "" {
		logger.Fatal().Msg("AUTH_PUBLIC_KEY is not set; run cmd/genkey and export the public key")
	}
	verifier, err := identity.NewTokenVerifier(cfg.AuthPublicKey, directory)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid AUTH_PUBLIC_KEY")
	}

	// Real-time layer: one registry per process, injected everywhere.
	registry := hub.NewRegistry()
	presence := hub.NewPresence(registry, directory, logger)
	typing := hub.NewTyping(registry)

	svc := chat.NewService(msgStore, registry, directory, directory, logger)

	h := handlers.NewHandler(svc, registry, presence, typing, verifier, msgStore, directory, logger)

	// Create router
	router := api.NewRouter(logger, cfg, h, verifier, directory)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatd server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	// Drop live websockets so clients reconnect to another instance.
	for _, id := range registry.Identities() {
		if ch := registry.Lookup(id); ch != nil {
			ch.Close()
		}
	}

	logger.Info().Msg("server stopped")
}
