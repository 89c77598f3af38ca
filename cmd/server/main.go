/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the versioned storage server. Handles
  configuration, dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load TOML configuration and environment overrides
  3. Initialize logging
  4. Select and open the store backend (runs schema migrations)
  5. Select the authenticator
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the TOML configuration file (optional; environment
           variables alone are enough for containerized deployments)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout); in-flight
     database transactions roll back with their request contexts
  3. Close the store
  4. Exit

SEE ALSO:
  - config/config.go: configuration surface
  - api/server.go: router configuration
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lightningdevkit/vss-server/api"
	"github.com/lightningdevkit/vss-server/auth"
	"github.com/lightningdevkit/vss-server/config"
	"github.com/lightningdevkit/vss-server/internal/log"
	"github.com/lightningdevkit/vss-server/store/memory"
	"github.com/lightningdevkit/vss-server/store/sqlite"
	"github.com/lightningdevkit/vss-server/vss"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log.Init(log.Config{Level: cfg.Server.LogLevel, JSONOutput: cfg.Server.LogJSON})
	logger := log.WithComponent("server")

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store backend")
	}
	defer closeStore()

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize authenticator")
	}

	handler := api.NewHandler(store, authenticator, cfg.Server.MaxBodyBytes, log.WithComponent("api"))
	router := api.NewRouter(handler, cfg.Server.CORSAllowedOrigins)

	server := &http.Server{
		Addr:        cfg.Server.BindAddress,
		Handler:     router,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.BindAddress).Msg("listening for incoming connections on /vss")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server stopped")
}

func buildStore(cfg *config.Config) (vss.Store, func(), error) {
	logger := log.WithComponent("store")
	switch cfg.Server.StoreType {
	case config.StoreTypeInMemory:
		logger.Warn().Msg("using in-memory store; all data is lost on restart")
		return memory.New(), func() {}, nil
	default:
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", cfg.SQLite.Path).Msg("opened sqlite backend")
		return store, func() { store.Close() }, nil
	}
}

func buildAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	logger := log.WithComponent("auth")
	switch cfg.Server.AuthProvider {
	case config.AuthProviderJWT:
		pem, err := cfg.JWTPublicKeyPEM()
		if err != nil {
			return nil, err
		}
		authenticator, err := auth.NewJWTAuthenticator(pem)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("configured JWT authenticator with RSA public key")
		return authenticator, nil
	case config.AuthProviderSignature:
		logger.Info().Msg("configured signature-validating authenticator")
		return auth.SignatureAuthenticator{}, nil
	default:
		logger.Warn().Msg("no authentication method configured, all storage with the same store id will be commingled")
		return auth.Noop{}, nil
	}
}
