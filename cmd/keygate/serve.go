// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/auth"
	authpg "github.com/keygate/keygate/internal/auth/postgres"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/httpapi"
	"github.com/keygate/keygate/internal/logging"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second

	// purgeInterval is how often expired sessions and reset requests are
	// swept. Expiry is enforced lazily on reads; the sweep only reclaims
	// rows.
	purgeInterval = 1 * time.Hour
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server, apply pending database migrations,
and expose metrics and health probes on the observability address.`,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().Bool("no-migrate", false, "skip automatic migrations on startup")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("keygate", version, cfg.Logging.Format, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	skipMigrate, _ := cmd.Flags().GetBool("no-migrate") //nolint:errcheck // flag is registered above
	if !skipMigrate {
		if err := migrateUp(cfg.Database.URL); err != nil {
			return err
		}
	}

	pool, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	facade, err := buildFacade(pool, cfg)
	if err != nil {
		return err
	}

	api, err := httpapi.NewServer(cfg.Server.Addr, facade, httpapi.LogDelivery{})
	if err != nil {
		return err
	}
	apiErrs, err := api.Start()
	if err != nil {
		return err
	}

	obs := observability.NewServer(cfg.Observability.Addr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrs, err := obs.Start()
	if err != nil {
		shutdown(api, nil)
		return err
	}

	go purgeLoop(ctx, facade)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-apiErrs:
		if err != nil {
			slog.Error("api server failed", "error", err)
		}
	case err := <-obsErrs:
		if err != nil {
			slog.Error("observability server failed", "error", err)
		}
	}

	return shutdown(api, obs)
}

// buildFacade wires the repositories and services behind the facade.
func buildFacade(db authpg.DB, cfg *config.Config) (*auth.Facade, error) {
	hasher := auth.NewArgon2idHasher()
	principals := authpg.NewPrincipalRepository(db)
	credRepo := authpg.NewCredentialRepository(db)
	sessionRepo := authpg.NewSessionRepository(db)
	resetRepo := authpg.NewResetRequestRepository(db)
	audit := authpg.NewAuditWriter(db)
	transactor := authpg.NewTransactor(db)

	creds, err := auth.NewCredentialStore(credRepo, hasher)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionRegistry(sessionRepo)
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetFlow(principals, resetRepo, creds, sessions, hasher)
	if err != nil {
		return nil, err
	}

	return auth.NewFacade(principals, creds, sessions, issuer, resets, audit, transactor, hasher)
}

// purgeLoop periodically sweeps expired sessions and reset requests.
func purgeLoop(ctx context.Context, facade *auth.Facade) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, resets, err := facade.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("purge sweep failed", "error", err)
				continue
			}
			if sessions > 0 || resets > 0 {
				slog.Info("purged expired rows", "sessions", sessions, "reset_requests", resets)
			}
		}
	}
}

func shutdown(api *httpapi.Server, obs *observability.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	if api != nil {
		if err := api.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if obs != nil {
		if err := obs.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return oops.With("operation", "shutdown").Wrap(firstErr)
	}
	return nil
}
