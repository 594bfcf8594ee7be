// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package main is the entry point for the Gatekeeper server.
//
// Gatekeeper watches the registration spreadsheets of both organizations,
// credentials approved registrants with single-use tokens, emails each of
// them a QR code, and redeems those tokens at the check-in desk.
//
// # Application Architecture
//
// The server initializes components in this order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Sheets access: Google service-account client behind a circuit breaker
//  3. Credential issuer: ORG-prefixed UUID tokens and redemption URLs
//  4. Mailer: per-organization SMTP identities with async dispatch
//  5. Reconciler: the 10-second credentialing loop
//  6. Redemption engine: single-use token consumption
//  7. HTTP server: scan, reconcile, health, and diagnostics endpoints
//
// The reconciler and the HTTP server run under a suture supervision tree in
// separate layers, so a crash in one never interrupts the other.
//
// # Configuration
//
// The minimum viable environment:
//
//	export BASE_URL=https://checkin.example.com
//	export CS_SHEET_ID=...
//	export NCS_SHEET_ID=...
//	export GOOGLE_APPLICATION_CREDENTIALS=/etc/gatekeeper/credentials.json
//	export CS_EMAIL_USER=cs@example.com
//	export CS_EMAIL_PASS=app-password
//	export NCS_EMAIL_USER=ncs@example.com
//	export NCS_EMAIL_PASS=app-password
//	./gatekeeper
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the reconciler finishes or abandons its cycle within
// the shutdown grace period, and queued emails get a chance to flush.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/texperia/gatekeeper/internal/api"
	"github.com/texperia/gatekeeper/internal/config"
	"github.com/texperia/gatekeeper/internal/credential"
	"github.com/texperia/gatekeeper/internal/logging"
	"github.com/texperia/gatekeeper/internal/mailer"
	"github.com/texperia/gatekeeper/internal/models"
	"github.com/texperia/gatekeeper/internal/reconciler"
	"github.com/texperia/gatekeeper/internal/redemption"
	"github.com/texperia/gatekeeper/internal/schema"
	"github.com/texperia/gatekeeper/internal/sheetstore"
	"github.com/texperia/gatekeeper/internal/supervisor"
	"github.com/texperia/gatekeeper/internal/supervisor/services"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors surface through the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("version", version).
		Str("base_url", cfg.Server.BaseURL).
		Str("tab", cfg.Sheets.TabName).
		Dur("interval", cfg.Reconcile.Interval).
		Msg("Starting Gatekeeper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sheets access. The resolver carries any configured header alias
	// overrides on top of the defaults.
	sheetsAPI, err := sheetstore.NewGoogleAPI(ctx, cfg.Sheets.CredentialsFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize sheets client")
	}
	resolver := schema.NewResolver(cfg.AliasTable())
	store := sheetstore.New(sheetsAPI, resolver, sheetstore.Config{
		TabName:           cfg.Sheets.TabName,
		HeaderCacheTTL:    cfg.Sheets.HeaderCacheTTL,
		RequestsPerSecond: cfg.Sheets.RequestsPerSecond,
	}, &logger)

	issuer := credential.NewIssuer(cfg.Server.BaseURL)
	sheets := cfg.SheetMap()

	// Mail. Identities are optional per organization; rows for an
	// organization without one are credentialed but not emailed.
	mailCfg := mailer.Config{
		Host:       cfg.Mail.Host,
		Port:       cfg.Mail.Port,
		UseTLS:     cfg.Mail.UseTLS,
		Timeout:    cfg.Mail.Timeout,
		Identities: map[models.Organization]mailer.Identity{},
	}
	if cfg.Mail.CS.User != "" {
		mailCfg.Identities[models.OrgCS] = mailer.Identity{
			User:     cfg.Mail.CS.User,
			Password: cfg.Mail.CS.Password,
			FromName: cfg.Mail.FromName,
		}
	}
	if cfg.Mail.NCS.User != "" {
		mailCfg.Identities[models.OrgNCS] = mailer.Identity{
			User:     cfg.Mail.NCS.User,
			Password: cfg.Mail.NCS.Password,
			FromName: cfg.Mail.FromName,
		}
	}
	sender := mailer.NewSMTPSender(mailCfg, &logger)
	dispatcher := mailer.NewDispatcher(sender, cfg.Mail.DispatchTimeout, &logger)

	loop := reconciler.New(store, resolver, issuer, dispatcher, &logger, reconciler.Config{
		Interval:         cfg.Reconcile.Interval,
		InitialDelay:     cfg.Reconcile.InitialDelay,
		CycleTimeout:     cfg.Reconcile.CycleTimeout,
		WriteBackTimeout: cfg.Reconcile.WriteBackTimeout,
		Sheets:           sheets,
	})
	engine := redemption.New(store, resolver, dispatcher, sheets, &logger)

	handler := api.NewHandler(engine, loop, store, issuer, sheets, version)
	router := api.NewRouter(handler, api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		ScanRateLimit:      cfg.Security.ScanRateLimit,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree: the reconciler and the HTTP server restart
	// independently on failure.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownGrace,
	})
	tree.AddPipelineService(services.NewReconcilerService(loop))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownGrace))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Let in-flight emails finish before the process exits.
	dispatcher.Wait()

	logging.Info().Msg("Gatekeeper stopped gracefully")
}
