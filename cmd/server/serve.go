package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/handlers"
	"github.com/stanstork/opsdesk-api/internal/identity"
	"github.com/stanstork/opsdesk-api/internal/invitation"
	"github.com/stanstork/opsdesk-api/internal/metrics"
	"github.com/stanstork/opsdesk-api/internal/migration"
	"github.com/stanstork/opsdesk-api/internal/notification"
	"github.com/stanstork/opsdesk-api/internal/permission"
	"github.com/stanstork/opsdesk-api/internal/routes"
	"github.com/stanstork/opsdesk-api/internal/session"
	"github.com/stanstork/opsdesk-api/internal/tenant"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()
		return app.serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
}

func (app *application) serve(ctx context.Context) error {
	logger := app.logger
	cfg := app.config

	if !skipMigrations {
		if err := migration.RunMigrations(ctx, app.db, logger); err != nil {
			return err
		}
	}

	rdb, err := app.openRedis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	registry := permission.NewRegistry(app.store, app.store.Roles, permission.DefaultCatalog(), logger)
	if _, err := registry.Reconcile(ctx); err != nil {
		return err
	}

	mapping, err := registry.Snapshot(ctx)
	if err != nil {
		return err
	}
	enforcer, err := permission.NewEnforcer(mapping)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hasher, err := identity.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	auth := identity.NewAuthenticator(app.store.Admins, app.store.Members, app.store.Customers, app.store.Roles, hasher, logger)
	sessions := session.NewManager(rdb, session.Options{
		Secret: cfg.Session.JWTSecret,
		TTL:    cfg.Session.TTL,
		Secure: cfg.Server.SecureCookies,
	})
	guard := authz.NewGuard(app.store.Admins, enforcer, m, logger)
	publisher := notification.NewFanout(logger, notification.NewStreamPublisher(rdb, cfg.Invitation.Stream))
	invitations := invitation.NewService(app.store, app.store.Repositories, hasher, registry.Catalog(), publisher, m, invitation.Options{
		DefaultTTL: cfg.Invitation.DefaultTTL,
		MaxTTL:     cfg.Invitation.MaxTTL,
		BaseURL:    cfg.Server.BaseURL,
	}, logger)

	resolver := tenant.NewResolver(app.store.Companies, cfg.TenantCache.Size, cfg.TenantCache.TTL, logger)
	router := routes.NewRouter(routes.Handlers{
		Auth:        handlers.NewAuthHandler(auth, sessions, m, logger),
		Register:    handlers.NewRegisterHandler(invitations, sessions, logger),
		Invitations: handlers.NewInvitationHandler(invitations, app.store.Admins, logger),
		Members:     handlers.NewMemberHandler(app.store.Members, app.store.Roles, hasher, guard, logger),
		Customers:   handlers.NewCustomerHandler(app.store.Customers, guard, logger),
		Dashboards:  handlers.NewDashboardHandler(guard, app.store.Admins, app.store.Companies, app.store.Customers, logger),
		Companies:   handlers.NewCompanyHandler(app.store, app.store.Admins, resolver, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.Check{
			"postgres": app.db.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
	}, routes.Deps{
		Tenants:    resolver,
		Sessions:   sessions,
		Principals: auth,
		Guard:      guard,
		Metrics:    m,
		Logger:     logger,
	})

	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.Server.AllowedOrigins),
		h.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		h.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		h.ExposedHeaders([]string{"X-Request-ID", "Location"}),
		h.AllowCredentials(),
	)(router)

	return app.startServer(ctx, corsHandler, func(ctx context.Context) {
		if err := registry.Refresh(ctx, enforcer); err != nil {
			logger.Error().Err(err).Msg("permission reload failed")
			return
		}
		logger.Info().Msg("permissions reloaded")
	})
}

// startServer launches the HTTP server and handles graceful shutdown.
// SIGHUP reloads the permission mapping without a restart.
func (app *application) startServer(ctx context.Context, handler http.Handler, reload func(context.Context)) error {
	logger := app.logger
	server := &http.Server{
		Addr:              ":" + app.config.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(quit)

	var serveErr error
wait:
	for {
		select {
		case sig := <-quit:
			if sig == syscall.SIGHUP {
				reload(ctx)
				continue
			}
			logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
			break wait
		case err := <-serverErrCh:
			logger.Error().Err(err).Msg("Server error occurred")
			serveErr = err
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
	return serveErr
}
