package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

var version = "dev"

func main() {
	configFile := flag.String("config", os.Getenv("WARDEN_CONFIG_FILE"), "Path to a YAML config file")
	seed := flag.Bool("seed", true, "Create missing built-in roles at startup")
	flag.Parse()

	if err := run(*configFile, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "wardend: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, seed bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	logger.WithField("version", version).Info("Starting wardend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.New(ctx, cfg, app.WithLogger(logger), app.WithRegistry(registry))
	if err != nil {
		return err
	}

	if err := a.Migrate(ctx); err != nil {
		a.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	if seed {
		created, err := rbac.SeedBuiltInRoles(ctx, a.Roles, audit.SystemActor)
		if err != nil {
			a.Close()
			return fmt.Errorf("seeding built-in roles failed: %w", err)
		}
		if len(created) > 0 {
			logger.WithField("count", len(created)).Info("Created built-in roles")
		}
	}

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(observability.HTTPMetricsMiddleware(a.Metrics))
	observability.RegisterHealthRoutes(router, a.HealthChecker(version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(router, registry)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(router, "wardend"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("app", func(context.Context) error {
		return a.Close()
	})

	watchCtx, stopWatch := context.WithCancel(ctx)
	a.WatchReplicas(watchCtx)
	shutdown.Register("replica-health", func(context.Context) error {
		stopWatch()
		return nil
	})

	if cfg.Invitations.SweepEnabled {
		sweeper, err := a.NewSweeper()
		if err != nil {
			a.Close()
			return err
		}
		sweeper.Start()
		shutdown.Register("invitation-sweeper", sweeper.Stop)
		logger.WithField("schedule", sweeper.Schedule()).Info("Invitation sweeper started")
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("Ops server failed")
			stop()
			if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
				logger.WithError(shutdownErr).Error("Shutdown incomplete")
			}
			return err
		}
		return shutdown.Shutdown()
	case <-ctx.Done():
	}

	if err := shutdown.Wait(ctx); err != nil {
		return err
	}
	logger.Info("wardend stopped")
	return nil
}
