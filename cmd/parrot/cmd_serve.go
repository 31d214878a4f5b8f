package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/parrot/internal/auth"
	"github.com/nadzzz/parrot/internal/health"
	"github.com/nadzzz/parrot/internal/transport"
	grpctransport "github.com/nadzzz/parrot/internal/transport/grpc"
	httptransport "github.com/nadzzz/parrot/internal/transport/http"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the synthesis server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(*configFile)
		},
	}
}

func serve(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	slog.Info("parrot starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	a.warmup(ctx)

	authenticator := auth.New(cfg.Auth.Token)
	reporter := health.NewReporter(cfg.Language, a.registry.Available, a.encoder.MP3Capable)
	if a.clone != nil {
		reporter.WithCloneStatus(a.clone.Status)
	}

	var transports []transport.Transport
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(httptransport.Options{
			Port:           cfg.Transports.HTTP.Port,
			Auth:           authenticator,
			Reporter:       reporter,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		}))
	}
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(grpctransport.Options{
			Port:      cfg.Transports.GRPC.Port,
			Auth:      authenticator,
			Providers: a.registry.Available(),
		}))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, reporter, a.metrics.Handler())
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, a.dispatcher); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("parrot ready",
		"transports", len(transports),
		"providers", a.registry.Available(),
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	healthServer.SetReady(false)
	slog.Info("shutdown signal received, draining...")

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("parrot stopped")
	return nil
}
