package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nadzzz/parrot/internal/config"
	"github.com/nadzzz/parrot/internal/dispatch"
	"github.com/nadzzz/parrot/internal/encoder"
	"github.com/nadzzz/parrot/internal/metrics"
	"github.com/nadzzz/parrot/internal/pipeline"
	"github.com/nadzzz/parrot/internal/tts"
	"github.com/nadzzz/parrot/internal/tts/clone"
	"github.com/nadzzz/parrot/internal/tts/neural"
	"github.com/nadzzz/parrot/internal/tts/system"
)

// app is the wired synthesis core shared by every command.
type app struct {
	cfg        *config.Config
	registry   *tts.Registry
	encoder    *encoder.Encoder
	metrics    *metrics.Collector
	dispatcher *dispatch.Dispatcher
	clone      *clone.Provider
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}

// newApp probes every configured provider and builds the dispatcher. It
// fails only when the default provider cannot be registered.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewCollector()}

	candidates := []tts.Provider{neural.New(cfg.Providers.Neural)}
	if cfg.Providers.System.Enabled {
		candidates = append(candidates, system.New(cfg.Providers.System))
	}
	if cfg.Providers.Clone.Enabled {
		a.clone = clone.New(cfg.Providers.Clone)
		candidates = append(candidates, a.clone)
	}

	logger := slog.With("component", "registry")
	reg, err := tts.Build(ctx, logger, cfg.Routing.Default, candidates...)
	for _, p := range candidates {
		name := p.Capabilities().Name
		a.metrics.SetProviderRegistered(name, reg != nil && reg.Has(name))
	}
	if err != nil {
		return nil, err
	}
	a.registry = reg

	a.encoder = encoder.New(cfg.Encoder)
	selector := tts.NewSelector(reg, tts.Routing{
		Default:         cfg.Routing.Default,
		System:          cfg.Routing.System,
		Clone:           cfg.Routing.Clone,
		SystemLanguages: cfg.Routing.SystemLanguages,
	})
	a.dispatcher = dispatch.New(reg, selector, pipeline.New(a.encoder), dispatch.Options{
		MaxConcurrent:   cfg.Server.MaxConcurrent,
		DefaultProvider: cfg.Routing.Default,
		Metrics:         a.metrics,
	})

	slog.Info("providers ready", "registered", reg.Available(), "mp3", a.encoder.MP3Capable())
	return a, nil
}

// warmup preloads the clone model in the background when configured.
func (a *app) warmup(ctx context.Context) {
	if a.clone == nil || !a.cfg.Providers.Clone.Warmup || !a.registry.Has(tts.ProviderClone) {
		return
	}
	go a.clone.Warmup(ctx)
}
