// Package app is the composition root: it turns validated configuration
// into a fully wired bus with all services and middleware pipelines
// constructed.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// App holds the wired bus for one bot process.
type App struct {
	Bus *bus.Bus
}

// Build constructs the bus, every configured middleware, and every
// configured service with its pipeline. Any error here is a configuration
// error: nothing has been spawned yet and startup must abort.
func Build(cfg *config.Config, settings config.Settings, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	b := bus.New(bus.Options{
		EventBuffer:   settings.EventBuffer,
		CommandBuffer: settings.CommandBuffer,
		ShutdownGrace: settings.ShutdownGrace,
		Logger:        log,
	})

	// Middlewares first: instances are shared by name across pipelines.
	byName := make(map[string]bus.Middleware, len(cfg.Middlewares))
	for _, spec := range cfg.Middlewares {
		mw, err := middlewares.New(spec, b)
		if err != nil {
			return nil, err
		}
		byName[spec.Name] = mw
	}

	for _, spec := range cfg.Services {
		svc, err := services.New(spec, b)
		if err != nil {
			return nil, err
		}
		pipeline := make([]bus.Middleware, 0, len(spec.Middleware))
		for _, name := range spec.Middleware {
			mw, ok := byName[name]
			if !ok {
				// Config.Validate catches this; kept for callers wiring
				// descriptors by hand.
				return nil, fmt.Errorf("%w: service %q references %q",
					config.ErrUnknownMiddleware, spec.ID, name)
			}
			pipeline = append(pipeline, mw)
		}
		if err := b.AddService(bus.ServiceID(spec.ID), svc, pipeline); err != nil {
			return nil, fmt.Errorf("register service %q: %w", spec.ID, err)
		}
	}

	return &App{Bus: b}, nil
}

// Run drives the bus until ctx is cancelled and shutdown completes.
func (a *App) Run(ctx context.Context) error {
	return a.Bus.Run(ctx)
}
