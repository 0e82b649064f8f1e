// Package app wires configuration into the running pipeline and owns its
// lifecycle.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"adapilot/internal/config"
	"adapilot/internal/generator"
	"adapilot/internal/logger"
	"adapilot/internal/manager"
	"adapilot/internal/store/execlog"
	"adapilot/internal/store/signallog"
	"adapilot/internal/tracker"
	livehttp "adapilot/internal/transport/http/live"
)

type App struct {
	cfg       *config.Config
	generator *generator.Service
	tracker   *tracker.Tracker
	manager   *manager.Manager
	liveHTTP  *livehttp.Server
	execlog   *execlog.Store
	signallog *signallog.Store
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the polling loops and the HTTP server and blocks until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}
	a.tracker.Start(ctx)
	a.generator.Start(ctx)
	logger.Infof("app: pipeline started, http listening on %s", a.liveHTTP.Addr())

	group.Go(func() error {
		if err := a.liveHTTP.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	return group.Wait()
}

func (a *App) shutdown() {
	logger.Infof("app: shutting down")
	a.generator.Stop()
	a.tracker.Stop()
	a.manager.Stop()
	if err := a.execlog.Close(); err != nil {
		logger.Warnf("app: closing execution log: %v", err)
	}
	if err := a.signallog.Close(); err != nil {
		logger.Warnf("app: closing signal log: %v", err)
	}
}

// Manager exposes the composition facade, for harnesses and tests.
func (a *App) Manager() *manager.Manager {
	if a == nil {
		return nil
	}
	return a.manager
}
