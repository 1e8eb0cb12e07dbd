package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/juju/clock"

	"github.com/yungbote/store-composite/internal/config"
	httpapi "github.com/yungbote/store-composite/internal/http"
	"github.com/yungbote/store-composite/internal/observability"
	"github.com/yungbote/store-composite/internal/platform/logger"
	"github.com/yungbote/store-composite/internal/platform/serviceaddr"
	"github.com/yungbote/store-composite/internal/platform/shutdown"
)

type App struct {
	Log      *logger.Logger
	Config   *config.Config
	Services Services

	server  *httpapi.Server
	closers []shutdown.Closer
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Config: cfg}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		TracingConfig: cfg.Tracing,
		Environment:   cfg.Env,
	})
	a.closers = append(a.closers, otelShutdown)

	serviceaddr.Configure(cfg.HTTP.Addr)

	pub, closers, err := wirePublisher(ctx, log, cfg.Events)
	if err != nil {
		a.abort()
		return nil, err
	}
	a.closers = append(a.closers, closers...)

	services, err := wireServices(log, cfg, pub, clock.WallClock)
	if err != nil {
		a.abort()
		return nil, err
	}
	a.Services = services

	server, err := wireHTTP(log, cfg, services)
	if err != nil {
		a.abort()
		return nil, err
	}
	a.server = server

	log.Info("Store composite initialized",
		"addr", cfg.HTTP.Addr,
		"service_address", serviceaddr.Get(),
		"events_transport", cfg.Events.Transport,
		"journal", cfg.Events.Journal.Enabled,
		"auth", cfg.Auth.Enabled,
	)
	return a, nil
}

// Run serves HTTP until ctx is done, then drains the server and releases
// the publisher, journal and tracer.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()
	a.Log.Info("HTTP server listening", "addr", a.server.Addr())

	var runErr error
	select {
	case <-ctx.Done():
		a.Log.Info("Shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	closers := append([]shutdown.Closer{}, a.closers...)
	closers = append(closers, a.server.Shutdown)
	if err := shutdown.Run(a.Config.HTTP.ShutdownTimeout.Duration, closers...); err != nil {
		a.Log.Warn("Shutdown finished with errors", "error", err)
		runErr = errors.Join(runErr, err)
	}
	a.Log.Sync()
	return runErr
}

func (a *App) abort() {
	if err := shutdown.Run(a.Config.HTTP.ShutdownTimeout.Duration, a.closers...); err != nil {
		a.Log.Warn("Cleanup after failed init", "error", err)
	}
	a.Log.Sync()
}
