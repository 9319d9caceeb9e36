package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"uniportal/console/internal/config"
	"uniportal/console/internal/httpserver"
	"uniportal/console/internal/navigation"
	"uniportal/console/internal/observability"
)

const Version = "0.1.0"

type App struct {
	cfg    config.Config
	log    *slog.Logger
	core   *Core
	server *httpserver.Server
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.LogLevel)

	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	core.Router.OnRedirect(func(v navigation.View) {
		logger.Info("session ended, next navigation lands on login", "view", v)
	})

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Sessions: core.Sessions,
		Portal:   core.Portal,
		Router:   core.Router,
		Audit:    core.Audit,
		Logger:   logger,
		Version:  Version,
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		core:   core,
		server: server,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.core.Close(); err != nil {
			a.log.Error("close credential store", "error", err)
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "backend", a.cfg.Backend.URL, "credential_store", a.cfg.Credentials.Store)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
