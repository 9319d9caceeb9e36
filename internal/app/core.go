package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"uniportal/console/internal/api"
	"uniportal/console/internal/audit"
	"uniportal/console/internal/config"
	"uniportal/console/internal/gateway"
	"uniportal/console/internal/navigation"
	"uniportal/console/internal/session"
)

// Core is the client stack both front ends drive: one session service, one
// gateway with the 401 policy installed, the typed API and the router
// subscribed to session endings.
type Core struct {
	Sessions *session.Service
	Gateway  *gateway.Client
	Portal   *api.Client
	Router   *navigation.Router
	Audit    *audit.Logger
	Log      *slog.Logger

	closers []func() error
}

func NewCore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, closers, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &Core{Log: logger, Audit: audit.NewLogger(cfg.AuditLogFile, cfg.Credentials.Scope), closers: closers}

	httpClient := &http.Client{Timeout: cfg.Backend.Timeout}
	backend, err := session.NewHTTPAuthBackend(cfg.Backend.URL, httpClient)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create auth backend: %w", err)
	}
	c.Sessions, err = session.NewService(session.ServiceConfig{
		Store:   store,
		Backend: backend,
		Audit:   c.Audit,
		Logger:  logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create session service: %w", err)
	}

	c.Gateway, err = gateway.New(gateway.Config{
		BaseURL:    cfg.Backend.URL,
		Tokens:     c.Sessions,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	gateway.InstallAuthExpiry(c.Gateway, c.Sessions)

	c.Router = navigation.NewRouter(c.Sessions, logger)
	c.Sessions.OnEnded(c.Router.SessionEnded)
	c.Portal = api.New(c.Gateway, api.Options{NegativeIDsIncomplete: cfg.StudentsNegativeIDsIncomplete})
	return c, nil
}

// Close releases the credential store's connections.
func (c *Core) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

func openStore(ctx context.Context, cfg config.Config) (session.Store, []func() error, error) {
	switch cfg.Credentials.Store {
	case config.StoreMemory:
		return session.NewMemoryStore(), nil, nil
	case config.StoreFile:
		store, err := session.NewFileStore(cfg.Credentials.File)
		if err != nil {
			return nil, nil, fmt.Errorf("create file credential store: %w", err)
		}
		return store, nil, nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		store, err := session.NewPostgresStore(ctx, db, cfg.Credentials.Scope)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create postgres credential store: %w", err)
		}
		return store, []func() error{db.Close}, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store, err := session.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Credentials.Scope)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("create redis credential store: %w", err)
		}
		return store, []func() error{client.Close}, nil
	}
	return nil, nil, fmt.Errorf("unsupported credential store %q", cfg.Credentials.Store)
}
