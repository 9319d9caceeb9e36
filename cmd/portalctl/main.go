package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"uniportal/console/internal/app"
	"uniportal/console/internal/cli"
	"uniportal/console/internal/config"
	"uniportal/console/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "load env file:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*app.Core, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return app.NewCore(ctx, cfg, observability.NewLogger(cfg.LogLevel))
	}

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
