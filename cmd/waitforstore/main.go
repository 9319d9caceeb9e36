package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"uniportal/console/internal/config"
)

// waitforstore blocks until the configured credential store answers. File
// and memory stores need no wait.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	timeout := 60 * time.Second
	if raw := os.Getenv("WAIT_FOR_STORE_TIMEOUT_SEC"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			fmt.Fprintf(os.Stderr, "invalid WAIT_FOR_STORE_TIMEOUT_SEC: %q\n", raw)
			os.Exit(2)
		}
		timeout = time.Duration(secs) * time.Second
	}

	var ping func(ctx context.Context) error
	var closeStore func() error
	switch cfg.Credentials.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open postgres: %v\n", err)
			os.Exit(1)
		}
		ping = db.PingContext
		closeStore = db.Close
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		closeStore = client.Close
	default:
		fmt.Printf("%s store ready\n", cfg.Credentials.Store)
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := ping(ctx)
		cancel()
		if err == nil {
			_ = closeStore()
			fmt.Printf("%s store ready\n", cfg.Credentials.Store)
			return
		}
		if time.Now().After(deadline) {
			_ = closeStore()
			fmt.Fprintf(os.Stderr, "%s store not ready within %s: %v\n", cfg.Credentials.Store, timeout, err)
			os.Exit(1)
		}
		time.Sleep(2 * time.Second)
	}
}
