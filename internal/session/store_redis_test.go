package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	_, client := newTestRedis(t)
	store, err := NewRedisStore(client, "portal:", "default")
	if err != nil {
		t.Fatalf("NewRedisStore() error: %v", err)
	}
	return store
}

func TestRedisStoreKeysAndCorruption(t *testing.T) {
	mr, client := newTestRedis(t)
	store, err := NewRedisStore(client, "portal:", "lab")
	if err != nil {
		t.Fatalf("NewRedisStore() error: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got, err := mr.Get("portal:lab:token"); err != nil || got != "t1" {
		t.Fatalf("expected token key to hold t1, got %q (%v)", got, err)
	}
	if !mr.Exists("portal:lab:user") {
		t.Fatalf("expected user key to exist")
	}

	mr.Del("portal:lab:user")
	if _, err := store.Read(ctx); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession for token without user, got %v", err)
	}

	if err := mr.Set("portal:lab:user", "{oops"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := store.Read(ctx); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession for bad profile, got %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if mr.Exists("portal:lab:token") || mr.Exists("portal:lab:user") {
		t.Fatalf("expected both keys removed")
	}
}

func TestNewRedisStoreValidation(t *testing.T) {
	if _, err := NewRedisStore(nil, "p:", "default"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	_, client := newTestRedis(t)
	if _, err := NewRedisStore(client, "p:", ""); err == nil {
		t.Fatalf("expected error for empty scope")
	}
}
