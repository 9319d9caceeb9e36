package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client   *redis.Client
	tokenKey string
	userKey  string
}

func NewRedisStore(client *redis.Client, prefix, scope string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, fmt.Errorf("credential scope is required")
	}
	base := prefix + scope + ":"
	return &RedisStore{
		client:   client,
		tokenKey: base + tokenKey,
		userKey:  base + userKey,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	token, user, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.MSet(ctx, s.tokenKey, token, s.userKey, user)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context) (Session, error) {
	vals, err := s.client.MGet(ctx, s.tokenKey, s.userKey).Result()
	if err != nil {
		return Session{}, fmt.Errorf("read credentials: %w", err)
	}
	return decodeSession(stringValue(vals[0]), stringValue(vals[1]))
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey, s.userKey).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// MGET yields nil for missing keys.
func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
