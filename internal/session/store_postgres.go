package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db    *sql.DB
	scope string
}

// NewPostgresStore keeps credentials in client_credentials, one row per key,
// partitioned by scope so several consoles can share a database.
func NewPostgresStore(ctx context.Context, db *sql.DB, scope string) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, fmt.Errorf("credential scope is required")
	}
	s := &PostgresStore{db: db, scope: scope}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS client_credentials (
	scope TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (scope, key)
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure client_credentials schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, sess Session) error {
	token, user, err := encodeSession(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO client_credentials (scope, key, value, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, q, s.scope, tokenKey, token); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, s.scope, userKey, user); err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context) (Session, error) {
	const q = `SELECT key, value FROM client_credentials WHERE scope = $1`
	rows, err := s.db.QueryContext(ctx, q, s.scope)
	if err != nil {
		return Session{}, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var token, user string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Session{}, fmt.Errorf("scan credential: %w", err)
		}
		switch key {
		case tokenKey:
			token = value
		case userKey:
			user = value
		}
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("iterate credentials: %w", err)
	}
	return decodeSession(token, user)
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_credentials WHERE scope = $1`, s.scope); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
