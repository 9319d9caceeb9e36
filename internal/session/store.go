package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const (
	tokenKey = "token"
	userKey  = "user"
)

// Store persists the single active session. Save and Clear are all-or-nothing;
// Read reports ErrNoSession when nothing is stored and ErrCorruptSession when
// the stored pair is partial or the profile cannot be decoded.
type Store interface {
	Save(ctx context.Context, sess Session) error
	Read(ctx context.Context) (Session, error)
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	token string
	user  string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, sess Session) error {
	token, user, err := encodeSession(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.user = token, user
	return nil
}

func (s *MemoryStore) Read(_ context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decodeSession(s.token, s.user)
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.user = "", ""
	return nil
}

func encodeSession(sess Session) (string, string, error) {
	if strings.TrimSpace(sess.Token) == "" {
		return "", "", fmt.Errorf("session token is required")
	}
	if !sess.User.Role.Valid() {
		return "", "", fmt.Errorf("session role %q is not supported", sess.User.Role)
	}
	b, err := json.Marshal(sess.User)
	if err != nil {
		return "", "", fmt.Errorf("encode user profile: %w", err)
	}
	return sess.Token, string(b), nil
}

// decodeSession turns the two stored values back into a Session. Empty means
// unset.
func decodeSession(token, user string) (Session, error) {
	switch {
	case token == "" && user == "":
		return Session{}, ErrNoSession
	case token == "" || user == "":
		return Session{}, fmt.Errorf("%w: token and user profile out of step", ErrCorruptSession)
	}

	var u User
	if err := json.Unmarshal([]byte(user), &u); err != nil {
		return Session{}, fmt.Errorf("%w: decode user profile: %v", ErrCorruptSession, err)
	}
	if !u.Role.Valid() {
		return Session{}, fmt.Errorf("%w: unknown role %q", ErrCorruptSession, u.Role)
	}
	return Session{Token: token, User: u}, nil
}
