package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

type AuditLogger interface {
	Log(actor, action, target, outcome, detail string) error
}

type ServiceConfig struct {
	Store   Store
	Backend AuthBackend
	Audit   AuditLogger
	Logger  *slog.Logger
}

// Service is the only place a session is created or destroyed. Everything
// else reads snapshots through Current, CurrentUser and CurrentToken.
type Service struct {
	store   Store
	backend AuthBackend
	audit   AuditLogger
	log     *slog.Logger

	// mu serialises mutations so Expire can compare-and-clear.
	mu      sync.Mutex
	onEnded func(EndReason)
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("auth backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   cfg.Store,
		backend: cfg.Backend,
		audit:   cfg.Audit,
		log:     logger,
	}, nil
}

// OnEnded sets the subscriber told when a session ends through Logout or
// Expire. There is one subscriber; a later call replaces the earlier one.
func (s *Service) OnEnded(fn func(EndReason)) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	sess, err := s.backend.Login(ctx, email, password)
	if err != nil {
		s.auditSafe(email, "auth.login", "failed", err.Error())
		return Session{}, err
	}
	if err := s.persist(ctx, sess); err != nil {
		s.auditSafe(email, "auth.login", "failed", err.Error())
		return Session{}, err
	}
	s.auditSafe(sess.User.Email, "auth.login", "success", "role="+string(sess.User.Role))
	s.log.Info("session started", "user_id", sess.User.ID, "role", sess.User.Role)
	return sess, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	sess, err := s.backend.Register(ctx, req)
	if err != nil {
		s.auditSafe(req.Email, "auth.register", "failed", err.Error())
		return Session{}, err
	}
	if err := s.persist(ctx, sess); err != nil {
		s.auditSafe(req.Email, "auth.register", "failed", err.Error())
		return Session{}, err
	}
	s.auditSafe(sess.User.Email, "auth.register", "success", "role="+string(sess.User.Role))
	s.log.Info("session started", "user_id", sess.User.ID, "role", sess.User.Role)
	return sess, nil
}

func (s *Service) persist(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Logout clears the stored session. Without a session it does nothing.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	prev, readErr := s.store.Read(ctx)
	if err := s.store.Clear(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear session: %w", err)
	}
	notify := s.onEnded
	s.mu.Unlock()

	if readErr != nil {
		return nil
	}
	s.auditSafe(prev.User.Email, "auth.logout", "success", "")
	s.log.Info("session ended", "user_id", prev.User.ID, "reason", EndLogout)
	if notify != nil {
		notify(EndLogout)
	}
	return nil
}

// Expire ends the session a rejected request was sent with. It only clears
// the store when token is still the current one, so any number of concurrent
// 401s for the same session end it exactly once. It reports whether this call
// ended the session.
func (s *Service) Expire(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	s.mu.Lock()
	cur, err := s.store.Read(ctx)
	if err != nil || cur.Token != token {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.store.Clear(ctx); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("clear expired session: %w", err)
	}
	notify := s.onEnded
	s.mu.Unlock()

	s.auditSafe(cur.User.Email, "session.expired", "success", "user_id="+strconv.FormatInt(cur.User.ID, 10))
	s.log.Warn("session ended", "user_id", cur.User.ID, "reason", EndExpired)
	if notify != nil {
		notify(EndExpired)
	}
	return true, nil
}

// Current returns a snapshot of the stored session. Unreadable state is
// treated as no session and wiped.
func (s *Service) Current(ctx context.Context) (Session, bool) {
	sess, err := s.store.Read(ctx)
	if err == nil {
		return sess, true
	}
	switch {
	case errors.Is(err, ErrNoSession):
	case errors.Is(err, ErrCorruptSession):
		s.discardCorrupt(ctx)
	default:
		s.log.Error("read session failed", "error", err)
	}
	return Session{}, false
}

func (s *Service) discardCorrupt(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A login may have landed between the failed read and the lock.
	if _, err := s.store.Read(ctx); !errors.Is(err, ErrCorruptSession) {
		return
	}
	s.log.Warn("discarding unreadable session state")
	if err := s.store.Clear(ctx); err != nil {
		s.log.Error("clear unreadable session failed", "error", err)
	}
}

func (s *Service) CurrentUser(ctx context.Context) (User, bool) {
	sess, ok := s.Current(ctx)
	return sess.User, ok
}

func (s *Service) CurrentToken(ctx context.Context) (string, bool) {
	sess, ok := s.Current(ctx)
	return sess.Token, ok
}

func (s *Service) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.CurrentToken(ctx)
	return ok
}

func (s *Service) auditSafe(actor, action, outcome, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(actor, action, "session", outcome, detail); err != nil {
		s.log.Error("audit write failed", "action", action, "error", err)
	}
}
