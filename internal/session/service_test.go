package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Log(actor, action, target, outcome, detail string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action+":"+outcome)
	return nil
}

func newBackendServer(t *testing.T, handler http.HandlerFunc) *HTTPAuthBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	backend, err := NewHTTPAuthBackend(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPAuthBackend() error: %v", err)
	}
	return backend
}

func newTestService(t *testing.T, store Store, handler http.HandlerFunc) (*Service, *recordingAudit) {
	t.Helper()
	audit := &recordingAudit{}
	svc, err := NewService(ServiceConfig{
		Store:   store,
		Backend: newBackendServer(t, handler),
		Audit:   audit,
	})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc, audit
}

func studentLoginHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login must not carry a bearer credential")
		}
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "a@x.com" || req.Password != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"t1","user":{"id":1,"role":"student","email":"a@x.com","created_at":"2024-01-01T00:00:00Z"}}`))
	}
}

func TestLoginPersistsSession(t *testing.T) {
	store := NewMemoryStore()
	svc, audit := newTestService(t, store, studentLoginHandler(t))
	ctx := context.Background()

	sess, err := svc.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	assertSameSession(t, sess, sampleSession())

	stored, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("store.Read() error: %v", err)
	}
	assertSameSession(t, stored, sampleSession())

	user, ok := svc.CurrentUser(ctx)
	if !ok || user.Role != RoleStudent {
		t.Fatalf("expected current user with role student, got %+v (ok=%v)", user, ok)
	}
	if token, ok := svc.CurrentToken(ctx); !ok || token != "t1" {
		t.Fatalf("expected token t1, got %q", token)
	}
	if !svc.IsAuthenticated(ctx) {
		t.Fatalf("expected authenticated")
	}
	if len(audit.actions) != 1 || audit.actions[0] != "auth.login:success" {
		t.Fatalf("unexpected audit trail: %v", audit.actions)
	}
}

func TestLoginRejectedKeepsStateAndMessage(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(t, store, studentLoginHandler(t))
	ctx := context.Background()

	existing := Session{Token: "old", User: User{ID: 5, Email: "t@x.com", Role: RoleTeacher}}
	if err := store.Save(ctx, existing); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.Login(ctx, "a@x.com", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized || authErr.Message != "Invalid email or password" {
		t.Fatalf("unexpected auth error: %+v", authErr)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("store.Read() error: %v", err)
	}
	if got.Token != "old" {
		t.Fatalf("expected previous session untouched, got %+v", got)
	}
}

func TestRegisterFallbackMessage(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := svc.Register(context.Background(), RegisterRequest{Email: "n@x.com", Password: "secret1", Role: RoleStudent})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Message != "registration failed" {
		t.Fatalf("expected fallback message, got %q", authErr.Message)
	}
	if svc.IsAuthenticated(context.Background()) {
		t.Fatalf("expected no session after failed registration")
	}
}

func TestRegisterPersistsSession(t *testing.T) {
	var got RegisterRequest
	svc, _ := newTestService(t, NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/register" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"t9","user":{"id":9,"role":"teacher","email":"n@x.com","full_name":"New Teacher","created_at":"2024-02-01T00:00:00Z"}}`))
	})

	sess, err := svc.Register(context.Background(), RegisterRequest{Email: "n@x.com", Password: "secret1", Role: RoleTeacher, FullName: "New Teacher"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if got.Role != RoleTeacher || got.FullName != "New Teacher" {
		t.Fatalf("unexpected register payload: %+v", got)
	}
	if sess.Token != "t9" || sess.User.DisplayName() != "New Teacher" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if user, ok := svc.CurrentUser(context.Background()); !ok || user.ID != 9 {
		t.Fatalf("expected stored user 9, got %+v", user)
	}
}

func TestLoginUnsupportedRoleNotPersisted(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"t1","user":{"id":1,"role":"janitor","email":"a@x.com"}}`))
	})

	_, err := svc.Login(context.Background(), "a@x.com", "secret1")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 for unsupported role, got %d", authErr.Status)
	}
	if svc.IsAuthenticated(context.Background()) {
		t.Fatalf("expected no session")
	}
}

func TestLoginWithoutTokenIsBadGateway(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"","user":{"id":1,"role":"student","email":"a@x.com"}}`))
	})

	_, err := svc.Login(context.Background(), "a@x.com", "secret1")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusBadGateway || authErr.Message != "response carried no token" {
		t.Fatalf("unexpected error %+v", authErr)
	}
	if svc.IsAuthenticated(context.Background()) {
		t.Fatalf("expected no session")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, audit := newTestService(t, NewMemoryStore(), studentLoginHandler(t))
	ctx := context.Background()

	var reasons []EndReason
	svc.OnEnded(func(r EndReason) { reasons = append(reasons, r) })

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout() without session error: %v", err)
	}
	if len(reasons) != 0 {
		t.Fatalf("expected no ended signal without a session, got %v", reasons)
	}

	if _, err := svc.Login(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("second Logout() error: %v", err)
	}
	if svc.IsAuthenticated(ctx) {
		t.Fatalf("expected unauthenticated after logout")
	}
	if len(reasons) != 1 || reasons[0] != EndLogout {
		t.Fatalf("expected one logout signal, got %v", reasons)
	}
	if audit.actions[len(audit.actions)-1] != "auth.logout:success" {
		t.Fatalf("expected logout audit entry, got %v", audit.actions)
	}
}

func TestExpireEndsSessionOnce(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(t, store, studentLoginHandler(t))
	ctx := context.Background()
	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	var signals atomic.Int32
	svc.OnEnded(func(r EndReason) {
		if r != EndExpired {
			t.Errorf("expected expired reason, got %s", r)
		}
		signals.Add(1)
	})

	var ended atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Expire(ctx, "t1")
			if err != nil {
				t.Errorf("Expire() error: %v", err)
			}
			if ok {
				ended.Add(1)
			}
		}()
	}
	wg.Wait()

	if ended.Load() != 1 || signals.Load() != 1 {
		t.Fatalf("expected exactly one ended session and signal, got %d/%d", ended.Load(), signals.Load())
	}
	if svc.IsAuthenticated(ctx) {
		t.Fatalf("expected session cleared")
	}
}

func TestExpireIgnoresStaleToken(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(t, store, studentLoginHandler(t))
	ctx := context.Background()
	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	for _, token := range []string{"", "older-token"} {
		ok, err := svc.Expire(ctx, token)
		if err != nil || ok {
			t.Fatalf("Expire(%q) = %v, %v; expected false, nil", token, ok, err)
		}
	}
	if !svc.IsAuthenticated(ctx) {
		t.Fatalf("expected newer session to survive")
	}
}

func TestCorruptStateReadsAsLoggedOut(t *testing.T) {
	store := &corruptStore{MemoryStore: NewMemoryStore(), corrupt: true}
	svc, _ := newTestService(t, store, studentLoginHandler(t))
	ctx := context.Background()

	if _, ok := svc.CurrentUser(ctx); ok {
		t.Fatalf("expected corrupt state to read as absent")
	}
	if svc.IsAuthenticated(ctx) {
		t.Fatalf("expected unauthenticated")
	}
	if store.clears == 0 {
		t.Fatalf("expected corrupt state to be cleared")
	}
}

type corruptStore struct {
	*MemoryStore
	corrupt bool
	clears  int
}

func (s *corruptStore) Read(ctx context.Context) (Session, error) {
	if s.corrupt {
		return Session{}, ErrCorruptSession
	}
	return s.MemoryStore.Read(ctx)
}

func (s *corruptStore) Clear(ctx context.Context) error {
	s.clears++
	s.corrupt = false
	return s.MemoryStore.Clear(ctx)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"role":    "student",
		"exp":     exp.Unix(),
	}).SignedString([]byte("not-known-to-the-client"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	got, ok := TokenExpiry(token)
	if !ok || !got.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v (ok=%v)", exp, got, ok)
	}
	if _, ok := TokenExpiry("opaque-token"); ok {
		t.Fatalf("expected opaque token to have no expiry")
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole(" Admin "); !ok || r != RoleAdmin {
		t.Fatalf("expected admin, got %q (%v)", r, ok)
	}
	if _, ok := ParseRole("proctor"); ok {
		t.Fatalf("expected proctor to be rejected")
	}
}
