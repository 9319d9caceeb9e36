package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"uniportal/console/internal/session"
)

type staticTokens struct {
	token string
}

func (s staticTokens) CurrentToken(context.Context) (string, bool) {
	return s.token, s.token != ""
}

type stubAuthBackend struct{}

func (stubAuthBackend) Login(context.Context, string, string) (session.Session, error) {
	return session.Session{}, errors.New("not used")
}

func (stubAuthBackend) Register(context.Context, session.RegisterRequest) (session.Session, error) {
	return session.Session{}, errors.New("not used")
}

func newTestClient(t *testing.T, tokens TokenSource, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Tokens: tokens, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestBearerAttachedWhenSessionPresent(t *testing.T) {
	var gotAuth, gotID string
	c := newTestClient(t, staticTokens{token: "t1"}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get("X-Request-Id")
		_, _ = w.Write([]byte(`[]`))
	})

	var out []map[string]any
	if err := c.GetJSON(context.Background(), "/groups", &out); err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if gotAuth != "Bearer t1" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotID == "" {
		t.Fatalf("expected request id header")
	}
}

func TestNoBearerWithoutSession(t *testing.T) {
	var sawAuth bool
	c := newTestClient(t, staticTokens{}, func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.GetJSON(context.Background(), "/groups", nil); err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if sawAuth {
		t.Fatalf("expected no Authorization header")
	}
}

func TestRequestErrorCarriesBackendMessage(t *testing.T) {
	c := newTestClient(t, staticTokens{token: "t1"}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/with-message":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Access denied"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`oops`))
		}
	})

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{path: "/with-message", status: http.StatusForbidden, message: "Access denied"},
		{path: "/without-message", status: http.StatusInternalServerError, message: ""},
	}
	for _, tt := range tests {
		err := c.GetJSON(context.Background(), tt.path, nil)
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("%s: expected RequestError, got %v", tt.path, err)
		}
		if reqErr.Status != tt.status || reqErr.Message != tt.message {
			t.Fatalf("%s: unexpected error %+v", tt.path, reqErr)
		}
	}
}

func TestPostJSONSendsBody(t *testing.T) {
	var contentType string
	c := newTestClient(t, staticTokens{token: "t1"}, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":3}`))
	})

	var out struct {
		ID int `json:"id"`
	}
	if err := c.PostJSON(context.Background(), "/attendance/subject", map[string]any{"visited": true}, &out); err != nil {
		t.Fatalf("PostJSON() error: %v", err)
	}
	if contentType != "application/json" || out.ID != 3 {
		t.Fatalf("unexpected result content-type=%q out=%+v", contentType, out)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, staticTokens{}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	counter := func(context.Context, *Response) error {
		calls.Add(1)
		return nil
	}

	if !c.Install("count", counter) {
		t.Fatalf("expected first install to succeed")
	}
	if c.Install("count", counter) {
		t.Fatalf("expected second install to be a no-op")
	}
	if err := c.GetJSON(context.Background(), "/x", nil); err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected interceptor to run once, ran %d times", calls.Load())
	}
}

func TestUnauthorizedEndsSessionOnce(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, session.Session{Token: "t1", User: session.User{ID: 1, Email: "a@x.com", Role: session.RoleStudent}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc, err := session.NewService(session.ServiceConfig{Store: store, Backend: stubAuthBackend{}})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	var redirects atomic.Int32
	svc.OnEnded(func(session.EndReason) { redirects.Add(1) })

	c := newTestClient(t, svc, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid token"}`))
	})
	if !InstallAuthExpiry(c, svc) {
		t.Fatalf("expected policy install to succeed")
	}
	if InstallAuthExpiry(c, svc) {
		t.Fatalf("expected repeated policy install to be a no-op")
	}

	var wg sync.WaitGroup
	var ended atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.GetJSON(ctx, "/students", nil)
			var expired *AuthExpiredError
			if !errors.As(err, &expired) {
				t.Errorf("expected AuthExpiredError, got %v", err)
				return
			}
			if expired.Ended {
				ended.Add(1)
			}
		}()
	}
	wg.Wait()

	if svc.IsAuthenticated(ctx) {
		t.Fatalf("expected session to be cleared")
	}
	if redirects.Load() != 1 {
		t.Fatalf("expected one redirect, got %d", redirects.Load())
	}
	if ended.Load() != 1 {
		t.Fatalf("expected exactly one request to end the session, got %d", ended.Load())
	}
}

func TestUnauthorizedWithoutTokenKeepsNewSession(t *testing.T) {
	var expireCalls []string
	ender := enderFunc(func(_ context.Context, token string) (bool, error) {
		expireCalls = append(expireCalls, token)
		return false, nil
	})
	c := newTestClient(t, staticTokens{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	InstallAuthExpiry(c, ender)

	err := c.GetJSON(context.Background(), "/students", nil)
	var expired *AuthExpiredError
	if !errors.As(err, &expired) || expired.Ended {
		t.Fatalf("expected AuthExpiredError that ended nothing, got %v", err)
	}
	if len(expireCalls) != 1 || expireCalls[0] != "" {
		t.Fatalf("expected expire with empty token, got %v", expireCalls)
	}
}

type enderFunc func(ctx context.Context, token string) (bool, error)

func (f enderFunc) Expire(ctx context.Context, token string) (bool, error) {
	return f(ctx, token)
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Tokens: staticTokens{}}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := New(Config{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected error for missing token source")
	}
}
