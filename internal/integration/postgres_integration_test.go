package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"uniportal/console/internal/session"
)

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration tests")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping() error: %v", err)
	}
	return db
}

func newScopedStore(t *testing.T, db *sql.DB) (*session.PostgresStore, string) {
	t.Helper()
	scope := fmt.Sprintf("itest_%d", time.Now().UnixNano())
	store, err := session.NewPostgresStore(context.Background(), db, scope)
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM client_credentials WHERE scope = $1", scope)
	})
	return store, scope
}

func TestPostgresCredentialRoundTrip(t *testing.T) {
	db := openTestPostgres(t)
	store, scope := newScopedStore(t, db)
	ctx := context.Background()

	want := session.Session{
		Token: "t1",
		User:  session.User{ID: 1, Email: "a@x.com", Role: session.RoleStudent, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// A second store on the same scope sees the same session.
	other, err := session.NewPostgresStore(ctx, db, scope)
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}
	got, err := other.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got.Token != want.Token || got.User.Email != want.User.Email || !got.User.CreatedAt.Equal(want.User.CreatedAt) {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := other.Read(ctx); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestPostgresPartialStateReadsAsCorrupt(t *testing.T) {
	db := openTestPostgres(t)
	store, scope := newScopedStore(t, db)

	if _, err := db.Exec("INSERT INTO client_credentials (scope, key, value) VALUES ($1, 'token', 't9')", scope); err != nil {
		t.Fatalf("seed partial state: %v", err)
	}
	if _, err := store.Read(context.Background()); !errors.Is(err, session.ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession, got %v", err)
	}
}

type rejectingBackend struct{}

func (rejectingBackend) Login(context.Context, string, string) (session.Session, error) {
	return session.Session{}, &session.AuthError{Status: 401, Message: "Invalid email or password"}
}

func (rejectingBackend) Register(context.Context, session.RegisterRequest) (session.Session, error) {
	return session.Session{}, &session.AuthError{Status: 400, Message: "User already exists"}
}

func TestPostgresConcurrentExpireEndsOnce(t *testing.T) {
	db := openTestPostgres(t)
	store, _ := newScopedStore(t, db)
	ctx := context.Background()

	if err := store.Save(ctx, session.Session{Token: "t2", User: session.User{ID: 2, Email: "t@x.com", Role: session.RoleTeacher}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	svc, err := session.NewService(session.ServiceConfig{Store: store, Backend: rejectingBackend{}})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	var ended atomic.Int32
	svc.OnEnded(func(session.EndReason) { ended.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Expire(ctx, "t2"); err != nil {
				t.Errorf("Expire() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ended.Load() != 1 {
		t.Fatalf("expected one ended signal, got %d", ended.Load())
	}
	if svc.IsAuthenticated(ctx) {
		t.Fatalf("expected session cleared")
	}
}
