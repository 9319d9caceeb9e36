package navigation

import (
	"context"
	"log/slog"
	"sync"

	"uniportal/console/internal/session"
)

// SessionSource gives the router fresh session snapshots.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, bool)
}

type State struct {
	Authenticated bool
	Role          session.Role
	View          View
}

// Router tracks the current view and moves to login when the session ends.
type Router struct {
	sessions SessionSource
	log      *slog.Logger

	mu         sync.Mutex
	state      State
	onRedirect func(View)
}

func NewRouter(sessions SessionSource, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions: sessions,
		log:      logger,
		state:    State{View: ViewLogin},
	}
}

// OnRedirect sets the listener called once for every ended session.
func (r *Router) OnRedirect(fn func(View)) {
	r.mu.Lock()
	r.onRedirect = fn
	r.mu.Unlock()
}

func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Navigate decides v against the session as it is now and records where the
// user ends up.
func (r *Router) Navigate(ctx context.Context, v View) Decision {
	sess, ok := r.sessions.Current(ctx)
	d := Decide(ok, sess.User.Role, v)

	r.mu.Lock()
	r.state = State{Authenticated: ok, Role: sess.User.Role, View: d.Target}
	r.mu.Unlock()

	if d.Outcome != Render {
		r.log.Debug("navigation redirected", "requested", v, "target", d.Target, "outcome", d.Outcome.String())
	}
	return d
}

// SignedIn moves to the landing view after a login or registration.
func (r *Router) SignedIn(ctx context.Context) Decision {
	return r.Navigate(ctx, Landing)
}

// SessionEnded is the handler for the session service's ended signal.
func (r *Router) SessionEnded(reason session.EndReason) {
	r.mu.Lock()
	r.state = State{View: ViewLogin}
	notify := r.onRedirect
	r.mu.Unlock()

	r.log.Info("session ended, returning to login", "reason", reason)
	if notify != nil {
		notify(ViewLogin)
	}
}
