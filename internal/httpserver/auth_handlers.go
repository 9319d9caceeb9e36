package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"uniportal/console/internal/navigation"
	"uniportal/console/internal/session"
)

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, "session service unavailable")
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		sess, err := deps.Sessions.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeAuthError(w, err, "login failed")
			return
		}
		writeSignedIn(w, r, deps, http.StatusOK, sess)
	})

	mux.HandleFunc("/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, "session service unavailable")
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Role     string `json:"role"`
			FullName string `json:"full_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		role, ok := session.ParseRole(req.Role)
		if !ok {
			writeError(w, http.StatusBadRequest, "role must be one of student, teacher, admin")
			return
		}

		sess, err := deps.Sessions.Register(r.Context(), session.RegisterRequest{
			Email:    req.Email,
			Password: req.Password,
			Role:     role,
			FullName: strings.TrimSpace(req.FullName),
		})
		if err != nil {
			writeAuthError(w, err, "registration failed")
			return
		}
		writeSignedIn(w, r, deps, http.StatusCreated, sess)
	})

	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, "session service unavailable")
			return
		}
		if err := deps.Sessions.Logout(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sess, ok := requireSession(w, r, deps)
		if !ok {
			return
		}
		out := map[string]any{"user": sess.User}
		if exp, ok := session.TokenExpiry(sess.Token); ok {
			out["expires_at"] = exp.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func writeSignedIn(w http.ResponseWriter, r *http.Request, deps Deps, status int, sess session.Session) {
	target := navigation.Landing
	if deps.Router != nil {
		target = deps.Router.SignedIn(r.Context()).Target
	}
	writeJSON(w, status, map[string]any{
		"token":    sess.Token,
		"user":     sess.User,
		"redirect": target.Path(),
	})
}

func writeAuthError(w http.ResponseWriter, err error, fallback string) {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		msg := authErr.Message
		if msg == "" {
			msg = fallback
		}
		status := authErr.Status
		// A failed sign-in must never reach the browser as a success.
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		writeError(w, status, msg)
		return
	}
	writeError(w, http.StatusBadGateway, fallback)
}

// requireSession answers 401 when nothing is signed in.
func requireSession(w http.ResponseWriter, r *http.Request, deps Deps) (session.Session, bool) {
	if deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session service unavailable")
		return session.Session{}, false
	}
	sess, ok := deps.Sessions.Current(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return session.Session{}, false
	}
	return sess, true
}

func registerNavHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/nav", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sess, ok := requireSession(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"role":  sess.User.Role,
			"items": menuItems(sess.User.Role),
		})
	})
}

type menuItem struct {
	View navigation.View `json:"view"`
	Path string          `json:"path"`
}

func menuItems(role session.Role) []menuItem {
	views := navigation.Menu(role)
	out := make([]menuItem, 0, len(views))
	for _, v := range views {
		out = append(out, menuItem{View: v, Path: v.Path()})
	}
	return out
}
