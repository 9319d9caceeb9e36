package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"uniportal/console/internal/api"
	"uniportal/console/internal/config"
	"uniportal/console/internal/gateway"
	"uniportal/console/internal/navigation"
	"uniportal/console/internal/session"
)

type SessionService interface {
	Login(ctx context.Context, email, password string) (session.Session, error)
	Register(ctx context.Context, req session.RegisterRequest) (session.Session, error)
	Logout(ctx context.Context) error
	Current(ctx context.Context) (session.Session, bool)
}

type PortalAPI interface {
	GetStudent(ctx context.Context, id int64) (api.Student, error)
	ListStudents(ctx context.Context) ([]api.StudentListing, error)
	ListSchedules(ctx context.Context) ([]api.Schedule, error)
	ListSchedulesByGroup(ctx context.Context, groupID int64) ([]api.Schedule, error)
	SubmitAttendance(ctx context.Context, rec api.AttendanceRecord) (api.Attendance, error)
	AttendanceByStudent(ctx context.Context, studentID int64) ([]api.Attendance, error)
	AttendanceBySubject(ctx context.Context, subjectID int64) ([]api.Attendance, error)
	ListUsers(ctx context.Context) ([]session.User, error)
	ListGroups(ctx context.Context) ([]api.Group, error)
	CreateStudentFromUser(ctx context.Context, req api.CreateStudentRequest) (api.Student, error)
}

type Navigator interface {
	Navigate(ctx context.Context, v navigation.View) navigation.Decision
	SignedIn(ctx context.Context) navigation.Decision
}

type AuditLogger interface {
	Log(actor, action, target, outcome, detail string) error
}

type Deps struct {
	Sessions SessionService
	Portal   PortalAPI
	Router   Navigator
	Audit    AuditLogger
	Logger   *slog.Logger
	Version  string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(deps.Logger, handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Sessions == nil || deps.Portal == nil || deps.Router == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/v1/info", func(w http.ResponseWriter, _ *http.Request) {
		version := deps.Version
		if version == "" {
			version = "dev"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "uniportal-console",
			"version": version,
		})
	})

	registerAuthHandlers(mux, deps)
	registerNavHandlers(mux, deps)
	registerViewHandlers(mux, deps)

	return mux
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writePortalError maps failures of backend calls onto console responses.
func writePortalError(w http.ResponseWriter, r *http.Request, err error) {
	var expired *gateway.AuthExpiredError
	var reqErr *gateway.RequestError
	var vErr *api.ValidationError
	switch {
	case errors.As(err, &expired):
		redirect(w, r, navigation.ViewLogin)
	case errors.As(err, &reqErr):
		writeError(w, reqErr.Status, reqErr.Message)
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": vErr.Error(), "fields": vErr.Fields})
	default:
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func redirect(w http.ResponseWriter, r *http.Request, v navigation.View) {
	http.Redirect(w, r, v.Path(), http.StatusSeeOther)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", reqID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDKey{})
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, actor, action, target, outcome, detail string) {
	if a == nil {
		return
	}
	parts := []string{
		"rid=" + requestIDFromContext(r.Context()),
		"ip=" + clientIP(r),
	}
	if strings.TrimSpace(detail) != "" {
		parts = append(parts, "detail="+strings.TrimSpace(detail))
	}
	_ = a.Log(actor, action, target, outcome, strings.Join(parts, " | "))
}
