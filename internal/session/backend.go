package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// AuthBackend issues sessions. It does not go through the authenticated
// gateway: a 401 here means bad credentials, not an expired session.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (Session, error)
	Register(ctx context.Context, req RegisterRequest) (Session, error)
}

type HTTPAuthBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAuthBackend(baseURL string, client *http.Client) (*HTTPAuthBackend, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAuthBackend{baseURL: baseURL, client: client}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (b *HTTPAuthBackend) Login(ctx context.Context, email, password string) (Session, error) {
	return b.post(ctx, "/api/auth/login", loginRequest{Email: email, Password: password}, "login failed")
}

func (b *HTTPAuthBackend) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	return b.post(ctx, "/api/auth/register", req, "registration failed")
}

func (b *HTTPAuthBackend) post(ctx context.Context, path string, body any, fallback string) (Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Session{}, fmt.Errorf("encode auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := b.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, fmt.Errorf("read auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := backendMessage(raw)
		if msg == "" {
			msg = fallback
		}
		return Session{}, &AuthError{Status: resp.StatusCode, Message: msg}
	}

	var out authResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Session{}, fmt.Errorf("decode auth response: %w", err)
	}
	if out.Token == "" {
		return Session{}, &AuthError{Status: http.StatusBadGateway, Message: "response carried no token"}
	}
	if !out.User.Role.Valid() {
		return Session{}, &AuthError{Status: http.StatusBadGateway, Message: fmt.Sprintf("unsupported role %q", out.User.Role)}
	}
	return Session{Token: out.Token, User: out.User}, nil
}

func backendMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
