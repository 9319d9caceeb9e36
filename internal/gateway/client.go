package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenSource yields the bearer credential of the active session.
type TokenSource interface {
	CurrentToken(ctx context.Context) (string, bool)
}

// Response is what interceptors see once the body has been read.
type Response struct {
	Method string
	Path   string
	Status int
	Body   []byte
	// Token is the credential the request was sent with, empty when none.
	Token string
}

// ResponseInterceptor runs on every response. A non-nil error becomes the
// result of the call.
type ResponseInterceptor func(ctx context.Context, resp *Response) error

type Config struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	// Timeout applies only when HTTPClient is nil. Zero means none.
	Timeout time.Duration
	Logger  *slog.Logger
}

type namedInterceptor struct {
	name string
	fn   ResponseInterceptor
}

type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	log     *slog.Logger

	mu           sync.RWMutex
	interceptors []namedInterceptor
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		tokens:  cfg.Tokens,
		http:    httpClient,
		log:     logger,
	}, nil
}

// Install adds an interceptor under name. Installing a name that is already
// present leaves the chain unchanged and returns false.
func (c *Client) Install(name string, fn ResponseInterceptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range c.interceptors {
		if in.name == name {
			return false
		}
	}
	c.interceptors = append(c.interceptors, namedInterceptor{name: name, fn: fn})
	return true
}

func (c *Client) chain() []namedInterceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]namedInterceptor, len(c.interceptors))
	copy(out, c.interceptors)
	return out
}

// Do sends one request and returns the body of a 2xx response.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)

	// Token is read per request; never cached on the client.
	token, ok := c.tokens.CurrentToken(ctx)
	if ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		token = ""
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s %s: %w", method, path, err)
	}
	c.log.Debug("backend call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	out := &Response{Method: method, Path: path, Status: resp.StatusCode, Body: raw, Token: token}
	for _, in := range c.chain() {
		if err := in.fn(ctx, out); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Status: resp.StatusCode, Message: backendMessage(raw)}
	}
	return raw, nil
}

func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	raw, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(raw, out, path)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	raw, err := c.Do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return decode(raw, out, path)
}

func decode(raw []byte, out any, path string) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response of %s: %w", path, err)
	}
	return nil
}
