package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nitroshare/cmd/internal/ids"
)

const (
	// maxResponseBytes bounds decoded response bodies.
	maxResponseBytes = 4 << 20

	// SessionScheme is the Authorization scheme the backend accepts for session ids.
	SessionScheme = "session"
)

// Endpoint paths (wire-stable).
const (
	PathMe            = "/api/me"
	PathLogout        = "/api/me/logout"
	PathConfiguration = "/api/configuration"
	PathLogin         = "/api/public/login"
	PathRegister      = "/api/public/register"
	PathRegisterCheck = "/api/public/register/check"
)

// Client performs requests against the nitro_share backend.
//
// It is safe for concurrent use. The session credential is read per request,
// so SetSession takes effect for requests started afterwards.
type Client struct {
	base *url.URL
	hc   *http.Client
	log  *slog.Logger
	now  func() time.Time

	mu        sync.RWMutex
	sessionID string
}

// Option configures optional Client dependencies.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient constructs a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: unsupported scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("api: base url missing host")
	}

	c := &Client{
		base: u,
		hc:   &http.Client{Timeout: 15 * time.Second},
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// SetSession sets the session id sent with subsequent requests. Empty clears it.
func (c *Client) SetSession(sessionID string) {
	c.mu.Lock()
	c.sessionID = strings.TrimSpace(sessionID)
	c.mu.Unlock()
}

func (c *Client) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Me fetches the user behind the current session.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	if _, err := c.do(ctx, "api.Me", http.MethodGet, PathMe, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Logout asks the backend to drop the current session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "api.Logout", http.MethodGet, PathLogout, nil, nil)
	return err
}

// Configuration fetches the backend configuration report.
func (c *Client) Configuration(ctx context.Context) (Report, error) {
	var r Report
	if _, err := c.do(ctx, "api.Configuration", http.MethodGet, PathConfiguration, nil, &r); err != nil {
		return Report{}, err
	}
	return r, nil
}

// Login exchanges credentials for a user and session.
func (c *Client) Login(ctx context.Context, in LoginRequest) (LoginResponse, error) {
	var out LoginResponse
	if _, err := c.do(ctx, "api.Login", http.MethodPost, PathLogin, in, &out); err != nil {
		return LoginResponse{}, err
	}
	return out, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (User, error) {
	var u User
	if _, err := c.do(ctx, "api.Register", http.MethodPost, PathRegister, in, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// CheckRegister posts an availability check and returns the response status.
// A non-2xx status is returned together with a *StatusError; status is 0 when
// no response was received.
func (c *Client) CheckRegister(ctx context.Context, body any) (int, error) {
	return c.do(ctx, "api.CheckRegister", http.MethodPost, PathRegisterCheck, body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	reqID := ids.MustNew(c.now())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sid := c.session(); sid != "" {
		req.Header.Set("Authorization", SessionScheme+" "+sid)
	}

	start := c.now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug("api.request.fail", "op", op, "request_id", reqID, "err", err)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("api.request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", c.now().Sub(start).Milliseconds(),
		"request_id", reqID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return resp.StatusCode, &StatusError{Op: op, Status: resp.StatusCode}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return resp.StatusCode, nil
}
