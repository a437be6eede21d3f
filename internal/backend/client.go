package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
)

// TokenStore persists the auth session
type TokenStore interface {
	Auth(ctx context.Context) (models.AuthSession, error)
	SetAuth(ctx context.Context, a models.AuthSession) error
	ClearAuth(ctx context.Context) error
}

// Client talks to the pillow backend REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore

	onUnauthenticated func()
	now               func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUnauthenticatedHandler is called after a failed token refresh cleared
// the session; hosts navigate to the login screen from here.
func WithUnauthenticatedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthenticated = fn }
}

// NewClient creates a backend client
func NewClient(baseURL string, timeout time.Duration, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// call describes one request
type call struct {
	op      string
	method  string
	path    string
	body    interface{}
	private bool
	kind    error
}

// do performs c and decodes the envelope data into out
func (c *Client) do(ctx context.Context, rc call, out interface{}) (*envelope, error) {
	if !rc.private {
		status, env, err := c.send(ctx, rc, "")
		if err != nil {
			return nil, err
		}
		return env, c.decode(rc, status, env, out)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	status, env, err := c.send(ctx, rc, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		// one refresh, one retry
		log.Debug().Str("op", rc.op).Msg("Access token rejected, refreshing")
		if token, err = c.refresh(ctx); err != nil {
			return nil, err
		}
		if status, env, err = c.send(ctx, rc, token); err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, c.unauthenticated(ctx, fmt.Errorf("%s: rejected after refresh", rc.op))
		}
	}

	return env, c.decode(rc, status, env, out)
}

func (c *Client) send(ctx context.Context, rc call, token string) (int, *envelope, error) {
	var body io.Reader
	if rc.body != nil {
		data, err := json.Marshal(rc.body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", rc.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, c.baseURL+rc.path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", rc.op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("op", rc.op).Str("path", rc.path).Msg("Backend request failed")
		return 0, nil, fmt.Errorf("%s: %w: %w", rc.op, apperr.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: read response: %w: %w", rc.op, apperr.ErrRequestFailed, err)
	}

	log.Debug().
		Str("op", rc.op).
		Str("method", rc.method).
		Str("path", rc.path).
		Int("status", resp.StatusCode).
		Bool("auth", token != "").
		Dur("took", c.now().Sub(start)).
		Msg("Backend response")

	env := &envelope{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, env); err != nil && resp.StatusCode/100 == 2 {
			return resp.StatusCode, nil, fmt.Errorf("%s: decode response: %w: %w", rc.op, apperr.ErrRequestFailed, err)
		}
	}
	return resp.StatusCode, env, nil
}

func (c *Client) decode(rc call, status int, env *envelope, out interface{}) error {
	if status/100 != 2 {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return apperr.NewRequestError(rc.op, status, msg, rc.kind)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w: %w", rc.op, apperr.ErrRequestFailed, err)
	}
	return nil
}

// accessToken returns a usable bearer token, refreshing an expired one first
func (c *Client) accessToken(ctx context.Context) (string, error) {
	auth, err := c.tokens.Auth(ctx)
	if err != nil {
		return "", fmt.Errorf("load auth: %w", err)
	}

	if auth.AccessToken == "" {
		if auth.RefreshToken == "" {
			return "", c.unauthenticated(ctx, errors.New("no stored credentials"))
		}
		return c.refresh(ctx)
	}

	if exp, ok := tokenExpiry(auth.AccessToken); ok && !c.now().Before(exp) && auth.RefreshToken != "" {
		log.Debug().Time("expired_at", exp).Msg("Access token expired, refreshing before request")
		return c.refresh(ctx)
	}
	return auth.AccessToken, nil
}

// tokenExpiry reads exp from a JWT without verifying it; opaque tokens report false
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// unauthenticated clears the session and notifies the host
func (c *Client) unauthenticated(ctx context.Context, cause error) error {
	if err := c.tokens.ClearAuth(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear auth state")
	}
	log.Warn().Err(cause).Msg("Session ended, login required")
	if c.onUnauthenticated != nil {
		c.onUnauthenticated()
	}
	return fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, cause)
}
