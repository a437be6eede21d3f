package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login signs in and stores both tokens
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out tokenPair
	_, err := c.do(ctx, call{
		op:     "login",
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return err
	}
	if out.AccessToken == "" {
		return fmt.Errorf("login: %w: response carries no access token", apperr.ErrRequestFailed)
	}

	log.Info().Str("email", email).Msg("Logged in")
	return c.tokens.SetAuth(ctx, models.AuthSession{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
}

// Signup registers a new account and returns the server message
func (c *Client) Signup(ctx context.Context, email, password, name string) (string, error) {
	env, err := c.do(ctx, call{
		op:     "signup",
		method: http.MethodPost,
		path:   "/api/v1/auth/signup",
		body:   map[string]string{"email": email, "password": password, "name": name},
	}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Refresh mints a new access token from the stored refresh token
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx)
	return err
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	auth, err := c.tokens.Auth(ctx)
	if err != nil {
		return "", fmt.Errorf("load auth: %w", err)
	}
	if auth.RefreshToken == "" {
		return "", c.unauthenticated(ctx, fmt.Errorf("no refresh token"))
	}

	var out tokenPair
	_, err = c.do(ctx, call{
		op:     "refresh",
		method: http.MethodPost,
		path:   "/api/v1/auth/refresh",
		body:   map[string]string{"refresh_token": auth.RefreshToken},
	}, &out)
	if err != nil {
		return "", c.unauthenticated(ctx, err)
	}
	if out.AccessToken == "" {
		return "", c.unauthenticated(ctx, fmt.Errorf("refresh returned no access token"))
	}

	if out.RefreshToken == "" {
		out.RefreshToken = auth.RefreshToken
	}
	if err := c.tokens.SetAuth(ctx, models.AuthSession{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}); err != nil {
		return "", fmt.Errorf("store auth: %w", err)
	}
	return out.AccessToken, nil
}

// Logout ends the server session. Local tokens are cleared even when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	auth, err := c.tokens.Auth(ctx)
	if err != nil {
		return fmt.Errorf("load auth: %w", err)
	}

	var callErr error
	if auth.AccessToken != "" {
		_, callErr = c.do(ctx, call{
			op:      "logout",
			method:  http.MethodPost,
			path:    "/api/v1/auth/logout",
			body:    map[string]string{"refresh_token": auth.RefreshToken},
			private: true,
		}, nil)
		if callErr != nil {
			log.Warn().Err(callErr).Msg("Logout request failed, clearing local session anyway")
		}
	}

	if err := c.tokens.ClearAuth(ctx); err != nil {
		return fmt.Errorf("clear auth: %w", err)
	}
	return nil
}

// Dashboard fetches the home screen snapshot
func (c *Client) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	var out models.Dashboard
	if _, err := c.do(ctx, call{
		op:      "dashboard",
		method:  http.MethodGet,
		path:    "/api/v1/dashboard",
		private: true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeviceStatus fetches one registered device
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (*models.Device, error) {
	var out models.Device
	if _, err := c.do(ctx, call{
		op:      "device status",
		method:  http.MethodGet,
		path:    "/api/v1/devices/" + deviceID,
		private: true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
