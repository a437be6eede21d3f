package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
)

// RequestCode asks the backend for a provisioning code
func (c *Client) RequestCode(ctx context.Context, deviceType, location string) (*models.ProvisioningCode, error) {
	var out models.ProvisioningCode
	_, err := c.do(ctx, call{
		op:      "request provisioning code",
		method:  http.MethodPost,
		path:    "/api/v1/devices/provisioning/request",
		body:    map[string]string{"device_type": deviceType, "location": location},
		private: true,
		kind:    apperr.ErrProvisioningRequestFailed,
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.Code == "" {
		return nil, apperr.NewRequestError("request provisioning code", http.StatusOK, "", apperr.ErrProvisioningRequestFailed)
	}
	if out.ExpiresAt.IsZero() && out.ExpiresIn > 0 {
		out.ExpiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return &out, nil
}

// PollStatus reports the backend view of a provisioning code
func (c *Client) PollStatus(ctx context.Context, code string) (*models.StatusResult, error) {
	var out models.StatusResult
	_, err := c.do(ctx, call{
		op:      "provisioning status",
		method:  http.MethodPost,
		path:    "/api/v1/devices/provisioning/status",
		body:    map[string]string{"provisioning_code": code},
		private: true,
	}, &out)
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case models.StatusPending, models.StatusConnected, models.StatusCompleted,
		models.StatusExpired, models.StatusFailed:
	default:
		return nil, fmt.Errorf("provisioning status: %w: unknown status %q", apperr.ErrRequestFailed, out.Status)
	}
	return &out, nil
}

// CompleteSetup finalizes device metadata and returns the server message
func (c *Client) CompleteSetup(ctx context.Context, req models.SetupRequest) (string, error) {
	env, err := c.do(ctx, call{
		op:      "complete setup",
		method:  http.MethodPost,
		path:    "/api/v1/devices/provisioning/complete",
		body:    req,
		private: true,
	}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}
