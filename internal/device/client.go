package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
)

// Client talks to a pillow over its own access point.
// Only reachable while the phone is joined to the device AP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Status is what the device reports about itself in AP mode
type Status struct {
	DeviceID        string `json:"device_id"`
	FirmwareVersion string `json:"firmware_version"`
	Provisioned     bool   `json:"provisioned"`
	WiFiSSID        string `json:"wifi_ssid,omitempty"`
}

// NewClient creates a device client; baseURL is the AP gateway
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Provision hands the home network credentials and provisioning token to the device
func (c *Client) Provision(ctx context.Context, req models.DeviceProvisionRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode provision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/provision", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build provision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Str("device", c.baseURL).Msg("Device unreachable")
		return fmt.Errorf("%w: push credentials: %w", apperr.ErrConnectFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: device answered %d: %s", apperr.ErrConnectFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Info().Str("wifi_ssid", req.WiFiSSID).Msg("Credentials delivered to device")
	return nil
}

// Status reads the device self-report
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: device status: %w", apperr.ErrConnectFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: device status answered %d", apperr.ErrConnectFailed, resp.StatusCode)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: decode device status: %w", apperr.ErrConnectFailed, err)
	}
	return &st, nil
}
