// Package mobile is the gomobile surface of the pillow client.
// Every exported method takes and returns strings, bools or errors so that
// `gomobile bind` can expose it to the Android host unchanged.
package mobile

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/baegaepro/pillow-client/internal/app"
	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/bridge"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

// Host is the native bridge implemented by the Android app
type Host interface {
	bridge.Host
}

// SessionListener is told when the user has to log in again
type SessionListener interface {
	OnUnauthenticated()
}

// Client is one signed-in user's registration client
type Client struct {
	app *app.App

	mu       sync.Mutex
	listener SessionListener
	networks []wifi.DeviceNetwork
}

// userError carries the inline message a page shows for err
type userError struct {
	err error
}

func (e *userError) Error() string { return apperr.UserMessage(e.err) }
func (e *userError) Unwrap() error { return e.err }

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &userError{err: err}
}

var logging struct {
	once   sync.Once
	writer *bridge.LogWriter
}

// installLogging routes the process logger to the host sink.
// The logger is set up by the first client; later clients only move it to their host.
func installLogging(cfg config.LogConfig, a *bridge.Adapter) {
	logging.once.Do(func() {
		logging.writer = bridge.NewLogWriter(a, "pillow-core")
		app.SetupLogging(cfg, logging.writer)
	})
	logging.writer.SetAdapter(a)
}

// NewClient builds a client from YAML configuration; an empty string uses defaults.
// host may be nil outside the Android app.
func NewClient(configYAML string, host Host) (*Client, error) {
	cfg, err := config.Parse([]byte(configYAML))
	if err != nil {
		return nil, err
	}

	c := &Client{}
	var h bridge.Host
	if host != nil {
		h = host
	}

	installLogging(cfg.Log, bridge.New(h))

	a, err := app.New(cfg, h, c.unauthenticated)
	if err != nil {
		return nil, err
	}
	c.app = a
	return c, nil
}

// SetSessionListener registers the login redirect hook
func (c *Client) SetSessionListener(l SessionListener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *Client) unauthenticated() {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		l.OnUnauthenticated()
	}
}

// Close releases storage and event connections
func (c *Client) Close() error {
	return c.app.Close()
}

// Login signs in
func (c *Client) Login(email, password string) error {
	return wrap(c.app.API.Login(context.Background(), email, password))
}

// Signup registers an account and returns the server message
func (c *Client) Signup(email, password, name string) (string, error) {
	msg, err := c.app.API.Signup(context.Background(), email, password, name)
	return msg, wrap(err)
}

// Logout signs out; local tokens are always cleared
func (c *Client) Logout() error {
	return wrap(c.app.API.Logout(context.Background()))
}

// Dashboard returns the home screen snapshot as JSON
func (c *Client) Dashboard() (string, error) {
	d, err := c.app.API.Dashboard(context.Background())
	if err != nil {
		return "", wrap(err)
	}
	return marshal(d)
}

// Capabilities reports whether WiFi and haptics are available
func (c *Client) Capabilities() bool {
	return c.app.Flow.Capabilities()
}

// State names the current wizard page
func (c *Client) State() string {
	return c.app.Flow.State().String()
}

// Restore resumes a registration left by a previous page and returns the page name
func (c *Client) Restore() (string, error) {
	s, err := c.app.Flow.Restore(context.Background())
	return s.String(), wrap(err)
}

// BeginProvisioning requests a code and returns it as JSON
func (c *Client) BeginProvisioning() (string, error) {
	code, err := c.app.Flow.Begin(context.Background())
	if err != nil {
		return "", wrap(err)
	}
	return marshal(code)
}

// ScanDevices returns the pillow networks in range as a JSON array
func (c *Client) ScanDevices() (string, error) {
	networks, err := c.app.Flow.Scan(context.Background())
	if err != nil {
		return "", wrap(err)
	}

	c.mu.Lock()
	c.networks = networks
	c.mu.Unlock()
	return marshal(networks)
}

// SelectDevice picks a scanned network by SSID
func (c *Client) SelectDevice(ssid string) error {
	n := wifi.DeviceNetwork{SSID: ssid}

	c.mu.Lock()
	for _, candidate := range c.networks {
		if candidate.SSID == ssid {
			n = candidate
			break
		}
	}
	c.mu.Unlock()

	return wrap(c.app.Flow.SelectNetwork(context.Background(), n))
}

// SubmitWiFi joins the device and hands it the home network credentials
func (c *Client) SubmitWiFi(ssid, password string) error {
	return wrap(c.app.Flow.SubmitCredentials(context.Background(), models.WiFiCredentials{SSID: ssid, Password: password}))
}

// AwaitCompletion blocks until the device reports in and returns its id.
// CancelPolling, called from another thread, ends it early.
func (c *Client) AwaitCompletion() (string, error) {
	id, err := c.app.Flow.AwaitCompletion(context.Background())
	return id, wrap(err)
}

// CancelPolling stops AwaitCompletion when the page goes away
func (c *Client) CancelPolling() {
	c.app.Flow.CancelPolling()
}

// CompleteSetup names the device and ends the registration
func (c *Client) CompleteSetup(name, city, timezone string) (string, error) {
	msg, err := c.app.Flow.CompleteSetup(context.Background(), name, city, timezone)
	return msg, wrap(err)
}

// Abandon leaves the registration
func (c *Client) Abandon() error {
	return wrap(c.app.Flow.Abandon(context.Background()))
}

// Locations returns the selectable regions as a JSON array
func Locations() string {
	s, _ := marshal(models.LocationOptions)
	return s
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
