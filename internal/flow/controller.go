package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/bridge"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/device"
	"github.com/baegaepro/pillow-client/internal/events"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/internal/session"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

// DefaultTimezone is sent when setup names none
const DefaultTimezone = "Asia/Seoul"

// Backend is the provisioning part of the REST client
type Backend interface {
	StatusSource
	RequestCode(ctx context.Context, deviceType, location string) (*models.ProvisioningCode, error)
	CompleteSetup(ctx context.Context, req models.SetupRequest) (string, error)
}

// DeviceAP talks to a device over its own access point
type DeviceAP interface {
	Status(ctx context.Context) (*device.Status, error)
	Provision(ctx context.Context, req models.DeviceProvisionRequest) error
}

// Radio is the WiFi and haptics part of the native bridge
type Radio interface {
	Available() bool
	ScanNetworks(ctx context.Context) ([]wifi.RawNetwork, error)
	Connect(ctx context.Context, ssid, password string, isHidden bool) (bridge.ConnectResult, error)
	ConnectAsSecondary(ctx context.Context, ssid, password string) (bridge.ConnectResult, error)
	Vibrate(durationMs int)
	VibratePattern(pattern []int)
}

// Options tune a controller
type Options struct {
	DeviceType       string
	Location         string
	ServerURL        string
	Prefixes         []string
	PollInterval     time.Duration
	PollAttempts     int
	RescanAfter      time.Duration
	SecondaryConnect bool // keep the phone's network while joined to the device AP
}

// OptionsFromConfig maps the loaded configuration onto controller options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DeviceType:       cfg.Provisioning.DeviceType,
		Location:         cfg.Provisioning.Location,
		ServerURL:        cfg.Device.ServerURL,
		Prefixes:         cfg.Provisioning.NetworkPrefixes,
		PollInterval:     cfg.Provisioning.PollInterval,
		PollAttempts:     cfg.Provisioning.PollAttempts,
		RescanAfter:      cfg.Provisioning.RescanAfter,
		SecondaryConnect: cfg.Provisioning.SecondaryConnect,
	}
}

// Controller drives one device registration through the wizard states.
// Each step checks the current state, does its work, writes the session
// back and advances.
type Controller struct {
	backend   Backend
	device    DeviceAP
	radio     Radio
	sessions  *session.Store
	publisher events.Publisher
	poller    *Poller
	opts      Options
	now       func() time.Time

	mu         sync.Mutex
	state      State
	cancelPoll *context.CancelFunc
}

// NewController wires a controller; a nil publisher drops transitions
func NewController(backend Backend, device DeviceAP, radio Radio, sessions *session.Store, publisher events.Publisher, opts Options) *Controller {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Controller{
		backend:   backend,
		device:    device,
		radio:     radio,
		sessions:  sessions,
		publisher: publisher,
		poller:    NewPoller(backend, opts.PollInterval, opts.PollAttempts),
		opts:      opts,
		now:       time.Now,
		state:     Start,
	}
}

// State returns the current wizard page
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities reports whether hardware steps can run on this host
func (c *Controller) Capabilities() bool {
	return c.radio != nil && c.radio.Available()
}

// Restore resumes from the persisted session, starting over when it is gone or expired
func (c *Controller) Restore(ctx context.Context) (State, error) {
	sess, err := c.sessions.Load(ctx, c.now())
	if err != nil && !isStale(err) {
		return c.State(), err
	}
	if err != nil {
		if cerr := c.sessions.ClearProvisioning(ctx); cerr != nil {
			return c.State(), cerr
		}
	}

	state := Resume(sess, c.now())
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	log.Info().Str("state", state.String()).Msg("Provisioning flow restored")
	return state, nil
}

// Begin requests a fresh provisioning code, discarding any previous attempt
func (c *Controller) Begin(ctx context.Context) (*models.ProvisioningCode, error) {
	if err := c.sessions.ClearProvisioning(ctx); err != nil {
		return nil, err
	}
	c.setState(Start)

	code, err := c.backend.RequestCode(ctx, c.opts.DeviceType, c.opts.Location)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.SetCode(ctx, code.Code, code.ExpiresAt); err != nil {
		return nil, err
	}

	if err := c.transition(ctx, CodeIssued, ""); err != nil {
		return nil, err
	}
	return code, nil
}

// Scan lists the pillow networks in range, strongest first.
// An empty list is not an error; the page offers a rescan.
func (c *Controller) Scan(ctx context.Context) ([]wifi.DeviceNetwork, error) {
	if err := c.expect(NetworkSearch, "scan"); err != nil {
		return nil, err
	}
	if _, err := c.session(ctx); err != nil {
		return nil, err
	}

	raw, err := c.radio.ScanNetworks(ctx)
	if err != nil {
		return nil, err
	}
	networks := wifi.DeviceNetworks(raw, c.opts.Prefixes...)

	log.Info().Int("found", len(networks)).Int("scanned", len(raw)).Msg("Device networks scanned")
	return networks, nil
}

// ScanUntilFound scans once more after RescanAfter when the first scan is empty
func (c *Controller) ScanUntilFound(ctx context.Context) ([]wifi.DeviceNetwork, error) {
	networks, err := c.Scan(ctx)
	if err != nil || len(networks) > 0 {
		return networks, err
	}

	wait := c.opts.RescanAfter
	if wait <= 0 {
		wait = 15 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return c.Scan(ctx)
}

// SelectNetwork records the device the user picked
func (c *Controller) SelectNetwork(ctx context.Context, n wifi.DeviceNetwork) error {
	if err := c.expect(NetworkSearch, "select network"); err != nil {
		return err
	}
	if _, err := c.session(ctx); err != nil {
		return err
	}

	if n.DeviceID == "" {
		n.DeviceID = wifi.ExtractDeviceID(n.SSID, c.opts.Prefixes...)
	}
	if n.DeviceID == "" {
		return fmt.Errorf("%w: %q is not a pillow network", apperr.ErrInvalidInput, n.SSID)
	}

	if err := c.sessions.SetSelectedNetwork(ctx, n); err != nil {
		return err
	}
	return c.transition(ctx, NetworkSelected, n.DeviceID)
}

// SubmitCredentials joins the device access point and hands it the home network.
// A refused join keeps the page for another try; a device that rejects the push ends the attempt.
func (c *Controller) SubmitCredentials(ctx context.Context, creds models.WiFiCredentials) error {
	if err := c.expect(CredentialEntry, "submit credentials"); err != nil {
		return err
	}
	if strings.TrimSpace(creds.SSID) == "" {
		return fmt.Errorf("%w: home network name is required", apperr.ErrInvalidInput)
	}

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if sess.SelectedNetwork == nil {
		return c.fail(ctx, fmt.Errorf("%w: no device network selected", apperr.ErrMissingState))
	}
	target := sess.SelectedNetwork

	if err := c.joinDevice(ctx, target); err != nil {
		return err
	}

	if err := c.sessions.SetCredentials(ctx, creds); err != nil {
		return err
	}

	err = c.device.Provision(ctx, models.DeviceProvisionRequest{
		ProvisioningToken: sess.ProvisioningCode,
		WiFiSSID:          creds.SSID,
		WiFiPassword:      creds.Password,
		ServerURL:         c.opts.ServerURL,
	})
	if err != nil {
		return c.fail(ctx, err)
	}

	c.radio.Vibrate(100)
	return c.transition(ctx, CredentialsDelivered, target.DeviceID)
}

// joinDevice joins the device AP and checks the device answering is the one selected.
// Every failure here is recoverable from the same page.
func (c *Controller) joinDevice(ctx context.Context, target *wifi.DeviceNetwork) error {
	password := wifi.GenerateDevicePassword(target.DeviceID)

	var (
		res bridge.ConnectResult
		err error
	)
	if c.opts.SecondaryConnect {
		res, err = c.radio.ConnectAsSecondary(ctx, target.SSID, password)
	} else {
		res, err = c.radio.Connect(ctx, target.SSID, password, false)
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", apperr.ErrConnectFailed, res.Message)
	}

	st, err := c.device.Status(ctx)
	if err != nil {
		return err
	}
	if st.DeviceID != "" && !strings.EqualFold(st.DeviceID, target.DeviceID) {
		return fmt.Errorf("%w: joined device %s, selected %s", apperr.ErrConnectFailed, st.DeviceID, target.DeviceID)
	}

	log.Info().
		Str("device_id", target.DeviceID).
		Str("firmware", st.FirmwareVersion).
		Bool("provisioned", st.Provisioned).
		Bool("secondary", c.opts.SecondaryConnect).
		Msg("Joined device access point")
	return nil
}

// AwaitCompletion polls the backend until the device reports in.
// Cancelling ctx or calling CancelPolling stops the loop and keeps the session.
func (c *Controller) AwaitCompletion(ctx context.Context) (string, error) {
	if err := c.expect(DeviceConnecting, "await completion"); err != nil {
		return "", err
	}
	sess, err := c.session(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// only the running poll loop owns cancelPoll
	token := new(context.CancelFunc)
	*token = cancel
	c.mu.Lock()
	if c.cancelPoll != nil {
		c.mu.Unlock()
		return "", ErrPollInFlight
	}
	c.cancelPoll = token
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.cancelPoll == token {
			c.cancelPoll = nil
		}
		c.mu.Unlock()
	}()

	deviceID, err := c.poller.Run(ctx, sess.ProvisioningCode)
	switch {
	case errors.Is(err, apperr.ErrPollingTimedOut), errors.Is(err, apperr.ErrProvisioningTerminal):
		return "", c.fail(ctx, err)
	case err != nil:
		return "", err
	}

	if err := c.sessions.SetConnectedDevice(ctx, deviceID); err != nil {
		return "", err
	}
	if err := c.sessions.ClearCredentials(ctx); err != nil {
		return "", err
	}

	c.radio.VibratePattern([]int{100, 50, 100})
	return deviceID, c.transition(ctx, ProvisioningCompleted, deviceID)
}

// CancelPolling stops a running AwaitCompletion
func (c *Controller) CancelPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelPoll != nil {
		(*c.cancelPoll)()
	}
}

// CompleteSetup names the device and clears every provisioning key
func (c *Controller) CompleteSetup(ctx context.Context, name, city, timezone string) (string, error) {
	if err := c.expect(LocationEntry, "complete setup"); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: device name is required", apperr.ErrInvalidInput)
	}
	if !models.IsKnownLocation(city) {
		return "", fmt.Errorf("%w: unknown location %q", apperr.ErrInvalidInput, city)
	}
	if timezone == "" {
		timezone = DefaultTimezone
	}

	sess, err := c.session(ctx)
	if err != nil {
		return "", err
	}

	msg, err := c.backend.CompleteSetup(ctx, models.SetupRequest{
		DeviceID:     sess.ConnectedDeviceID,
		Name:         name,
		LocationCity: city,
		Timezone:     timezone,
	})
	if err != nil {
		return "", err
	}

	if err := c.sessions.ClearProvisioning(ctx); err != nil {
		return "", err
	}
	c.radio.Vibrate(200)
	return msg, c.transition(ctx, SetupCompleted, sess.ConnectedDeviceID)
}

// Abandon leaves the wizard and forgets the attempt
func (c *Controller) Abandon(ctx context.Context) error {
	c.CancelPolling()
	if err := c.sessions.ClearProvisioning(ctx); err != nil {
		return err
	}
	return c.transition(ctx, Abandoned, "")
}

// session loads the stored session; a stale one restarts the wizard
func (c *Controller) session(ctx context.Context) (*models.ProvisioningSession, error) {
	sess, err := c.sessions.Load(ctx, c.now())
	if isStale(err) {
		return nil, c.fail(ctx, err)
	}
	return sess, err
}

// fail discards partial state, returns to Start and hands back cause
func (c *Controller) fail(ctx context.Context, cause error) error {
	log.Warn().Err(cause).Str("state", c.State().String()).Msg("Provisioning attempt failed, restarting")

	if err := c.sessions.ClearProvisioning(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear provisioning session")
	}
	c.publish(ctx, c.State(), Start, Failed, "", cause)
	c.setState(Start)
	return cause
}

func (c *Controller) transition(ctx context.Context, e Event, deviceID string) error {
	c.mu.Lock()
	from := c.state
	to, err := Advance(from, e)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = to
	c.mu.Unlock()

	log.Info().Str("from", from.String()).Str("to", to.String()).Str("event", e.String()).Msg("Provisioning transition")
	c.publish(ctx, from, to, e, deviceID, nil)
	return nil
}

func (c *Controller) publish(ctx context.Context, from, to State, e Event, deviceID string, cause error) {
	t := events.Transition{
		ID:       uuid.New(),
		From:     from.String(),
		To:       to.String(),
		Event:    e.String(),
		DeviceID: deviceID,
		At:       c.now().UTC(),
	}
	if cause != nil {
		t.Error = cause.Error()
	}

	// a cancelled page must still report how it ended
	if err := c.publisher.Publish(context.WithoutCancel(ctx), t); err != nil {
		log.Warn().Err(err).Str("event", t.Event).Msg("Failed to publish transition")
	}
}

func (c *Controller) expect(want State, op string) error {
	if got := c.State(); got != want {
		return fmt.Errorf("%w: %s needs %s, flow is at %s", apperr.ErrInvalidState, op, want, got)
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func isStale(err error) bool {
	return errors.Is(err, apperr.ErrSessionExpired) || errors.Is(err, apperr.ErrMissingState)
}
