package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/bridge"
	"github.com/baegaepro/pillow-client/internal/device"
	"github.com/baegaepro/pillow-client/internal/events"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/internal/session"
	"github.com/baegaepro/pillow-client/internal/storage"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

type fakeBackend struct {
	scriptedStatus

	mu          sync.Mutex
	codeErr     error
	expiresIn   time.Duration
	setups      []models.SetupRequest
	requestedAt time.Time
}

func (b *fakeBackend) RequestCode(_ context.Context, deviceType, location string) (*models.ProvisioningCode, error) {
	if b.codeErr != nil {
		return nil, b.codeErr
	}
	b.requestedAt = time.Now()
	return &models.ProvisioningCode{Code: "ABC123", ExpiresAt: b.requestedAt.Add(b.expiresIn), ExpiresIn: int(b.expiresIn.Seconds())}, nil
}

func (b *fakeBackend) CompleteSetup(_ context.Context, req models.SetupRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setups = append(b.setups, req)
	return "기기 설정이 완료되었습니다", nil
}

type fakeDevice struct {
	pushes    []models.DeviceProvisionRequest
	err       error
	status    *device.Status
	statusErr error
}

func (d *fakeDevice) Status(context.Context) (*device.Status, error) {
	if d.statusErr != nil {
		return nil, d.statusErr
	}
	if d.status == nil {
		return &device.Status{DeviceID: "7F2A", FirmwareVersion: "1.4.2"}, nil
	}
	return d.status, nil
}

func (d *fakeDevice) Provision(_ context.Context, req models.DeviceProvisionRequest) error {
	d.pushes = append(d.pushes, req)
	return d.err
}

type harness struct {
	ctrl     *Controller
	backend  *fakeBackend
	device   *fakeDevice
	host     *bridge.ScriptedHost
	kv       *storage.MemoryStore
	sessions *session.Store
	events   *events.Recorder
}

func newHarness(t *testing.T, statuses ...models.StatusResult) *harness {
	t.Helper()
	return newHarnessWith(t, func(*Options) {}, statuses...)
}

func newHarnessWith(t *testing.T, tune func(*Options), statuses ...models.StatusResult) *harness {
	t.Helper()

	h := &harness{
		backend: &fakeBackend{scriptedStatus: scriptedStatus{answers: statuses}, expiresIn: 300 * time.Second},
		device:  &fakeDevice{},
		host: bridge.NewScriptedHost(
			wifi.RawNetwork{SSID: "MyHome", RSSI: -40, Capabilities: "[WPA2-PSK-CCMP]"},
			wifi.RawNetwork{SSID: "BaeGaePRO-7F2A", RSSI: -61, Capabilities: "[WPA2-PSK-CCMP]"},
		),
		kv:     storage.NewMemoryStore(),
		events: &events.Recorder{},
	}
	h.sessions = session.New(h.kv)
	opts := Options{
		DeviceType:   "pillow",
		Location:     "bedroom",
		ServerURL:    "https://pillow.jiw.app",
		PollInterval: time.Millisecond,
		PollAttempts: 60,
		RescanAfter:  time.Millisecond,
	}
	tune(&opts)
	h.ctrl = NewController(h.backend, h.device, bridge.New(h.host), h.sessions, h.events, opts)
	return h
}

func (h *harness) assertProvisioningCleared(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{
		session.KeyProvisioningCode,
		session.KeyExpiresAt,
		session.KeySelectedNetwork,
		session.KeyWiFiCredentials,
		session.KeyConnectedDevice,
	} {
		_, err := h.kv.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

// toDeviceConnecting runs the flow up to the polling page
func (h *harness) toDeviceConnecting(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	networks, err := h.ctrl.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	require.NoError(t, h.ctrl.SelectNetwork(ctx, networks[0]))
	require.NoError(t, h.ctrl.SubmitCredentials(ctx, models.WiFiCredentials{SSID: "MyHome", Password: "hunter2"}))
	require.Equal(t, DeviceConnecting, h.ctrl.State())
}

func TestController_EndToEnd(t *testing.T) {
	h := newHarness(t,
		pending(),
		pending(),
		models.StatusResult{Status: models.StatusCompleted, DeviceID: "dev-99"},
	)
	ctx := context.Background()

	code, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", code.Code)
	assert.Equal(t, 300, code.ExpiresIn)
	assert.Equal(t, NetworkSearch, h.ctrl.State())

	networks, err := h.ctrl.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "BaeGaePRO-7F2A", networks[0].SSID)
	assert.Equal(t, "7F2A", networks[0].DeviceID)

	require.NoError(t, h.ctrl.SelectNetwork(ctx, networks[0]))
	assert.Equal(t, CredentialEntry, h.ctrl.State())

	require.NoError(t, h.ctrl.SubmitCredentials(ctx, models.WiFiCredentials{SSID: "MyHome", Password: "hunter2"}))
	assert.Equal(t, DeviceConnecting, h.ctrl.State())

	require.Len(t, h.host.Connects, 1)
	assert.Equal(t, bridge.Connection{SSID: "BaeGaePRO-7F2A", Password: "7F2APSWR"}, h.host.Connects[0])
	require.Len(t, h.device.pushes, 1)
	assert.Equal(t, models.DeviceProvisionRequest{
		ProvisioningToken: "ABC123",
		WiFiSSID:          "MyHome",
		WiFiPassword:      "hunter2",
		ServerURL:         "https://pillow.jiw.app",
	}, h.device.pushes[0])

	creds, err := h.sessions.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.WiFiCredentials{SSID: "MyHome", Password: "hunter2"}, creds)

	deviceID, err := h.ctrl.AwaitCompletion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev-99", deviceID)
	assert.Equal(t, 3, h.backend.Calls())
	assert.Equal(t, LocationEntry, h.ctrl.State())

	creds, err = h.sessions.Credentials(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds, "credentials are dropped once the device reported in")

	msg, err := h.ctrl.CompleteSetup(ctx, "침실 베개프로", "서울특별시", "")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
	assert.Equal(t, Done, h.ctrl.State())
	assert.Equal(t, []models.SetupRequest{{
		DeviceID:     "dev-99",
		Name:         "침실 베개프로",
		LocationCity: "서울특별시",
		Timezone:     DefaultTimezone,
	}}, h.backend.setups)

	h.assertProvisioningCleared(t)
	assert.Equal(t,
		[]string{"NetworkSearch", "CredentialEntry", "DeviceConnecting", "LocationEntry", "Done"},
		h.events.States())
	assert.Contains(t, h.host.Vibrations, "pattern:100,50,100")
}

func TestController_EmptyScanOffersRescan(t *testing.T) {
	h := newHarness(t, pending())
	h.host.ScanResults = []string{`[]`, `[{"ssid":"BaeGaePro_0001","level":-50}]`}
	ctx := context.Background()

	_, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)

	networks, err := h.ctrl.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, networks)
	assert.Equal(t, NetworkSearch, h.ctrl.State())

	h.host.Scans = 0
	networks, err = h.ctrl.ScanUntilFound(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "0001", networks[0].DeviceID)
	assert.Equal(t, 2, h.host.Scans)
}

func TestController_PollingTimeoutRestarts(t *testing.T) {
	h := newHarness(t, pending())
	h.toDeviceConnecting(t)

	_, err := h.ctrl.AwaitCompletion(context.Background())
	assert.ErrorIs(t, err, apperr.ErrPollingTimedOut)
	assert.Equal(t, 60, h.backend.Calls())
	assert.Equal(t, Start, h.ctrl.State())
	h.assertProvisioningCleared(t)

	last := h.events.Transitions()[len(h.events.Transitions())-1]
	assert.Equal(t, "failed", last.Event)
	assert.Equal(t, "Start", last.To)
	assert.NotEmpty(t, last.Error)
}

func TestController_ExpiredStatusRestarts(t *testing.T) {
	h := newHarness(t, models.StatusResult{Status: models.StatusExpired})
	h.toDeviceConnecting(t)

	_, err := h.ctrl.AwaitCompletion(context.Background())
	assert.ErrorIs(t, err, apperr.ErrProvisioningTerminal)
	assert.Equal(t, 1, h.backend.Calls())
	assert.Equal(t, Start, h.ctrl.State())
}

func TestController_CancelPollingKeepsSession(t *testing.T) {
	h := newHarness(t, pending())
	h.ctrl.poller = NewPoller(h.backend, time.Hour, 60)
	h.toDeviceConnecting(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.AwaitCompletion(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return h.backend.Calls() == 1 }, time.Second, time.Millisecond)
	h.ctrl.CancelPolling()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, DeviceConnecting, h.ctrl.State())

	code, _, ok, err := h.sessions.Code(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC123", code)
}

func TestController_SecondAwaitKeepsCancelWorking(t *testing.T) {
	h := newHarness(t, pending())
	h.ctrl.poller = NewPoller(h.backend, 20*time.Millisecond, 1000)
	h.toDeviceConnecting(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.AwaitCompletion(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return h.backend.Calls() >= 1 }, time.Second, time.Millisecond)

	_, err := h.ctrl.AwaitCompletion(context.Background())
	assert.ErrorIs(t, err, ErrPollInFlight)

	h.ctrl.CancelPolling()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("first poll loop still running after CancelPolling, %d calls", h.backend.Calls())
	}
	assert.Equal(t, DeviceConnecting, h.ctrl.State())

	// the page can start polling again once the first loop is gone
	h.backend.setAnswers(models.StatusResult{Status: models.StatusCompleted, DeviceID: "dev-99"})
	id, err := h.ctrl.AwaitCompletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-99", id)
}

func TestController_ConnectRefusedStaysOnPage(t *testing.T) {
	h := newHarness(t, pending())
	h.host.ConnectResult = `{"success":false,"message":"비밀번호가 올바르지 않습니다"}`
	ctx := context.Background()

	_, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	networks, err := h.ctrl.Scan(ctx)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.SelectNetwork(ctx, networks[0]))

	err = h.ctrl.SubmitCredentials(ctx, models.WiFiCredentials{SSID: "MyHome", Password: "hunter2"})
	assert.ErrorIs(t, err, apperr.ErrConnectFailed)
	assert.Equal(t, CredentialEntry, h.ctrl.State())
	assert.Empty(t, h.device.pushes)
}

func TestController_WrongDeviceStaysOnPage(t *testing.T) {
	for name, dev := range map[string]*fakeDevice{
		"other device answers": {status: &device.Status{DeviceID: "9C01"}},
		"device unreachable":   {statusErr: errors.Join(apperr.ErrConnectFailed, errors.New("connection refused"))},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, pending())
			h.device = dev
			h.ctrl.device = dev
			ctx := context.Background()

			_, err := h.ctrl.Begin(ctx)
			require.NoError(t, err)
			networks, err := h.ctrl.Scan(ctx)
			require.NoError(t, err)
			require.NoError(t, h.ctrl.SelectNetwork(ctx, networks[0]))

			err = h.ctrl.SubmitCredentials(ctx, models.WiFiCredentials{SSID: "MyHome", Password: "hunter2"})
			assert.ErrorIs(t, err, apperr.ErrConnectFailed)
			assert.Equal(t, CredentialEntry, h.ctrl.State())
			assert.Empty(t, dev.pushes)

			selected, err := h.sessions.SelectedNetwork(ctx)
			require.NoError(t, err)
			assert.NotNil(t, selected)
		})
	}
}

func TestController_SecondaryConnect(t *testing.T) {
	h := newHarnessWith(t, func(o *Options) { o.SecondaryConnect = true }, pending())
	h.device.status = &device.Status{DeviceID: "7f2a"}

	h.toDeviceConnecting(t)

	require.Len(t, h.host.Connects, 1)
	assert.True(t, h.host.Connects[0].Secondary)
	assert.Equal(t, "BaeGaePRO-7F2A", h.host.Connects[0].SSID)
	assert.Equal(t, "7F2APSWR", h.host.Connects[0].Password)
	require.Len(t, h.device.pushes, 1)
}

func TestController_DeviceRejectsPushRestarts(t *testing.T) {
	h := newHarness(t, pending())
	h.device.err = errors.Join(apperr.ErrConnectFailed, errors.New("device answered 400"))
	ctx := context.Background()

	_, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	networks, err := h.ctrl.Scan(ctx)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.SelectNetwork(ctx, networks[0]))

	err = h.ctrl.SubmitCredentials(ctx, models.WiFiCredentials{SSID: "MyHome", Password: "hunter2"})
	assert.ErrorIs(t, err, apperr.ErrConnectFailed)
	assert.Equal(t, Start, h.ctrl.State())
	h.assertProvisioningCleared(t)
}

func TestController_ExpiredSessionRestartsSilently(t *testing.T) {
	h := newHarness(t, pending())
	ctx := context.Background()

	_, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	h.ctrl.now = func() time.Time { return time.Now().Add(301 * time.Second) }

	_, err = h.ctrl.Scan(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
	assert.Equal(t, Start, h.ctrl.State())
	h.assertProvisioningCleared(t)
}

func TestController_InvalidOrder(t *testing.T) {
	h := newHarness(t, pending())
	ctx := context.Background()

	_, err := h.ctrl.Scan(ctx)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = h.ctrl.AwaitCompletion(ctx)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = h.ctrl.CompleteSetup(ctx, "침실", "서울특별시", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestController_InputValidation(t *testing.T) {
	h := newHarness(t, pending())
	ctx := context.Background()

	_, err := h.ctrl.Begin(ctx)
	require.NoError(t, err)
	err = h.ctrl.SelectNetwork(ctx, wifi.DeviceNetwork{SSID: "MyHome"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, NetworkSearch, h.ctrl.State())

	require.NoError(t, h.ctrl.SelectNetwork(ctx, wifi.DeviceNetwork{SSID: "BaeGaePRO-7F2A"}))
	err = h.ctrl.SubmitCredentials(ctx, models.WiFiCredentials{SSID: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, CredentialEntry, h.ctrl.State())
}

func TestController_RestoreAndAbandon(t *testing.T) {
	h := newHarness(t, pending())
	ctx := context.Background()

	require.NoError(t, h.sessions.SetCode(ctx, "ABC123", time.Now().Add(time.Minute)))
	require.NoError(t, h.sessions.SetSelectedNetwork(ctx, wifi.DeviceNetwork{SSID: "BaeGaePRO-7F2A", DeviceID: "7F2A"}))

	state, err := h.ctrl.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, CredentialEntry, state)

	require.NoError(t, h.ctrl.Abandon(ctx))
	assert.Equal(t, Start, h.ctrl.State())
	h.assertProvisioningCleared(t)

	state, err = h.ctrl.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Start, state)
}

func TestController_BeginFailureStaysAtStart(t *testing.T) {
	h := newHarness(t, pending())
	h.backend.codeErr = apperr.NewRequestError("request code", 400, "이미 진행 중인 등록이 있습니다", apperr.ErrProvisioningRequestFailed)

	_, err := h.ctrl.Begin(context.Background())
	assert.ErrorIs(t, err, apperr.ErrProvisioningRequestFailed)
	assert.Equal(t, "이미 진행 중인 등록이 있습니다", apperr.UserMessage(err))
	assert.Equal(t, Start, h.ctrl.State())
}

func TestController_Capabilities(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.ctrl.Capabilities())

	ctrl := NewController(h.backend, h.device, bridge.New(nil), h.sessions, nil, Options{})
	assert.False(t, ctrl.Capabilities())
}
