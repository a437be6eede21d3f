package mobile

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baegaepro/pillow-client/internal/api"
	"github.com/baegaepro/pillow-client/internal/bridge"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

type listener struct {
	calls int
}

func (l *listener) OnUnauthenticated() { l.calls++ }

func hostLogged(h *bridge.ScriptedHost, message string) bool {
	for _, line := range h.LogLines() {
		if strings.Contains(line, message) {
			return true
		}
	}
	return false
}

func newClient(t *testing.T, host Host) *Client {
	t.Helper()

	cfg := config.Default()
	cfg.Sandbox.CompletionPolls = 1
	ts := httptest.NewServer(api.NewRESTServer(cfg).Handler())
	t.Cleanup(ts.Close)

	yaml := fmt.Sprintf(`
api:
  base_url: %s
device:
  base_url: %s
provisioning:
  poll_interval: 1ms
  poll_attempts: 10
log:
  level: info
`, ts.URL, ts.URL)

	c, err := NewClient(yaml, host)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Registration(t *testing.T) {
	host := bridge.NewScriptedHost(
		wifi.RawNetwork{SSID: "MyHome", RSSI: -40},
		wifi.RawNetwork{SSID: "BaeGaePRO-7F2A", RSSI: -60},
	)
	c := newClient(t, host)
	assert.True(t, c.Capabilities())
	assert.True(t, hostLogged(host, "Client wired"), "wiring is logged to the host sink")

	_, err := c.Signup("sleepy@example.com", "password1", "잠꾸러기")
	require.NoError(t, err)
	require.NoError(t, c.Login("sleepy@example.com", "password1"))

	codeJSON, err := c.BeginProvisioning()
	require.NoError(t, err)
	var code struct {
		Code string `json:"provisioning_code"`
	}
	require.NoError(t, json.Unmarshal([]byte(codeJSON), &code))
	assert.Len(t, code.Code, 6)
	assert.Equal(t, "NetworkSearch", c.State())

	scanJSON, err := c.ScanDevices()
	require.NoError(t, err)
	var networks []wifi.DeviceNetwork
	require.NoError(t, json.Unmarshal([]byte(scanJSON), &networks))
	require.Len(t, networks, 1)
	assert.Equal(t, "7F2A", networks[0].DeviceID)

	require.NoError(t, c.SelectDevice("BaeGaePRO-7F2A"))
	require.NoError(t, c.SubmitWiFi("MyHome", "hunter2"))
	assert.Equal(t, "7F2APSWR", host.Connects[0].Password)

	deviceID, err := c.AwaitCompletion()
	require.NoError(t, err)
	assert.NotEmpty(t, deviceID)
	assert.Equal(t, "LocationEntry", c.State())

	_, err = c.CompleteSetup("침실 베개프로", "서울특별시", "")
	require.NoError(t, err)
	assert.Equal(t, "Done", c.State())

	dash, err := c.Dashboard()
	require.NoError(t, err)
	assert.Contains(t, dash, deviceID)
}

func TestClient_UserFacingErrors(t *testing.T) {
	c := newClient(t, nil)
	assert.False(t, c.Capabilities())

	err := c.Login("nobody@example.com", "password1")
	require.Error(t, err)
	assert.Equal(t, "이메일 또는 비밀번호가 올바르지 않습니다", err.Error())

	_, err = c.ScanDevices()
	require.Error(t, err)
	assert.Equal(t, "등록 단계가 올바르지 않습니다. 처음부터 다시 시도해주세요.", err.Error())
}

func TestClient_Unauthenticated(t *testing.T) {
	c := newClient(t, nil)
	l := &listener{}
	c.SetSessionListener(l)

	_, err := c.Dashboard()
	require.Error(t, err)
	assert.Equal(t, "로그인이 필요합니다.", err.Error())
	assert.Equal(t, 1, l.calls)
}

func TestLocations(t *testing.T) {
	var got []string
	require.NoError(t, json.Unmarshal([]byte(Locations()), &got))
	assert.Contains(t, got, "서울특별시")
	assert.Contains(t, got, "제주특별자치도")
}
