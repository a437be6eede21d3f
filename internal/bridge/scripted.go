package bridge

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/baegaepro/pillow-client/pkg/wifi"
)

// ScriptedHost is a Host that replays canned answers.
// pillowctl uses it to drive the flow without a phone; tests use it as a fake.
type ScriptedHost struct {
	mu sync.Mutex

	// ScanResults are returned by successive scans; the last one repeats
	ScanResults []string
	// ConnectResult answers every connect call when set
	ConnectResult string
	// OnConnect runs after a connect is recorded
	OnConnect func(ssid, password string)

	Scans      int
	Connects   []Connection
	Vibrations []string
	Logs       []string
}

// Connection is one recorded connect call
type Connection struct {
	SSID      string
	Password  string
	Secondary bool
}

// NewScriptedHost answers scans with networks and accepts every connection
func NewScriptedHost(networks ...wifi.RawNetwork) *ScriptedHost {
	data, _ := json.Marshal(networks)
	return &ScriptedHost{
		ScanResults:   []string{string(data)},
		ConnectResult: `{"success":true,"message":"connected"}`,
	}
}

func (h *ScriptedHost) ScanWiFi() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Scans++
	if len(h.ScanResults) == 0 {
		return "[]"
	}
	i := h.Scans - 1
	if i >= len(h.ScanResults) {
		i = len(h.ScanResults) - 1
	}
	return h.ScanResults[i]
}

func (h *ScriptedHost) ConnectToWiFi(ssid, password string) string {
	return h.connect(ssid, password, false)
}

func (h *ScriptedHost) ConnectToWiFiAsSecondary(ssid, password string) string {
	return h.connect(ssid, password, true)
}

func (h *ScriptedHost) connect(ssid, password string, secondary bool) string {
	h.mu.Lock()
	h.Connects = append(h.Connects, Connection{SSID: ssid, Password: password, Secondary: secondary})
	res := h.ConnectResult
	hook := h.OnConnect
	h.mu.Unlock()

	if hook != nil {
		hook(ssid, password)
	}
	if res == "" {
		return `{"success":false,"message":"no answer scripted"}`
	}
	return res
}

func (h *ScriptedHost) VibrateOnce(durationMs int, fade bool) string {
	h.record(fmt.Sprintf("once:%d", durationMs))
	return `{"success":true}`
}

func (h *ScriptedHost) Vibrate(patternCSV string, fade bool) string {
	h.record("pattern:" + patternCSV)
	return `{"success":true}`
}

func (h *ScriptedHost) StopVibration() string {
	h.record("stop")
	return `{"success":true}`
}

func (h *ScriptedHost) LogToConsole(level, message, source string) string {
	h.mu.Lock()
	h.Logs = append(h.Logs, level+"|"+source+"|"+message)
	h.mu.Unlock()
	return `{"success":true}`
}

// LogLines returns a copy of the lines received by LogToConsole
func (h *ScriptedHost) LogLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Logs...)
}

func (h *ScriptedHost) record(v string) {
	h.mu.Lock()
	h.Vibrations = append(h.Vibrations, v)
	h.mu.Unlock()
}
