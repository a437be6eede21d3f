package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

// Host is the synchronous surface injected by the Android container.
// Every call returns a JSON document or a JSON {"error": "..."}.
type Host interface {
	ScanWiFi() string
	ConnectToWiFi(ssid, password string) string
	ConnectToWiFiAsSecondary(ssid, password string) string
	VibrateOnce(durationMs int, fade bool) string
	Vibrate(patternCSV string, fade bool) string
	StopVibration() string
	LogToConsole(level, message, source string) string
}

// ConnectResult is the host answer to a connect request.
// A refused connection is a normal result, not an error.
type ConnectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Hidden  bool   `json:"-"`
}

// Adapter exposes Host calls as validated Go operations
type Adapter struct {
	host      Host
	available bool
	console   func(level, message, source string)
}

// New builds an adapter. Host capability is decided once here.
func New(host Host) *Adapter {
	return &Adapter{
		host:      host,
		available: host != nil,
		console:   consoleLog,
	}
}

// Available reports whether the host bridge exists
func (a *Adapter) Available() bool {
	return a != nil && a.available
}

func (a *Adapter) require() error {
	if !a.Available() {
		return apperr.ErrBridgeUnavailable
	}
	return nil
}

type scanReply struct {
	Networks []scanEntry `json:"networks"`
	Error    string      `json:"error"`
}

type scanEntry struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	RSSI         *int   `json:"rssi"`
	Level        *int   `json:"level"`
	Frequency    int    `json:"frequency"`
	Capabilities string `json:"capabilities"`
}

func (e scanEntry) raw() wifi.RawNetwork {
	n := wifi.RawNetwork{
		SSID:         e.SSID,
		BSSID:        e.BSSID,
		Frequency:    e.Frequency,
		Capabilities: e.Capabilities,
	}
	switch {
	case e.RSSI != nil:
		n.RSSI = *e.RSSI
	case e.Level != nil:
		n.RSSI = *e.Level
	}
	return n
}

// ScanNetworks runs a host WiFi scan.
// Unparseable output means the bridge is not what we expect (ErrBridgeUnavailable);
// a host-reported error is ErrScanFailed.
func (a *Adapter) ScanNetworks(ctx context.Context) ([]wifi.RawNetwork, error) {
	if err := a.require(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := strings.TrimSpace(a.host.ScanWiFi())

	var entries []scanEntry
	if strings.HasPrefix(out, "[") {
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			return nil, fmt.Errorf("%w: parse scan result: %v", apperr.ErrBridgeUnavailable, err)
		}
	} else {
		var reply scanReply
		if err := json.Unmarshal([]byte(out), &reply); err != nil {
			return nil, fmt.Errorf("%w: parse scan result: %v", apperr.ErrBridgeUnavailable, err)
		}
		if reply.Error != "" {
			return nil, fmt.Errorf("%w: %s", apperr.ErrScanFailed, reply.Error)
		}
		entries = reply.Networks
	}

	networks := make([]wifi.RawNetwork, 0, len(entries))
	for _, e := range entries {
		networks = append(networks, e.raw())
	}

	log.Debug().Int("count", len(networks)).Msg("WiFi scan finished")
	return networks, nil
}

// Connect joins ssid through the primary host primitive
func (a *Adapter) Connect(ctx context.Context, ssid, password string, isHidden bool) (ConnectResult, error) {
	res, err := a.connect(ctx, ssid, func() string { return a.host.ConnectToWiFi(ssid, password) })
	res.Hidden = isHidden
	return res, err
}

// ConnectAsSecondary joins ssid without dropping the current network
func (a *Adapter) ConnectAsSecondary(ctx context.Context, ssid, password string) (ConnectResult, error) {
	return a.connect(ctx, ssid, func() string { return a.host.ConnectToWiFiAsSecondary(ssid, password) })
}

func (a *Adapter) connect(ctx context.Context, ssid string, call func() string) (ConnectResult, error) {
	if err := a.require(); err != nil {
		return ConnectResult{}, err
	}
	if strings.TrimSpace(ssid) == "" {
		return ConnectResult{}, fmt.Errorf("%w: ssid is required", apperr.ErrConnectFailed)
	}
	if err := ctx.Err(); err != nil {
		return ConnectResult{}, err
	}

	var res ConnectResult
	if err := json.Unmarshal([]byte(call()), &res); err != nil {
		return ConnectResult{}, fmt.Errorf("%w: parse connect result: %v", apperr.ErrConnectFailed, err)
	}
	if !res.Success && res.Message == "" {
		res.Message = res.Error
	}

	log.Info().
		Str("ssid", ssid).
		Bool("success", res.Success).
		Str("message", res.Message).
		Msg("WiFi connect")
	return res, nil
}

// Vibrate fires one vibration; failures are only logged
func (a *Adapter) Vibrate(durationMs int) {
	if durationMs <= 0 {
		log.Warn().Int("duration_ms", durationMs).Msg("Ignoring non-positive vibration")
		return
	}
	a.fire("vibrate_once", func() string { return a.host.VibrateOnce(durationMs, false) })
}

// VibratePattern fires an on/off pattern in milliseconds; failures are only logged
func (a *Adapter) VibratePattern(pattern []int) {
	if len(pattern) == 0 {
		log.Warn().Msg("Ignoring empty vibration pattern")
		return
	}
	parts := make([]string, len(pattern))
	for i, p := range pattern {
		if p < 0 {
			log.Warn().Ints("pattern", pattern).Msg("Ignoring vibration pattern with negative value")
			return
		}
		parts[i] = strconv.Itoa(p)
	}
	csv := strings.Join(parts, ",")
	a.fire("vibrate_pattern", func() string { return a.host.Vibrate(csv, false) })
}

// StopVibration cancels a running vibration; failures are only logged
func (a *Adapter) StopVibration() {
	a.fire("stop_vibration", func() string { return a.host.StopVibration() })
}

func (a *Adapter) fire(op string, call func() string) {
	if err := a.require(); err != nil {
		log.Debug().Str("op", op).Msg("Haptics skipped, bridge unavailable")
		return
	}

	var res ConnectResult
	if err := json.Unmarshal([]byte(call()), &res); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Haptic call returned malformed reply")
		return
	}
	if res.Error != "" {
		log.Warn().Str("op", op).Str("error", res.Error).Msg("Haptic call failed")
	}
}

// Log forwards one line to the host sink, or to the console outside the host
func (a *Adapter) Log(level, message, source string) {
	if !a.Available() {
		if a == nil {
			consoleLog(level, message, source)
			return
		}
		a.console(level, message, source)
		return
	}
	a.host.LogToConsole(level, message, source)
}
