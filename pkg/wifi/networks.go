package wifi

import (
	"sort"
	"strings"
)

// DefaultPrefixes are the SSID prefixes advertised by pillow devices in AP mode
var DefaultPrefixes = []string{"BaeGaePro_", "BaeGaePRO-"}

// RawNetwork is one entry of a host WiFi scan
type RawNetwork struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	RSSI         int    `json:"rssi"`
	Frequency    int    `json:"frequency"`
	Capabilities string `json:"capabilities"`
}

// DeviceNetwork is a vendor network formatted for selection
type DeviceNetwork struct {
	SSID        string `json:"ssid"`
	DeviceID    string `json:"deviceId"`
	SignalLabel string `json:"signal"`
	SignalLevel int    `json:"signalLevel"`
	RSSI        int    `json:"rssi"`
	BSSID       string `json:"bssid,omitempty"`
	Frequency   int    `json:"frequency,omitempty"`
	Security    string `json:"security,omitempty"`
	IsOpen      bool   `json:"isOpen"`
}

func prefixesOrDefault(prefixes []string) []string {
	if len(prefixes) == 0 {
		return DefaultPrefixes
	}
	return prefixes
}

// matchPrefix returns the vendor prefix carried by ssid
func matchPrefix(ssid string, prefixes []string) (string, bool) {
	for _, p := range prefixesOrDefault(prefixes) {
		if p != "" && strings.HasPrefix(ssid, p) {
			return p, true
		}
	}
	return "", false
}

// IsDeviceNetwork reports whether ssid carries one of the vendor prefixes
func IsDeviceNetwork(ssid string, prefixes ...string) bool {
	_, ok := matchPrefix(ssid, prefixes)
	return ok
}

// FilterDeviceNetworks keeps only vendor networks, preserving order
func FilterDeviceNetworks(networks []RawNetwork, prefixes ...string) []RawNetwork {
	out := make([]RawNetwork, 0, len(networks))
	for _, n := range networks {
		if IsDeviceNetwork(n.SSID, prefixes...) {
			out = append(out, n)
		}
	}
	return out
}

// ExtractDeviceID strips the vendor prefix. Non-vendor SSIDs yield "".
func ExtractDeviceID(ssid string, prefixes ...string) string {
	p, ok := matchPrefix(ssid, prefixes)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(ssid, p)
}

// GenerateDevicePassword derives the AP password of a device from its id
func GenerateDevicePassword(deviceID string) string {
	return deviceID + "PSWR"
}

// SignalLabel maps an RSSI (dBm) to a display label
func SignalLabel(rssi int) string {
	switch {
	case rssi >= -50:
		return "매우 좋음"
	case rssi >= -60:
		return "좋음"
	case rssi >= -70:
		return "보통"
	case rssi >= -80:
		return "약함"
	default:
		return "매우 약함"
	}
}

// SignalLevel maps an RSSI (dBm) to 1..5 bars
func SignalLevel(rssi int) int {
	switch {
	case rssi >= -50:
		return 5
	case rssi >= -60:
		return 4
	case rssi >= -70:
		return 3
	case rssi >= -80:
		return 2
	default:
		return 1
	}
}

// SecurityType classifies an Android capabilities string
func SecurityType(capabilities string) string {
	caps := strings.ToUpper(capabilities)
	switch {
	case strings.Contains(caps, "WPA3"):
		return "WPA3"
	case strings.Contains(caps, "WPA2"):
		return "WPA2"
	case strings.Contains(caps, "WPA"):
		return "WPA"
	case strings.Contains(caps, "WEP"):
		return "WEP"
	case caps == "" || strings.Contains(caps, "[OPEN]"):
		return "Open"
	}
	return "Unknown"
}

// IsOpen reports whether the network needs no password
func IsOpen(capabilities string) bool {
	return SecurityType(capabilities) == "Open"
}

// SortBySignal returns a copy ordered by RSSI, strongest first unless ascending
func SortBySignal(networks []RawNetwork, ascending bool) []RawNetwork {
	out := make([]RawNetwork, len(networks))
	copy(out, networks)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].RSSI < out[j].RSSI
		}
		return out[i].RSSI > out[j].RSSI
	})
	return out
}

// FormatDeviceNetwork builds the selectable view of a raw vendor network
func FormatDeviceNetwork(n RawNetwork, prefixes ...string) DeviceNetwork {
	return DeviceNetwork{
		SSID:        n.SSID,
		DeviceID:    ExtractDeviceID(n.SSID, prefixes...),
		SignalLabel: SignalLabel(n.RSSI),
		SignalLevel: SignalLevel(n.RSSI),
		RSSI:        n.RSSI,
		BSSID:       n.BSSID,
		Frequency:   n.Frequency,
		Security:    SecurityType(n.Capabilities),
		IsOpen:      IsOpen(n.Capabilities),
	}
}

// DeviceNetworks filters, sorts strongest first and formats a scan result
func DeviceNetworks(networks []RawNetwork, prefixes ...string) []DeviceNetwork {
	sorted := SortBySignal(FilterDeviceNetworks(networks, prefixes...), false)
	out := make([]DeviceNetwork, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, FormatDeviceNetwork(n, prefixes...))
	}
	return out
}
