package models

import (
	"time"

	"github.com/baegaepro/pillow-client/pkg/wifi"
)

// WiFiCredentials are the home network credentials relayed to the device
type WiFiCredentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// ProvisioningSession is the transient state of one device registration
type ProvisioningSession struct {
	ProvisioningCode  string              `json:"provisioning_code"`
	ExpiresAt         time.Time           `json:"expires_at"`
	SelectedNetwork   *wifi.DeviceNetwork `json:"selected_network,omitempty"`
	WiFiCredentials   *WiFiCredentials    `json:"wifi_credentials,omitempty"`
	ConnectedDeviceID string              `json:"connected_device_id,omitempty"`
}

// Valid reports whether the provisioning code is still usable at now
func (s *ProvisioningSession) Valid(now time.Time) bool {
	return s != nil && s.ProvisioningCode != "" && now.Before(s.ExpiresAt)
}

// AuthSession holds the bearer credentials of the signed-in user
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
