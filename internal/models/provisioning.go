package models

import "time"

// ProvisioningStatus is the backend view of a provisioning code
type ProvisioningStatus string

const (
	StatusPending   ProvisioningStatus = "pending"
	StatusConnected ProvisioningStatus = "connected"
	StatusCompleted ProvisioningStatus = "completed"
	StatusExpired   ProvisioningStatus = "expired"
	StatusFailed    ProvisioningStatus = "failed"
)

// Terminal reports whether polling must stop on this status
func (s ProvisioningStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// ProvisioningCode is issued at the start of a registration
type ProvisioningCode struct {
	Code      string    `json:"provisioning_code"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

// StatusResult is one poll answer
type StatusResult struct {
	Status   ProvisioningStatus `json:"status"`
	DeviceID string             `json:"device_id,omitempty"`
}

// SetupRequest finalizes device metadata
type SetupRequest struct {
	DeviceID     string `json:"device_id"`
	Name         string `json:"name"`
	LocationCity string `json:"location_city"`
	Timezone     string `json:"timezone"`
}

// DeviceProvisionRequest is pushed to the device over its own access point
type DeviceProvisionRequest struct {
	ProvisioningToken string `json:"provisioning_token"`
	WiFiSSID          string `json:"wifi_ssid"`
	WiFiPassword      string `json:"wifi_password"`
	ServerURL         string `json:"server_url"`
}

// LocationOptions are the regions offered on the location step
var LocationOptions = []string{
	"서울특별시",
	"부산광역시",
	"대구광역시",
	"인천광역시",
	"광주광역시",
	"대전광역시",
	"울산광역시",
	"세종특별자치시",
	"경기도",
	"강원특별자치도",
	"충청북도",
	"충청남도",
	"전북특별자치도",
	"전라남도",
	"경상북도",
	"경상남도",
	"제주특별자치도",
}

// IsKnownLocation reports whether city is one of LocationOptions
func IsKnownLocation(city string) bool {
	for _, l := range LocationOptions {
		if l == city {
			return true
		}
	}
	return false
}
