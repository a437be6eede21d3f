package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is a registered pillow
type Device struct {
	ID              string     `json:"device_id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	Name            string     `json:"name,omitempty"`
	LocationCity    string     `json:"location_city,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
	Status          string     `json:"status"`
	FirmwareVersion string     `json:"firmware_version"`
	WiFiRSSI        int        `json:"wifi_rssi"`
	BatteryLevel    int        `json:"battery_level"`
	IsSetupComplete bool       `json:"is_setup_complete"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
