package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/device"
	"github.com/baegaepro/pillow-client/internal/models"
)

// simulatedDevice is the pillow answering on its own access point
type simulatedDevice struct {
	mu       sync.Mutex
	id       string
	firmware string
	ssid     string
}

// HandleDeviceProvision accepts home network credentials the way a pillow in AP mode does
func (s *RESTServer) HandleDeviceProvision(w http.ResponseWriter, r *http.Request) {
	var req models.DeviceProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProvisioningToken == "" || req.WiFiSSID == "" {
		http.Error(w, "provisioning_token and wifi_ssid are required", http.StatusBadRequest)
		return
	}

	deviceID, err := s.registry.DevicePushed(req.ProvisioningToken, req.WiFiSSID)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "unknown provisioning token", http.StatusBadRequest)
		return
	case errors.Is(err, ErrCodeExpired):
		http.Error(w, "provisioning token expired", http.StatusGone)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	s.device.mu.Lock()
	s.device.ssid = req.WiFiSSID
	s.device.mu.Unlock()

	log.Info().
		Str("ap_device", s.device.id).
		Str("device_id", deviceID).
		Str("wifi_ssid", req.WiFiSSID).
		Str("server_url", req.ServerURL).
		Msg("Simulated device received credentials")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}

// HandleDeviceStatus reports the simulated device
func (s *RESTServer) HandleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	s.device.mu.Lock()
	st := device.Status{
		DeviceID:        s.device.id,
		FirmwareVersion: s.device.firmware,
		Provisioned:     s.device.ssid != "",
		WiFiSSID:        s.device.ssid,
	}
	s.device.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}
