package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/models"
)

// HandleRequestCode issues a provisioning code to the signed-in user
func (s *RESTServer) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceType string `json:"device_type" validate:"required,oneof=pillow"`
		Location   string `json:"location" validate:"max=50"`
	}

	if !s.decode(w, r, &req) {
		return
	}

	claims := claimsFrom(r.Context())
	code, err := s.registry.IssueCode(claims.UserID, req.DeviceType, req.Location)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().
		Str("code", code.Code).
		Str("user", claims.Email).
		Time("expires_at", code.ExpiresAt).
		Msg("Provisioning code issued")
	s.respondJSON(w, http.StatusCreated, code)
}

// HandleProvisioningStatus answers one status poll
func (s *RESTServer) HandleProvisioningStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"provisioning_code" validate:"required"`
	}

	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.registry.Poll(claimsFrom(r.Context()).UserID, req.Code)
	if errors.Is(err, ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "등록 코드를 찾을 수 없습니다")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, res)
}

// HandleCompleteSetup finalizes a provisioned device
func (s *RESTServer) HandleCompleteSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID     string `json:"device_id" validate:"required"`
		Name         string `json:"name" validate:"required,max=50"`
		LocationCity string `json:"location_city" validate:"required"`
		Timezone     string `json:"timezone"`
	}

	if !s.decode(w, r, &req) {
		return
	}
	if !models.IsKnownLocation(req.LocationCity) {
		s.respondError(w, http.StatusBadRequest, "지원하지 않는 지역입니다")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "Asia/Seoul"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid timezone")
		return
	}

	device, err := s.registry.CompleteSetup(claimsFrom(r.Context()).UserID, models.SetupRequest{
		DeviceID:     req.DeviceID,
		Name:         req.Name,
		LocationCity: req.LocationCity,
		Timezone:     req.Timezone,
	})
	if errors.Is(err, ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "기기를 찾을 수 없습니다")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("device_id", device.ID).Str("name", device.Name).Msg("Device setup completed")
	s.respondMessage(w, http.StatusOK, "기기 설정이 완료되었습니다", device)
}

// HandleListDevices lists the user's devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.Devices(claimsFrom(r.Context()).UserID)
	if devices == nil {
		devices = []models.Device{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

// HandleTransitions lists the provisioning transitions received over NATS
func (s *RESTServer) HandleTransitions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit: must be a positive integer")
			return
		}
		limit = n
	}

	transitions := s.registry.Transitions(limit)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"transitions": transitions,
		"total":       len(transitions),
	})
}

// HandleGetDevice gets one device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.registry.Device(claimsFrom(r.Context()).UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "기기를 찾을 수 없습니다")
		return
	}
	s.respondJSON(w, http.StatusOK, device)
}

// HandleDashboard builds the home screen snapshot
func (s *RESTServer) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.Devices(claimsFrom(r.Context()).UserID)
	s.respondJSON(w, http.StatusOK, buildDashboard(devices, time.Now()))
}

func buildDashboard(devices []models.Device, now time.Time) *models.Dashboard {
	d := &models.Dashboard{
		Dashboard: models.DashboardBody{
			RecentAlerts:   []models.Alert{},
			Recommendation: []models.Recommendation{},
			UpcomingAlarms: []models.Alarm{},
			WeeklyProgress: models.WeeklyProgress{
				CurrentWeek: []models.DayProgress{},
				SleepGoal:   480,
				WeeklyTrend: "stable",
			},
			Environment: models.EnvironmentReport{Recommendations: []string{}},
			LastUpdated: now.UTC().Format(time.RFC3339),
		},
		Settings: models.DashboardSettings{
			SleepGoal:           480,
			DisplayUnits:        "metric",
			ShowRecommendations: true,
			ShowAlerts:          true,
			DashboardLayout:     "default",
			Theme:               "light",
			Language:            "ko",
		},
		Widgets: []models.Widget{},
	}

	if len(devices) == 0 {
		d.Dashboard.DeviceStatus.Status = "not_registered"
		return d
	}

	dev := devices[0]
	d.Dashboard.DeviceStatus = models.DashboardDevice{
		DeviceID:        dev.ID,
		DeviceName:      dev.Name,
		Status:          dev.Status,
		BatteryLevel:    dev.BatteryLevel,
		FirmwareVersion: dev.FirmwareVersion,
		WiFiStrength:    dev.WiFiRSSI,
		IsOnline:        dev.Status == "online",
		LastHeartbeat:   now.UTC().Format(time.RFC3339),
	}
	return d
}
