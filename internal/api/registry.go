package api

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baegaepro/pillow-client/internal/events"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/pkg/crypto"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrCodeExpired  = errors.New("provisioning code expired")
	ErrWrongState   = errors.New("provisioning code in wrong state")
)

// provisioning is one issued code and how far its device got
type provisioning struct {
	Code       string
	OwnerID    uuid.UUID
	DeviceType string
	Location   string
	ExpiresAt  time.Time
	Status     models.ProvisioningStatus
	DeviceID   string
	WiFiSSID   string
	polls      int
}

// Registry is the in-memory state of the sandbox backend
type Registry struct {
	mu sync.Mutex

	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	codes        map[string]*provisioning
	devices      map[string]*models.Device
	revoked      map[string]time.Time
	transitions  []events.Transition

	completionPolls int
	codeTTL         time.Duration
	now             func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(codeTTL time.Duration, completionPolls int) *Registry {
	return &Registry{
		usersByEmail:    make(map[string]*models.User),
		usersByID:       make(map[uuid.UUID]*models.User),
		codes:           make(map[string]*provisioning),
		devices:         make(map[string]*models.Device),
		revoked:         make(map[string]time.Time),
		completionPolls: completionPolls,
		codeTTL:         codeTTL,
		now:             time.Now,
	}
}

// SetClock replaces the time source used for code expiry
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// CreateUser registers an account
func (r *Registry) CreateUser(email, name, passwordHash string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := r.usersByEmail[key]; ok {
		return nil, ErrDuplicateKey
	}

	user := &models.User{
		ID:           uuid.New(),
		CreatedAt:    r.now().UTC(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	r.usersByEmail[key] = user
	r.usersByID[user.ID] = user
	return user, nil
}

// UserByEmail looks an account up for login
func (r *Registry) UserByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

// User looks an account up by id
func (r *Registry) User(id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

// Revoke invalidates a refresh token id until it would have expired anyway
func (r *Registry) Revoke(jti string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, id)
		}
	}
	r.revoked[jti] = until
}

// Revoked reports whether a refresh token id was logged out
func (r *Registry) Revoked(jti string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[jti]
	return ok
}

// IssueCode creates a provisioning code for owner
func (r *Registry) IssueCode(owner uuid.UUID, deviceType, location string) (*models.ProvisioningCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for {
		c, err := crypto.GenerateCode(6)
		if err != nil {
			return nil, err
		}
		if _, taken := r.codes[c]; !taken {
			code = c
			break
		}
	}

	p := &provisioning{
		Code:       code,
		OwnerID:    owner,
		DeviceType: deviceType,
		Location:   location,
		ExpiresAt:  r.now().Add(r.codeTTL).UTC(),
		Status:     models.StatusPending,
	}
	r.codes[code] = p

	return &models.ProvisioningCode{
		Code:      code,
		ExpiresAt: p.ExpiresAt,
		ExpiresIn: int(r.codeTTL.Seconds()),
	}, nil
}

// lookup returns the code, expiring it on the way; r.mu must be held
func (r *Registry) lookup(code string) (*provisioning, error) {
	p, ok := r.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != models.StatusCompleted && !r.now().Before(p.ExpiresAt) {
		p.Status = models.StatusExpired
	}
	return p, nil
}

// Poll answers a status query for owner's code.
// A pushed code reports connected, then completed after completionPolls queries.
func (r *Registry) Poll(owner uuid.UUID, code string) (*models.StatusResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(code)
	if err != nil || p.OwnerID != owner {
		return nil, ErrNotFound
	}

	if p.Status == models.StatusConnected {
		p.polls++
		if p.polls > r.completionPolls {
			p.Status = models.StatusCompleted
			r.devices[p.DeviceID] = &models.Device{
				ID:              p.DeviceID,
				OwnerID:         p.OwnerID,
				Status:          "online",
				FirmwareVersion: "1.0.0",
				WiFiRSSI:        -55,
				BatteryLevel:    100,
				CreatedAt:       r.now().UTC(),
			}
		}
	}

	res := &models.StatusResult{Status: p.Status}
	if p.Status == models.StatusCompleted {
		res.DeviceID = p.DeviceID
	}
	return res, nil
}

// DevicePushed records that a device received credentials for code
func (r *Registry) DevicePushed(code, wifiSSID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(code)
	if err != nil {
		return "", err
	}
	switch p.Status {
	case models.StatusExpired:
		return "", ErrCodeExpired
	case models.StatusPending:
	default:
		return "", ErrWrongState
	}

	p.Status = models.StatusConnected
	p.WiFiSSID = wifiSSID
	p.DeviceID = "dev-" + strings.ToLower(p.Code)
	return p.DeviceID, nil
}

// CompleteSetup names a device owned by owner
func (r *Registry) CompleteSetup(owner uuid.UUID, req models.SetupRequest) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[req.DeviceID]
	if !ok || d.OwnerID != owner {
		return nil, ErrNotFound
	}
	d.Name = req.Name
	d.LocationCity = req.LocationCity
	d.Timezone = req.Timezone
	d.IsSetupComplete = true

	copied := *d
	return &copied, nil
}

// Device returns one of owner's devices
func (r *Registry) Device(owner uuid.UUID, id string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok || d.OwnerID != owner {
		return nil, ErrNotFound
	}
	copied := *d
	return &copied, nil
}

// Devices returns every device of owner
func (r *Registry) Devices(owner uuid.UUID) []models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Device
	for _, d := range r.devices {
		if d.OwnerID == owner {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// maxTransitions bounds the transition feed
const maxTransitions = 200

// RecordTransition appends t to the feed, dropping the oldest entry when full
func (r *Registry) RecordTransition(t events.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions = append(r.transitions, t)
	if over := len(r.transitions) - maxTransitions; over > 0 {
		r.transitions = append(r.transitions[:0:0], r.transitions[over:]...)
	}
}

// Transitions returns up to limit entries, newest first
func (r *Registry) Transitions(limit int) []events.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.transitions) {
		limit = len(r.transitions)
	}
	out := make([]events.Transition, 0, limit)
	for i := len(r.transitions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.transitions[i])
	}
	return out
}

// transitionSink records published transitions in the registry
type transitionSink struct {
	r *Registry
}

func (s transitionSink) Publish(_ context.Context, t events.Transition) error {
	s.r.RecordTransition(t)
	return nil
}

func (transitionSink) Close() error { return nil }
