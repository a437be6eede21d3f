package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/internal/storage"
	"github.com/baegaepro/pillow-client/pkg/crypto"
	"github.com/baegaepro/pillow-client/pkg/wifi"
)

const sealedPrefix = "sealed:"

// Persisted keys
const (
	KeyProvisioningCode = "PROVISIONING_CODE"
	KeyExpiresAt        = "PROVISIONING_EXPIRES_AT"
	KeySelectedNetwork  = "SELECTED_DEVICE_NETWORK"
	KeyWiFiCredentials  = "USER_WIFI_CREDENTIALS"
	KeyConnectedDevice  = "CONNECTED_DEVICE_ID"
	KeyAccessToken      = "ACCESS"
	KeyRefreshToken     = "REFRESH"
)

var provisioningKeys = []string{
	KeyProvisioningCode,
	KeyExpiresAt,
	KeySelectedNetwork,
	KeyWiFiCredentials,
	KeyConnectedDevice,
}

// Store gives typed access to the provisioning and auth keys of a storage.Store
type Store struct {
	kv      storage.Store
	sealKey []byte
}

// Option configures a Store
type Option func(*Store)

// WithSealKey encrypts the home WiFi credentials at rest with AES-GCM
func WithSealKey(key []byte) Option {
	return func(s *Store) {
		s.sealKey = key
	}
}

// New wraps kv
func New(kv storage.Store, opts ...Option) *Store {
	s := &Store{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		// a half-written value is as good as absent
		return false, nil
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, string(data))
}

// SetCode stores a freshly issued provisioning code and its expiry
func (s *Store) SetCode(ctx context.Context, code string, expiresAt time.Time) error {
	if err := s.kv.Set(ctx, KeyProvisioningCode, code); err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyExpiresAt, expiresAt.UTC().Format(time.RFC3339Nano))
}

// Code returns the stored code and expiry
func (s *Store) Code(ctx context.Context) (string, time.Time, bool, error) {
	code, ok, err := s.get(ctx, KeyProvisioningCode)
	if err != nil || !ok || code == "" {
		return "", time.Time{}, false, err
	}

	raw, ok, err := s.get(ctx, KeyExpiresAt)
	if err != nil || !ok {
		return "", time.Time{}, false, err
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", time.Time{}, false, nil
	}
	return code, expiresAt, true, nil
}

// SetSelectedNetwork stores the chosen device network
func (s *Store) SetSelectedNetwork(ctx context.Context, n wifi.DeviceNetwork) error {
	return s.setJSON(ctx, KeySelectedNetwork, n)
}

// SelectedNetwork returns the chosen device network
func (s *Store) SelectedNetwork(ctx context.Context) (*wifi.DeviceNetwork, error) {
	var n wifi.DeviceNetwork
	ok, err := s.getJSON(ctx, KeySelectedNetwork, &n)
	if err != nil || !ok {
		return nil, err
	}
	return &n, nil
}

// SetCredentials stores the home WiFi credentials, sealed when a key is configured
func (s *Store) SetCredentials(ctx context.Context, c models.WiFiCredentials) error {
	if s.sealKey == nil {
		return s.setJSON(ctx, KeyWiFiCredentials, c)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyWiFiCredentials, err)
	}
	sealed, err := crypto.Encrypt(s.sealKey, data)
	if err != nil {
		return fmt.Errorf("seal %s: %w", KeyWiFiCredentials, err)
	}
	return s.kv.Set(ctx, KeyWiFiCredentials, sealedPrefix+base64.StdEncoding.EncodeToString(sealed))
}

// Credentials returns the home WiFi credentials.
// A value that cannot be opened with the current key reads as absent.
func (s *Store) Credentials(ctx context.Context) (*models.WiFiCredentials, error) {
	raw, ok, err := s.get(ctx, KeyWiFiCredentials)
	if err != nil || !ok {
		return nil, err
	}

	if strings.HasPrefix(raw, sealedPrefix) {
		if s.sealKey == nil {
			return nil, nil
		}
		sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, sealedPrefix))
		if err != nil {
			return nil, nil
		}
		opened, err := crypto.Decrypt(s.sealKey, sealed)
		if err != nil {
			return nil, nil
		}
		raw = string(opened)
	}

	var c models.WiFiCredentials
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, nil
	}
	return &c, nil
}

// ClearCredentials drops the home WiFi credentials once delivered
func (s *Store) ClearCredentials(ctx context.Context) error {
	return s.kv.Remove(ctx, KeyWiFiCredentials)
}

// SetConnectedDevice stores the device id reported on completion
func (s *Store) SetConnectedDevice(ctx context.Context, deviceID string) error {
	return s.kv.Set(ctx, KeyConnectedDevice, deviceID)
}

// ConnectedDevice returns the device id reported on completion
func (s *Store) ConnectedDevice(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyConnectedDevice)
	return v, err
}

// Load assembles the provisioning session.
// An expired code yields apperr.ErrSessionExpired, a missing one apperr.ErrMissingState;
// callers treat both as "no session".
func (s *Store) Load(ctx context.Context, now time.Time) (*models.ProvisioningSession, error) {
	code, expiresAt, ok, err := s.Code(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrMissingState
	}

	sess := &models.ProvisioningSession{ProvisioningCode: code, ExpiresAt: expiresAt}
	if !sess.Valid(now) {
		return nil, apperr.ErrSessionExpired
	}

	if sess.SelectedNetwork, err = s.SelectedNetwork(ctx); err != nil {
		return nil, err
	}
	if sess.WiFiCredentials, err = s.Credentials(ctx); err != nil {
		return nil, err
	}
	if sess.ConnectedDeviceID, err = s.ConnectedDevice(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// ClearProvisioning removes every provisioning key
func (s *Store) ClearProvisioning(ctx context.Context) error {
	var errs []error
	for _, key := range provisioningKeys {
		if err := s.kv.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetAuth stores both tokens
func (s *Store) SetAuth(ctx context.Context, a models.AuthSession) error {
	if err := s.kv.Set(ctx, KeyAccessToken, a.AccessToken); err != nil {
		return err
	}
	if a.RefreshToken == "" {
		return nil
	}
	return s.kv.Set(ctx, KeyRefreshToken, a.RefreshToken)
}

// Auth returns the stored tokens; empty fields when signed out
func (s *Store) Auth(ctx context.Context) (models.AuthSession, error) {
	var a models.AuthSession
	var err error
	if a.AccessToken, _, err = s.get(ctx, KeyAccessToken); err != nil {
		return a, err
	}
	if a.RefreshToken, _, err = s.get(ctx, KeyRefreshToken); err != nil {
		return a, err
	}
	return a, nil
}

// ClearAuth signs the user out locally
func (s *Store) ClearAuth(ctx context.Context) error {
	return errors.Join(
		s.kv.Remove(ctx, KeyAccessToken),
		s.kv.Remove(ctx, KeyRefreshToken),
	)
}
