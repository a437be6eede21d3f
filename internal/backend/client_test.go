package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
	"github.com/baegaepro/pillow-client/internal/session"
	"github.com/baegaepro/pillow-client/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tokens := session.New(storage.NewMemoryStore())
	return NewClient(srv.URL, 2*time.Second, tokens, opts...), tokens
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return tok
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "이메일 또는 비밀번호가 올바르지 않습니다"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]string{"access_token": "at-1", "refresh_token": "rt-1"},
		})
	})

	c, tokens := newTestClient(t, mux)
	ctx := context.Background()

	err := c.Login(ctx, "user@example.com", "wrong")
	var reqErr *apperr.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.Equal(t, "이메일 또는 비밀번호가 올바르지 않습니다", apperr.UserMessage(err))

	require.NoError(t, c.Login(ctx, "user@example.com", "pw"))
	auth, err := tokens.Auth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AuthSession{AccessToken: "at-1", RefreshToken: "rt-1"}, auth)
}

func TestPrivate_RefreshOnceOn401(t *testing.T) {
	var refreshes, dashboards int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]string{"access_token": "fresh"},
		})
	})
	mux.HandleFunc("/api/v1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dashboards, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": models.Dashboard{Dashboard: models.DashboardBody{
				UserID:       7,
				SleepSummary: models.SleepSummary{LastNightScore: 82},
			}},
		})
	})

	c, tokens := newTestClient(t, mux)
	ctx := context.Background()
	require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{AccessToken: "stale", RefreshToken: "rt"}))

	d, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 82, d.Dashboard.SleepSummary.LastNightScore)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	assert.Equal(t, int32(2), atomic.LoadInt32(&dashboards))

	auth, err := tokens.Auth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AuthSession{AccessToken: "fresh", RefreshToken: "rt"}, auth)
}

func TestPrivate_RefreshFailureClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token expired"})
	})
	mux.HandleFunc("/api/v1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	})

	var redirected bool
	c, tokens := newTestClient(t, mux, WithUnauthenticatedHandler(func() { redirected = true }))
	ctx := context.Background()
	require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{AccessToken: "stale", RefreshToken: "rt"}))

	_, err := c.Dashboard(ctx)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.True(t, redirected)

	auth, err := tokens.Auth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AuthSession{}, auth)
}

func TestPrivate_ExpiredTokenRefreshedBeforeSend(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	var sawStale bool

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]string{"access_token": fresh, "refresh_token": "rt-2"},
		})
	})
	mux.HandleFunc("/api/v1/devices/dev-99", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fresh {
			sawStale = true
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"device_id": "dev-99", "status": "online", "is_setup_complete": true},
		})
	})

	c, tokens := newTestClient(t, mux)
	ctx := context.Background()
	require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{
		AccessToken:  signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "rt-1",
	}))

	dev, err := c.DeviceStatus(ctx, "dev-99")
	require.NoError(t, err)
	assert.False(t, sawStale)
	assert.Equal(t, "dev-99", dev.ID)
	assert.True(t, dev.IsSetupComplete)
}

func TestPrivate_NoCredentials(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	_, err := c.Dashboard(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestRequestCode(t *testing.T) {
	ctx := context.Background()

	t.Run("success with expires_in only", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v1/devices/provisioning/request", func(w http.ResponseWriter, r *http.Request) {
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "pillow", req["device_type"])
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"provisioning_code": "ABC123", "expires_in": 300},
			})
		})

		c, tokens := newTestClient(t, mux)
		now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }
		require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{AccessToken: "at"}))

		code, err := c.RequestCode(ctx, "pillow", "bedroom")
		require.NoError(t, err)
		assert.Equal(t, "ABC123", code.Code)
		assert.Equal(t, now.Add(300*time.Second), code.ExpiresAt)
	})

	t.Run("server message surfaced", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v1/devices/provisioning/request", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{"success": false, "message": "이미 등록 중인 기기가 있습니다"})
		})

		c, tokens := newTestClient(t, mux)
		require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{AccessToken: "at"}))

		_, err := c.RequestCode(ctx, "pillow", "bedroom")
		assert.ErrorIs(t, err, apperr.ErrProvisioningRequestFailed)
		assert.Equal(t, "이미 등록 중인 기기가 있습니다", apperr.UserMessage(err))
	})
}

func TestPollStatus(t *testing.T) {
	ctx := context.Background()
	replies := []string{
		`{"success":true,"data":{"status":"pending"}}`,
		`{"success":true,"data":{"status":"completed","device_id":"dev-99"}}`,
		`{"success":true,"data":{"status":"rebooting"}}`,
	}
	var n int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/devices/provisioning/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		i := atomic.AddInt32(&n, 1) - 1
		w.Write([]byte(replies[i]))
	})

	c, tokens := newTestClient(t, mux)
	require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{AccessToken: "at"}))

	res, err := c.PollStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)

	res, err = c.PollStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, "dev-99", res.DeviceID)

	_, err = c.PollStatus(ctx, "ABC123")
	assert.ErrorIs(t, err, apperr.ErrRequestFailed)
}

func TestTransportErrorIsRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	tokens := session.New(storage.NewMemoryStore())
	c := NewClient(srv.URL, time.Second, tokens)

	_, err := c.Signup(context.Background(), "a@b.c", "pw", "홍길동")
	assert.ErrorIs(t, err, apperr.ErrRequestFailed)
}

func TestLogout_ClearsEvenOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "down"})
	})

	c, tokens := newTestClient(t, mux)
	ctx := context.Background()
	require.NoError(t, tokens.SetAuth(ctx, models.AuthSession{AccessToken: "at", RefreshToken: "rt"}))

	require.NoError(t, c.Logout(ctx))
	auth, err := tokens.Auth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AuthSession{}, auth)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := tokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = tokenExpiry("opaque-token")
	assert.False(t, ok)
}
