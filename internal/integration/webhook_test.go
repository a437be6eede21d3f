package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/events"
)

func TestWebhookPublisher(t *testing.T) {
	var got struct {
		Type       string            `json:"type"`
		Transition events.Transition `json:"transition"`
	}
	var auth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p := NewWebhookPublisher(config.WebhookConfig{URL: ts.URL, Headers: map[string]string{"X-Api-Key": "k1"}})
	defer p.Close()

	err := p.Publish(context.Background(), events.Transition{From: "DeviceConnecting", To: "LocationEntry", DeviceID: "dev-99"})
	require.NoError(t, err)

	assert.Equal(t, "k1", auth)
	assert.Equal(t, "provisioning.transition", got.Type)
	assert.Equal(t, "dev-99", got.Transition.DeviceID)
}

func TestWebhookPublisher_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	p := NewWebhookPublisher(config.WebhookConfig{URL: ts.URL})
	err := p.Publish(context.Background(), events.Transition{To: "Start"})
	assert.ErrorContains(t, err, "status 502")
}
