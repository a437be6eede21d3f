package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/events"
)

// WebhookPublisher forwards provisioning transitions to an HTTP endpoint
type WebhookPublisher struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
}

// NewWebhookPublisher creates a publisher for cfg.URL
func NewWebhookPublisher(cfg config.WebhookConfig) *WebhookPublisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookPublisher{
		endpoint:   cfg.URL,
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Publish posts t as JSON. Any status >= 400 is an error.
func (p *WebhookPublisher) Publish(ctx context.Context, t events.Transition) error {
	body, err := json.Marshal(map[string]interface{}{
		"type":       "provisioning.transition",
		"transition": t,
		"timestamp":  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("endpoint", p.endpoint).Msg("Failed to forward transition")
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", p.endpoint).
			Msg("Webhook rejected transition")
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}

	log.Debug().
		Str("to", t.To).
		Str("endpoint", p.endpoint).
		Msg("Transition forwarded")
	return nil
}

func (p *WebhookPublisher) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
