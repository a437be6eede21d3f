package flow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
)

// ErrPollInFlight is returned when a second poll loop is started for the same poller
var ErrPollInFlight = errors.New("status polling already running")

// StatusSource answers one provisioning status query
type StatusSource interface {
	PollStatus(ctx context.Context, code string) (*models.StatusResult, error)
}

// Poller waits for the backend to report a provisioning code as completed.
// At most one query is outstanding; the next is scheduled after the previous settles.
type Poller struct {
	source   StatusSource
	interval time.Duration
	attempts int
	running  atomic.Bool
}

// NewPoller creates a poller; non-positive values fall back to 1s and 60 attempts
func NewPoller(source StatusSource, interval time.Duration, attempts int) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if attempts <= 0 {
		attempts = 60
	}
	return &Poller{source: source, interval: interval, attempts: attempts}
}

// Run polls until completion and returns the device id
func (p *Poller) Run(ctx context.Context, code string) (string, error) {
	if !p.running.CompareAndSwap(false, true) {
		return "", ErrPollInFlight
	}
	defer p.running.Store(false)

	timer := time.NewTimer(p.interval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		res, err := p.source.PollStatus(ctx, code)
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, apperr.ErrUnauthenticated):
			return "", err
		case err != nil:
			log.Warn().Err(err).Int("attempt", attempt).Msg("Status poll failed")
		case res.Status == models.StatusCompleted && res.DeviceID != "":
			log.Info().Int("attempt", attempt).Str("device_id", res.DeviceID).Msg("Provisioning completed")
			return res.DeviceID, nil
		case res.Status == models.StatusCompleted:
			log.Warn().Int("attempt", attempt).Msg("Completed status without device id")
		case res.Status.Terminal():
			return "", fmt.Errorf("%w: status %s", apperr.ErrProvisioningTerminal, res.Status)
		default:
			log.Debug().Int("attempt", attempt).Str("status", string(res.Status)).Msg("Provisioning pending")
		}

		if attempt == p.attempts {
			break
		}
		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return "", fmt.Errorf("%w after %d attempts", apperr.ErrPollingTimedOut, p.attempts)
}
