package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/config"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes transitions on <prefix>.<state>
type NATSPublisher struct {
	nc     natsConn
	prefix string
}

// ConnectNATS dials the configured server and returns a publisher
func ConnectNATS(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("Connected to NATS")
	return NewNATSPublisher(nc, cfg.SubjectPrefix), nil
}

// NewNATSPublisher wraps an established connection
func NewNATSPublisher(nc natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject a transition into state is published on
func (p *NATSPublisher) Subject(state string) string {
	return p.prefix + "." + strings.ToLower(state)
}

func (p *NATSPublisher) Publish(ctx context.Context, t Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	subject := p.Subject(t.To)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	log.Debug().Str("subject", subject).Str("event", t.Event).Msg("Transition published to NATS")
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
