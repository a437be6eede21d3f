package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/events"
)

type subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// TransitionSubscriber feeds provisioning transitions published by clients into a sink
type TransitionSubscriber struct {
	nc     subscriber
	prefix string
	sink   events.Publisher
	subs   []*nats.Subscription
}

// NewTransitionSubscriber creates a subscriber for <prefix>.*
func NewTransitionSubscriber(nc subscriber, prefix string, sink events.Publisher) *TransitionSubscriber {
	return &TransitionSubscriber{
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
		sink:   sink,
	}
}

// Start subscribes and blocks until ctx is done
func (s *TransitionSubscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(s.prefix+".*", s.handleTransition)
	if err != nil {
		return fmt.Errorf("subscribe transitions: %w", err)
	}
	s.subs = append(s.subs, sub)

	log.Info().
		Str("subject", s.prefix+".*").
		Msg("Transition subscriber started")

	<-ctx.Done()

	for _, sub := range s.subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("Failed to unsubscribe")
		}
	}
	return ctx.Err()
}

func (s *TransitionSubscriber) handleTransition(msg *nats.Msg) {
	var t events.Transition
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal transition")
		return
	}

	if want := strings.TrimPrefix(msg.Subject, s.prefix+"."); !strings.EqualFold(want, t.To) {
		log.Warn().
			Str("subject", msg.Subject).
			Str("to", t.To).
			Msg("Transition subject does not match target state")
	}

	if err := s.sink.Publish(context.Background(), t); err != nil {
		log.Error().Err(err).Msg("Failed to record transition")
		return
	}

	evt := log.Info()
	if t.Error != "" {
		evt = log.Warn().Str("error", t.Error)
	}
	evt.
		Str("from", t.From).
		Str("to", t.To).
		Str("event", t.Event).
		Str("device_id", t.DeviceID).
		Msg("Provisioning transition")
}
