package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baegaepro/pillow-client/internal/events"
)

type fakeSubscriber struct {
	subject    string
	handler    nats.MsgHandler
	err        error
	subscribed chan struct{}
}

func newFakeSubscriber(err error) *fakeSubscriber {
	return &fakeSubscriber{err: err, subscribed: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject = subject
	f.handler = cb
	close(f.subscribed)
	return nil, f.err
}

func TestTransitionSubscriber(t *testing.T) {
	nc := newFakeSubscriber(nil)
	rec := &events.Recorder{}
	s := NewTransitionSubscriber(nc, "pillow.provisioning.", rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-nc.subscribed:
	case <-time.After(time.Second):
		t.Fatal("subscriber never subscribed")
	}
	assert.Equal(t, "pillow.provisioning.*", nc.subject)

	data, err := json.Marshal(events.Transition{From: "DeviceConnecting", To: "LocationEntry", Event: "provisioning_completed", DeviceID: "dev-99"})
	require.NoError(t, err)
	nc.handler(&nats.Msg{Subject: "pillow.provisioning.locationentry", Data: data})
	nc.handler(&nats.Msg{Subject: "pillow.provisioning.start", Data: []byte("{")})

	require.Len(t, rec.Transitions(), 1)
	assert.Equal(t, "dev-99", rec.Transitions()[0].DeviceID)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTransitionSubscriber_SubscribeError(t *testing.T) {
	nc := newFakeSubscriber(errors.New("no connection"))
	s := NewTransitionSubscriber(nc, "pillow.provisioning", events.Nop{})

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "no connection")
}
