package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transition is one step of the provisioning flow, published for observers
type Transition struct {
	ID       uuid.UUID `json:"id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Event    string    `json:"event"`
	DeviceID string    `json:"device_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers transitions to an external system
type Publisher interface {
	Publish(ctx context.Context, t Transition) error
	Close() error
}

// Nop drops every transition
type Nop struct{}

func (Nop) Publish(context.Context, Transition) error { return nil }
func (Nop) Close() error                              { return nil }

// Multi fans a transition out to several publishers
type Multi []Publisher

// Publish delivers to every publisher and joins their errors
func (m Multi) Publish(ctx context.Context, t Transition) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps transitions in memory
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *Recorder) Publish(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Transitions returns a copy of what was recorded
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

// States returns the target state of every recorded transition
func (r *Recorder) States() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}
