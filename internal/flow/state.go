package flow

import (
	"fmt"
	"time"

	"github.com/baegaepro/pillow-client/internal/apperr"
	"github.com/baegaepro/pillow-client/internal/models"
)

// State is one page of the registration wizard
type State int

const (
	Start State = iota
	NetworkSearch
	CredentialEntry
	DeviceConnecting
	LocationEntry
	Done
)

func (s State) String() string {
	switch s {
	case Start:
		return "Start"
	case NetworkSearch:
		return "NetworkSearch"
	case CredentialEntry:
		return "CredentialEntry"
	case DeviceConnecting:
		return "DeviceConnecting"
	case LocationEntry:
		return "LocationEntry"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event moves the wizard between states
type Event int

const (
	CodeIssued Event = iota
	NetworkSelected
	CredentialsDelivered
	ProvisioningCompleted
	SetupCompleted
	Failed
	Abandoned
)

func (e Event) String() string {
	switch e {
	case CodeIssued:
		return "code_issued"
	case NetworkSelected:
		return "network_selected"
	case CredentialsDelivered:
		return "credentials_delivered"
	case ProvisioningCompleted:
		return "provisioning_completed"
	case SetupCompleted:
		return "setup_completed"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

var forward = map[State]struct {
	on   Event
	next State
}{
	Start:            {CodeIssued, NetworkSearch},
	NetworkSearch:    {NetworkSelected, CredentialEntry},
	CredentialEntry:  {CredentialsDelivered, DeviceConnecting},
	DeviceConnecting: {ProvisioningCompleted, LocationEntry},
	LocationEntry:    {SetupCompleted, Done},
}

// Advance is the single transition function of the wizard.
// Failed and Abandoned lead back to Start from anywhere.
func Advance(s State, e Event) (State, error) {
	if e == Failed || e == Abandoned {
		return Start, nil
	}
	if t, ok := forward[s]; ok && t.on == e {
		return t.next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", apperr.ErrInvalidState, e, s)
}

// Resume derives the page to show from what the session holds.
// A nil or expired session starts over.
func Resume(sess *models.ProvisioningSession, now time.Time) State {
	switch {
	case !sess.Valid(now):
		return Start
	case sess.ConnectedDeviceID != "":
		return LocationEntry
	case sess.SelectedNetwork != nil && sess.WiFiCredentials != nil:
		return DeviceConnecting
	case sess.SelectedNetwork != nil:
		return CredentialEntry
	}
	return NetworkSearch
}
