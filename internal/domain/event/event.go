package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEventType is returned when an envelope carries a type discriminator
// that no registered variant matches. Replay treats this as fatal so that a
// corrupt or future-schema log never silently produces a wrong aggregate.
var ErrUnknownEventType = errors.New("unknown event type")

// Type discriminates the concrete event variant inside an Envelope.
type Type string

const (
	TypeUserCreated   Type = "user.created"
	TypeUserUpdated   Type = "user.updated"
	TypeLoginRecorded Type = "user.login_recorded"
	TypeUserDeleted   Type = "user.deleted"
)

// Envelope is the unit stored in the event log and shipped over the bus.
// ID and Timestamp are assigned at construction; Version is assigned by the
// aggregate repository at append time. Envelopes are immutable once appended.
type Envelope struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	Type        Type            `json:"event_type"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int64           `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

// UserCreated is the first event of every aggregate and carries the full
// identity. Password hashes are stored here, never plaintext.
type UserCreated struct {
	Email          string `json:"email"`
	PasswordHash   string `json:"password_hash,omitempty"`
	Provider       string `json:"provider,omitempty"`
	ProviderID     string `json:"provider_id,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// UserUpdated carries a partial merge: nil fields leave the prior state
// untouched, non-nil fields overwrite it.
type UserUpdated struct {
	Email             *string `json:"email,omitempty"`
	PasswordHash      *string `json:"password_hash,omitempty"`
	PreferredLanguage *string `json:"preferred_language,omitempty"`
	ProfilePicture    *string `json:"profile_picture,omitempty"`
}

// LoginRecorded appends one entry to the aggregate's login history.
type LoginRecorded struct {
	Success bool `json:"success"`
}

// UserDeleted sets the tombstone. It carries no payload.
type UserDeleted struct{}

// TypeOf maps a payload variant to its discriminator.
func TypeOf(payload any) (Type, error) {
	switch payload.(type) {
	case UserCreated, *UserCreated:
		return TypeUserCreated, nil
	case UserUpdated, *UserUpdated:
		return TypeUserUpdated, nil
	case LoginRecorded, *LoginRecorded:
		return TypeLoginRecorded, nil
	case UserDeleted, *UserDeleted:
		return TypeUserDeleted, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownEventType, payload)
	}
}

// New builds an envelope for the given payload. The version stays zero until
// the repository assigns it at append time.
func New(aggregateID string, payload any) (Envelope, error) {
	if aggregateID == "" {
		return Envelope{}, errors.New("aggregate id is empty")
	}
	t, err := TypeOf(payload)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		Type:        t,
		Timestamp:   time.Now().UTC(),
		Payload:     body,
	}, nil
}

// Decode reconstructs the typed payload from the envelope. The switch is
// exhaustive over known variants; anything else fails with ErrUnknownEventType.
func (e Envelope) Decode() (any, error) {
	switch e.Type {
	case TypeUserCreated:
		var p UserCreated
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeUserUpdated:
		var p UserUpdated
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeLoginRecorded:
		var p LoginRecorded
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeUserDeleted:
		return UserDeleted{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
}

// Validate checks the invariants every stored envelope must hold.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("envelope id is empty")
	}
	if e.AggregateID == "" {
		return errors.New("envelope aggregate id is empty")
	}
	if e.Type == "" {
		return errors.New("envelope type is empty")
	}
	if e.Timestamp.IsZero() {
		return errors.New("envelope timestamp is zero")
	}
	if e.Version < 1 {
		return fmt.Errorf("envelope version %d is not positive", e.Version)
	}
	return nil
}
