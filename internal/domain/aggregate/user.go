package aggregate

import (
	"fmt"
	"time"

	"github.com/banku/user-service/internal/domain/event"
)

// LoginEntry is one recorded login attempt.
type LoginEntry struct {
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
}

// User is the current-state projection of one aggregate's event history.
// It is transient: rebuilt on demand by Replay and discarded afterwards;
// the event log is the unit of storage.
type User struct {
	ID      string
	Version int64
	Deleted bool

	Email             string
	PasswordHash      string
	Provider          string
	ProviderID        string
	FirstName         string
	LastName          string
	ProfilePicture    string
	PreferredLanguage string
	LoginHistory      []LoginEntry
}

// Apply folds one event into the aggregate and advances its version.
// It is a pure function of the envelope: no clock or randomness, so replaying
// the same sequence always yields the same state.
func (u *User) Apply(env event.Envelope) error {
	if env.Version != u.Version+1 {
		return fmt.Errorf("aggregate %s: expected version %d, got %d", u.ID, u.Version+1, env.Version)
	}

	payload, err := env.Decode()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case event.UserCreated:
		u.Email = p.Email
		u.PasswordHash = p.PasswordHash
		u.Provider = p.Provider
		u.ProviderID = p.ProviderID
		u.FirstName = p.FirstName
		u.LastName = p.LastName
		u.ProfilePicture = p.ProfilePicture
	case event.UserUpdated:
		if p.Email != nil {
			u.Email = *p.Email
		}
		if p.PasswordHash != nil {
			u.PasswordHash = *p.PasswordHash
		}
		if p.PreferredLanguage != nil {
			u.PreferredLanguage = *p.PreferredLanguage
		}
		if p.ProfilePicture != nil {
			u.ProfilePicture = *p.ProfilePicture
		}
	case event.LoginRecorded:
		u.LoginHistory = append(u.LoginHistory, LoginEntry{At: env.Timestamp, Success: p.Success})
	case event.UserDeleted:
		u.Deleted = true
	default:
		return fmt.Errorf("%w: %T", event.ErrUnknownEventType, payload)
	}

	u.Version = env.Version
	return nil
}

// Replay folds an ordered event sequence into a User. A nil aggregate is
// returned for an empty sequence; callers treat that as not found.
func Replay(id string, envs []event.Envelope) (*User, error) {
	if len(envs) == 0 {
		return nil, nil
	}
	u := &User{ID: id}
	for _, env := range envs {
		if err := u.Apply(env); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// FullName joins the name fields, tolerating either being empty.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
