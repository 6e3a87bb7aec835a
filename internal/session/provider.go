package session

import (
	"context"
	"time"

	"github.com/example/autoescola/internal/domain"
)

// Credentials are the sign-in inputs for one role.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// NewUser carries sign-up data for one role.
type NewUser struct {
	Email              string `json:"email" validate:"required,email"`
	Password           string `json:"password" validate:"required,min=8"`
	DisplayName        string `json:"display_name" validate:"required"`
	Phone              string `json:"phone"`
	LicenseNumber      string `json:"license_number,omitempty"`
	VehicleDescription string `json:"vehicle_description,omitempty"`
}

// AuthSession is what an identity provider returns for an authenticated principal.
type AuthSession struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Minimal builds the identity available from the auth response alone.
func (s AuthSession) Minimal(role domain.Role) domain.Identity {
	return domain.Identity{
		ID:          s.UserID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        role,
	}.Normalized()
}

// EventKind classifies provider notifications.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventProfileUpdated EventKind = "profile_updated"
)

// Event is an asynchronous session change pushed by a provider.
type Event struct {
	Kind    EventKind   `json:"kind"`
	Session AuthSession `json:"session"`
}

// Provider authenticates principals of a single role.
//
// SignIn returns an error wrapping domain.ErrAuth for rejected credentials.
// CurrentSession reports false when no session is established.
type Provider interface {
	SignIn(ctx context.Context, creds Credentials) (AuthSession, error)
	SignUp(ctx context.Context, user NewUser) (AuthSession, error)
	CurrentSession(ctx context.Context) (AuthSession, bool, error)
	// OnSessionChange registers fn for asynchronous notifications and returns
	// a function that removes it.
	OnSessionChange(fn func(Event)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// ProfileStore persists role-specific profile records.
type ProfileStore interface {
	FetchProfile(ctx context.Context, role domain.Role, id string) (domain.Identity, error)
	// CreateProfile returns an error wrapping domain.ErrAlreadyExists when the
	// record was provisioned elsewhere.
	CreateProfile(ctx context.Context, identity domain.Identity) error
	UpdateProfile(ctx context.Context, role domain.Role, id string, update domain.ProfileUpdate) (domain.Identity, error)
}
