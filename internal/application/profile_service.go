package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
	"github.com/example/autoescola/internal/session"
)

// ProfileService reads and edits identity profiles.
type ProfileService struct {
	profiles persistence.ProfileRepository
	events   EventPublisher
	now      func() time.Time
	logger   zerolog.Logger
}

// NewProfileService wires dependencies for the profile service.
func NewProfileService(profiles persistence.ProfileRepository, events EventPublisher, now func() time.Time, logger zerolog.Logger) *ProfileService {
	if events == nil {
		events = noopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &ProfileService{profiles: profiles, events: events, now: now, logger: logger}
}

// Get returns the stored identity of id for role.
func (s *ProfileService) Get(ctx context.Context, role domain.Role, id string) (domain.Identity, error) {
	profile, err := s.profiles.GetProfile(ctx, role, id)
	if err != nil {
		return domain.Identity{}, mapRepoError(err)
	}
	return profile.Identity(), nil
}

// Create provisions the caller's own profile. An existing profile yields
// domain.ErrAlreadyExists.
func (s *ProfileService) Create(ctx context.Context, principal Principal, identity domain.Identity) (created domain.Identity, err error) {
	logger := serviceLogger(ctx, s.logger, "ProfileService", "Create", "user_id", identity.ID, "role", identity.Role)
	defer func() { logOutcome(logger, err, "profile creation failed", "profile created") }()

	if !principal.Is(identity.Role) || principal.UserID != identity.ID {
		err = domain.ErrForbidden
		return
	}

	now := s.now()
	photo := identity.PhotoURL
	if photo == nil {
		def := domain.DefaultProfilePhoto
		photo = &def
	}
	profile := persistence.Profile{
		UserID:             identity.ID,
		Role:               identity.Role,
		Email:              identity.Email,
		DisplayName:        identity.DisplayName,
		Phone:              identity.Phone,
		PhotoURL:           photo,
		LicenseNumber:      identity.LicenseNumber,
		VehicleDescription: identity.VehicleDescription,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err = mapRepoError(s.profiles.CreateProfile(ctx, profile)); err != nil {
		return
	}
	created = profile.Identity()
	return
}

// Update applies update to the caller's own profile and notifies their
// other connections.
func (s *ProfileService) Update(ctx context.Context, principal Principal, role domain.Role, id string, update domain.ProfileUpdate) (updated domain.Identity, err error) {
	logger := serviceLogger(ctx, s.logger, "ProfileService", "Update", "user_id", id, "role", role)
	defer func() { logOutcome(logger, err, "profile update failed", "profile updated") }()

	if !principal.Is(role) || principal.UserID != id {
		err = domain.ErrForbidden
		return
	}

	var profile persistence.Profile
	if profile, err = s.profiles.GetProfile(ctx, role, id); err != nil {
		err = mapRepoError(err)
		return
	}

	next := update.Apply(profile.Identity())
	profile.DisplayName = next.DisplayName
	profile.Phone = next.Phone
	profile.PhotoURL = next.PhotoURL
	profile.LicenseNumber = next.LicenseNumber
	profile.VehicleDescription = next.VehicleDescription
	profile.UpdatedAt = s.now()
	if err = mapRepoError(s.profiles.UpdateProfile(ctx, profile)); err != nil {
		return
	}

	updated = profile.Identity()
	s.events.Publish(id, role, session.Event{
		Kind:    session.EventProfileUpdated,
		Session: session.AuthSession{UserID: id, Email: profile.Email, DisplayName: profile.DisplayName},
	})
	return
}
