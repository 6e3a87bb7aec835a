package testfixtures

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
)

// TokenSecret signs session tokens in tests.
const TokenSecret = "test-secret-0123456789abcdef"

// FastHasher trades strength for speed so auth tests stay quick.
var FastHasher = application.NewArgon2idHasher(application.Argon2idParams{
	Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16,
})

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      zerolog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
		Logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the zone calendar dates are evaluated in.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// NewAuthService builds an auth service over h with a fast hasher.
func (f *ServiceFactory) NewAuthService(tb testing.TB, h *SQLiteHarness, events application.EventPublisher) *application.AuthService {
	tb.Helper()
	tokens, err := application.NewTokenIssuer(TokenSecret, "")
	if err != nil {
		tb.Fatalf("failed to create token issuer: %v", err)
	}
	svc, err := application.NewAuthService(application.AuthConfig{
		Users:      h.Users,
		Profiles:   h.Profiles,
		Sessions:   h.Sessions,
		Hasher:     FastHasher,
		Tokens:     tokens,
		Events:     events,
		IDs:        f.IDGenerator.NextFunc(),
		Now:        f.Clock.NowFunc(),
		SessionTTL: time.Hour,
		Logger:     f.Logger,
	})
	if err != nil {
		tb.Fatalf("failed to create auth service: %v", err)
	}
	return svc
}

// NewProfileService builds a profile service over h.
func (f *ServiceFactory) NewProfileService(h *SQLiteHarness, events application.EventPublisher) *application.ProfileService {
	return application.NewProfileService(h.Profiles, events, f.Clock.NowFunc(), f.Logger)
}

// NewInstructorService builds an instructor service over h.
func (f *ServiceFactory) NewInstructorService(h *SQLiteHarness) *application.InstructorService {
	return application.NewInstructorService(h.Instructors, h.Bookings, nil, f.Clock.NowFunc(), f.Location, f.Logger)
}

// NewBookingService builds a booking service over h.
func (f *ServiceFactory) NewBookingService(h *SQLiteHarness) *application.BookingService {
	return application.NewBookingService(application.BookingConfig{
		Bookings:    h.Bookings,
		Instructors: h.Instructors,
		IDs:         f.IDGenerator.NextFunc(),
		Now:         f.Clock.NowFunc(),
		Location:    f.Location,
		Logger:      f.Logger,
	})
}
