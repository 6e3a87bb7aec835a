package persistence

import (
	"context"
	"time"

	"github.com/example/autoescola/internal/domain"
)

// UserRepository stores role-scoped accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, role domain.Role, email string) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// ProfileRepository stores identity profiles.
type ProfileRepository interface {
	CreateProfile(ctx context.Context, profile Profile) error
	GetProfile(ctx context.Context, role domain.Role, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, profile Profile) error
}

// InstructorRepository stores instructor pricing, capabilities and availability.
type InstructorRepository interface {
	GetInstructor(ctx context.Context, id string) (InstructorSettings, error)
	UpsertSettings(ctx context.Context, settings InstructorSettings) error
	ReplaceAvailability(ctx context.Context, instructorID string, rule domain.AvailabilityRule) error
}

// BookingFilter narrows booking queries. Zero fields match everything.
type BookingFilter struct {
	InstructorID string
	StudentID    string
	Date         *domain.Date
	Statuses     []domain.BookingStatus
}

// BookingRepository stores bookings.
//
// CreateBooking returns ErrDuplicate when another occupying booking holds the
// same instructor, date and time. UpdateBooking writes only when the stored
// status still equals expected and returns ErrStaleStatus otherwise.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	UpdateBooking(ctx context.Context, booking Booking, expected domain.BookingStatus) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
