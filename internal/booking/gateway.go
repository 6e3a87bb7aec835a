package booking

import (
	"context"

	"github.com/example/autoescola/internal/domain"
)

// Gateway is the network boundary for persisted bookings.
//
// Implementations return domain.ErrSlotConflict when a concurrent booking
// already holds the slot, domain.ErrNotFound for unknown ids and
// domain.ErrInvalidTransition when the booking is not awaiting a decision.
type Gateway interface {
	// FetchBookings returns the bookings visible to the acting identity.
	FetchBookings(ctx context.Context, acting domain.Identity) ([]domain.Booking, error)
	CreateBooking(ctx context.Context, payload CreatePayload) (domain.Booking, error)
	AcceptBooking(ctx context.Context, id string) (domain.Booking, error)
	RejectBooking(ctx context.Context, id string) (domain.Booking, error)
	// FetchInstructor returns the instructor's settings and availability rule.
	FetchInstructor(ctx context.Context, id string) (InstructorProfile, error)
	// FetchOccupancy returns the occupying bookings of an instructor on date.
	// Student and price details may be redacted.
	FetchOccupancy(ctx context.Context, instructorID string, date domain.Date) ([]domain.Booking, error)
}

// InstructorProfile bundles what slot computation and pricing need.
type InstructorProfile struct {
	Instructor   domain.Instructor       `json:"instructor"`
	Availability domain.AvailabilityRule `json:"availability"`
}
