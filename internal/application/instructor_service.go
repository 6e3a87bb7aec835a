package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/availability"
	"github.com/example/autoescola/internal/booking"
	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

// InstructorService serves instructor settings, availability and open slots.
type InstructorService struct {
	instructors persistence.InstructorRepository
	bookings    persistence.BookingRepository
	engine      *availability.Engine
	now         func() time.Time
	loc         *time.Location
	logger      zerolog.Logger
}

// NewInstructorService wires dependencies for the instructor service.
func NewInstructorService(instructors persistence.InstructorRepository, bookings persistence.BookingRepository, engine *availability.Engine, now func() time.Time, loc *time.Location, logger zerolog.Logger) *InstructorService {
	if engine == nil {
		engine = availability.NewEngine()
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &InstructorService{instructors: instructors, bookings: bookings, engine: engine, now: now, loc: loc, logger: logger}
}

// Get returns the instructor's settings and availability rule.
func (s *InstructorService) Get(ctx context.Context, id string) (booking.InstructorProfile, error) {
	settings, err := s.instructors.GetInstructor(ctx, id)
	if err != nil {
		return booking.InstructorProfile{}, mapRepoError(err)
	}
	return booking.InstructorProfile{Instructor: settings.Instructor(), Availability: settings.Availability}, nil
}

// UpdateSettings replaces pricing and capability flags. Only the instructor
// or an admin may edit them.
func (s *InstructorService) UpdateSettings(ctx context.Context, principal Principal, id string, input InstructorSettingsInput) (profile booking.InstructorProfile, err error) {
	logger := serviceLogger(ctx, s.logger, "InstructorService", "UpdateSettings", "instructor_id", id)
	defer func() { logOutcome(logger, err, "settings update failed", "settings updated") }()

	if err = authorizeInstructor(principal, id); err != nil {
		return
	}
	if err = domain.ValidateStruct(input); err != nil {
		return
	}
	if !input.OffersInstructorVehicle && !input.AcceptsOwnVehicle {
		err = domain.NewValidationError("offers_instructor_vehicle", "at least one vehicle option is required")
		return
	}

	var current persistence.InstructorSettings
	if current, err = s.instructors.GetInstructor(ctx, id); err != nil {
		err = mapRepoError(err)
		return
	}
	current.PricePerClass = input.PricePerClass
	current.OwnVehiclePrice = input.OwnVehiclePrice
	current.HomeServicePrice = input.HomeServicePrice
	current.OffersInstructorVehicle = input.OffersInstructorVehicle
	current.AcceptsOwnVehicle = input.AcceptsOwnVehicle
	current.OffersHomeService = input.OffersHomeService
	current.UpdatedAt = s.now()
	if err = mapRepoError(s.instructors.UpsertSettings(ctx, current)); err != nil {
		return
	}
	return s.Get(ctx, id)
}

// ReplaceAvailability stores a new availability rule for the instructor.
func (s *InstructorService) ReplaceAvailability(ctx context.Context, principal Principal, id string, rule domain.AvailabilityRule) (profile booking.InstructorProfile, err error) {
	logger := serviceLogger(ctx, s.logger, "InstructorService", "ReplaceAvailability", "instructor_id", id)
	defer func() { logOutcome(logger, err, "availability update failed", "availability updated") }()

	if err = authorizeInstructor(principal, id); err != nil {
		return
	}
	if err = rule.Validate(); err != nil {
		return
	}
	if _, err = s.instructors.GetInstructor(ctx, id); err != nil {
		err = mapRepoError(err)
		return
	}
	if err = mapRepoError(s.instructors.ReplaceAvailability(ctx, id, rule)); err != nil {
		return
	}
	return s.Get(ctx, id)
}

// Occupancy returns the occupying bookings of the instructor on date with
// student and price details removed.
func (s *InstructorService) Occupancy(ctx context.Context, id string, date domain.Date) ([]domain.Booking, error) {
	bookings, err := s.bookings.ListBookings(ctx, persistence.BookingFilter{
		InstructorID: id,
		Date:         &date,
		Statuses:     domain.OccupyingStatuses,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	out := make([]domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, domain.Booking{
			ID:              b.ID,
			InstructorID:    b.InstructorID,
			Date:            b.Date,
			Time:            b.Time,
			DurationMinutes: b.DurationMinutes,
			Status:          b.Status,
		})
	}
	return out, nil
}

// Slots computes the bookable slots of the instructor on date. Dates on or
// before today have none.
func (s *InstructorService) Slots(ctx context.Context, id string, date domain.Date) ([]domain.TimeOfDay, error) {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	today := domain.DateOf(s.now().In(s.loc))
	if !date.After(today) {
		return []domain.TimeOfDay{}, nil
	}
	occupying, err := s.Occupancy(ctx, id, date)
	if err != nil {
		return nil, err
	}
	return s.engine.Slots(profile.Availability, id, date, occupying), nil
}

func authorizeInstructor(principal Principal, id string) error {
	if principal.Is(domain.RoleAdmin) {
		return nil
	}
	if principal.Is(domain.RoleInstructor) && principal.UserID == id {
		return nil
	}
	return domain.ErrForbidden
}
