package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/availability"
	"github.com/example/autoescola/internal/booking"
	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/metrics"
	"github.com/example/autoescola/internal/persistence"
)

// BookingService is the authoritative side of the scheduling gateway.
type BookingService struct {
	bookings    persistence.BookingRepository
	instructors persistence.InstructorRepository
	engine      *availability.Engine
	ids         func() string
	now         func() time.Time
	loc         *time.Location
	logger      zerolog.Logger
}

// BookingConfig wires the dependencies of a BookingService.
type BookingConfig struct {
	Bookings    persistence.BookingRepository
	Instructors persistence.InstructorRepository
	Engine      *availability.Engine
	IDs         func() string
	Now         func() time.Time
	Location    *time.Location
	Logger      zerolog.Logger
}

// NewBookingService constructs a BookingService from cfg.
func NewBookingService(cfg BookingConfig) *BookingService {
	if cfg.Engine == nil {
		cfg.Engine = availability.NewEngine()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BookingService{
		bookings:    cfg.Bookings,
		instructors: cfg.Instructors,
		engine:      cfg.Engine,
		ids:         cfg.IDs,
		now:         cfg.Now,
		loc:         cfg.Location,
		logger:      cfg.Logger,
	}
}

// Create re-validates a student's booking against stored data and inserts it
// as pendente_aceite. The submitted price must match the server's quote. A
// concurrent claim on the same slot yields domain.ErrSlotConflict.
func (s *BookingService) Create(ctx context.Context, principal Principal, payload booking.CreatePayload) (created domain.Booking, err error) {
	logger := serviceLogger(ctx, s.logger, "BookingService", "Create",
		"instructor_id", payload.InstructorID, "date", payload.Date.String(), "time", payload.Time.String())
	defer func() {
		switch {
		case err == nil:
			metrics.RecordBookingCreated("created")
			logger = logger.With().Str("booking_id", created.ID).Logger()
		case errors.Is(err, domain.ErrSlotConflict):
			metrics.RecordBookingCreated("conflict")
		default:
			metrics.RecordBookingCreated("rejected")
		}
		logOutcome(logger, err, "booking creation failed", "booking created")
	}()

	if !principal.Is(domain.RoleStudent) {
		err = domain.ErrForbidden
		return
	}
	if payload.StudentID != "" && payload.StudentID != principal.UserID {
		err = domain.ErrForbidden
		return
	}
	if err = domain.ValidateStruct(payload); err != nil {
		return
	}

	var settings persistence.InstructorSettings
	if settings, err = s.instructors.GetInstructor(ctx, payload.InstructorID); err != nil {
		err = mapRepoError(err)
		return
	}
	instructor := settings.Instructor()

	var occupying []domain.Booking
	occupying, err = s.bookings.ListBookings(ctx, persistence.BookingFilter{
		InstructorID: payload.InstructorID,
		Date:         &payload.Date,
		Statuses:     domain.OccupyingStatuses,
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	req := booking.Request{
		InstructorID: payload.InstructorID,
		Date:         payload.Date,
		Time:         payload.Time,
		Vehicle:      payload.Vehicle,
		HomeService:  payload.HomeService,
	}
	available := s.engine.Slots(settings.Availability, payload.InstructorID, payload.Date, occupying)
	now := s.now()
	if err = booking.Validate(req, instructor, available, now, s.loc); err != nil {
		return
	}
	price := booking.ComputePrice(instructor, payload.Vehicle, payload.HomeService)
	if payload.Price != price {
		err = domain.NewValidationError("price_cents", "does not match the current price "+price.String())
		return
	}

	created = domain.Booking{
		ID:              s.ids(),
		InstructorID:    payload.InstructorID,
		StudentID:       principal.UserID,
		Date:            payload.Date,
		Time:            payload.Time,
		DurationMinutes: domain.LessonDuration,
		Status:          domain.StatusPendingAcceptance,
		Price:           price,
		Vehicle:         payload.Vehicle,
		HomeService:     payload.HomeService,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = mapBookingInsertError(s.bookings.CreateBooking(ctx, created)); err != nil {
		created = domain.Booking{}
		return
	}
	return
}

// List returns the bookings visible to principal: students and instructors
// see their own, admins see all. Overdue pending bookings are auto-cancelled
// before they are returned.
func (s *BookingService) List(ctx context.Context, principal Principal) ([]domain.Booking, error) {
	var filter persistence.BookingFilter
	switch {
	case principal.Is(domain.RoleStudent):
		filter.StudentID = principal.UserID
	case principal.Is(domain.RoleInstructor):
		filter.InstructorID = principal.UserID
	case principal.Is(domain.RoleAdmin):
	default:
		return nil, domain.ErrForbidden
	}

	bookings, err := s.bookings.ListBookings(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}

	now := s.now()
	for i, b := range bookings {
		if !booking.ShouldAutoCancel(b, now, s.loc) {
			continue
		}
		updated, err := s.transition(ctx, b, booking.ActionAutoCancel, now, "")
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				if fresh, getErr := s.bookings.GetBooking(ctx, b.ID); getErr == nil {
					bookings[i] = fresh
				}
				continue
			}
			return nil, err
		}
		bookings[i] = updated
	}
	return bookings, nil
}

// Get returns one booking if principal takes part in it or is an admin.
func (s *BookingService) Get(ctx context.Context, principal Principal, id string) (domain.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, mapRepoError(err)
	}
	if !participant(principal, b) && !principal.Is(domain.RoleAdmin) {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

// Accept confirms a pending booking. Only its instructor may accept.
func (s *BookingService) Accept(ctx context.Context, principal Principal, id string) (domain.Booking, error) {
	return s.act(ctx, principal, id, booking.ActionAccept, "", instructorOnly)
}

// Reject declines a pending booking. Only its instructor may reject.
func (s *BookingService) Reject(ctx context.Context, principal Principal, id string) (domain.Booking, error) {
	return s.act(ctx, principal, id, booking.ActionReject, "", instructorOnly)
}

// Cancel cancels a booking on behalf of a participant or an admin.
func (s *BookingService) Cancel(ctx context.Context, principal Principal, id, reason string) (domain.Booking, error) {
	return s.act(ctx, principal, id, booking.ActionCancel, reason, anyParticipant)
}

// RequestPayment moves a confirmed booking to pendente_pagamento. Only its student may pay.
func (s *BookingService) RequestPayment(ctx context.Context, principal Principal, id string) (domain.Booking, error) {
	return s.act(ctx, principal, id, booking.ActionRequestPayment, "", studentOnly)
}

// ConfirmPayment schedules a booking whose payment cleared. The instructor
// or an admin confirms.
func (s *BookingService) ConfirmPayment(ctx context.Context, principal Principal, id string) (domain.Booking, error) {
	return s.act(ctx, principal, id, booking.ActionConfirmPayment, "", instructorOrAdmin)
}

// Complete marks a scheduled lesson as given.
func (s *BookingService) Complete(ctx context.Context, principal Principal, id string) (domain.Booking, error) {
	return s.act(ctx, principal, id, booking.ActionComplete, "", instructorOrAdmin)
}

// Rate stores the student's rating of a completed lesson.
func (s *BookingService) Rate(ctx context.Context, principal Principal, id string, rating int, comment string) (rated domain.Booking, err error) {
	logger := serviceLogger(ctx, s.logger, "BookingService", "Rate", "booking_id", id)
	defer func() { logOutcome(logger, err, "rating failed", "booking rated") }()

	var current domain.Booking
	if current, err = s.load(ctx, principal, id, studentOnly); err != nil {
		return
	}
	if rated, err = booking.Rate(current, rating, comment, s.now()); err != nil {
		return
	}
	if err = mapRepoError(s.bookings.UpdateBooking(ctx, rated, current.Status)); err != nil {
		rated = domain.Booking{}
	}
	return
}

// Sweep auto-cancels overdue pending bookings and completes lessons that ended.
// A booking changed concurrently is skipped, so repeated sweeps are harmless.
func (s *BookingService) Sweep(ctx context.Context) (result SweepResult, err error) {
	logger := serviceLogger(ctx, s.logger, "BookingService", "Sweep")
	defer func() {
		metrics.RecordSweep(err, result.Cancelled, result.Completed)
		if err == nil {
			logger = logger.With().Int("cancelled", result.Cancelled).Int("completed", result.Completed).Logger()
		}
		logOutcome(logger, err, "sweep failed", "sweep finished")
	}()

	var candidates []domain.Booking
	candidates, err = s.bookings.ListBookings(ctx, persistence.BookingFilter{
		Statuses: []domain.BookingStatus{domain.StatusPendingAcceptance, domain.StatusConfirmed, domain.StatusPendingPayment, domain.StatusScheduled},
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	now := s.now()
	for _, b := range candidates {
		if err = ctx.Err(); err != nil {
			return
		}
		var action booking.Action
		switch {
		case booking.ShouldAutoCancel(b, now, s.loc):
			action = booking.ActionAutoCancel
		case booking.ShouldComplete(b, now, s.loc):
			action = booking.ActionComplete
		default:
			continue
		}

		if _, tErr := s.transition(ctx, b, action, now, ""); tErr != nil {
			if errors.Is(tErr, domain.ErrInvalidTransition) {
				continue
			}
			err = tErr
			return
		}
		if action == booking.ActionAutoCancel {
			result.Cancelled++
		} else {
			result.Completed++
		}
	}
	return
}

type actorRule func(Principal, domain.Booking) bool

func instructorOnly(p Principal, b domain.Booking) bool {
	return p.Is(domain.RoleInstructor) && p.UserID == b.InstructorID
}

func instructorOrAdmin(p Principal, b domain.Booking) bool {
	return instructorOnly(p, b) || p.Is(domain.RoleAdmin)
}

func studentOnly(p Principal, b domain.Booking) bool {
	return p.Is(domain.RoleStudent) && p.UserID == b.StudentID
}

func anyParticipant(p Principal, b domain.Booking) bool {
	return participant(p, b) || p.Is(domain.RoleAdmin)
}

func participant(p Principal, b domain.Booking) bool {
	return instructorOnly(p, b) || studentOnly(p, b)
}

func (s *BookingService) act(ctx context.Context, principal Principal, id string, action booking.Action, reason string, allowed actorRule) (updated domain.Booking, err error) {
	logger := serviceLogger(ctx, s.logger, "BookingService", string(action), "booking_id", id)
	defer func() { logOutcome(logger, err, "booking transition failed", "booking transitioned") }()

	var current domain.Booking
	if current, err = s.load(ctx, principal, id, allowed); err != nil {
		return
	}
	return s.transition(ctx, current, action, s.now(), reason)
}

// load fetches a booking and hides it from callers who may not see it.
func (s *BookingService) load(ctx context.Context, principal Principal, id string, allowed actorRule) (domain.Booking, error) {
	current, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, mapRepoError(err)
	}
	if allowed(principal, current) {
		return current, nil
	}
	if participant(principal, current) || principal.Is(domain.RoleAdmin) {
		return domain.Booking{}, domain.ErrForbidden
	}
	return domain.Booking{}, domain.ErrNotFound
}

func (s *BookingService) transition(ctx context.Context, current domain.Booking, action booking.Action, now time.Time, reason string) (domain.Booking, error) {
	next, err := booking.Apply(current, action, now, reason)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := s.bookings.UpdateBooking(ctx, next, current.Status); err != nil {
		return domain.Booking{}, mapRepoError(err)
	}
	metrics.RecordTransition(string(action), string(next.Status))
	return next, nil
}
