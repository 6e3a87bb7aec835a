package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/availability"
	"github.com/example/autoescola/internal/domain"
)

// SlotConflictError is returned by Planner.Book when the slot was claimed
// concurrently. Slots holds the freshly recomputed availability.
type SlotConflictError struct {
	Date  domain.Date
	Time  domain.TimeOfDay
	Slots []domain.TimeOfDay
	Err   error
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("booking: slot %s %s was taken, %d slots remain", e.Date, e.Time, len(e.Slots))
}

func (e *SlotConflictError) Unwrap() error { return e.Err }

// Retryable reports that the user can pick another slot and resubmit.
func (e *SlotConflictError) Retryable() bool { return true }

// Planner drives booking creation and instructor decisions on the client side.
type Planner struct {
	gateway  Gateway
	engine   *availability.Engine
	now      func() time.Time
	location *time.Location
	logger   zerolog.Logger
}

// PlannerOption customises a Planner.
type PlannerOption func(*Planner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) PlannerOption {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLocation sets the zone used for calendar-date comparisons.
func WithLocation(loc *time.Location) PlannerOption {
	return func(p *Planner) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithLogger sets the planner logger.
func WithLogger(logger zerolog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = logger }
}

// WithEngine overrides the availability engine.
func WithEngine(engine *availability.Engine) PlannerOption {
	return func(p *Planner) {
		if engine != nil {
			p.engine = engine
		}
	}
}

// NewPlanner constructs a Planner over gateway.
func NewPlanner(gateway Gateway, opts ...PlannerOption) *Planner {
	p := &Planner{
		gateway:  gateway,
		engine:   availability.NewEngine(),
		now:      time.Now,
		location: time.UTC,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// AvailableSlots returns bookable slots for an instructor on date. Dates on or
// before today never have bookable slots.
func (p *Planner) AvailableSlots(ctx context.Context, instructorID string, date domain.Date) ([]domain.TimeOfDay, error) {
	if !date.After(p.today()) {
		return []domain.TimeOfDay{}, nil
	}
	profile, err := p.gateway.FetchInstructor(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("booking: fetch instructor: %w", err)
	}
	return p.slotsFor(ctx, profile, instructorID, date)
}

func (p *Planner) slotsFor(ctx context.Context, profile InstructorProfile, instructorID string, date domain.Date) ([]domain.TimeOfDay, error) {
	occupancy, err := p.gateway.FetchOccupancy(ctx, instructorID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: fetch occupancy: %w", err)
	}
	return p.engine.Slots(profile.Availability, instructorID, date, occupancy), nil
}

// Quote validates req against current availability and returns the price it would be submitted with.
func (p *Planner) Quote(ctx context.Context, req Request) (domain.Money, error) {
	if err := domain.ValidateStruct(req); err != nil {
		return 0, err
	}
	profile, err := p.gateway.FetchInstructor(ctx, req.InstructorID)
	if err != nil {
		return 0, fmt.Errorf("booking: fetch instructor: %w", err)
	}
	available, err := p.availableForRequest(ctx, profile, req)
	if err != nil {
		return 0, err
	}
	if err := Validate(req, profile.Instructor, available, p.now(), p.location); err != nil {
		return 0, err
	}
	return ComputePrice(profile.Instructor, req.Vehicle, req.HomeService), nil
}

// Book validates req for the acting student and submits it.
//
// Validation failures are returned before any write is attempted. When the
// gateway reports a conflict, availability is recomputed and returned inside
// a *SlotConflictError.
func (p *Planner) Book(ctx context.Context, acting domain.Identity, req Request) (domain.Booking, error) {
	if acting.Role != domain.RoleStudent || acting.ID == "" {
		return domain.Booking{}, fmt.Errorf("booking: only students can book: %w", domain.ErrForbidden)
	}
	if err := domain.ValidateStruct(req); err != nil {
		return domain.Booking{}, err
	}

	profile, err := p.gateway.FetchInstructor(ctx, req.InstructorID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking: fetch instructor: %w", err)
	}
	available, err := p.availableForRequest(ctx, profile, req)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := Validate(req, profile.Instructor, available, p.now(), p.location); err != nil {
		return domain.Booking{}, err
	}

	payload := req.Payload(ComputePrice(profile.Instructor, req.Vehicle, req.HomeService))
	payload.StudentID = acting.ID
	created, err := p.gateway.CreateBooking(ctx, payload)
	if err == nil {
		p.logger.Info().
			Str("booking_id", created.ID).
			Str("instructor_id", created.InstructorID).
			Stringer("date", created.Date).
			Stringer("time", created.Time).
			Msg("booking submitted")
		return created, nil
	}
	if !errors.Is(err, domain.ErrSlotConflict) {
		return domain.Booking{}, fmt.Errorf("booking: create: %w", err)
	}

	fresh, refreshErr := p.slotsFor(ctx, profile, req.InstructorID, req.Date)
	if refreshErr != nil {
		p.logger.Warn().Err(refreshErr).Msg("availability refresh after conflict failed")
	}
	p.logger.Info().
		Str("instructor_id", req.InstructorID).
		Stringer("date", req.Date).
		Stringer("time", req.Time).
		Int("remaining_slots", len(fresh)).
		Msg("slot claimed concurrently")
	return domain.Booking{}, &SlotConflictError{Date: req.Date, Time: req.Time, Slots: fresh, Err: err}
}

func (p *Planner) availableForRequest(ctx context.Context, profile InstructorProfile, req Request) ([]domain.TimeOfDay, error) {
	if !req.Date.After(p.today()) {
		return nil, nil
	}
	return p.slotsFor(ctx, profile, req.InstructorID, req.Date)
}

// Accept confirms a pending booking on behalf of its instructor.
func (p *Planner) Accept(ctx context.Context, acting domain.Identity, id string) (domain.Booking, error) {
	if err := requireInstructor(acting); err != nil {
		return domain.Booking{}, err
	}
	b, err := p.gateway.AcceptBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking: accept %s: %w", id, err)
	}
	return b, nil
}

// Reject declines a pending booking on behalf of its instructor.
func (p *Planner) Reject(ctx context.Context, acting domain.Identity, id string) (domain.Booking, error) {
	if err := requireInstructor(acting); err != nil {
		return domain.Booking{}, err
	}
	b, err := p.gateway.RejectBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking: reject %s: %w", id, err)
	}
	return b, nil
}

// Bookings lists the acting identity's bookings.
func (p *Planner) Bookings(ctx context.Context, acting domain.Identity) ([]domain.Booking, error) {
	if acting.IsZero() {
		return nil, domain.ErrNoActiveSession
	}
	return p.gateway.FetchBookings(ctx, acting)
}

func (p *Planner) today() domain.Date {
	return domain.DateOf(p.now().In(p.location))
}

func requireInstructor(acting domain.Identity) error {
	if acting.Role != domain.RoleInstructor || acting.ID == "" {
		return fmt.Errorf("booking: instructor session required: %w", domain.ErrForbidden)
	}
	return nil
}
