package booking

import (
	"time"

	"github.com/example/autoescola/internal/availability"
	"github.com/example/autoescola/internal/domain"
)

// Request is a student's booking request before submission.
type Request struct {
	InstructorID string             `json:"instructor_id" validate:"required"`
	Date         domain.Date        `json:"date" validate:"required"`
	Time         domain.TimeOfDay   `json:"time" validate:"gte=0,lte=1380"`
	Vehicle      domain.VehicleType `json:"vehicle_type" validate:"required,oneof=instructor own"`
	HomeService  bool               `json:"home_service"`
}

// CreatePayload is what the gateway receives for a new booking.
type CreatePayload struct {
	InstructorID    string             `json:"instructor_id" validate:"required"`
	StudentID       string             `json:"student_id,omitempty"`
	Date            domain.Date        `json:"date" validate:"required"`
	Time            domain.TimeOfDay   `json:"time" validate:"gte=0,lte=1380"`
	Vehicle         domain.VehicleType `json:"vehicle_type" validate:"required,oneof=instructor own"`
	HomeService     bool               `json:"home_service"`
	Price           domain.Money       `json:"price_cents" validate:"gte=0"`
	DurationMinutes int                `json:"duration_minutes" validate:"eq=60"`
}

// Payload builds the gateway payload for a validated request.
func (r Request) Payload(price domain.Money) CreatePayload {
	return CreatePayload{
		InstructorID:    r.InstructorID,
		Date:            r.Date,
		Time:            r.Time,
		Vehicle:         r.Vehicle,
		HomeService:     r.HomeService,
		Price:           price,
		DurationMinutes: domain.LessonDuration,
	}
}

// Validate checks a request before any network call.
//
// Checks run in order: field shape, advance notice (any date on or before
// today in loc is rejected), slot availability against available, then
// instructor capability for the vehicle and pickup selections.
func Validate(req Request, instructor domain.Instructor, available []domain.TimeOfDay, now time.Time, loc *time.Location) error {
	if err := domain.ValidateStruct(req); err != nil {
		return err
	}
	if instructor.ID != "" && instructor.ID != req.InstructorID {
		return domain.NewValidationError("instructor_id", "does not match instructor")
	}

	today := domain.DateOf(now.In(location(loc)))
	if !req.Date.After(today) {
		return domain.ErrInsufficientAdvanceNotice
	}

	if !availability.Contains(available, req.Time) {
		return domain.ErrSlotUnavailable
	}

	return CheckCapabilities(instructor, req.Vehicle, req.HomeService)
}

// CheckCapabilities verifies the instructor offers the selected vehicle and pickup service.
func CheckCapabilities(instructor domain.Instructor, vehicle domain.VehicleType, homeService bool) error {
	verr := &domain.ValidationError{}
	if !instructor.Supports(vehicle) {
		verr.Add("vehicle_type", "instructor does not offer this vehicle option")
	}
	if homeService && !instructor.OffersHomeService {
		verr.Add("home_service", "instructor does not offer pickup service")
	}
	return verr.OrNil()
}

// ComputePrice returns the lesson total for the selected options.
func ComputePrice(instructor domain.Instructor, vehicle domain.VehicleType, homeService bool) domain.Money {
	price := instructor.PricePerClass
	if vehicle == domain.VehicleOwn && instructor.OwnVehiclePrice != nil {
		price = *instructor.OwnVehiclePrice
	}
	if homeService {
		price += instructor.HomeServicePrice
	}
	return price
}
