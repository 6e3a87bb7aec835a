package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a lesson booking.
type BookingStatus string

const (
	StatusPendingAcceptance BookingStatus = "pendente_aceite"
	StatusConfirmed         BookingStatus = "confirmada"
	StatusPendingPayment    BookingStatus = "pendente_pagamento"
	StatusScheduled         BookingStatus = "agendada"
	StatusCompleted         BookingStatus = "concluida"
	StatusCancelled         BookingStatus = "cancelada"
)

// OccupyingStatuses hold the (instructor, date, time) claim.
var OccupyingStatuses = []BookingStatus{
	StatusScheduled,
	StatusConfirmed,
	StatusPendingAcceptance,
	StatusPendingPayment,
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPendingAcceptance, StatusConfirmed, StatusPendingPayment, StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Occupying reports whether a booking in this status reserves its slot.
func (s BookingStatus) Occupying() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusPendingAcceptance, StatusPendingPayment:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// VehicleType selects whose car is used for the lesson.
type VehicleType string

const (
	VehicleInstructor VehicleType = "instructor"
	VehicleOwn        VehicleType = "own"
)

// Valid reports whether v is a known vehicle type.
func (v VehicleType) Valid() bool {
	return v == VehicleInstructor || v == VehicleOwn
}

// Money is an amount in cents.
type Money int64

// Units returns a Money value for a whole number of currency units.
func Units(n int64) Money { return Money(n * 100) }

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// LessonDuration is the fixed length of a lesson in minutes.
const LessonDuration = 60

// Booking represents one lesson instance.
type Booking struct {
	ID                 string        `json:"id"`
	InstructorID       string        `json:"instructor_id"`
	StudentID          string        `json:"student_id"`
	Date               Date          `json:"date"`
	Time               TimeOfDay     `json:"time"`
	DurationMinutes    int           `json:"duration_minutes"`
	Status             BookingStatus `json:"status"`
	Price              Money         `json:"price_cents"`
	Vehicle            VehicleType   `json:"vehicle_type"`
	HomeService        bool          `json:"home_service"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	AcceptedAt         *time.Time    `json:"accepted_at,omitempty"`
	PaidAt             *time.Time    `json:"paid_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	Rating             *int          `json:"rating,omitempty"`
	RatingComment      string        `json:"rating_comment,omitempty"`
}

// Start returns the lesson start instant in loc.
func (b Booking) Start(loc *time.Location) time.Time {
	return b.Time.On(b.Date, loc)
}

// End returns the lesson end instant in loc.
func (b Booking) End(loc *time.Location) time.Time {
	minutes := b.DurationMinutes
	if minutes <= 0 {
		minutes = LessonDuration
	}
	return b.Start(loc).Add(time.Duration(minutes) * time.Minute)
}

// Instructor holds the booking-relevant instructor settings.
type Instructor struct {
	ID                      string `json:"id"`
	DisplayName             string `json:"display_name"`
	PricePerClass           Money  `json:"price_per_class_cents"`
	OwnVehiclePrice         *Money `json:"own_vehicle_price_cents,omitempty"`
	HomeServicePrice        Money  `json:"home_service_price_cents"`
	OffersInstructorVehicle bool   `json:"offers_instructor_vehicle"`
	AcceptsOwnVehicle       bool   `json:"accepts_own_vehicle"`
	OffersHomeService       bool   `json:"offers_home_service"`
}

// Supports reports whether the instructor offers the vehicle type.
func (i Instructor) Supports(v VehicleType) bool {
	switch v {
	case VehicleInstructor:
		return i.OffersInstructorVehicle
	case VehicleOwn:
		return i.AcceptsOwnVehicle
	}
	return false
}

// AvailabilityRule is an instructor's weekly schedule with date exceptions.
type AvailabilityRule struct {
	Weekly    map[time.Weekday]Window
	Blocked   map[Date]struct{}
	Overrides map[Date]Window
}

type availabilityRuleJSON struct {
	Weekly    map[time.Weekday]Window `json:"weekly,omitempty"`
	Blocked   []Date                  `json:"blocked,omitempty"`
	Overrides map[Date]Window         `json:"overrides,omitempty"`
}

// MarshalJSON encodes blocked dates as a sorted list.
func (r AvailabilityRule) MarshalJSON() ([]byte, error) {
	wire := availabilityRuleJSON{Weekly: r.Weekly, Overrides: r.Overrides}
	wire.Blocked = r.BlockedDates()
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AvailabilityRule) UnmarshalJSON(data []byte) error {
	var wire availabilityRuleJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = AvailabilityRule{Weekly: wire.Weekly, Overrides: wire.Overrides}
	for _, d := range wire.Blocked {
		r.Block(d)
	}
	return nil
}

// BlockedDates returns the blocked dates in ascending order.
func (r AvailabilityRule) BlockedDates() []Date {
	if len(r.Blocked) == 0 {
		return nil
	}
	out := make([]Date, 0, len(r.Blocked))
	for d := range r.Blocked {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Validate reports malformed windows.
func (r AvailabilityRule) Validate() error {
	verr := &ValidationError{}
	for day, w := range r.Weekly {
		if day < time.Sunday || day > time.Saturday {
			verr.Add("weekly", fmt.Sprintf("unknown weekday %d", day))
			continue
		}
		if !w.Valid() {
			verr.Add("weekly."+strings.ToLower(day.String()), "start must be before end")
		}
	}
	for d, w := range r.Overrides {
		if !w.Valid() {
			verr.Add("overrides."+d.String(), "start must be before end")
		}
	}
	return verr.OrNil()
}

// IsZero reports whether no rule of any kind has been configured.
func (r AvailabilityRule) IsZero() bool {
	return len(r.Weekly) == 0 && len(r.Blocked) == 0 && len(r.Overrides) == 0
}

// IsBlocked reports whether d is an explicitly blocked date.
func (r AvailabilityRule) IsBlocked(d Date) bool {
	_, ok := r.Blocked[d]
	return ok
}

// Block marks d as unavailable.
func (r *AvailabilityRule) Block(d Date) {
	if r.Blocked == nil {
		r.Blocked = make(map[Date]struct{})
	}
	r.Blocked[d] = struct{}{}
}

// Override sets a date-specific window.
func (r *AvailabilityRule) Override(d Date, w Window) {
	if r.Overrides == nil {
		r.Overrides = make(map[Date]Window)
	}
	r.Overrides[d] = w
}

// SetWeekly sets the recurring window for a weekday.
func (r *AvailabilityRule) SetWeekly(day time.Weekday, w Window) {
	if r.Weekly == nil {
		r.Weekly = make(map[time.Weekday]Window)
	}
	r.Weekly[day] = w
}
