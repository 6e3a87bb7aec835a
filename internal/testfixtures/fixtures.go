package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

var (
	userCounter    uint64
	bookingCounter uint64
)

// referenceTime is a Friday evening; the following Monday is a bookable date.
var referenceTime = time.Date(2025, time.March, 28, 18, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// NextMonday is the first weekday after ReferenceTime.
var NextMonday = domain.MustDate("2025-03-31")

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic account plus profile for one role.
type UserFixture struct {
	ID                 string
	Role               domain.Role
	Email              string
	DisplayName        string
	Phone              string
	PhotoURL           *string
	LicenseNumber      string
	VehicleDescription string
	PasswordHash       string
	CreatedAt          time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture for role.
func NewUserFixture(role domain.Role, opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("%s-%03d", role, idx)
	fixture := UserFixture{
		ID:           id,
		Role:         role,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) { f.DisplayName = name }
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) { f.PasswordHash = hash }
}

// WithCompleteProfile fills every field a complete profile needs.
func WithCompleteProfile() UserOption {
	return func(f *UserFixture) {
		photo := "avatars/" + f.ID + ".png"
		f.DisplayName = "Maria Souza"
		f.Phone = "+55 11 98765-4321"
		f.PhotoURL = &photo
		if f.Role == domain.RoleInstructor {
			f.LicenseNumber = "SP-123456"
			f.VehicleDescription = "Onix 2022, dual pedals"
		}
	}
}

// User converts the fixture to a persistence account.
func (f UserFixture) User() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Role:         f.Role,
		Email:        f.Email,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// Profile converts the fixture to a persistence profile.
func (f UserFixture) Profile() persistence.Profile {
	return persistence.Profile{
		UserID:             f.ID,
		Role:               f.Role,
		Email:              f.Email,
		DisplayName:        f.DisplayName,
		Phone:              f.Phone,
		PhotoURL:           f.PhotoURL,
		LicenseNumber:      f.LicenseNumber,
		VehicleDescription: f.VehicleDescription,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.CreatedAt,
	}
}

// Identity returns the domain identity of the fixture.
func (f UserFixture) Identity() domain.Identity {
	return f.Profile().Identity()
}

// -------------------------- Instructor fixtures --------------------------

// InstructorOption configures generated instructor settings.
type InstructorOption func(*persistence.InstructorSettings)

// NewInstructorSettings returns settings charging 80.00 per lesson with the
// instructor's own vehicle, available 08:00-12:00 on weekdays.
func NewInstructorSettings(instructorID string, opts ...InstructorOption) persistence.InstructorSettings {
	settings := persistence.InstructorSettings{
		InstructorID:            instructorID,
		PricePerClass:           domain.Units(80),
		OffersInstructorVehicle: true,
		Availability:            WeekdayMornings(),
		UpdatedAt:               referenceTime,
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return settings
}

// WithOwnVehicle accepts the student's car at price.
func WithOwnVehicle(price domain.Money) InstructorOption {
	return func(s *persistence.InstructorSettings) {
		s.AcceptsOwnVehicle = true
		s.OwnVehiclePrice = &price
	}
}

// WithHomeService offers pickup for an extra price.
func WithHomeService(price domain.Money) InstructorOption {
	return func(s *persistence.InstructorSettings) {
		s.OffersHomeService = true
		s.HomeServicePrice = price
	}
}

// WithAvailability replaces the availability rule.
func WithAvailability(rule domain.AvailabilityRule) InstructorOption {
	return func(s *persistence.InstructorSettings) { s.Availability = rule }
}

// WeekdayMornings is a rule open 08:00-12:00 Monday to Friday.
func WeekdayMornings() domain.AvailabilityRule {
	var rule domain.AvailabilityRule
	window := domain.Window{Start: domain.Clock(8, 0), End: domain.Clock(12, 0)}
	for day := time.Monday; day <= time.Friday; day++ {
		rule.SetWeekly(day, window)
	}
	return rule
}

// ---------------------------- Booking fixtures ---------------------------

// BookingOption configures the generated booking.
type BookingOption func(*domain.Booking)

// NewBooking returns a pending 09:00 lesson on NextMonday.
func NewBooking(instructorID, studentID string, opts ...BookingOption) domain.Booking {
	idx := atomic.AddUint64(&bookingCounter, 1)
	b := domain.Booking{
		ID:              fmt.Sprintf("booking-%03d", idx),
		InstructorID:    instructorID,
		StudentID:       studentID,
		Date:            NextMonday,
		Time:            domain.Clock(9, 0),
		DurationMinutes: domain.LessonDuration,
		Status:          domain.StatusPendingAcceptance,
		Price:           domain.Units(80),
		Vehicle:         domain.VehicleInstructor,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(b *domain.Booking) { b.ID = id }
}

// WithSlot moves the booking to date and hh:mm.
func WithSlot(date domain.Date, hhmm string) BookingOption {
	return func(b *domain.Booking) {
		b.Date = date
		b.Time = domain.MustTimeOfDay(hhmm)
	}
}

// WithStatus overrides the booking status.
func WithStatus(status domain.BookingStatus) BookingOption {
	return func(b *domain.Booking) { b.Status = status }
}

// WithPrice overrides the booking price.
func WithPrice(price domain.Money) BookingOption {
	return func(b *domain.Booking) { b.Price = price }
}
