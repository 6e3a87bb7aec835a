package persistence

import (
	"time"

	"github.com/example/autoescola/internal/domain"
)

// User is a role-scoped account. The same email may hold one account per role.
type User struct {
	ID           string
	Role         domain.Role
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile holds the editable identity fields of a user.
type Profile struct {
	UserID             string
	Role               domain.Role
	Email              string
	DisplayName        string
	Phone              string
	PhotoURL           *string
	LicenseNumber      string
	VehicleDescription string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Identity converts the stored profile into a domain identity.
func (p Profile) Identity() domain.Identity {
	return domain.Identity{
		ID:                 p.UserID,
		Email:              p.Email,
		DisplayName:        p.DisplayName,
		Phone:              p.Phone,
		PhotoURL:           p.PhotoURL,
		Role:               p.Role,
		LicenseNumber:      p.LicenseNumber,
		VehicleDescription: p.VehicleDescription,
	}.Normalized()
}

// InstructorSettings stores pricing, capabilities and availability of an instructor.
type InstructorSettings struct {
	InstructorID            string
	DisplayName             string
	PricePerClass           domain.Money
	OwnVehiclePrice         *domain.Money
	HomeServicePrice        domain.Money
	OffersInstructorVehicle bool
	AcceptsOwnVehicle       bool
	OffersHomeService       bool
	Availability            domain.AvailabilityRule
	UpdatedAt               time.Time
}

// Instructor returns the booking-relevant view of the settings.
func (s InstructorSettings) Instructor() domain.Instructor {
	return domain.Instructor{
		ID:                      s.InstructorID,
		DisplayName:             s.DisplayName,
		PricePerClass:           s.PricePerClass,
		OwnVehiclePrice:         s.OwnVehiclePrice,
		HomeServicePrice:        s.HomeServicePrice,
		OffersInstructorVehicle: s.OffersInstructorVehicle,
		AcceptsOwnVehicle:       s.AcceptsOwnVehicle,
		OffersHomeService:       s.OffersHomeService,
	}
}

// Booking is the stored form of a lesson booking.
type Booking = domain.Booking

// Session represents an authentication session persisted for a user.
type Session struct {
	ID        string
	UserID    string
	Role      domain.Role
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session is usable at reference.
func (s Session) Active(reference time.Time) bool {
	return s.RevokedAt == nil && reference.Before(s.ExpiresAt)
}
