package application

import (
	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/session"
)

// Principal is the authenticated caller of a service method.
type Principal struct {
	UserID    string
	Role      domain.Role
	SessionID string
}

// Is reports whether the principal acts as role.
func (p Principal) Is(role domain.Role) bool {
	return p.UserID != "" && p.Role == role
}

// EventPublisher fans session events out to the principal's live connections.
type EventPublisher interface {
	Publish(userID string, role domain.Role, event session.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, domain.Role, session.Event) {}

// InstructorSettingsInput carries the editable pricing and capability fields.
type InstructorSettingsInput struct {
	PricePerClass           domain.Money  `json:"price_per_class_cents" validate:"gte=0"`
	OwnVehiclePrice         *domain.Money `json:"own_vehicle_price_cents,omitempty" validate:"omitempty,gte=0"`
	HomeServicePrice        domain.Money  `json:"home_service_price_cents" validate:"gte=0"`
	OffersInstructorVehicle bool          `json:"offers_instructor_vehicle"`
	AcceptsOwnVehicle       bool          `json:"accepts_own_vehicle"`
	OffersHomeService       bool          `json:"offers_home_service"`
}

// SweepResult counts the bookings changed by one sweep.
type SweepResult struct {
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
}
