package application

import (
	"errors"
	"fmt"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/persistence"
)

var (
	// ErrInvalidCredentials is returned when the email or password does not match.
	ErrInvalidCredentials = fmt.Errorf("application: invalid credentials: %w", domain.ErrAuth)
	// ErrSessionExpired is returned for tokens past their expiry.
	ErrSessionExpired = fmt.Errorf("application: session expired: %w", domain.ErrAuth)
	// ErrSessionRevoked is returned for tokens that were signed out.
	ErrSessionRevoked = fmt.Errorf("application: session revoked: %w", domain.ErrAuth)
)

// mapRepoError translates persistence failures into domain errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return domain.ErrAlreadyExists
	case errors.Is(err, persistence.ErrStaleStatus):
		return fmt.Errorf("application: booking changed concurrently: %w", domain.ErrInvalidTransition)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return domain.NewValidationError("request", "violates a storage constraint")
	}
	return err
}

// mapBookingInsertError reports slot conflicts for duplicate occupying bookings.
func mapBookingInsertError(err error) error {
	if errors.Is(err, persistence.ErrDuplicate) {
		return domain.ErrSlotConflict
	}
	return mapRepoError(err)
}
