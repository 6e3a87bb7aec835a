package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuth is returned when credentials are rejected by the identity provider.
	ErrAuth = errors.New("domain: authentication failed")
	// ErrTimeout is returned when a sign-in did not complete in time and no session could be recovered.
	ErrTimeout = errors.New("domain: timed out")
	// ErrSlotUnavailable is returned when the requested time is not among the computed slots.
	ErrSlotUnavailable = errors.New("domain: slot unavailable")
	// ErrInsufficientAdvanceNotice is returned for bookings on the current day or in the past.
	ErrInsufficientAdvanceNotice = errors.New("domain: insufficient advance notice")
	// ErrSlotConflict is returned when another occupying booking already holds the slot.
	ErrSlotConflict = errors.New("domain: slot conflict")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("domain: not found")
	// ErrInvalidTransition is returned when an action is not allowed from the booking's current status.
	ErrInvalidTransition = errors.New("domain: invalid status transition")
	// ErrNoActiveSession is returned when an operation requires a signed-in role that is absent.
	ErrNoActiveSession = errors.New("domain: no active session")
	// ErrAlreadyExists is returned when a unique resource is created twice.
	ErrAlreadyExists = errors.New("domain: already exists")
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("domain: forbidden")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// NewValidationError builds a ValidationError with a single field entry.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error. The first message for a field wins.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// Merge copies entries from another validation error into the receiver.
func (v *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.FieldErrors {
		v.Add(field, msg)
	}
}

// OrNil returns v as an error when it has entries, nil otherwise.
func (v *ValidationError) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// RegistrationStage names the step of sign-up that failed.
type RegistrationStage string

const (
	StageSignUp  RegistrationStage = "sign_up"
	StageProfile RegistrationStage = "profile"
)

// RegistrationError reports a sign-up failure with its underlying cause.
type RegistrationError struct {
	Role  Role
	Stage RegistrationStage
	Err   error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("domain: registration as %s failed at %s: %v", e.Role, e.Stage, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// ErrorKind maps sentinel and validation errors to a stable label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return "registration"
	}
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrInsufficientAdvanceNotice):
		return "insufficient_advance_notice"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

// Retryable reports whether the caller may retry the same request after refreshing its view.
func Retryable(err error) bool {
	return errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrTimeout)
}
