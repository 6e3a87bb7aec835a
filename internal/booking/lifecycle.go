package booking

import (
	"fmt"
	"time"

	"github.com/example/autoescola/internal/domain"
)

// Action is an event that moves a booking between statuses.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionRequestPayment Action = "request_payment"
	ActionConfirmPayment Action = "confirm_payment"
	ActionComplete       Action = "complete"
	ActionCancel         Action = "cancel"
	ActionAutoCancel     Action = "auto_cancel"
)

var transitions = map[domain.BookingStatus]map[Action]domain.BookingStatus{
	domain.StatusPendingAcceptance: {
		ActionAccept:     domain.StatusConfirmed,
		ActionReject:     domain.StatusCancelled,
		ActionCancel:     domain.StatusCancelled,
		ActionAutoCancel: domain.StatusCancelled,
	},
	domain.StatusConfirmed: {
		ActionRequestPayment: domain.StatusPendingPayment,
		ActionCancel:         domain.StatusCancelled,
		ActionAutoCancel:     domain.StatusCancelled,
	},
	domain.StatusPendingPayment: {
		ActionConfirmPayment: domain.StatusScheduled,
		ActionCancel:         domain.StatusCancelled,
		ActionAutoCancel:     domain.StatusCancelled,
	},
	domain.StatusScheduled: {
		ActionComplete: domain.StatusCompleted,
		ActionCancel:   domain.StatusCancelled,
	},
}

// Transition returns the status reached by applying action to from.
func Transition(from domain.BookingStatus, action Action) (domain.BookingStatus, error) {
	next, ok := transitions[from][action]
	if !ok {
		return from, fmt.Errorf("booking: %s from %s: %w", action, from, domain.ErrInvalidTransition)
	}
	return next, nil
}

// Allowed lists the actions permitted from status.
func Allowed(status domain.BookingStatus) []Action {
	order := []Action{ActionAccept, ActionReject, ActionRequestPayment, ActionConfirmPayment, ActionComplete, ActionCancel, ActionAutoCancel}
	var out []Action
	for _, a := range order {
		if _, ok := transitions[status][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Apply returns a copy of b moved through action at now. Timestamps matching the
// action are set; the input is not modified.
func Apply(b domain.Booking, action Action, now time.Time, reason string) (domain.Booking, error) {
	next, err := Transition(b.Status, action)
	if err != nil {
		return b, err
	}
	out := b
	out.Status = next
	out.UpdatedAt = now
	switch action {
	case ActionAccept:
		out.AcceptedAt = &now
	case ActionConfirmPayment:
		out.PaidAt = &now
	case ActionReject, ActionCancel, ActionAutoCancel:
		out.CancelledAt = &now
		if reason == "" {
			reason = string(action)
		}
		out.CancellationReason = reason
	}
	return out, nil
}

// Rate records a 1-5 rating on a completed booking.
func Rate(b domain.Booking, rating int, comment string, now time.Time) (domain.Booking, error) {
	if b.Status != domain.StatusCompleted {
		return b, fmt.Errorf("booking: rate from %s: %w", b.Status, domain.ErrInvalidTransition)
	}
	if b.Rating != nil {
		return b, fmt.Errorf("booking: already rated: %w", domain.ErrAlreadyExists)
	}
	if rating < 1 || rating > 5 {
		return b, domain.NewValidationError("rating", "must be between 1 and 5")
	}
	out := b
	out.Rating = &rating
	out.RatingComment = comment
	out.UpdatedAt = now
	return out, nil
}

// ShouldAutoCancel reports whether an unanswered or unpaid booking has missed
// its deadline. Accepted bookings still awaiting payment count as unpaid. The deadline is the end of the day before the lesson, measured
// as calendar dates in loc. Terminal bookings never qualify, so repeated checks
// are harmless.
func ShouldAutoCancel(b domain.Booking, now time.Time, loc *time.Location) bool {
	switch b.Status {
	case domain.StatusPendingAcceptance, domain.StatusConfirmed, domain.StatusPendingPayment:
	default:
		return false
	}
	today := domain.DateOf(now.In(location(loc)))
	return !b.Date.After(today)
}

// ShouldComplete reports whether a paid booking's lesson has ended.
func ShouldComplete(b domain.Booking, now time.Time, loc *time.Location) bool {
	if b.Status != domain.StatusScheduled {
		return false
	}
	return !now.Before(b.End(location(loc)))
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
