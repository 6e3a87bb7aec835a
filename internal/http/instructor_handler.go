package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/booking"
	"github.com/example/autoescola/internal/domain"
)

type instructorService interface {
	Get(ctx context.Context, id string) (booking.InstructorProfile, error)
	UpdateSettings(ctx context.Context, principal application.Principal, id string, input application.InstructorSettingsInput) (booking.InstructorProfile, error)
	ReplaceAvailability(ctx context.Context, principal application.Principal, id string, rule domain.AvailabilityRule) (booking.InstructorProfile, error)
	Occupancy(ctx context.Context, id string, date domain.Date) ([]domain.Booking, error)
	Slots(ctx context.Context, id string, date domain.Date) ([]domain.TimeOfDay, error)
}

// InstructorHandler serves instructor settings, availability and slots.
type InstructorHandler struct {
	service   instructorService
	responder responder
}

func NewInstructorHandler(service instructorService, logger zerolog.Logger) *InstructorHandler {
	return &InstructorHandler{service: service, responder: newResponder(logger)}
}

// Get handles GET /v1/instructors/{id}.
func (h *InstructorHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, profile)
}

// UpdateSettings handles PUT /v1/instructors/{id}/settings.
func (h *InstructorHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return
	}
	var input application.InstructorSettingsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	profile, err := h.service.UpdateSettings(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, profile)
}

// ReplaceAvailability handles PUT /v1/instructors/{id}/availability.
func (h *InstructorHandler) ReplaceAvailability(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return
	}
	var rule domain.AvailabilityRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	profile, err := h.service.ReplaceAvailability(r.Context(), principal, chi.URLParam(r, "id"), rule)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, profile)
}

// Slots handles GET /v1/instructors/{id}/slots?date=YYYY-MM-DD.
func (h *InstructorHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	slots, err := h.service.Slots(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotsResponse{Date: date, Slots: slots})
}

// Occupancy handles GET /v1/instructors/{id}/occupancy?date=YYYY-MM-DD.
func (h *InstructorHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	bookings, err := h.service.Occupancy(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingsResponse{Bookings: bookings})
}

func (h *InstructorHandler) date(w http.ResponseWriter, r *http.Request) (domain.Date, bool) {
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errInvalidDate)
		return domain.Date{}, false
	}
	return date, true
}

type slotsResponse struct {
	Date  domain.Date        `json:"date"`
	Slots []domain.TimeOfDay `json:"slots"`
}

type bookingsResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}
