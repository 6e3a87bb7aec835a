package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/booking"
	"github.com/example/autoescola/internal/domain"
)

type bookingService interface {
	Create(ctx context.Context, principal application.Principal, payload booking.CreatePayload) (domain.Booking, error)
	List(ctx context.Context, principal application.Principal) ([]domain.Booking, error)
	Get(ctx context.Context, principal application.Principal, id string) (domain.Booking, error)
	Accept(ctx context.Context, principal application.Principal, id string) (domain.Booking, error)
	Reject(ctx context.Context, principal application.Principal, id string) (domain.Booking, error)
	Cancel(ctx context.Context, principal application.Principal, id, reason string) (domain.Booking, error)
	RequestPayment(ctx context.Context, principal application.Principal, id string) (domain.Booking, error)
	ConfirmPayment(ctx context.Context, principal application.Principal, id string) (domain.Booking, error)
	Complete(ctx context.Context, principal application.Principal, id string) (domain.Booking, error)
	Rate(ctx context.Context, principal application.Principal, id string, rating int, comment string) (domain.Booking, error)
}

// BookingHandler serves booking creation, listing and lifecycle actions.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    zerolog.Logger
}

func NewBookingHandler(service bookingService, logger zerolog.Logger) *BookingHandler {
	return &BookingHandler{service: service, responder: newResponder(logger), logger: logger}
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return
	}
	bookings, err := h.service.List(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingsResponse{Bookings: bookings})
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return
	}
	var payload booking.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	created, err := h.service.Create(r.Context(), principal, payload)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "BookingHandler", "Create", "booking_id", created.ID).
		Info().Msg("booking created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, created)
}

// Get handles GET /v1/bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Get)
}

// Accept handles POST /v1/bookings/{id}/accept.
func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

// Reject handles POST /v1/bookings/{id}/reject.
func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Reject)
}

// RequestPayment handles POST /v1/bookings/{id}/payment.
func (h *BookingHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.RequestPayment)
}

// ConfirmPayment handles POST /v1/bookings/{id}/payment/confirm.
func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.ConfirmPayment)
}

// Complete handles POST /v1/bookings/{id}/complete.
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Complete)
}

// Cancel handles POST /v1/bookings/{id}/cancel with an optional {"reason"} body.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	h.respond(w, r, func(ctx context.Context, p application.Principal, id string) (domain.Booking, error) {
		return h.service.Cancel(ctx, p, id, req.Reason)
	})
}

// Rate handles POST /v1/bookings/{id}/rating.
func (h *BookingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	h.respond(w, r, func(ctx context.Context, p application.Principal, id string) (domain.Booking, error) {
		return h.service.Rate(ctx, p, id, req.Rating, req.Comment)
	})
}

func (h *BookingHandler) respond(w http.ResponseWriter, r *http.Request, op func(context.Context, application.Principal, string) (domain.Booking, error)) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return
	}
	b, err := op(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, b)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type ratingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
