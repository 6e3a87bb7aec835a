package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/domain"
)

var (
	errBadRequestBody      = errors.New("invalid request body")
	errMissingSessionToken = errors.New("a session token is required")
	errInvalidRole         = errors.New("unknown role")
	errInvalidDate         = errors.New("date must be formatted as YYYY-MM-DD")
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

type responder struct {
	logger zerolog.Logger
}

func newResponder(logger zerolog.Logger) responder {
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).Error().Err(err).Msg("failed to encode response")
	}
}

// writeError answers with a request-level failure that never reached a service.
func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
	}
	r.loggerFor(ctx).Warn().Int("status", status).Str("error_code", code).Msg(message)
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError maps a service error to its status code and error_code.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	kind := domain.ErrorKind(err)
	status, message := statusForKind(kind)
	resp := errorResponse{
		ErrorCode: errorCode(err, kind),
		Message:   message,
		Retryable: domain.Retryable(err),
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		resp.Errors = vErr.FieldErrors
	}

	logger := r.loggerFor(ctx)
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Int("status", status).Str("error_kind", kind).Msg("request failed")

	r.writeJSON(ctx, w, status, resp)
}

func (r responder) loggerFor(ctx context.Context) *zerolog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return &r.logger
}

func statusForKind(kind string) (int, string) {
	switch kind {
	case "validation":
		return http.StatusUnprocessableEntity, "the request contains invalid fields"
	case "auth":
		return http.StatusUnauthorized, "authentication failed"
	case "forbidden":
		return http.StatusForbidden, "you are not allowed to perform this operation"
	case "not_found":
		return http.StatusNotFound, "the requested resource was not found"
	case "already_exists":
		return http.StatusConflict, "the resource already exists"
	case "slot_conflict":
		return http.StatusConflict, "the slot was taken by another booking"
	case "slot_unavailable":
		return http.StatusConflict, "the slot is not available"
	case "insufficient_advance_notice":
		return http.StatusUnprocessableEntity, "lessons must be booked at least one day in advance"
	case "invalid_transition":
		return http.StatusConflict, "the booking does not allow this action in its current status"
	case "timeout":
		return http.StatusGatewayTimeout, "the operation timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func errorCode(err error, kind string) string {
	switch {
	case errors.Is(err, application.ErrSessionExpired):
		return "AUTH_SESSION_EXPIRED"
	case errors.Is(err, application.ErrSessionRevoked):
		return "AUTH_SESSION_REVOKED"
	case errors.Is(err, application.ErrInvalidCredentials):
		return "AUTH_INVALID_CREDENTIALS"
	case kind == "unexpected":
		return "INTERNAL"
	}
	return strings.ToUpper(kind)
}
