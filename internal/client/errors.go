package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/example/autoescola/internal/domain"
)

// APIError is a non-2xx response from the API. It unwraps to the domain
// error named by its error code so callers can use errors.Is and errors.As.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
	cause     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: api error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

type errorBody struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
	Retryable bool              `json:"retryable"`
}

func decodeAPIError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.ErrorCode == "" {
		body.ErrorCode = codeForStatus(resp.StatusCode)
		body.Message = http.StatusText(resp.StatusCode)
	}

	apiErr := &APIError{
		Status:    resp.StatusCode,
		Code:      body.ErrorCode,
		Message:   body.Message,
		Retryable: body.Retryable,
	}
	if body.ErrorCode == "VALIDATION" {
		apiErr.cause = &domain.ValidationError{FieldErrors: body.Errors}
	} else {
		apiErr.cause = sentinelFor(body.ErrorCode)
	}
	return apiErr
}

func sentinelFor(code string) error {
	switch code {
	case "AUTH_REQUIRED", "AUTH_INVALID_CREDENTIALS", "AUTH_SESSION_EXPIRED", "AUTH_SESSION_REVOKED", "AUTH":
		return domain.ErrAuth
	case "FORBIDDEN":
		return domain.ErrForbidden
	case "NOT_FOUND":
		return domain.ErrNotFound
	case "ALREADY_EXISTS":
		return domain.ErrAlreadyExists
	case "SLOT_CONFLICT":
		return domain.ErrSlotConflict
	case "SLOT_UNAVAILABLE":
		return domain.ErrSlotUnavailable
	case "INSUFFICIENT_ADVANCE_NOTICE":
		return domain.ErrInsufficientAdvanceNotice
	case "INVALID_TRANSITION":
		return domain.ErrInvalidTransition
	case "TIMEOUT":
		return domain.ErrTimeout
	case "NO_ACTIVE_SESSION":
		return domain.ErrNoActiveSession
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "AUTH_REQUIRED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusGatewayTimeout:
		return "TIMEOUT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	return "INTERNAL"
}
