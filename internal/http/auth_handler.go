package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/session"
)

type authService interface {
	SignIn(ctx context.Context, role domain.Role, creds session.Credentials) (session.AuthSession, error)
	SignUp(ctx context.Context, role domain.Role, input session.NewUser) (session.AuthSession, error)
	Current(ctx context.Context, token string) (session.AuthSession, error)
	Refresh(ctx context.Context, token string) (session.AuthSession, error)
	SignOut(ctx context.Context, token string) error
}

// AuthHandler serves the role-scoped session endpoints.
type AuthHandler struct {
	service   authService
	responder responder
	logger    zerolog.Logger
}

func NewAuthHandler(service authService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *AuthHandler) log(ctx context.Context, operation string, fields ...any) *zerolog.Logger {
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, fields...)
}

// SignIn handles POST /v1/{role}/sessions.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r)
	if !ok {
		return
	}

	var creds session.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	result, err := h.service.SignIn(r.Context(), role, creds)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("X-Session-Token", result.Token)
	h.log(r.Context(), "SignIn", "role", role, "user_id", result.UserID).Info().Msg("session created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, result)
}

// SignUp handles POST /v1/{role}/users.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r)
	if !ok {
		return
	}

	var input session.NewUser
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	result, err := h.service.SignUp(r.Context(), role, input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("X-Session-Token", result.Token)
	h.log(r.Context(), "SignUp", "role", role, "user_id", result.UserID).Info().Msg("account created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, result)
}

// Current handles GET /v1/{role}/sessions/current.
func (h *AuthHandler) Current(w http.ResponseWriter, r *http.Request) {
	if !h.ownsRole(w, r) {
		return
	}
	result, err := h.service.Current(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, result)
}

// Refresh handles POST /v1/{role}/sessions/current/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.ownsRole(w, r) {
		return
	}
	result, err := h.service.Refresh(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("X-Session-Token", result.Token)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, result)
}

// SignOut handles DELETE /v1/{role}/sessions/current.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if !h.ownsRole(w, r) {
		return
	}
	if err := h.service.SignOut(r.Context(), tokenFromContext(r.Context())); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.log(r.Context(), "SignOut").Info().Msg("session revoked")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AuthHandler) role(w http.ResponseWriter, r *http.Request) (domain.Role, bool) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", errInvalidRole)
		return "", false
	}
	return role, true
}

// ownsRole checks that the authenticated token belongs to the role in the path.
func (h *AuthHandler) ownsRole(w http.ResponseWriter, r *http.Request) bool {
	role, ok := h.role(w, r)
	if !ok {
		return false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || principal.Role != role {
		h.responder.handleServiceError(r.Context(), w, domain.ErrForbidden)
		return false
	}
	return true
}

func principalOrForbidden(r *http.Request, rs responder, w http.ResponseWriter) (application.Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		rs.writeError(r.Context(), w, http.StatusUnauthorized, "AUTH_REQUIRED", errMissingSessionToken)
		return application.Principal{}, false
	}
	return principal, true
}
