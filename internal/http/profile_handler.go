package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/domain"
)

type profileService interface {
	Get(ctx context.Context, role domain.Role, id string) (domain.Identity, error)
	Create(ctx context.Context, principal application.Principal, identity domain.Identity) (domain.Identity, error)
	Update(ctx context.Context, principal application.Principal, role domain.Role, id string, update domain.ProfileUpdate) (domain.Identity, error)
}

// ProfileHandler serves identity profiles.
type ProfileHandler struct {
	service   profileService
	responder responder
	logger    zerolog.Logger
}

func NewProfileHandler(service profileService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{service: service, responder: newResponder(logger), logger: logger}
}

// Me handles GET /v1/profiles/me.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return
	}
	identity, err := h.service.Get(r.Context(), principal.Role, principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, identity)
}

// Get handles GET /v1/profiles/{role}/{id}. Only the owner or an admin may read.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, role, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if !principal.Is(domain.RoleAdmin) && (principal.Role != role || principal.UserID != id) {
		h.responder.handleServiceError(r.Context(), w, domain.ErrForbidden)
		return
	}
	identity, err := h.service.Get(r.Context(), role, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, identity)
}

// Create handles POST /v1/profiles/{role}/{id}.
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, role, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var identity domain.Identity
	if err := json.NewDecoder(r.Body).Decode(&identity); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	identity.ID = id
	identity.Role = role

	created, err := h.service.Create(r.Context(), principal, identity)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, created)
}

// Update handles PUT /v1/profiles/{role}/{id}.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, role, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var update domain.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	updated, err := h.service.Update(r.Context(), principal, role, id, update)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "ProfileHandler", "Update", "profile_complete", updated.ProfileComplete).
		Info().Msg("profile updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, updated)
}

func (h *ProfileHandler) target(w http.ResponseWriter, r *http.Request) (application.Principal, domain.Role, string, bool) {
	principal, ok := principalOrForbidden(r, h.responder, w)
	if !ok {
		return application.Principal{}, "", "", false
	}
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", errInvalidRole)
		return application.Principal{}, "", "", false
	}
	return principal, role, chi.URLParam(r, "id"), true
}
