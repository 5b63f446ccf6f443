package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/contracts"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	fields := splitFieldsParam(r.URL.Query().Get("fields"))

	profile, err := h.service.GetProfile(r.Context(), actor, chi.URLParam(r, "user_id"), fields)
	if err != nil {
		writeMappedError(r.Context(), w, "http_profile_get", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", profile)
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.PutProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "http_profile_put", err)
		return
	}

	profile := domain.Profile{
		UserID:        chi.URLParam(r, "user_id"),
		Username:      req.Username,
		DisplayName:   req.DisplayName,
		Bio:           req.Bio,
		AvatarURL:     req.AvatarURL,
		FollowerCount: req.FollowerCount,
		Verified:      req.Verified,
	}
	if req.UpdatedAt != "" {
		ts, err := time.Parse(time.RFC3339, req.UpdatedAt)
		if err != nil {
			writeValidationError(r.Context(), w, "http_profile_put", fmt.Errorf("updated_at: %w", err))
			return
		}
		profile.UpdatedAt = ts.UTC()
	}

	if err := h.service.PutProfile(r.Context(), actor, profile, req.Fields, req.TTLSeconds); err != nil {
		writeMappedError(r.Context(), w, "http_profile_put", err)
		return
	}
	writeSuccess(w, http.StatusOK, "profile cached", nil)
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if err := h.service.DeleteProfile(r.Context(), actor, chi.URLParam(r, "user_id")); err != nil {
		writeMappedError(r.Context(), w, "http_profile_delete", err)
		return
	}
	writeSuccess(w, http.StatusOK, "profile invalidated", nil)
}
