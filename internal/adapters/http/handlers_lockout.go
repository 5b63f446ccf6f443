package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) recordLoginFailure(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	status, err := h.service.RecordLoginFailure(r.Context(), actor, chi.URLParam(r, "identifier"))
	if err != nil {
		writeMappedError(r.Context(), w, "http_lockout_failure", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", status)
}

func (h *Handler) getLockout(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	status, err := h.service.GetLockout(r.Context(), actor, chi.URLParam(r, "identifier"))
	if err != nil {
		writeMappedError(r.Context(), w, "http_lockout_get", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", status)
}

func (h *Handler) clearLockout(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if err := h.service.ClearLockout(r.Context(), actor, chi.URLParam(r, "identifier")); err != nil {
		writeMappedError(r.Context(), w, "http_lockout_clear", err)
		return
	}
	writeSuccess(w, http.StatusOK, "lockout cleared", nil)
}
