package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/contracts"
)

func (h *Handler) flushCache(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.FlushCacheRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeValidationError(r.Context(), w, "http_cache_flush", err)
			return
		}
	}

	removed, err := h.service.FlushCache(r.Context(), actor, req.Namespace)
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_flush", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.FlushCacheResponse{
		Namespace:   req.Namespace,
		RemovedKeys: removed,
	})
}

func (h *Handler) resetCacheMetrics(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if err := h.service.ResetCacheMetrics(r.Context(), actor); err != nil {
		writeMappedError(r.Context(), w, "http_metrics_reset", err)
		return
	}
	writeSuccess(w, http.StatusOK, "metrics reset", nil)
}
