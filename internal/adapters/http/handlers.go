package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/contracts"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", nil)
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "cache client not ready", requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "ready", nil)
}

func (h *Handler) cacheHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CacheHealth(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_health", err)
		return
	}
	// WARNING still answers 200; only CRITICAL flips the status code so
	// load balancers don't evict instances that merely degraded.
	status := http.StatusOK
	if report.Status == domain.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	writeSuccess(w, status, "", report)
}

func (h *Handler) cacheMetrics(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	snapshot, err := h.service.CacheMetrics(r.Context(), actor)
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_metrics", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", snapshot)
}

func (h *Handler) getCacheEntry(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	entry, err := h.service.GetCacheEntry(r.Context(), actor, chi.URLParam(r, "key"))
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_get", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.CacheEntryResponse{
		Key:        entry.Key,
		Value:      entry.Value,
		TTLSeconds: entry.TTLSeconds,
	})
}

func (h *Handler) putCacheEntry(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.PutCacheRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "http_cache_put", err)
		return
	}

	entry, err := h.service.PutCacheEntry(r.Context(), actor, chi.URLParam(r, "key"), req.Value, req.TTLSeconds)
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_put", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", contracts.CacheEntryResponse{
		Key:        entry.Key,
		Value:      entry.Value,
		TTLSeconds: entry.TTLSeconds,
	})
}

func (h *Handler) deleteCacheEntry(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	key := chi.URLParam(r, "key")
	deleted, err := h.service.DeleteCacheEntry(r.Context(), actor, key)
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_delete", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.DeleteCacheResponse{Key: key, Deleted: deleted})
}

func (h *Handler) invalidateCacheKeys(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.InvalidateCacheRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "http_cache_invalidate", err)
		return
	}

	count, err := h.service.InvalidateCacheKeys(r.Context(), actor, req.Keys)
	if err != nil {
		writeMappedError(r.Context(), w, "http_cache_invalidate", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.InvalidateCacheResponse{InvalidatedCount: count})
}
