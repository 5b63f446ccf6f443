package http

import (
	"net/http"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/contracts"
)

// checkRateLimit exposes the limiter scopes to sibling services. A blocked
// decision is still a 200: the caller owns how to surface the rejection.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.RateLimitCheckRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "http_ratelimit_check", err)
		return
	}

	decision, err := h.service.CheckRateLimit(r.Context(), actor, req.Scope, req.Key)
	if err != nil {
		writeMappedError(r.Context(), w, "http_ratelimit_check", err)
		return
	}

	resp := contracts.RateLimitDecisionResponse{
		Scope:        req.Scope,
		Key:          req.Key,
		Allowed:      decision.Allowed,
		Limit:        decision.Limit,
		Remaining:    decision.Remaining,
		RetryAfterMs: decision.RetryAfter.Milliseconds(),
		FailedOpen:   decision.FailedOpen,
	}
	if !decision.ResetAt.IsZero() {
		resp.ResetAt = decision.ResetAt.UTC().Format(time.RFC3339)
	}
	writeSuccess(w, http.StatusOK, "", resp)
}
