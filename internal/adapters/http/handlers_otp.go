package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/contracts"
)

// issueOTP returns the raw code to the calling service, which owns delivery.
// The code is never logged and never stored in clear.
func (h *Handler) issueOTP(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.IssueOTPRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "http_otp_issue", err)
		return
	}

	issued, err := h.service.IssueOTP(r.Context(), actor, req.Recipient, req.Channel, req.Purpose)
	if err != nil {
		writeMappedError(r.Context(), w, "http_otp_issue", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", issued)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.VerifyOTPRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "http_otp_verify", err)
		return
	}

	if err := h.service.VerifyOTP(r.Context(), actor, req.Recipient, req.Purpose, req.Code); err != nil {
		writeMappedError(r.Context(), w, "http_otp_verify", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.VerifyOTPResponse{Verified: true})
}
