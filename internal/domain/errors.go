package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrStoreUnavailable signals the backing store is unreachable or not ready.
	// Callers decide fallback: rate limiting fails open, cache reads degrade to misses.
	ErrStoreUnavailable = errors.New("cache store unavailable")
	// ErrRateLimited signals the caller exceeded a configured rate-limit ceiling.
	ErrRateLimited = errors.New("rate limited")
	// ErrLockedOut signals temporary lockout after repeated failed attempts.
	// This supports brute-force mitigation and a predictable user-facing response.
	ErrLockedOut = errors.New("identifier locked out")
	// ErrOTPInvalid hides whether the code was wrong or the challenge is missing.
	// The reason is to prevent probing for live challenges.
	ErrOTPInvalid = errors.New("invalid one-time code")
	// ErrOTPExpired is returned when the challenge aged out or was consumed.
	ErrOTPExpired = errors.New("one-time code expired")
	// ErrOTPAttemptsExceeded consumes the challenge after too many wrong codes.
	ErrOTPAttemptsExceeded = errors.New("one-time code attempts exceeded")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")

	// ErrIdempotencyRequired rejects unsafe requests submitted without an
	// Idempotency-Key header.
	ErrIdempotencyRequired = errors.New("idempotency key required")
	// ErrIdempotencyConflict rejects reuse of an idempotency key with a
	// different request payload.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
