package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// Cache is the entry-level surface the management API works against.
// Implementations namespace keys and serialize values; callers see logical
// keys only.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	FlushNamespace(ctx context.Context, namespace string) (int64, error)
}

// CacheDiagnostics exposes the client's observability surface without
// granting access to data operations.
type CacheDiagnostics interface {
	IsReady() bool
	Snapshot() domain.MetricsSnapshot
	HealthReport() domain.HealthReport
	ResetMetrics()
}

// RateLimiter is the common contract all limiter algorithms satisfy. Check
// never errors; a limiter that cannot reach its backing store fails open and
// flags the decision.
type RateLimiter interface {
	Check(ctx context.Context, key string) domain.Decision
}

// LockoutStore tracks failed login attempts per identifier and reports when
// an identifier crosses into lockout. State is cache-backed so hot login
// paths never touch durable storage.
type LockoutStore interface {
	RecordFailure(ctx context.Context, identifier string) (domain.LockoutStatus, error)
	Status(ctx context.Context, identifier string) (domain.LockoutStatus, error)
	Clear(ctx context.Context, identifier string) error
}

// OTPStore persists short-lived one-time-passcode challenges. Challenges
// expire on their own; Delete exists for single-use consumption.
type OTPStore interface {
	Save(ctx context.Context, challenge domain.OTPChallenge) error
	Load(ctx context.Context, recipient, purpose string) (domain.OTPChallenge, bool, error)
	Delete(ctx context.Context, recipient, purpose string) error
}

// ProfileCache stores rendered user profiles with per-field granularity so
// hot readers can fetch just the fields they render. A zero ttl defers to the
// namespace default table.
type ProfileCache interface {
	Put(ctx context.Context, profile domain.Profile, fields []string, ttl time.Duration) error
	Get(ctx context.Context, userID string, fields []string) (domain.Profile, bool, error)
	Delete(ctx context.Context, userID string) error
}

// IdempotencyStore reserves idempotency keys for unsafe requests. Reserve
// reports whether the caller won the slot; a lost slot returns the
// fingerprint recorded by the winner so callers can tell replays from
// conflicting reuse.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, string, error)
}
