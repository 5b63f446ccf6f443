package application

import (
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

type Service struct {
	cfg Config

	cache       ports.Cache
	diagnostics ports.CacheDiagnostics
	limiters    map[string]ports.RateLimiter
	lockouts    ports.LockoutStore
	otps        ports.OTPStore
	profiles    ports.ProfileCache
	idempotency ports.IdempotencyStore
	events      ports.EventPublisher

	startedAt time.Time
	nowFn     func() time.Time
}

type Dependencies struct {
	Config Config

	Cache       ports.Cache
	Diagnostics ports.CacheDiagnostics
	Limiters    map[string]ports.RateLimiter
	Lockouts    ports.LockoutStore
	OTPs        ports.OTPStore
	Profiles    ports.ProfileCache
	Idempotency ports.IdempotencyStore
	Events      ports.EventPublisher
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M18-Cache-State-Management"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = 5
	}
	return &Service{
		cfg:         cfg,
		cache:       deps.Cache,
		diagnostics: deps.Diagnostics,
		limiters:    deps.Limiters,
		lockouts:    deps.Lockouts,
		otps:        deps.OTPs,
		profiles:    deps.Profiles,
		idempotency: deps.Idempotency,
		events:      deps.Events,
		startedAt:   time.Now().UTC(),
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Ready reports whether the backing store accepts traffic. Used by the
// readiness probe.
func (s *Service) Ready() bool {
	return s.diagnostics.IsReady()
}
