package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// CheckRateLimit evaluates one request against a named scope's limiter and
// reports the decision. Blocked checks are reported, not errored: the caller
// service decides how to surface the rejection.
func (s *Service) CheckRateLimit(ctx context.Context, actor Actor, scope, key string) (domain.Decision, error) {
	if err := requireActor(actor); err != nil {
		return domain.Decision{}, err
	}
	scope = strings.TrimSpace(scope)
	key = strings.TrimSpace(key)
	if scope == "" || key == "" {
		return domain.Decision{}, fmt.Errorf("%w: scope and key are required", domain.ErrInvalidInput)
	}
	limiter, ok := s.limiters[scope]
	if !ok {
		return domain.Decision{}, fmt.Errorf("%w: unknown rate limit scope %q", domain.ErrInvalidInput, scope)
	}

	decision := limiter.Check(ctx, scope+":"+key)
	if !decision.Allowed {
		s.publishEvent(ctx, eventTypeRateLimitBreached, key, map[string]any{
			"scope":          scope,
			"key":            key,
			"limit":          decision.Limit,
			"retry_after_ms": decision.RetryAfter.Milliseconds(),
		})
	}
	return decision, nil
}
