package application

import (
	"context"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// RecordLoginFailure counts one failed login for an identifier. Failures that
// leave the identifier locked are published to the ops feed; repeats while
// locked are published too, as an ongoing-attack signal.
func (s *Service) RecordLoginFailure(ctx context.Context, actor Actor, identifier string) (domain.LockoutStatus, error) {
	if err := requireActor(actor); err != nil {
		return domain.LockoutStatus{}, err
	}
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return domain.LockoutStatus{}, err
	}

	status, err := s.lockouts.RecordFailure(ctx, identifier)
	if err != nil {
		return domain.LockoutStatus{}, err
	}
	if status.Locked {
		payload := map[string]any{
			"identifier":   identifier,
			"failed_count": status.FailedCount,
		}
		if status.LockedUntil != nil {
			payload["locked_until"] = status.LockedUntil
		}
		s.publishEvent(ctx, eventTypeLockoutEngaged, identifier, payload)
	}
	return status, nil
}

func (s *Service) GetLockout(ctx context.Context, actor Actor, identifier string) (domain.LockoutStatus, error) {
	if err := requireActor(actor); err != nil {
		return domain.LockoutStatus{}, err
	}
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return domain.LockoutStatus{}, err
	}
	return s.lockouts.Status(ctx, identifier)
}

func (s *Service) ClearLockout(ctx context.Context, actor Actor, identifier string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return err
	}
	return s.lockouts.Clear(ctx, identifier)
}
