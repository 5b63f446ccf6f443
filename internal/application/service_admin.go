package application

import (
	"context"
	"strings"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

func (s *Service) CacheMetrics(ctx context.Context, actor Actor) (domain.MetricsSnapshot, error) {
	if err := requireActor(actor); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	return s.diagnostics.Snapshot(), nil
}

// CacheHealth is unauthenticated on purpose: load balancers and sibling
// services probe it without credentials.
func (s *Service) CacheHealth(ctx context.Context) (domain.HealthReport, error) {
	report := s.diagnostics.HealthReport()
	report.Version = s.cfg.Version
	return report, nil
}

// FlushCache removes every key under a namespace, or all of this service's
// keys when namespace is empty. Admin-only and audited through the ops feed.
func (s *Service) FlushCache(ctx context.Context, actor Actor, namespace string) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	namespace = strings.TrimSpace(namespace)
	removed, err := s.cache.FlushNamespace(ctx, namespace)
	if err != nil {
		return 0, err
	}
	scope := namespace
	if scope == "" {
		scope = "all"
	}
	s.publishEvent(ctx, eventTypeCacheFlushed, scope, map[string]any{
		"namespace":    scope,
		"removed_keys": removed,
		"actor":        actor.SubjectID,
	})
	return removed, nil
}

// ResetCacheMetrics zeroes the recorder while keeping the connection count
// and peak memory watermark. Admin-only and audited through the ops feed.
func (s *Service) ResetCacheMetrics(ctx context.Context, actor Actor) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	s.diagnostics.ResetMetrics()
	s.publishEvent(ctx, eventTypeMetricsReset, s.cfg.ServiceName, map[string]any{
		"actor": actor.SubjectID,
	})
	return nil
}
