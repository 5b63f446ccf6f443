package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

const (
	// eventTypeCacheFlushed is emitted when an operator flushes a namespace.
	eventTypeCacheFlushed = "cache.flushed"
	// eventTypeMetricsReset is emitted when an operator resets the recorder.
	eventTypeMetricsReset = "cache.metrics.reset"
	// eventTypeRateLimitBreached is emitted when a check blocks a caller.
	eventTypeRateLimitBreached = "ratelimit.breached"
	// eventTypeLockoutEngaged is emitted on failures that leave an identifier locked.
	eventTypeLockoutEngaged = "lockout.engaged"
	// eventTypeOTPIssued is emitted after a one-time code is stored.
	eventTypeOTPIssued = "otp.issued"
	// eventTypeHealthChanged is emitted when the derived health status transitions.
	eventTypeHealthChanged = "health.changed"
	// eventTypeStatsReported is the periodic snapshot summary from the worker.
	eventTypeStatsReported = "cache.stats.reported"
)

type eventEnvelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	Service    string         `json:"service"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// publishEvent emits an operational event. Publishing is best effort
// throughout: a broker outage must never fail the operation that triggered
// the event.
func (s *Service) publishEvent(ctx context.Context, eventType, partitionKey string, payload map[string]any) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(eventEnvelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Service:    s.cfg.ServiceName,
		OccurredAt: s.nowFn(),
		Payload:    payload,
	})
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, partitionKey, body); err != nil {
		slog.Default().WarnContext(ctx, "event publish failed",
			"service", s.cfg.ServiceName,
			"module", "application",
			"layer", "application",
			"operation", "publish_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
	}
}

// NotifyHealthChange publishes a health transition. Wired to the cache
// client's status hook at bootstrap.
func (s *Service) NotifyHealthChange(status domain.HealthStatus) {
	s.publishEvent(context.Background(), eventTypeHealthChanged, s.cfg.ServiceName, map[string]any{
		"status": string(status),
	})
}

// ReportCacheStats publishes a snapshot summary to the ops feed. The worker
// calls this on an interval so dashboards see trends without polling the
// admin API.
func (s *Service) ReportCacheStats(ctx context.Context) error {
	snap := s.diagnostics.Snapshot()
	s.publishEvent(ctx, eventTypeStatsReported, s.cfg.ServiceName, map[string]any{
		"connection_state":   snap.State,
		"uptime_seconds":     snap.UptimeSeconds,
		"requests":           snap.Requests,
		"hit_rate":           snap.HitRate,
		"error_rate":         snap.ErrorRate,
		"avg_latency_ms":     snap.Latency.Avg,
		"p95_latency_ms":     snap.Latency.P95,
		"slow_operations":    snap.SlowOps,
		"rate_limit_blocked": snap.RateLimitBlocked,
		"memory_used_bytes":  snap.MemoryUsedBytes,
	})
	return nil
}
