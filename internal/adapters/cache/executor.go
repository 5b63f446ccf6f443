package cache

import (
	"context"
	"time"
)

// execute funnels every store command through one gate: readiness fast-fail,
// a per-command timeout, latency recording, slow-op detection and stable
// error classification. It never retries; retry decisions belong to the
// health monitor and to callers that can reason about idempotency.
func (c *CacheClient) execute(ctx context.Context, name string, fn func(ctx context.Context, s Store) error) error {
	if !c.IsReady() {
		c.metrics.RecordNotReady()
		return ErrNotReady
	}
	store := c.currentStore()
	if store == nil {
		c.metrics.RecordNotReady()
		return ErrNotReady
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	start := time.Now()
	err := fn(opCtx, store)
	elapsed := time.Since(start)

	c.metrics.RecordCommand(name, elapsed)
	if elapsed > c.cfg.SlowOpThreshold {
		c.metrics.RecordSlowOp()
		c.logger.WarnContext(ctx, "slow cache operation",
			"operation", name,
			"outcome", "slow",
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", c.cfg.SlowOpThreshold.Milliseconds(),
		)
	}
	if err != nil {
		kind := classifyError(err)
		c.metrics.RecordError(kind)
		c.logger.ErrorContext(ctx, "cache operation failed",
			"operation", name,
			"outcome", "failure",
			"error_kind", kind,
			"error", err,
		)
		return &CommandError{Command: name, Kind: kind, Err: err}
	}
	return nil
}
