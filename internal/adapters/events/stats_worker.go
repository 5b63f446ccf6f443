package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/application"
)

// StatsReporterWorker periodically publishes a cache snapshot summary to
// the ops feed so dashboards see trends without polling the admin API.
type StatsReporterWorker struct {
	logger   *slog.Logger
	service  *application.Service
	interval time.Duration
}

func NewStatsReporterWorker(logger *slog.Logger, service *application.Service, interval time.Duration) *StatsReporterWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsReporterWorker{
		logger:   logger,
		service:  service,
		interval: interval,
	}
}

func (w *StatsReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.service.ReportCacheStats(ctx); err != nil {
			w.logger.ErrorContext(ctx, "stats report iteration failed",
				"module", "events.stats_worker",
				"layer", "adapter",
				"operation", "report_cache_stats",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
