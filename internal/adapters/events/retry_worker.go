package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

// queuedEvent is the parked publish envelope on the retry queue.
type queuedEvent struct {
	EventType    string          `json:"event_type"`
	PartitionKey string          `json:"partition_key"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	FirstFailed  time.Time       `json:"first_failed_at"`
}

// RetryPublisher decorates a broker publisher: failed publishes are parked
// on a cache-backed queue instead of being dropped. Parking counts as
// accepted so the triggering operation never fails on broker trouble.
type RetryPublisher struct {
	logger *slog.Logger
	inner  ports.EventPublisher
	queue  ports.EventQueue
}

func NewRetryPublisher(logger *slog.Logger, inner ports.EventPublisher, queue ports.EventQueue) *RetryPublisher {
	return &RetryPublisher{logger: logger, inner: inner, queue: queue}
}

func (p *RetryPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	err := p.inner.Publish(ctx, eventType, partitionKey, payload)
	if err == nil {
		return nil
	}

	item, mErr := json.Marshal(queuedEvent{
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		Attempts:     1,
		FirstFailed:  time.Now().UTC(),
	})
	if mErr != nil {
		return err
	}
	if qErr := p.queue.Enqueue(ctx, item); qErr != nil {
		p.logger.ErrorContext(ctx, "event lost: publish and parking both failed",
			"module", "events.retry_publisher",
			"layer", "adapter",
			"operation", "publish_event",
			"outcome", "failure",
			"event_type", eventType,
			"publish_error", err,
			"queue_error", qErr,
		)
		return err
	}

	p.logger.WarnContext(ctx, "publish failed; event parked for retry",
		"module", "events.retry_publisher",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "deferred",
		"event_type", eventType,
		"error", err,
	)
	return nil
}

// RetryQueueWorker drains the retry queue and republishes parked events.
// Events that exhaust their attempt budget are dropped with an error log.
type RetryQueueWorker struct {
	logger      *slog.Logger
	queue       ports.EventQueue
	publisher   ports.EventPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// NewRetryQueueWorker constructs the drain loop with sane defaults.
// The publisher must be the direct broker publisher, not the decorator,
// or a dead broker would re-park every event forever.
func NewRetryQueueWorker(
	logger *slog.Logger,
	queue ports.EventQueue,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
) *RetryQueueWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &RetryQueueWorker{
		logger:      logger,
		queue:       queue,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Run executes the periodic drain loop until context cancellation.
func (w *RetryQueueWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "retry queue iteration failed",
				"module", "events.retry_worker",
				"layer", "adapter",
				"operation", "retry_process_once",
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

func (w *RetryQueueWorker) processOnce(ctx context.Context) error {
	published := 0
	requeued := 0
	dropped := 0

	for i := 0; i < w.batchSize; i++ {
		item, found, err := w.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if !found {
			break
		}

		var ev queuedEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			dropped++
			w.logger.WarnContext(ctx, "malformed queued event dropped",
				"module", "events.retry_worker",
				"layer", "adapter",
				"operation", "retry_publish",
				"outcome", "failure",
				"error", err,
			)
			continue
		}

		if err := w.publisher.Publish(ctx, ev.EventType, ev.PartitionKey, ev.Payload); err != nil {
			ev.Attempts++
			if ev.Attempts >= w.maxAttempts {
				dropped++
				w.logger.ErrorContext(ctx, "event dropped after retry budget",
					"module", "events.retry_worker",
					"layer", "adapter",
					"operation", "retry_publish",
					"outcome", "failure",
					"event_type", ev.EventType,
					"attempts", ev.Attempts,
					"first_failed_at", ev.FirstFailed,
					"error", err,
				)
				continue
			}

			item, mErr := json.Marshal(ev)
			if mErr != nil {
				dropped++
				continue
			}
			if qErr := w.queue.Enqueue(ctx, item); qErr != nil {
				dropped++
				w.logger.ErrorContext(ctx, "event lost: requeue failed",
					"module", "events.retry_worker",
					"layer", "adapter",
					"operation", "retry_publish",
					"outcome", "failure",
					"event_type", ev.EventType,
					"error", qErr,
				)
				continue
			}
			requeued++
			continue
		}
		published++
	}

	if published+requeued+dropped > 0 {
		w.logger.InfoContext(ctx, "retry queue batch processed",
			"module", "events.retry_worker",
			"layer", "adapter",
			"operation", "retry_process_once",
			"outcome", "success",
			"published_count", published,
			"requeued_count", requeued,
			"dropped_count", dropped,
		)
	}
	return nil
}
