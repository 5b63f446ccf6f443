package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// latencySampleSize bounds the response-time ring buffer.
const latencySampleSize = 1000

// Recorder is the process-wide metrics sink shared by every component of the
// client. Counters are atomics; one mutex guards the latency ring buffer and
// the per-command/per-error frequency tables. Mutations must never block the
// network path, so nothing here performs I/O.
type Recorder struct {
	requests          atomic.Int64
	hits              atomic.Int64
	misses            atomic.Int64
	errors            atomic.Int64
	slowOps           atomic.Int64
	notReadyRejects   atomic.Int64
	rateLimitAllowed  atomic.Int64
	rateLimitBlocked  atomic.Int64
	rateLimitFailOpen atomic.Int64

	compressionSaved    atomic.Int64
	compressionFailures atomic.Int64

	reconnectAttempts    atomic.Int64
	consecutiveReconnect atomic.Int64

	connections atomic.Int64
	memoryUsed  atomic.Int64
	memoryPeak  atomic.Int64
	memoryMax   atomic.Int64
	lastPingMs  atomic.Int64

	mu         sync.Mutex
	samples    [latencySampleSize]float64
	sampleIdx  int
	sampleSeen int
	perCommand map[string]int64
	perError   map[string]int64

	startedAt time.Time
	nowFn     func() time.Time
}

func NewRecorder() *Recorder {
	now := time.Now().UTC()
	return &Recorder{
		perCommand: make(map[string]int64),
		perError:   make(map[string]int64),
		startedAt:  now,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordCommand counts one completed store operation and its duration.
func (r *Recorder) RecordCommand(name string, elapsed time.Duration) {
	r.requests.Add(1)
	ms := float64(elapsed.Microseconds()) / 1000.0

	r.mu.Lock()
	r.samples[r.sampleIdx] = ms
	r.sampleIdx = (r.sampleIdx + 1) % latencySampleSize
	if r.sampleSeen < latencySampleSize {
		r.sampleSeen++
	}
	r.perCommand[name]++
	r.mu.Unlock()
}

func (r *Recorder) RecordHit()  { r.hits.Add(1) }
func (r *Recorder) RecordMiss() { r.misses.Add(1) }

// RecordError counts a classified command failure.
func (r *Recorder) RecordError(kind string) {
	r.errors.Add(1)
	r.mu.Lock()
	r.perError[kind]++
	r.mu.Unlock()
}

func (r *Recorder) RecordSlowOp() { r.slowOps.Add(1) }

// RecordNotReady counts a fast-fail rejection issued before any network call.
func (r *Recorder) RecordNotReady() {
	r.notReadyRejects.Add(1)
	r.mu.Lock()
	r.perError[errKindNotReady]++
	r.mu.Unlock()
}

func (r *Recorder) RecordRateLimit(allowed bool) {
	if allowed {
		r.rateLimitAllowed.Add(1)
		return
	}
	r.rateLimitBlocked.Add(1)
}

// RecordFailOpen counts a rate-limit decision that allowed traffic because the
// store was unavailable.
func (r *Recorder) RecordFailOpen() {
	r.rateLimitFailOpen.Add(1)
	r.rateLimitAllowed.Add(1)
}

func (r *Recorder) RecordCompressionSaved(bytes int64) {
	if bytes > 0 {
		r.compressionSaved.Add(bytes)
	}
}

func (r *Recorder) RecordCompressionFailure() { r.compressionFailures.Add(1) }

// RecordReconnectAttempt bumps both the lifetime total and the consecutive
// failure streak; ResetReconnectStreak clears the streak on success.
func (r *Recorder) RecordReconnectAttempt() {
	r.reconnectAttempts.Add(1)
	r.consecutiveReconnect.Add(1)
}

func (r *Recorder) ResetReconnectStreak() { r.consecutiveReconnect.Store(0) }

func (r *Recorder) ConsecutiveReconnects() int64 { return r.consecutiveReconnect.Load() }

func (r *Recorder) ReconnectAttempts() int64 { return r.reconnectAttempts.Load() }

func (r *Recorder) RecordConnection() { r.connections.Add(1) }

// SetMemory records server-reported memory usage and ratchets the peak.
func (r *Recorder) SetMemory(usedBytes, maxBytes int64) {
	r.memoryUsed.Store(usedBytes)
	if maxBytes > 0 {
		r.memoryMax.Store(maxBytes)
	}
	for {
		peak := r.memoryPeak.Load()
		if usedBytes <= peak || r.memoryPeak.CompareAndSwap(peak, usedBytes) {
			return
		}
	}
}

func (r *Recorder) SetLastPing(elapsed time.Duration) {
	r.lastPingMs.Store(elapsed.Milliseconds())
}

// HitRate returns hits/(hits+misses); zero reads yield 1.0 so an idle cache
// never looks unhealthy.
func (r *Recorder) HitRate() float64 {
	hits := r.hits.Load()
	total := hits + r.misses.Load()
	if total == 0 {
		return 1.0
	}
	return float64(hits) / float64(total)
}

// CacheReads returns the hit-rate sample size (hits + misses).
func (r *Recorder) CacheReads() int64 { return r.hits.Load() + r.misses.Load() }

// ErrorRate returns errors/requests over the life of the recorder.
func (r *Recorder) ErrorRate() float64 {
	reqs := r.requests.Load()
	if reqs == 0 {
		return 0
	}
	return float64(r.errors.Load()) / float64(reqs)
}

// AvgLatencyMs averages the retained response-time samples.
func (r *Recorder) AvgLatencyMs() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sampleSeen == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.sampleSeen; i++ {
		sum += r.samples[i]
	}
	return sum / float64(r.sampleSeen)
}

// Snapshot copies every counter and computes latency aggregates. State and
// uptime are stamped by the caller that owns the connection state.
func (r *Recorder) Snapshot() domain.MetricsSnapshot {
	snap := domain.MetricsSnapshot{
		Requests:          r.requests.Load(),
		Hits:              r.hits.Load(),
		Misses:            r.misses.Load(),
		Errors:            r.errors.Load(),
		SlowOps:           r.slowOps.Load(),
		NotReadyRejects:   r.notReadyRejects.Load(),
		RateLimitAllowed:  r.rateLimitAllowed.Load(),
		RateLimitBlocked:  r.rateLimitBlocked.Load(),
		RateLimitFailOpen: r.rateLimitFailOpen.Load(),

		CompressionSavedBytes: r.compressionSaved.Load(),
		CompressionFailures:   r.compressionFailures.Load(),

		ReconnectAttempts:    r.reconnectAttempts.Load(),
		ConsecutiveReconnect: r.consecutiveReconnect.Load(),

		Connections:     r.connections.Load(),
		MemoryUsedBytes: r.memoryUsed.Load(),
		MemoryPeakBytes: r.memoryPeak.Load(),
		MemoryMaxBytes:  r.memoryMax.Load(),

		LastPingLatencyMs: r.lastPingMs.Load(),
		HitRate:           r.HitRate(),
		ErrorRate:         r.ErrorRate(),
		TakenAt:           r.nowFn(),
		UptimeSeconds:     int64(r.nowFn().Sub(r.startedAt).Seconds()),
	}

	r.mu.Lock()
	snap.PerCommand = make(map[string]int64, len(r.perCommand))
	for k, v := range r.perCommand {
		snap.PerCommand[k] = v
	}
	snap.PerError = make(map[string]int64, len(r.perError))
	for k, v := range r.perError {
		snap.PerError[k] = v
	}
	observed := make([]float64, r.sampleSeen)
	copy(observed, r.samples[:r.sampleSeen])
	r.mu.Unlock()

	snap.Latency = summarize(observed)
	return snap
}

// Reset zeroes counters, samples and frequency tables. Connection count and
// peak memory survive: they describe the process lifetime, not a window.
func (r *Recorder) Reset() {
	r.requests.Store(0)
	r.hits.Store(0)
	r.misses.Store(0)
	r.errors.Store(0)
	r.slowOps.Store(0)
	r.notReadyRejects.Store(0)
	r.rateLimitAllowed.Store(0)
	r.rateLimitBlocked.Store(0)
	r.rateLimitFailOpen.Store(0)
	r.compressionSaved.Store(0)
	r.compressionFailures.Store(0)
	r.reconnectAttempts.Store(0)
	r.consecutiveReconnect.Store(0)
	r.memoryUsed.Store(0)
	r.memoryMax.Store(0)
	r.lastPingMs.Store(0)

	r.mu.Lock()
	r.sampleIdx = 0
	r.sampleSeen = 0
	r.perCommand = make(map[string]int64)
	r.perError = make(map[string]int64)
	r.mu.Unlock()
}

func summarize(observed []float64) domain.LatencySummary {
	if len(observed) == 0 {
		return domain.LatencySummary{}
	}
	sort.Float64s(observed)

	var sum float64
	for _, v := range observed {
		sum += v
	}
	return domain.LatencySummary{
		Min:     observed[0],
		Max:     observed[len(observed)-1],
		Avg:     sum / float64(len(observed)),
		P50:     percentile(observed, 0.50),
		P95:     percentile(observed, 0.95),
		P99:     percentile(observed, 0.99),
		Samples: len(observed),
	}
}

// percentile expects sorted input.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}
