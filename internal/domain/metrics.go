package domain

import "time"

// LatencySummary aggregates the most recent response-time samples.
// Values are milliseconds; Samples reports how many observations back them.
type LatencySummary struct {
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Avg     float64 `json:"avg_ms"`
	P50     float64 `json:"p50_ms"`
	P95     float64 `json:"p95_ms"`
	P99     float64 `json:"p99_ms"`
	Samples int     `json:"samples"`
}

// MetricsSnapshot is a point-in-time copy of the in-process cache metrics.
// It is derived, never persisted; every field is safe to hand to callers.
type MetricsSnapshot struct {
	State         string `json:"connection_state"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Requests          int64 `json:"requests"`
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Errors            int64 `json:"errors"`
	SlowOps           int64 `json:"slow_operations"`
	NotReadyRejects   int64 `json:"not_ready_rejections"`
	RateLimitAllowed  int64 `json:"rate_limit_allowed"`
	RateLimitBlocked  int64 `json:"rate_limit_blocked"`
	RateLimitFailOpen int64 `json:"rate_limit_fail_open"`

	HitRate   float64 `json:"hit_rate"`
	ErrorRate float64 `json:"error_rate"`

	Latency LatencySummary `json:"latency"`

	PerCommand map[string]int64 `json:"per_command"`
	PerError   map[string]int64 `json:"per_error"`

	CompressionSavedBytes int64 `json:"compression_saved_bytes"`
	CompressionFailures   int64 `json:"compression_failures"`

	ReconnectAttempts    int64 `json:"reconnect_attempts"`
	ConsecutiveReconnect int64 `json:"consecutive_reconnect_failures"`

	Connections     int64 `json:"connections"`
	MemoryUsedBytes int64 `json:"memory_used_bytes"`
	MemoryPeakBytes int64 `json:"memory_peak_bytes"`
	MemoryMaxBytes  int64 `json:"memory_max_bytes"`

	LastPingLatencyMs int64     `json:"last_ping_latency_ms"`
	TakenAt           time.Time `json:"taken_at"`
}
