package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

func TestClassifyHealthThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		snap  domain.MetricsSnapshot
		ready bool
		want  domain.HealthStatus
	}{
		{
			name:  "clean and ready",
			snap:  domain.MetricsSnapshot{HitRate: 1.0},
			ready: true,
			want:  domain.HealthHealthy,
		},
		{
			name:  "not ready is critical",
			snap:  domain.MetricsSnapshot{HitRate: 1.0},
			ready: false,
			want:  domain.HealthCritical,
		},
		{
			name:  "error rate above ten percent is critical",
			snap:  domain.MetricsSnapshot{ErrorRate: 0.11, HitRate: 1.0},
			ready: true,
			want:  domain.HealthCritical,
		},
		{
			name:  "error rate at exactly ten percent is only a warning",
			snap:  domain.MetricsSnapshot{ErrorRate: 0.10, HitRate: 1.0},
			ready: true,
			want:  domain.HealthWarning,
		},
		{
			name:  "average latency above five seconds is critical",
			snap:  domain.MetricsSnapshot{Latency: domain.LatencySummary{Avg: 5001}, HitRate: 1.0},
			ready: true,
			want:  domain.HealthCritical,
		},
		{
			name:  "average latency above two seconds is a warning",
			snap:  domain.MetricsSnapshot{Latency: domain.LatencySummary{Avg: 2001}, HitRate: 1.0},
			ready: true,
			want:  domain.HealthWarning,
		},
		{
			name:  "average latency at two seconds is healthy",
			snap:  domain.MetricsSnapshot{Latency: domain.LatencySummary{Avg: 2000}, HitRate: 1.0},
			ready: true,
			want:  domain.HealthHealthy,
		},
		{
			name: "four consecutive reconnect failures are critical",
			snap: domain.MetricsSnapshot{
				ReconnectAttempts:    4,
				ConsecutiveReconnect: 4,
				HitRate:              1.0,
			},
			ready: true,
			want:  domain.HealthCritical,
		},
		{
			name: "three consecutive reconnect failures stay a warning",
			snap: domain.MetricsSnapshot{
				ReconnectAttempts:    3,
				ConsecutiveReconnect: 3,
				HitRate:              1.0,
			},
			ready: true,
			want:  domain.HealthWarning,
		},
		{
			name:  "error rate above five percent is a warning",
			snap:  domain.MetricsSnapshot{ErrorRate: 0.06, HitRate: 1.0},
			ready: true,
			want:  domain.HealthWarning,
		},
		{
			name:  "error rate at five percent is healthy",
			snap:  domain.MetricsSnapshot{ErrorRate: 0.05, HitRate: 1.0},
			ready: true,
			want:  domain.HealthHealthy,
		},
		{
			name:  "any lifetime reconnect is a warning",
			snap:  domain.MetricsSnapshot{ReconnectAttempts: 1, HitRate: 1.0},
			ready: true,
			want:  domain.HealthWarning,
		},
		{
			name:  "poor hit rate with enough reads is a warning",
			snap:  domain.MetricsSnapshot{Hits: 40, Misses: 61, HitRate: 0.396},
			ready: true,
			want:  domain.HealthWarning,
		},
		{
			name:  "poor hit rate with too few reads is ignored",
			snap:  domain.MetricsSnapshot{Hits: 40, Misses: 60, HitRate: 0.40},
			ready: true,
			want:  domain.HealthHealthy,
		},
		{
			name:  "fifty percent hit rate is not poor",
			snap:  domain.MetricsSnapshot{Hits: 101, Misses: 101, HitRate: 0.50},
			ready: true,
			want:  domain.HealthHealthy,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyHealth(tc.snap, tc.ready); got != tc.want {
				t.Fatalf("ClassifyHealth(%+v, ready=%v) = %s, want %s", tc.snap, tc.ready, got, tc.want)
			}
		})
	}
}

func TestParseMemoryInfo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		payload  string
		wantUsed int64
		wantMax  int64
	}{
		{
			name: "full section",
			payload: "# Memory\r\nused_memory:2097152\r\nused_memory_human:2.00M\r\n" +
				"maxmemory:4194304\r\nmaxmemory_policy:allkeys-lru\r\n",
			wantUsed: 2097152,
			wantMax:  4194304,
		},
		{
			name:     "malformed number skipped",
			payload:  "used_memory:abc\r\nmaxmemory:100\r\n",
			wantUsed: 0,
			wantMax:  100,
		},
		{
			name:     "values padded with spaces",
			payload:  "used_memory: 512 \nmaxmemory: 1024\n",
			wantUsed: 512,
			wantMax:  1024,
		},
		{
			name:     "empty payload",
			payload:  "",
			wantUsed: 0,
			wantMax:  0,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			used, max := parseMemoryInfo(tc.payload)
			if used != tc.wantUsed || max != tc.wantMax {
				t.Fatalf("parseMemoryInfo = (%d, %d), want (%d, %d)", used, max, tc.wantUsed, tc.wantMax)
			}
		})
	}
}

func TestHealthReportChecks(t *testing.T) {
	t.Parallel()

	client, _, clock := newReadyClient(t, testClientConfig())

	report := client.HealthReport()
	if report.Status != domain.HealthHealthy {
		t.Fatalf("status = %s, want healthy", report.Status)
	}
	if !report.Timestamp.Equal(clock.Now()) {
		t.Fatalf("timestamp = %v, want the injected clock's %v", report.Timestamp, clock.Now())
	}

	conn, ok := report.Checks["connection"]
	if !ok {
		t.Fatalf("report missing the connection check")
	}
	if conn.Status != domain.HealthHealthy || conn.Detail != "READY" {
		t.Fatalf("connection check = %+v, want healthy READY", conn)
	}
	if _, ok := report.Checks["store_ping"]; !ok {
		t.Fatalf("report missing the store_ping check")
	}
	if _, ok := report.Checks["error_rate"]; !ok {
		t.Fatalf("report missing the error_rate check")
	}
	if _, ok := report.Checks["memory"]; ok {
		t.Fatalf("memory check present without a reported maxmemory")
	}

	// Once the server reports a bound, memory joins the checks and trips
	// the alert threshold when usage crosses it.
	client.metrics.SetMemory(95, 100)
	report = client.HealthReport()
	mem, ok := report.Checks["memory"]
	if !ok {
		t.Fatalf("memory check missing after a bounded sample")
	}
	if mem.Status != domain.HealthWarning {
		t.Fatalf("memory check at 95%% = %s, want warning", mem.Status)
	}
}

func TestHealthReportWhenDisconnected(t *testing.T) {
	t.Parallel()

	client, _, _ := newFakeClient(t, testClientConfig())

	report := client.HealthReport()
	if report.Status != domain.HealthCritical {
		t.Fatalf("status = %s, want critical while disconnected", report.Status)
	}
	conn := report.Checks["connection"]
	if conn.Status != domain.HealthCritical || conn.Detail != "DISCONNECTED" {
		t.Fatalf("connection check = %+v, want critical DISCONNECTED", conn)
	}
}

func TestMonitorReconnectsWhenDown(t *testing.T) {
	t.Parallel()

	client, store, clock := newFakeClient(t, testClientConfig())
	store.dialErr = errors.New("connection refused")
	ctx := context.Background()

	// First tick attempts a reconnect immediately.
	client.health.tick(ctx)
	snap := client.Snapshot()
	if snap.ReconnectAttempts != 1 || snap.ConsecutiveReconnect != 1 {
		t.Fatalf("after first tick: attempts=%d streak=%d, want 1/1",
			snap.ReconnectAttempts, snap.ConsecutiveReconnect)
	}
	if got := client.State(); got != StateDisconnected {
		t.Fatalf("state after failed reconnect = %s, want DISCONNECTED", got)
	}

	// A tick inside the backoff delay for attempt two does nothing.
	client.health.tick(ctx)
	if snap := client.Snapshot(); snap.ReconnectAttempts != 1 {
		t.Fatalf("tick within backoff made %d attempts, want 1", snap.ReconnectAttempts)
	}

	// Once the delay elapses the next tick tries again.
	clock.Advance(time.Second)
	client.health.tick(ctx)
	if snap := client.Snapshot(); snap.ReconnectAttempts != 2 {
		t.Fatalf("tick after backoff made %d attempts, want 2", snap.ReconnectAttempts)
	}
}

func TestMonitorRecoversAndResetsStreak(t *testing.T) {
	t.Parallel()

	client, store, clock := newFakeClient(t, testClientConfig())
	store.dialErr = errors.New("connection refused")
	ctx := context.Background()

	client.health.tick(ctx)
	if client.IsReady() {
		t.Fatalf("client ready while the store is down")
	}

	// Store comes back: the next eligible tick reconnects and the streak
	// resets while the lifetime counter keeps the history.
	store.dialErr = nil
	clock.Advance(2 * time.Second)
	client.health.tick(ctx)

	if !client.IsReady() {
		t.Fatalf("client not ready after the store recovered, state %s", client.State())
	}
	snap := client.Snapshot()
	if snap.ConsecutiveReconnect != 0 {
		t.Fatalf("streak = %d after recovery, want 0", snap.ConsecutiveReconnect)
	}
	if snap.ReconnectAttempts != 2 {
		t.Fatalf("lifetime attempts = %d, want 2", snap.ReconnectAttempts)
	}

	// Ready ticks probe the store instead of reconnecting.
	before := store.callCount("ping")
	client.health.tick(ctx)
	if got := store.callCount("ping"); got != before+1 {
		t.Fatalf("ready tick pinged %d times, want once", got-before)
	}
}

func TestMonitorStopsAfterPolicyExhausted(t *testing.T) {
	t.Parallel()

	cfg := testClientConfig()
	cfg.Health.ReconnectMaxAttempts = 2
	client, store, clock := newFakeClient(t, cfg)
	store.dialErr = errors.New("connection refused")
	ctx := context.Background()

	client.health.tick(ctx) // attempt 1
	clock.Advance(time.Second)
	client.health.tick(ctx) // attempt 2
	clock.Advance(time.Minute)
	client.health.tick(ctx) // policy exhausted, no attempt
	client.health.tick(ctx)

	if snap := client.Snapshot(); snap.ReconnectAttempts != 2 {
		t.Fatalf("attempts after exhaustion = %d, want 2", snap.ReconnectAttempts)
	}
	if !client.health.exhausted {
		t.Fatalf("monitor does not mark the policy exhausted")
	}
}

func TestMonitorDegradesOnPingFailure(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	store.fail("ping", errors.New("broken pipe"))

	client.health.tick(context.Background())

	if got := client.State(); got != StateDegraded {
		t.Fatalf("state after failed health ping = %s, want DEGRADED", got)
	}
	if client.IsReady() {
		t.Fatalf("degraded client still reports ready")
	}
	if _, _, err := client.Get(context.Background(), "any"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("command on degraded client = %v, want ErrNotReady", err)
	}
}

func TestMonitorPublishesTransitionsOnce(t *testing.T) {
	t.Parallel()

	client, store, clock := newReadyClient(t, testClientConfig())
	var events []domain.HealthStatus
	client.OnHealthChange(func(s domain.HealthStatus) { events = append(events, s) })
	ctx := context.Background()

	// Healthy tick: no transition, no event.
	client.health.tick(ctx)
	if len(events) != 0 {
		t.Fatalf("healthy tick published %d events, want 0", len(events))
	}

	// Ping failure degrades the client: one critical event.
	store.fail("ping", errors.New("broken pipe"))
	client.health.tick(ctx)
	if len(events) != 1 || events[0] != domain.HealthCritical {
		t.Fatalf("events after degrade = %v, want [critical]", events)
	}

	// Still down on the next tick: the status did not change, so no
	// repeat event even though a reconnect was attempted.
	client.health.tick(ctx)
	if len(events) != 1 {
		t.Fatalf("events while still down = %v, want no repeats", events)
	}

	// Clear the error-rate residue from the failed pings so the recovery
	// status is driven by the reconnect history alone.
	client.ResetMetrics()
	store.fail("ping", nil)
	clock.Advance(time.Minute)
	client.health.tick(ctx)
	if len(events) != 2 || events[1] != domain.HealthWarning {
		t.Fatalf("events after recovery = %v, want [critical warning]", events)
	}
}

func TestMonitorSamplesMemory(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	store.setInfo("# Memory\r\nused_memory:2097152\r\nmaxmemory:4194304\r\n")

	client.health.tick(context.Background())

	snap := client.Snapshot()
	if snap.MemoryUsedBytes != 2097152 || snap.MemoryMaxBytes != 4194304 {
		t.Fatalf("memory sample = (%d, %d), want (2097152, 4194304)",
			snap.MemoryUsedBytes, snap.MemoryMaxBytes)
	}
}

func TestMonitorIgnoresInfoFailure(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	store.fail("info", errors.New("LOADING Redis is loading the dataset in memory"))

	client.health.tick(context.Background())

	// Memory stats are advisory: a failed INFO never degrades the client.
	if got := client.State(); got != StateReady {
		t.Fatalf("state after failed INFO = %s, want READY", got)
	}
}

func TestMonitorSkipsClosedClient(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	if err := client.Quit(context.Background()); err != nil {
		t.Fatalf("quit: %v", err)
	}

	before := store.callCount("ping")
	client.health.tick(context.Background())
	if got := store.callCount("ping"); got != before {
		t.Fatalf("tick on a closed client reached the store")
	}
	if snap := client.Snapshot(); snap.ReconnectAttempts != 0 {
		t.Fatalf("tick on a closed client attempted a reconnect")
	}
}

func TestMonitorStartStopLifecycle(t *testing.T) {
	t.Parallel()

	cfg := testClientConfig()
	cfg.Health.Enabled = true
	cfg.Health.Interval = time.Hour
	client, _, _ := newReadyClient(t, cfg)

	m := client.health
	m.Stop() // before Start: no-op
	m.Start()
	m.Start() // already running: no-op
	m.Stop()
	m.Stop() // already stopped: no-op
}
