package cache

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// HealthConfig sizes the periodic monitor and its alert thresholds.
type HealthConfig struct {
	Enabled     bool
	Interval    time.Duration
	PingTimeout time.Duration

	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	ReconnectMaxAttempts int

	MemoryAlertPercent float64
	LatencyAlertMs     int64
	ConnectionAlert    int64
}

func (h HealthConfig) withDefaults() HealthConfig {
	if h.Interval <= 0 {
		h.Interval = 30 * time.Second
	}
	if h.PingTimeout <= 0 {
		h.PingTimeout = 2 * time.Second
	}
	if h.ReconnectBase <= 0 {
		h.ReconnectBase = 500 * time.Millisecond
	}
	if h.ReconnectMax <= 0 {
		h.ReconnectMax = 30 * time.Second
	}
	if h.MemoryAlertPercent <= 0 {
		h.MemoryAlertPercent = 90
	}
	return h
}

// HealthMonitor drives the periodic tick: reconnect when the client is not
// ready, otherwise ping the store and sample server memory. All store
// failures inside a tick are deliberately swallowed and logged so monitoring
// can never crash the process it watches.
type HealthMonitor struct {
	client   *CacheClient
	cfg      HealthConfig
	policy   ReconnectPolicy
	onChange func(domain.HealthStatus)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Touched only from the monitor goroutine.
	lastStatus  domain.HealthStatus
	lastAttempt time.Time
	exhausted   bool

	nowFn func() time.Time
}

func newHealthMonitor(client *CacheClient, cfg HealthConfig) *HealthMonitor {
	cfg = cfg.withDefaults()
	return &HealthMonitor{
		client:     client,
		cfg:        cfg,
		policy:     ExponentialReconnect(cfg.ReconnectBase, cfg.ReconnectMax, cfg.ReconnectMaxAttempts),
		lastStatus: domain.HealthHealthy,
		nowFn:      client.nowFn,
	}
}

// Start launches the tick loop; it is a no-op when monitoring is disabled or
// already running.
func (m *HealthMonitor) Start() {
	if !m.cfg.Enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop(m.stopCh, m.doneCh)
	m.client.logger.Info("health monitor started",
		"operation", "health_monitor",
		"interval", m.cfg.Interval.String(),
	)
}

// Stop halts the loop and waits for the in-flight tick to finish. Safe to
// call twice and before Start.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
	m.client.logger.Info("health monitor stopped", "operation", "health_monitor")
}

func (m *HealthMonitor) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick(context.Background())
		}
	}
}

// tick performs one monitoring pass. At most one reconnect attempt happens
// per tick, and only once the policy's delay for the current attempt number
// has elapsed.
func (m *HealthMonitor) tick(ctx context.Context) {
	if m.client.State() == StateClosed {
		return
	}
	if m.client.IsReady() {
		m.exhausted = false
		m.lastAttempt = time.Time{}
		m.probe(ctx)
	} else {
		m.maybeReconnect(ctx)
	}
	m.publishStatus()
}

func (m *HealthMonitor) maybeReconnect(ctx context.Context) {
	attempt := int(m.client.metrics.ConsecutiveReconnects()) + 1
	delay, ok := m.policy(attempt)
	if !ok {
		if !m.exhausted {
			m.exhausted = true
			m.client.logger.Error("reconnect attempts exhausted",
				"operation", "reconnect",
				"outcome", "exhausted",
				"attempts", attempt-1,
			)
		}
		return
	}
	if !m.lastAttempt.IsZero() && m.nowFn().Sub(m.lastAttempt) < delay {
		return
	}
	m.lastAttempt = m.nowFn()
	m.client.metrics.RecordReconnectAttempt()
	m.client.transition(StateReconnecting)

	attemptCtx, cancel := context.WithTimeout(ctx, m.client.cfg.ReadyTimeout+2*m.client.cfg.ConnectTimeout)
	defer cancel()
	if err := m.client.Connect(attemptCtx); err != nil {
		// Deliberate swallow: the monitor logs and waits for a later tick.
		m.client.logger.Warn("reconnect attempt failed",
			"operation", "reconnect",
			"outcome", "failure",
			"attempt", attempt,
			"next_delay", delay.String(),
			"error", err,
		)
	}
}

// probe pings the store and samples server memory while the client is READY.
// A failed ping degrades the connection; the next tick rebuilds it through
// the reconnect path.
func (m *HealthMonitor) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
	start := time.Now()
	err := m.client.execute(pingCtx, "ping", func(ctx context.Context, s Store) error {
		return s.Ping(ctx)
	})
	elapsed := time.Since(start)
	cancel()
	if err != nil {
		// Deliberate swallow: the ping failure marks the client DEGRADED
		// instead of surfacing anywhere.
		m.client.transition(StateDegraded)
		m.client.logger.Warn("health ping failed",
			"operation", "health_ping",
			"outcome", "failure",
			"error", err,
		)
		return
	}
	m.client.metrics.SetLastPing(elapsed)

	m.sampleMemory(ctx)
	m.checkAlerts()
}

func (m *HealthMonitor) sampleMemory(ctx context.Context) {
	infoCtx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
	defer cancel()
	var info string
	err := m.client.execute(infoCtx, "info", func(ctx context.Context, s Store) error {
		var err error
		info, err = s.Info(ctx, "memory")
		return err
	})
	if err != nil {
		// Memory stats are advisory; a failed INFO never degrades the client.
		m.client.logger.Debug("memory sample failed",
			"operation", "health_info",
			"outcome", "ignored",
			"error", err,
		)
		return
	}
	used, max := parseMemoryInfo(info)
	if used > 0 {
		m.client.metrics.SetMemory(used, max)
	}
	if max > 0 && m.cfg.MemoryAlertPercent > 0 {
		pct := float64(used) / float64(max) * 100
		if pct > m.cfg.MemoryAlertPercent {
			m.client.logger.Warn("store memory above alert threshold",
				"operation", "health_info",
				"outcome", "alert",
				"used_bytes", used,
				"max_bytes", max,
				"used_percent", fmt.Sprintf("%.1f", pct),
			)
		}
	}
}

func (m *HealthMonitor) checkAlerts() {
	if m.cfg.LatencyAlertMs > 0 {
		if avg := m.client.metrics.AvgLatencyMs(); avg > float64(m.cfg.LatencyAlertMs) {
			m.client.logger.Warn("average command latency above alert threshold",
				"operation", "health_monitor",
				"outcome", "alert",
				"avg_latency_ms", fmt.Sprintf("%.1f", avg),
				"threshold_ms", m.cfg.LatencyAlertMs,
			)
		}
	}
	if m.cfg.ConnectionAlert > 0 {
		if conns := m.client.metrics.Snapshot().Connections; conns > m.cfg.ConnectionAlert {
			m.client.logger.Warn("connection count above alert threshold",
				"operation", "health_monitor",
				"outcome", "alert",
				"connections", conns,
				"threshold", m.cfg.ConnectionAlert,
			)
		}
	}
}

func (m *HealthMonitor) publishStatus() {
	status := m.client.HealthStatus()
	if status == m.lastStatus {
		return
	}
	prev := m.lastStatus
	m.lastStatus = status
	m.client.logger.Warn("health status changed",
		"operation", "health_monitor",
		"outcome", "transition",
		"from", string(prev),
		"to", string(status),
	)
	if m.onChange != nil {
		m.onChange(status)
	}
}

// ClassifyHealth derives service health from a metrics snapshot and the
// readiness flag. It is a pure function so the thresholds stay testable
// without a live client.
func ClassifyHealth(snap domain.MetricsSnapshot, ready bool) domain.HealthStatus {
	switch {
	case !ready,
		snap.ErrorRate > 0.10,
		snap.Latency.Avg > 5000,
		snap.ConsecutiveReconnect > 3:
		return domain.HealthCritical
	}
	reads := snap.Hits + snap.Misses
	switch {
	case snap.ErrorRate > 0.05,
		snap.Latency.Avg > 2000,
		snap.ReconnectAttempts > 0,
		reads > 100 && snap.HitRate < 0.50:
		return domain.HealthWarning
	}
	return domain.HealthHealthy
}

// HealthStatus classifies the client's current condition on demand.
func (c *CacheClient) HealthStatus() domain.HealthStatus {
	return ClassifyHealth(c.Snapshot(), c.IsReady())
}

// HealthReport assembles the detailed health payload served by the
// management surface.
func (c *CacheClient) HealthReport() domain.HealthReport {
	snap := c.Snapshot()
	ready := c.IsReady()
	now := c.nowFn()

	connStatus := domain.HealthHealthy
	if !ready {
		connStatus = domain.HealthCritical
	}
	pingStatus := domain.HealthHealthy
	switch {
	case snap.LastPingLatencyMs > 5000:
		pingStatus = domain.HealthCritical
	case snap.LastPingLatencyMs > 2000:
		pingStatus = domain.HealthWarning
	}
	errStatus := domain.HealthHealthy
	switch {
	case snap.ErrorRate > 0.10:
		errStatus = domain.HealthCritical
	case snap.ErrorRate > 0.05:
		errStatus = domain.HealthWarning
	}

	checks := map[string]domain.ComponentCheck{
		"connection": {
			Name:        "connection",
			Status:      connStatus,
			Detail:      snap.State,
			LastChecked: now,
		},
		"store_ping": {
			Name:        "store_ping",
			Status:      pingStatus,
			LatencyMS:   snap.LastPingLatencyMs,
			LastChecked: now,
		},
		"error_rate": {
			Name:        "error_rate",
			Status:      errStatus,
			Detail:      fmt.Sprintf("%.2f%% of %d requests", snap.ErrorRate*100, snap.Requests),
			LastChecked: now,
		},
	}
	if snap.MemoryMaxBytes > 0 {
		memStatus := domain.HealthHealthy
		pct := float64(snap.MemoryUsedBytes) / float64(snap.MemoryMaxBytes) * 100
		if pct > c.cfg.Health.MemoryAlertPercent {
			memStatus = domain.HealthWarning
		}
		checks["memory"] = domain.ComponentCheck{
			Name:        "memory",
			Status:      memStatus,
			Detail:      fmt.Sprintf("%d of %d bytes (%.1f%%)", snap.MemoryUsedBytes, snap.MemoryMaxBytes, pct),
			LastChecked: now,
		}
	}

	return domain.HealthReport{
		Status:        ClassifyHealth(snap, ready),
		Timestamp:     now,
		UptimeSeconds: snap.UptimeSeconds,
		Checks:        checks,
	}
}

// parseMemoryInfo extracts used_memory and maxmemory from an INFO memory
// section. Unknown or malformed lines are skipped.
func parseMemoryInfo(info string) (used, max int64) {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				used = n
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "maxmemory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				max = n
			}
		}
	}
	return used, max
}
