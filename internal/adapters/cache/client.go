package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// readyPollInterval paces the readiness poll between dial and self-test.
const readyPollInterval = 100 * time.Millisecond

// probeTTL bounds the lifetime of the self-test key so aborted probes never
// linger in the store.
const probeTTL = 10 * time.Second

// ClientConfig is the resolved cache client configuration. Bootstrap fills it
// from the service config; NewCacheClient applies defaults for zero values.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ReadyTimeout   time.Duration
	MaxRetries     int

	TLSEnabled            bool
	TLSInsecureSkipVerify bool

	ClusterEnabled bool
	ClusterNodes   []string

	KeyPrefix        string
	SlowOpThreshold  time.Duration
	TTLDefaults      map[string]time.Duration
	RefreshTTLOnRead bool

	Serializer SerializerConfig
	Health     HealthConfig
}

func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ReconnectPolicy maps a 1-based attempt number to the delay to wait before
// that attempt, or ok=false to give up. Policies are pure functions so retry
// behavior stays testable and free of captured state.
type ReconnectPolicy func(attempt int) (time.Duration, bool)

// ExponentialReconnect doubles the delay per attempt from base up to max.
// maxAttempts <= 0 retries forever.
func ExponentialReconnect(base, max time.Duration, maxAttempts int) ReconnectPolicy {
	return func(attempt int) (time.Duration, bool) {
		if attempt < 1 {
			attempt = 1
		}
		if maxAttempts > 0 && attempt > maxAttempts {
			return 0, false
		}
		delay := base << uint(attempt-1)
		if delay <= 0 || delay > max {
			delay = max
		}
		return delay, true
	}
}

// CacheClient owns the single connection to the backing store, the metrics
// recorder, the serializer and the health monitor. It is constructed once in
// bootstrap and injected into every consumer; there is no ambient global.
type CacheClient struct {
	cfg        ClientConfig
	logger     *slog.Logger
	metrics    *Recorder
	serializer *Serializer
	health     *HealthMonitor

	mu     sync.Mutex
	state  atomic.Int32
	store  Store
	flight singleflight.Group

	// openFn is the dial seam; tests swap in a fake store factory.
	openFn    func(ClientConfig, *Recorder) (Store, error)
	nowFn     func() time.Time
	startedAt time.Time
}

// NewCacheClient validates config, applies defaults and builds the client in
// DISCONNECTED state. No I/O happens until Connect.
func NewCacheClient(cfg ClientConfig, logger *slog.Logger) (*CacheClient, error) {
	if cfg.Host == "" && !cfg.ClusterEnabled {
		return nil, fmt.Errorf("cache client: host is required")
	}
	if cfg.ClusterEnabled && len(cfg.ClusterNodes) == 0 {
		return nil, fmt.Errorf("cache client: cluster enabled but no nodes configured")
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.SlowOpThreshold <= 0 {
		cfg.SlowOpThreshold = 100 * time.Millisecond
	}
	if cfg.KeyPrefix != "" && !strings.HasSuffix(cfg.KeyPrefix, ":") {
		cfg.KeyPrefix += ":"
	}
	cfg.Health = cfg.Health.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewRecorder()
	serializer, err := NewSerializer(cfg.Serializer, metrics)
	if err != nil {
		return nil, fmt.Errorf("cache client: %w", err)
	}

	c := &CacheClient{
		cfg:        cfg,
		logger:     logger.With("module", "cache", "layer", "adapter"),
		metrics:    metrics,
		serializer: serializer,
		openFn:     openStore,
		nowFn:      func() time.Time { return time.Now().UTC() },
		startedAt:  time.Now().UTC(),
	}
	c.state.Store(int32(StateDisconnected))
	c.health = newHealthMonitor(c, cfg.Health)
	return c, nil
}

// State returns the current connection state.
func (c *CacheClient) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsReady is the cheap, non-blocking readiness predicate every component
// consults before issuing work.
func (c *CacheClient) IsReady() bool {
	return c.State() == StateReady
}

// Metrics exposes the shared recorder.
func (c *CacheClient) Metrics() *Recorder { return c.metrics }

// Serializer exposes the envelope codec for callers that stage payloads
// outside the facade.
func (c *CacheClient) Serializer() *Serializer { return c.serializer }

// Snapshot stamps the connection state onto the recorder snapshot.
func (c *CacheClient) Snapshot() domain.MetricsSnapshot {
	snap := c.metrics.Snapshot()
	snap.State = c.State().String()
	return snap
}

// ResetMetrics zeroes the recorder's counters and tables while preserving
// the connection count and the peak memory watermark.
func (c *CacheClient) ResetMetrics() { c.metrics.Reset() }

// Connect is idempotent: concurrent callers before the first success all
// await the same in-flight attempt, and the flight slot clears when the
// attempt finishes so a later caller can retry after a failure.
func (c *CacheClient) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	if c.IsReady() {
		return nil
	}
	_, err, _ := c.flight.Do("connect", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

func (c *CacheClient) connect(ctx context.Context) error {
	if c.IsReady() {
		return nil
	}
	if !c.transition(StateConnecting) {
		return ErrClosed
	}

	store, err := c.openFn(c.cfg, c.metrics)
	if err != nil {
		return c.failConnect(store, "open", err)
	}
	if err := c.awaitReady(ctx, store); err != nil {
		return c.failConnect(store, "await ready", err)
	}
	if !c.transition(StateConnected) {
		_ = store.Close()
		return ErrClosed
	}
	if err := c.selfTest(ctx, store); err != nil {
		return c.failConnect(store, "self test", err)
	}

	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
	if !c.transition(StateReady) {
		c.mu.Lock()
		c.store = nil
		c.mu.Unlock()
		_ = store.Close()
		return ErrClosed
	}

	c.metrics.ResetReconnectStreak()
	c.logger.InfoContext(ctx, "cache store connected",
		"operation", "connect",
		"outcome", "success",
		"addr", c.cfg.Addr(),
		"cluster", c.cfg.ClusterEnabled,
	)
	return nil
}

func (c *CacheClient) failConnect(store Store, step string, err error) error {
	if store != nil {
		_ = store.Close()
	}
	c.metrics.RecordError(classifyError(err))
	c.transition(StateDisconnected)
	c.logger.Error("cache store connect failed",
		"operation", "connect",
		"outcome", "failure",
		"step", step,
		"error", err,
	)
	return fmt.Errorf("cache connect (%s): %w", step, err)
}

// awaitReady polls the store with short pings until it answers or the ready
// timeout lapses. The driver dials lazily, so the first ping is the dial.
func (c *CacheClient) awaitReady(ctx context.Context, store Store) error {
	deadline := time.Now().Add(c.cfg.ReadyTimeout)
	var lastErr error
	for {
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		lastErr = store.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

// selfTest proves the store actually serves traffic before READY is declared:
// ping, then set/get/delete a namespaced probe key and compare the value.
func (c *CacheClient) selfTest(ctx context.Context, store Store) error {
	testCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := store.Ping(testCtx); err != nil {
		return fmt.Errorf("probe ping: %w", err)
	}

	probeKey := c.key("probe:" + uuid.NewString())
	probeVal := strconv.FormatInt(c.nowFn().UnixNano(), 10)
	if err := store.Set(testCtx, probeKey, probeVal, probeTTL); err != nil {
		return fmt.Errorf("probe set: %w", err)
	}
	got, found, err := store.Get(testCtx, probeKey)
	if err != nil {
		return fmt.Errorf("probe get: %w", err)
	}
	if !found || got != probeVal {
		return fmt.Errorf("probe mismatch: wrote %q read %q (found=%v)", probeVal, got, found)
	}
	if _, err := store.Del(testCtx, probeKey); err != nil {
		return fmt.Errorf("probe delete: %w", err)
	}
	return nil
}

// Quit stops health monitoring first, then closes the connection. A failed
// graceful close is logged and treated as a forced disconnect; the client
// ends CLOSED either way. Safe to call when never connected, and twice.
func (c *CacheClient) Quit(ctx context.Context) error {
	c.mu.Lock()
	if ConnectionState(c.state.Load()) == StateClosed {
		c.mu.Unlock()
		return nil
	}
	health := c.health
	c.mu.Unlock()

	if health != nil {
		health.Stop()
	}

	c.mu.Lock()
	store := c.store
	c.store = nil
	prev := ConnectionState(c.state.Swap(int32(StateClosed)))
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "cache client closed",
		"operation", "quit",
		"outcome", "success",
		"previous_state", prev.String(),
	)
	if store == nil {
		return nil
	}
	if err := store.Close(); err != nil {
		c.logger.WarnContext(ctx, "graceful close failed, forcing disconnect",
			"operation", "quit",
			"outcome", "warning",
			"error", err,
		)
	}
	return nil
}

// StartHealth begins periodic health monitoring. The monitor reconnects when
// the client is not ready, so it is safe to start before the first Connect.
func (c *CacheClient) StartHealth() {
	c.health.Start()
}

// OnHealthChange registers the status-transition hook. Must be set before
// StartHealth.
func (c *CacheClient) OnHealthChange(fn func(domain.HealthStatus)) {
	c.health.onChange = fn
}

// transition serializes state changes; it refuses to leave CLOSED.
func (c *CacheClient) transition(next ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := ConnectionState(c.state.Load())
	if cur == StateClosed && next != StateClosed {
		return false
	}
	if cur == next {
		return true
	}
	c.state.Store(int32(next))
	c.logger.Info("connection state changed", "from", cur.String(), "to", next.String())
	return true
}

func (c *CacheClient) currentStore() Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// key applies the service namespace prefix.
func (c *CacheClient) key(logical string) string {
	return c.cfg.KeyPrefix + logical
}

// namespaceTTL resolves the default TTL for a logical key from the
// per-namespace table; namespace is the segment before the first colon.
func (c *CacheClient) namespaceTTL(logical string) time.Duration {
	ns := logical
	if idx := strings.IndexByte(logical, ':'); idx > 0 {
		ns = logical[:idx]
	}
	return c.cfg.TTLDefaults[ns]
}
