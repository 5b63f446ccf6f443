package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// Algorithm tags one of the interchangeable rate limiting strategies.
type Algorithm string

const (
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmDualWindow    Algorithm = "dual_window"
	AlgorithmAdaptive      Algorithm = "adaptive"
)

// Adaptive tuning is intentionally hard-wired: the limiter self-tightens from
// live metrics without configuration changes.
const (
	adaptiveErrorRateLimit = 0.05
	adaptiveErrorFactor    = 0.5
	adaptiveHitRateFloor   = 0.80
	adaptiveHitRateFactor  = 0.7
)

const defaultBurstWindow = 10 * time.Second

// Limiter is the common contract all four algorithms satisfy. Check never
// returns an error: a limiter that cannot reach the store fails open and says
// so in the decision, because rejecting traffic on infrastructure trouble
// would turn a cache outage into a product outage.
type Limiter interface {
	Check(ctx context.Context, key string) domain.Decision
	Algorithm() Algorithm
}

// LimiterConfig selects and sizes an algorithm for one call site.
type LimiterConfig struct {
	Algorithm Algorithm
	// Max is the request ceiling per Window (nominal ceiling for adaptive).
	Max    int
	Window time.Duration
	// Burst* and Sustained* apply to the dual window algorithm only.
	BurstMax     int
	BurstWindow  time.Duration
	SustainedMax int
}

// NewLimiter builds the algorithm named by cfg on top of the shared client.
func NewLimiter(client *CacheClient, cfg LimiterConfig) (Limiter, error) {
	switch cfg.Algorithm {
	case AlgorithmFixedWindow:
		return newFixedWindowLimiter(client, cfg)
	case AlgorithmSlidingWindow:
		return newSlidingWindowLimiter(client, cfg)
	case AlgorithmDualWindow:
		return newDualWindowLimiter(client, cfg)
	case AlgorithmAdaptive:
		return newAdaptiveLimiter(client, cfg)
	default:
		return nil, fmt.Errorf("rate limiter: unknown algorithm %q", cfg.Algorithm)
	}
}

func validateWindow(cfg LimiterConfig) error {
	if cfg.Max <= 0 {
		return fmt.Errorf("rate limiter: max must be positive, got %d", cfg.Max)
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("rate limiter: window must be positive, got %s", cfg.Window)
	}
	return nil
}

// failOpen records that a limiter swallowed a store failure and allowed the
// request through.
func failOpen(c *CacheClient, algorithm Algorithm, key string, limit int, err error) domain.Decision {
	c.metrics.RecordFailOpen()
	c.logger.Warn("rate limiter failing open",
		"operation", "ratelimit_check",
		"outcome", "fail_open",
		"algorithm", string(algorithm),
		"key", key,
		"error", err,
	)
	return domain.Decision{Allowed: true, Limit: limit, Remaining: limit, FailedOpen: true}
}

// ---- fixed window -----------------------------------------------------

type fixedWindowLimiter struct {
	client *CacheClient
	max    int
	window time.Duration
	nowFn  func() time.Time
}

func newFixedWindowLimiter(client *CacheClient, cfg LimiterConfig) (*fixedWindowLimiter, error) {
	if err := validateWindow(cfg); err != nil {
		return nil, err
	}
	return &fixedWindowLimiter{
		client: client,
		max:    cfg.Max,
		window: cfg.Window,
		nowFn:  client.nowFn,
	}, nil
}

func (l *fixedWindowLimiter) Algorithm() Algorithm { return AlgorithmFixedWindow }

// Check increments a counter keyed by caller and window bucket; the first
// increment in a bucket arms the bucket's expiry. A crash between the two
// steps leaves a counter without a TTL, which is harmless: the next window
// uses a fresh bucket key and the orphan is left to the store's eviction.
func (l *fixedWindowLimiter) Check(ctx context.Context, key string) domain.Decision {
	return checkFixedWindow(ctx, l.client, AlgorithmFixedWindow, key, l.max, l.window, l.nowFn())
}

func checkFixedWindow(ctx context.Context, c *CacheClient, algorithm Algorithm, key string, max int, window time.Duration, now time.Time) domain.Decision {
	windowMs := window.Milliseconds()
	bucket := now.UnixMilli() / windowMs
	counterKey := fmt.Sprintf("ratelimit:%s:%s:%d", algorithm, key, bucket)
	resetAt := time.UnixMilli((bucket + 1) * windowMs).UTC()

	count, err := c.Incr(ctx, counterKey)
	if err != nil {
		// Deliberate swallow: availability beats precise accounting here.
		return failOpen(c, algorithm, key, max, err)
	}
	if count == 1 {
		if _, err := c.Expire(ctx, counterKey, window); err != nil {
			c.logger.Warn("rate limit window expiry not set",
				"operation", "ratelimit_check",
				"outcome", "degraded",
				"algorithm", string(algorithm),
				"key", key,
				"error", err,
			)
		}
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if int(count) > max {
		c.metrics.RecordRateLimit(false)
		return domain.Decision{
			Allowed:    false,
			Limit:      max,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}
	c.metrics.RecordRateLimit(true)
	return domain.Decision{
		Allowed:   true,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// ---- sliding window ---------------------------------------------------

type slidingWindowLimiter struct {
	client *CacheClient
	max    int
	window time.Duration
	nowFn  func() time.Time
}

func newSlidingWindowLimiter(client *CacheClient, cfg LimiterConfig) (*slidingWindowLimiter, error) {
	if err := validateWindow(cfg); err != nil {
		return nil, err
	}
	return &slidingWindowLimiter{
		client: client,
		max:    cfg.Max,
		window: cfg.Window,
		nowFn:  client.nowFn,
	}, nil
}

func (l *slidingWindowLimiter) Algorithm() Algorithm { return AlgorithmSlidingWindow }

// Check prunes timestamps older than the window, counts what is left and
// admits the call only while the count is under the ceiling. The admitted
// call's own timestamp is then recorded, and the whole set expires one window
// after its last write so abandoned keys cannot leak.
func (l *slidingWindowLimiter) Check(ctx context.Context, key string) domain.Decision {
	now := l.nowFn()
	setKey := fmt.Sprintf("ratelimit:%s:%s", AlgorithmSlidingWindow, key)

	count, err := l.client.windowPruneCount(ctx, setKey, now.UnixMilli()-l.window.Milliseconds())
	if err != nil {
		// Deliberate swallow: availability beats precise accounting here.
		return failOpen(l.client, AlgorithmSlidingWindow, key, l.max, err)
	}
	if count >= int64(l.max) {
		l.client.metrics.RecordRateLimit(false)
		return domain.Decision{
			Allowed:    false,
			Limit:      l.max,
			Remaining:  0,
			RetryAfter: l.window,
			ResetAt:    now.Add(l.window),
		}
	}
	decision := domain.Decision{
		Allowed:   true,
		Limit:     l.max,
		Remaining: l.max - int(count) - 1,
		ResetAt:   now.Add(l.window),
	}
	if err := l.client.windowAdd(ctx, setKey, now, l.window); err != nil {
		// The call stays admitted; only its bookkeeping was lost.
		decision = failOpen(l.client, AlgorithmSlidingWindow, key, l.max, err)
	} else {
		l.client.metrics.RecordRateLimit(true)
	}
	return decision
}

// ---- dual burst/sustained window ---------------------------------------

type dualWindowLimiter struct {
	client          *CacheClient
	burstMax        int
	burstWindow     time.Duration
	sustainedMax    int
	sustainedWindow time.Duration
	nowFn           func() time.Time
}

func newDualWindowLimiter(client *CacheClient, cfg LimiterConfig) (*dualWindowLimiter, error) {
	if cfg.BurstMax <= 0 {
		return nil, fmt.Errorf("rate limiter: burst max must be positive, got %d", cfg.BurstMax)
	}
	if cfg.SustainedMax <= 0 {
		return nil, fmt.Errorf("rate limiter: sustained max must be positive, got %d", cfg.SustainedMax)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limiter: window must be positive, got %s", cfg.Window)
	}
	burstWindow := cfg.BurstWindow
	if burstWindow <= 0 {
		burstWindow = defaultBurstWindow
	}
	return &dualWindowLimiter{
		client:          client,
		burstMax:        cfg.BurstMax,
		burstWindow:     burstWindow,
		sustainedMax:    cfg.SustainedMax,
		sustainedWindow: cfg.Window,
		nowFn:           client.nowFn,
	}, nil
}

func (l *dualWindowLimiter) Algorithm() Algorithm { return AlgorithmDualWindow }

// Check runs two independent sliding windows: a short burst window with a low
// ceiling and a long sustained window with a higher one. Either ceiling
// blocks on its own; an admitted call is recorded in both windows.
func (l *dualWindowLimiter) Check(ctx context.Context, key string) domain.Decision {
	now := l.nowFn()
	nowMs := now.UnixMilli()
	burstKey := fmt.Sprintf("ratelimit:%s:burst:%s", AlgorithmDualWindow, key)
	sustainedKey := fmt.Sprintf("ratelimit:%s:sustained:%s", AlgorithmDualWindow, key)

	burstCount, err := l.client.windowPruneCount(ctx, burstKey, nowMs-l.burstWindow.Milliseconds())
	if err != nil {
		// Deliberate swallow: availability beats precise accounting here.
		return failOpen(l.client, AlgorithmDualWindow, key, l.sustainedMax, err)
	}
	if burstCount >= int64(l.burstMax) {
		l.client.metrics.RecordRateLimit(false)
		return domain.Decision{
			Allowed:    false,
			Limit:      l.sustainedMax,
			Remaining:  0,
			RetryAfter: l.burstWindow,
			ResetAt:    now.Add(l.burstWindow),
		}
	}

	sustainedCount, err := l.client.windowPruneCount(ctx, sustainedKey, nowMs-l.sustainedWindow.Milliseconds())
	if err != nil {
		return failOpen(l.client, AlgorithmDualWindow, key, l.sustainedMax, err)
	}
	if sustainedCount >= int64(l.sustainedMax) {
		l.client.metrics.RecordRateLimit(false)
		return domain.Decision{
			Allowed:    false,
			Limit:      l.sustainedMax,
			Remaining:  0,
			RetryAfter: l.sustainedWindow,
			ResetAt:    now.Add(l.sustainedWindow),
		}
	}

	remaining := l.burstMax - int(burstCount) - 1
	if sr := l.sustainedMax - int(sustainedCount) - 1; sr < remaining {
		remaining = sr
	}
	decision := domain.Decision{
		Allowed:   true,
		Limit:     l.sustainedMax,
		Remaining: remaining,
		ResetAt:   now.Add(l.sustainedWindow),
	}
	if err := l.client.windowAdd(ctx, burstKey, now, l.burstWindow); err != nil {
		return failOpen(l.client, AlgorithmDualWindow, key, l.sustainedMax, err)
	}
	if err := l.client.windowAdd(ctx, sustainedKey, now, l.sustainedWindow); err != nil {
		return failOpen(l.client, AlgorithmDualWindow, key, l.sustainedMax, err)
	}
	l.client.metrics.RecordRateLimit(true)
	return decision
}

// ---- adaptive ----------------------------------------------------------

type adaptiveLimiter struct {
	client  *CacheClient
	nominal int
	window  time.Duration
	nowFn   func() time.Time
}

func newAdaptiveLimiter(client *CacheClient, cfg LimiterConfig) (*adaptiveLimiter, error) {
	if err := validateWindow(cfg); err != nil {
		return nil, err
	}
	return &adaptiveLimiter{
		client:  client,
		nominal: cfg.Max,
		window:  cfg.Window,
		nowFn:   client.nowFn,
	}, nil
}

func (l *adaptiveLimiter) Algorithm() Algorithm { return AlgorithmAdaptive }

// effectiveCeiling derives the live ceiling from recorder signals. An error
// rate above 5% halves the ceiling and takes precedence over the hit rate
// rule; a hit rate under 80% lowers it to 70% of nominal. A recorder with no
// reads reports a perfect hit rate, so a cold process is never tightened.
func (l *adaptiveLimiter) effectiveCeiling() int {
	effective := l.nominal
	switch {
	case l.client.metrics.ErrorRate() > adaptiveErrorRateLimit:
		effective = int(float64(l.nominal) * adaptiveErrorFactor)
	case l.client.metrics.HitRate() < adaptiveHitRateFloor:
		effective = int(float64(l.nominal) * adaptiveHitRateFactor)
	}
	if effective < 1 {
		effective = 1
	}
	return effective
}

func (l *adaptiveLimiter) Check(ctx context.Context, key string) domain.Decision {
	return checkFixedWindow(ctx, l.client, AlgorithmAdaptive, key, l.effectiveCeiling(), l.window, l.nowFn())
}

// ---- shared window plumbing ---------------------------------------------

// windowPruneCount drops timestamps strictly older than cutoff (unix millis)
// and returns how many remain.
func (c *CacheClient) windowPruneCount(ctx context.Context, logical string, cutoff int64) (int64, error) {
	var count int64
	err := c.execute(ctx, "window_prune_count", func(ctx context.Context, s Store) error {
		var err error
		count, err = s.WindowPruneCount(ctx, c.key(logical), cutoff)
		return err
	})
	return count, err
}

// windowAdd appends an event timestamp with a collision-proof member and
// renews the set's expiry so idle keys vanish one window after the last hit.
func (c *CacheClient) windowAdd(ctx context.Context, logical string, at time.Time, ttl time.Duration) error {
	member := strconv.FormatInt(at.UnixMilli(), 10) + ":" + uuid.NewString()
	return c.execute(ctx, "window_add", func(ctx context.Context, s Store) error {
		return s.WindowAdd(ctx, c.key(logical), at.UnixMilli(), member, ttl)
	})
}
