package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// LockoutConfig sizes the brute-force tracker: Threshold failures within
// Window lock the identifier for LockDuration.
type LockoutConfig struct {
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
}

func (c LockoutConfig) withDefaults() LockoutConfig {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 30 * time.Minute
	}
	return c
}

// LockoutStore counts failed logins on plain counter keys. The first failure
// arms the counting window; crossing the threshold re-arms the key for the
// lock duration, and every further failure while locked extends it. When the
// key expires the slate is clean.
type LockoutStore struct {
	client *CacheClient
	cfg    LockoutConfig
	nowFn  func() time.Time
}

func NewLockoutStore(client *CacheClient, cfg LockoutConfig) *LockoutStore {
	return &LockoutStore{
		client: client,
		cfg:    cfg.withDefaults(),
		nowFn:  client.nowFn,
	}
}

func lockoutKey(identifier string) string {
	return "login:fail:" + identifier
}

func (s *LockoutStore) RecordFailure(ctx context.Context, identifier string) (domain.LockoutStatus, error) {
	key := lockoutKey(identifier)
	count, err := s.client.Incr(ctx, key)
	if err != nil {
		return domain.LockoutStatus{}, mapStoreErr("lockout record failure", err)
	}
	if count == 1 {
		if _, err := s.client.Expire(ctx, key, s.cfg.Window); err != nil {
			return domain.LockoutStatus{}, mapStoreErr("lockout arm window", err)
		}
	}

	status := s.status(identifier, int(count), 0)
	if status.Locked {
		if _, err := s.client.Expire(ctx, key, s.cfg.LockDuration); err != nil {
			return domain.LockoutStatus{}, mapStoreErr("lockout extend", err)
		}
		until := s.nowFn().Add(s.cfg.LockDuration)
		status.LockedUntil = &until
	}
	return status, nil
}

func (s *LockoutStore) Status(ctx context.Context, identifier string) (domain.LockoutStatus, error) {
	raw, found, err := s.client.Get(ctx, lockoutKey(identifier))
	if err != nil {
		return domain.LockoutStatus{}, mapStoreErr("lockout status", err)
	}
	if !found {
		return s.status(identifier, 0, 0), nil
	}
	count, convErr := strconv.Atoi(raw)
	if convErr != nil {
		// A foreign value under our key: treat as clean rather than lock
		// everyone out on garbage.
		return s.status(identifier, 0, 0), nil
	}

	var remainingTTL time.Duration
	if count >= s.cfg.Threshold {
		ttl, err := s.client.TTL(ctx, lockoutKey(identifier))
		if err != nil {
			return domain.LockoutStatus{}, mapStoreErr("lockout status ttl", err)
		}
		if ttl > 0 {
			remainingTTL = ttl
		}
	}
	return s.status(identifier, count, remainingTTL), nil
}

func (s *LockoutStore) Clear(ctx context.Context, identifier string) error {
	if _, err := s.client.Del(ctx, lockoutKey(identifier)); err != nil {
		return mapStoreErr("lockout clear", err)
	}
	return nil
}

func (s *LockoutStore) status(identifier string, count int, lockTTL time.Duration) domain.LockoutStatus {
	status := domain.LockoutStatus{
		Identifier:  identifier,
		FailedCount: count,
		Remaining:   s.cfg.Threshold - count,
		Locked:      count >= s.cfg.Threshold,
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if status.Locked && lockTTL > 0 {
		until := s.nowFn().Add(lockTTL)
		status.LockedUntil = &until
	}
	return status
}
