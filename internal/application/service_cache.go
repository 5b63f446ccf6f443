package application

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

const maxInvalidateBatch = 100

func (s *Service) GetCacheEntry(ctx context.Context, actor Actor, key string) (CacheEntryView, error) {
	if err := requireActor(actor); err != nil {
		return CacheEntryView{}, err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return CacheEntryView{}, err
	}

	value, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return CacheEntryView{}, err
	}
	if !found {
		return CacheEntryView{}, fmt.Errorf("%w: key %q", domain.ErrNotFound, key)
	}

	ttl, err := s.cache.TTL(ctx, key)
	if err != nil {
		return CacheEntryView{}, err
	}
	view := CacheEntryView{Key: key, Value: value}
	switch {
	case ttl == domain.TTLKeyMissing:
		// Expired between the read and the TTL lookup.
		return CacheEntryView{}, fmt.Errorf("%w: key %q", domain.ErrNotFound, key)
	case ttl == domain.TTLNoExpiry:
		view.TTLSeconds = -1
	default:
		view.TTLSeconds = ceilSeconds(ttl)
	}
	return view, nil
}

func (s *Service) PutCacheEntry(ctx context.Context, actor Actor, key, value string, ttlSeconds int) (CacheEntryView, error) {
	if err := requireActor(actor); err != nil {
		return CacheEntryView{}, err
	}
	if actor.IdempotencyKey == "" {
		return CacheEntryView{}, domain.ErrIdempotencyRequired
	}
	key, err := normalizeKey(key)
	if err != nil {
		return CacheEntryView{}, err
	}
	if value == "" {
		return CacheEntryView{}, fmt.Errorf("%w: value is required", domain.ErrInvalidInput)
	}
	if ttlSeconds < 0 {
		return CacheEntryView{}, fmt.Errorf("%w: ttl_seconds must not be negative", domain.ErrInvalidInput)
	}
	ttl := s.cfg.DefaultTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}

	fingerprint := hashRequest(map[string]any{"op": "put", "key": key, "value": value, "ttl": ttl.Seconds()})
	claimed, winner, err := s.idempotency.Reserve(ctx, actor.IdempotencyKey, fingerprint, s.cfg.IdempotencyTTL)
	if err != nil {
		return CacheEntryView{}, err
	}
	view := CacheEntryView{Key: key, Value: value, TTLSeconds: ceilSeconds(ttl)}
	if !claimed {
		if winner == fingerprint {
			// Same request replayed; the original write stands.
			return view, nil
		}
		return CacheEntryView{}, fmt.Errorf("%w: key already used for a different request", domain.ErrIdempotencyConflict)
	}

	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		return CacheEntryView{}, err
	}
	return view, nil
}

func (s *Service) DeleteCacheEntry(ctx context.Context, actor Actor, key string) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	removed, err := s.cache.Del(ctx, key)
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (s *Service) InvalidateCacheKeys(ctx context.Context, actor Actor, keys []string) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("%w: keys are required", domain.ErrInvalidInput)
	}
	if len(keys) > maxInvalidateBatch {
		return 0, fmt.Errorf("%w: at most %d keys per invalidation", domain.ErrInvalidInput, maxInvalidateBatch)
	}
	normalized := make([]string, 0, len(keys))
	for _, k := range keys {
		key, err := normalizeKey(k)
		if err != nil {
			return 0, err
		}
		normalized = append(normalized, key)
	}
	return s.cache.Del(ctx, normalized...)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
