package cache

import (
	"context"
	"time"
)

// IdempotencyStore reserves idempotency keys with an atomic claim-if-absent
// write, so a retried request can be told apart from a new one without any
// coordination outside the store.
type IdempotencyStore struct {
	client *CacheClient
}

func NewIdempotencyStore(client *CacheClient) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func idempotencyKey(key string) string {
	return "idem:" + key
}

// Reserve claims key for the caller's request fingerprint. When the slot is
// already taken it returns claimed=false plus the fingerprint that took it:
// an equal fingerprint means a replay of the same request, a different one
// means the key was reused for a different payload.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, string, error) {
	claimed, err := s.client.SetNX(ctx, idempotencyKey(key), fingerprint, ttl)
	if err != nil {
		return false, "", mapStoreErr("idempotency reserve", err)
	}
	if claimed {
		return true, fingerprint, nil
	}
	existing, found, err := s.client.Get(ctx, idempotencyKey(key))
	if err != nil {
		return false, "", mapStoreErr("idempotency read", err)
	}
	if !found {
		// The winner's slot expired between our two calls; the key is free
		// again and the caller may retry.
		return false, "", nil
	}
	return false, existing, nil
}
