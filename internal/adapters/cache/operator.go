package cache

import (
	"context"
	"time"
)

// Operator adapts the client's entry-level surface to the management port,
// translating infrastructure failures to domain errors at the boundary. Data
// consumers use the typed stores instead; this exists for the operational
// API, which works on raw keys.
type Operator struct {
	client *CacheClient
}

func NewOperator(client *CacheClient) *Operator {
	return &Operator{client: client}
}

func (o *Operator) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := o.client.Get(ctx, key)
	return value, found, mapStoreErr("cache get", err)
}

func (o *Operator) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return mapStoreErr("cache set", o.client.Set(ctx, key, value, ttl))
}

func (o *Operator) Del(ctx context.Context, keys ...string) (int64, error) {
	removed, err := o.client.Del(ctx, keys...)
	return removed, mapStoreErr("cache del", err)
}

func (o *Operator) Exists(ctx context.Context, key string) (bool, error) {
	present, err := o.client.Exists(ctx, key)
	return present, mapStoreErr("cache exists", err)
}

func (o *Operator) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := o.client.TTL(ctx, key)
	return ttl, mapStoreErr("cache ttl", err)
}

func (o *Operator) FlushNamespace(ctx context.Context, namespace string) (int64, error) {
	removed, err := o.client.FlushNamespace(ctx, namespace)
	return removed, mapStoreErr("cache flush", err)
}
