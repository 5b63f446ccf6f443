package cache

import (
	"context"
	"fmt"
	"time"
)

// flushScanCount is the SCAN page size used when flushing a namespace.
const flushScanCount = 500

// resolveTTL picks the effective expiry for a write: an explicit positive
// TTL wins, zero falls back to the per-namespace default table, and a
// negative TTL means "no expiry" regardless of the table.
func (c *CacheClient) resolveTTL(logical string, ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if ttl < 0 {
		return 0
	}
	return c.namespaceTTL(logical)
}

// Get reads a raw string value. A miss returns found=false with no error so
// callers can distinguish "absent" from a stored empty string. Values written
// through the serializer are unwrapped; a corrupt envelope is recorded as a
// serialization error and the raw payload is returned as-is.
func (c *CacheClient) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := c.execute(ctx, "get", func(ctx context.Context, s Store) error {
		var err error
		value, found, err = s.Get(ctx, c.key(key))
		return err
	})
	if err != nil {
		return "", false, err
	}
	if !found {
		c.metrics.RecordMiss()
		return "", false, nil
	}
	c.metrics.RecordHit()
	plain, err := c.serializer.Unwrap([]byte(value))
	if err != nil {
		c.metrics.RecordError(errKindSerialization)
		c.logger.WarnContext(ctx, "stored envelope unreadable, returning raw payload",
			"operation", "get",
			"outcome", "degraded",
			"error", err,
		)
		return value, true, nil
	}
	return string(plain), true, nil
}

// Set writes a raw string value with a single atomic set-and-expire call.
func (c *CacheClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	effective := c.resolveTTL(key, ttl)
	return c.execute(ctx, "set", func(ctx context.Context, s Store) error {
		return s.Set(ctx, c.key(key), value, effective)
	})
}

// SetNX atomically claims a key with an expiry; it returns false when the key
// already exists. Used for single-use reservations such as idempotency slots.
func (c *CacheClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	effective := c.resolveTTL(key, ttl)
	var claimed bool
	err := c.execute(ctx, "setnx", func(ctx context.Context, s Store) error {
		var err error
		claimed, err = s.SetNX(ctx, c.key(key), value, effective)
		return err
	})
	return claimed, err
}

// Del removes keys and reports how many existed.
func (c *CacheClient) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = c.key(k)
	}
	var removed int64
	err := c.execute(ctx, "del", func(ctx context.Context, s Store) error {
		var err error
		removed, err = s.Del(ctx, namespaced...)
		return err
	})
	return removed, err
}

// Exists reports whether a key is present.
func (c *CacheClient) Exists(ctx context.Context, key string) (bool, error) {
	var present bool
	err := c.execute(ctx, "exists", func(ctx context.Context, s Store) error {
		var err error
		present, err = s.Exists(ctx, c.key(key))
		return err
	})
	return present, err
}

// Expire sets a fresh TTL on an existing key.
func (c *CacheClient) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var applied bool
	err := c.execute(ctx, "expire", func(ctx context.Context, s Store) error {
		var err error
		applied, err = s.Expire(ctx, c.key(key), ttl)
		return err
	})
	return applied, err
}

// Incr increments a counter key and returns the new value.
func (c *CacheClient) Incr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := c.execute(ctx, "incr", func(ctx context.Context, s Store) error {
		var err error
		value, err = s.Incr(ctx, c.key(key))
		return err
	})
	return value, err
}

// TTL returns the remaining lifetime of a key. The store's sentinels pass
// through unchanged: domain.TTLNoExpiry for a key without expiry,
// domain.TTLKeyMissing for an absent key.
func (c *CacheClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	var ttl time.Duration
	err := c.execute(ctx, "ttl", func(ctx context.Context, s Store) error {
		var err error
		ttl, err = s.TTL(ctx, c.key(key))
		return err
	})
	return ttl, err
}

// GetJSON reads a value written by SetJSON into dest. A miss returns
// found=false; on a typed read a decode failure is fatal to the call rather
// than degrading to raw bytes.
func (c *CacheClient) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	var value string
	var found bool
	err := c.execute(ctx, "get", func(ctx context.Context, s Store) error {
		var err error
		value, found, err = s.Get(ctx, c.key(key))
		return err
	})
	if err != nil {
		return false, err
	}
	if !found {
		c.metrics.RecordMiss()
		return false, nil
	}
	c.metrics.RecordHit()
	if err := c.serializer.Unmarshal([]byte(value), dest); err != nil {
		c.metrics.RecordError(errKindSerialization)
		return false, &CommandError{Command: "get", Kind: errKindSerialization, Err: err}
	}
	return true, nil
}

// SetJSON encodes v through the serializer envelope (compressing and
// encrypting per configuration) and stores it atomically with its expiry.
func (c *CacheClient) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	payload, err := c.serializer.Marshal(v, true, true)
	if err != nil {
		c.metrics.RecordError(errKindSerialization)
		return &CommandError{Command: "set", Kind: errKindSerialization, Err: err}
	}
	effective := c.resolveTTL(key, ttl)
	return c.execute(ctx, "set", func(ctx context.Context, s Store) error {
		return s.Set(ctx, c.key(key), string(payload), effective)
	})
}

// MGet reads a batch of keys in one round trip. Result slots align with the
// requested keys; nil marks a miss. Hit and miss counters advance per key.
func (c *CacheClient) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = c.key(k)
	}
	var raw []*string
	err := c.execute(ctx, "mget", func(ctx context.Context, s Store) error {
		var err error
		raw, err = s.MGet(ctx, namespaced...)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(raw))
	for i, v := range raw {
		if v == nil {
			c.metrics.RecordMiss()
			continue
		}
		c.metrics.RecordHit()
		plain, err := c.serializer.Unwrap([]byte(*v))
		if err != nil {
			c.metrics.RecordError(errKindSerialization)
			out[i] = v
			continue
		}
		decoded := string(plain)
		out[i] = &decoded
	}
	return out, nil
}

// MSet writes a batch of raw values in one round trip. MSET carries no
// per-key expiry; callers that need TTLs use Set or SetPartialHash.
func (c *CacheClient) MSet(ctx context.Context, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}
	namespaced := make(map[string]string, len(pairs))
	for k, v := range pairs {
		namespaced[c.key(k)] = v
	}
	return c.execute(ctx, "mset", func(ctx context.Context, s Store) error {
		return s.MSet(ctx, namespaced)
	})
}

// HSet writes hash fields; a positive ttl is applied atomically with the
// write so the key never exists without its expiry.
func (c *CacheClient) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	effective := c.resolveTTL(key, ttl)
	return c.execute(ctx, "hset", func(ctx context.Context, s Store) error {
		if effective > 0 {
			return s.HSetExpire(ctx, c.key(key), fields, effective)
		}
		return s.HSet(ctx, c.key(key), fields)
	})
}

// HGet reads one hash field; a missing key or field is found=false.
func (c *CacheClient) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var value string
	var found bool
	err := c.execute(ctx, "hget", func(ctx context.Context, s Store) error {
		var err error
		value, found, err = s.HGet(ctx, c.key(key), field)
		return err
	})
	if err != nil {
		return "", false, err
	}
	if !found {
		c.metrics.RecordMiss()
		return "", false, nil
	}
	c.metrics.RecordHit()
	return value, true, nil
}

// HGetAll reads every field of a hash; a missing key yields an empty map.
func (c *CacheClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := c.execute(ctx, "hgetall", func(ctx context.Context, s Store) error {
		var err error
		fields, err = s.HGetAll(ctx, c.key(key))
		return err
	})
	return fields, err
}

// HMGet reads selected hash fields; slots align with the request, nil marks
// an absent field.
func (c *CacheClient) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	var values []*string
	err := c.execute(ctx, "hmget", func(ctx context.Context, s Store) error {
		var err error
		values, err = s.HMGet(ctx, c.key(key), fields...)
		return err
	})
	return values, err
}

// HIncrBy adjusts a numeric hash field and returns the new value.
func (c *CacheClient) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var value int64
	err := c.execute(ctx, "hincrby", func(ctx context.Context, s Store) error {
		var err error
		value, err = s.HIncrBy(ctx, c.key(key), field, delta)
		return err
	})
	return value, err
}

// CachePartialHash stores a subset of an object's fields as a hash. An empty
// fields list stores everything. Field values are serialized individually so
// partial reads stay cheap; the TTL comes from the explicit argument or the
// per-namespace default table and is applied atomically with the write.
func (c *CacheClient) CachePartialHash(ctx context.Context, key string, obj map[string]any, fields []string, ttl time.Duration) error {
	if len(fields) == 0 {
		fields = make([]string, 0, len(obj))
		for f := range obj {
			fields = append(fields, f)
		}
	}
	encoded := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := obj[f]
		if !ok {
			continue
		}
		payload, err := c.serializer.Marshal(v, true, true)
		if err != nil {
			c.metrics.RecordError(errKindSerialization)
			return &CommandError{Command: "hset", Kind: errKindSerialization, Err: fmt.Errorf("field %q: %w", f, err)}
		}
		encoded[f] = string(payload)
	}
	if len(encoded) == 0 {
		return nil
	}
	return c.HSet(ctx, key, encoded, ttl)
}

// GetPartialHash reads selected fields back (all fields when none are
// requested) and decodes each through the serializer. found=false means the
// key held none of the requested fields. When TTL refresh-on-read is enabled
// and the namespace has a default TTL, a hit extends the key's lifetime.
func (c *CacheClient) GetPartialHash(ctx context.Context, key string, fields []string) (map[string]any, bool, error) {
	decoded := make(map[string]any)
	if len(fields) == 0 {
		all, err := c.HGetAll(ctx, key)
		if err != nil {
			return nil, false, err
		}
		for f, raw := range all {
			v, err := c.decodeHashField(ctx, f, raw)
			if err != nil {
				return nil, false, err
			}
			decoded[f] = v
		}
	} else {
		values, err := c.HMGet(ctx, key, fields...)
		if err != nil {
			return nil, false, err
		}
		for i, raw := range values {
			if raw == nil {
				continue
			}
			v, err := c.decodeHashField(ctx, fields[i], *raw)
			if err != nil {
				return nil, false, err
			}
			decoded[fields[i]] = v
		}
	}
	if len(decoded) == 0 {
		c.metrics.RecordMiss()
		return nil, false, nil
	}
	c.metrics.RecordHit()
	c.refreshOnRead(ctx, key)
	return decoded, true, nil
}

func (c *CacheClient) decodeHashField(ctx context.Context, field, raw string) (any, error) {
	var v any
	if err := c.serializer.Unmarshal([]byte(raw), &v); err != nil {
		c.metrics.RecordError(errKindSerialization)
		return nil, &CommandError{Command: "hget", Kind: errKindSerialization, Err: fmt.Errorf("field %q: %w", field, err)}
	}
	return v, nil
}

// refreshOnRead extends a key's namespace TTL after a hit. Best effort: a
// refresh failure never fails the read that triggered it.
func (c *CacheClient) refreshOnRead(ctx context.Context, key string) {
	if !c.cfg.RefreshTTLOnRead {
		return
	}
	ttl := c.namespaceTTL(key)
	if ttl <= 0 {
		return
	}
	if _, err := c.Expire(ctx, key, ttl); err != nil {
		c.logger.DebugContext(ctx, "ttl refresh on read failed",
			"operation", "expire",
			"outcome", "ignored",
			"error", err,
		)
	}
}

// LPush appends values to the head of a list and returns the new length.
func (c *CacheClient) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	var length int64
	err := c.execute(ctx, "lpush", func(ctx context.Context, s Store) error {
		var err error
		length, err = s.LPush(ctx, c.key(key), values...)
		return err
	})
	return length, err
}

// RPop removes and returns the tail of a list; an empty list is found=false.
func (c *CacheClient) RPop(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := c.execute(ctx, "rpop", func(ctx context.Context, s Store) error {
		var err error
		value, found, err = s.RPop(ctx, c.key(key))
		return err
	})
	return value, found, err
}

// LLen returns the length of a list.
func (c *CacheClient) LLen(ctx context.Context, key string) (int64, error) {
	var length int64
	err := c.execute(ctx, "llen", func(ctx context.Context, s Store) error {
		var err error
		length, err = s.LLen(ctx, c.key(key))
		return err
	})
	return length, err
}

// FlushNamespace deletes every key under one logical namespace, or every key
// this service owns when namespace is empty. It walks the keyspace with SCAN
// instead of FLUSHDB so co-tenants of the store are never touched. Each page
// runs as its own command so one large flush cannot trip the per-command
// timeout.
func (c *CacheClient) FlushNamespace(ctx context.Context, namespace string) (int64, error) {
	pattern := c.cfg.KeyPrefix + "*"
	if namespace != "" {
		pattern = c.key(namespace + ":*")
	}
	var removed int64
	var cursor uint64
	for {
		var keys []string
		var next uint64
		err := c.execute(ctx, "scan", func(ctx context.Context, s Store) error {
			var err error
			keys, next, err = s.Scan(ctx, cursor, pattern, flushScanCount)
			return err
		})
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			var n int64
			err := c.execute(ctx, "del", func(ctx context.Context, s Store) error {
				var err error
				n, err = s.Del(ctx, keys...)
				return err
			})
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
