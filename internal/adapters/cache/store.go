package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the narrow command surface the client needs from the backing
// store. Production uses goredisStore; tests swap in an in-memory fake with a
// simulated clock. Composite window/hash methods run as MULTI/EXEC pipelines
// so their atomicity lives server-side, not behind a client mutex.
type Store interface {
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	MGet(ctx context.Context, keys ...string) ([]*string, error)
	MSet(ctx context.Context, pairs map[string]string) error

	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetExpire(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HMGet(ctx context.Context, key string, fields ...string) ([]*string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LLen(ctx context.Context, key string) (int64, error)

	WindowPruneCount(ctx context.Context, key string, cutoff int64) (int64, error)
	WindowAdd(ctx context.Context, key string, score int64, member string, ttl time.Duration) error

	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Info(ctx context.Context, section string) (string, error)

	Close() error
}

// goredisStore adapts redis.UniversalClient to the Store surface.
type goredisStore struct {
	rdb redis.UniversalClient
}

// openStore dials the backing store. A universal client keeps single-node and
// cluster mode behind one construction path: cluster differs only in how the
// node list is supplied.
func openStore(cfg ClientConfig, metrics *Recorder) (Store, error) {
	addrs := cfg.ClusterNodes
	if !cfg.ClusterEnabled || len(addrs) == 0 {
		addrs = []string{cfg.Addr()}
	}

	opts := &redis.UniversalOptions{
		Addrs:        addrs,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.CommandTimeout,
		WriteTimeout: cfg.CommandTimeout,
		MaxRetries:   cfg.MaxRetries,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			if metrics != nil {
				metrics.RecordConnection()
			}
			return nil
		},
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		}
	}

	return &goredisStore{rdb: redis.NewUniversalClient(opts)}, nil
}

func (s *goredisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *goredisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *goredisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *goredisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *goredisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return s.rdb.Del(ctx, keys...).Result()
}

func (s *goredisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *goredisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.Expire(ctx, key, ttl).Result()
}

func (s *goredisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

func (s *goredisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, key).Result()
}

func (s *goredisStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	raw, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(raw))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			val := str
			out[i] = &val
		}
	}
	return out, nil
}

func (s *goredisStore) MSet(ctx context.Context, pairs map[string]string) error {
	flat := make([]any, 0, len(pairs)*2)
	for k, v := range pairs {
		flat = append(flat, k, v)
	}
	return s.rdb.MSet(ctx, flat...).Err()
}

func (s *goredisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	flat := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	return s.rdb.HSet(ctx, key, flat...).Err()
}

// HSetExpire writes hash fields and the key TTL in one MULTI/EXEC so a crash
// cannot leave the fields without their expiry.
func (s *goredisStore) HSetExpire(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	flat := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, flat...)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *goredisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *goredisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *goredisStore) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	raw, err := s.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(raw))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			val := str
			out[i] = &val
		}
	}
	return out, nil
}

func (s *goredisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return s.rdb.HIncrBy(ctx, key, field, delta).Result()
}

func (s *goredisStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	flat := make([]any, len(values))
	for i, v := range values {
		flat[i] = v
	}
	return s.rdb.LPush(ctx, key, flat...).Result()
}

func (s *goredisStore) RPop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.RPop(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *goredisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

// WindowPruneCount drops window members with scores strictly below cutoff and
// returns the surviving cardinality, in one MULTI/EXEC round trip.
func (s *goredisStore) WindowPruneCount(ctx context.Context, key string, cutoff int64) (int64, error) {
	var card *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		card = p.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// WindowAdd records one window member and refreshes the key expiry together,
// so abandoned windows always age out of the store.
func (s *goredisStore) WindowAdd(ctx context.Context, key string, score int64, member string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member})
		if ttl > 0 {
			p.PExpire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *goredisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return s.rdb.Scan(ctx, cursor, match, count).Result()
}

func (s *goredisStore) Info(ctx context.Context, section string) (string, error) {
	return s.rdb.Info(ctx, section).Result()
}

func (s *goredisStore) Close() error {
	return s.rdb.Close()
}
