package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock is a hand-advanced clock shared by the client, the recorder and
// the store fake so TTL and window arithmetic run against simulated time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

type fakeHash struct {
	fields    map[string]string
	expiresAt time.Time
}

type fakeList struct {
	items     []string
	expiresAt time.Time
}

type fakeZSet struct {
	scores    map[string]int64
	expiresAt time.Time
}

// fakeStore is an in-memory Store that honors TTLs against the fake clock.
// Every operation counts its calls and can be failed by name, which is how
// the fail-open and degradation paths get exercised.
type fakeStore struct {
	mu    sync.Mutex
	clock *fakeClock

	values map[string]fakeEntry
	hashes map[string]*fakeHash
	lists  map[string]*fakeList
	zsets  map[string]*fakeZSet

	calls   map[string]int
	errs    map[string]error
	onCall  func(op string)
	info    string
	closed  bool
	dialErr error
}

func newFakeStore(clock *fakeClock) *fakeStore {
	return &fakeStore{
		clock:  clock,
		values: make(map[string]fakeEntry),
		hashes: make(map[string]*fakeHash),
		lists:  make(map[string]*fakeList),
		zsets:  make(map[string]*fakeZSet),
		calls:  make(map[string]int),
		errs:   make(map[string]error),
		info:   "# Memory\r\nused_memory:1048576\r\nmaxmemory:0\r\n",
	}
}

// fail arms (or with err == nil, disarms) a persistent failure for one
// operation name.
func (s *fakeStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, op)
		return
	}
	s.errs[op] = err
}

func (s *fakeStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeStore) setInfo(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = payload
}

// begin counts the call, runs the per-op hook and returns any armed error.
// Callers hold s.mu.
func (s *fakeStore) begin(op string) error {
	s.calls[op]++
	if s.onCall != nil {
		s.onCall(op)
	}
	return s.errs[op]
}

func (s *fakeStore) expired(at time.Time) bool {
	return !at.IsZero() && !s.clock.Now().Before(at)
}

// purge drops the key from every container if its TTL has lapsed. Callers
// hold s.mu.
func (s *fakeStore) purge(key string) {
	if e, ok := s.values[key]; ok && s.expired(e.expiresAt) {
		delete(s.values, key)
	}
	if h, ok := s.hashes[key]; ok && s.expired(h.expiresAt) {
		delete(s.hashes, key)
	}
	if l, ok := s.lists[key]; ok && s.expired(l.expiresAt) {
		delete(s.lists, key)
	}
	if z, ok := s.zsets[key]; ok && s.expired(z.expiresAt) {
		delete(s.zsets, key)
	}
}

// existsAny reports whether the key lives in any container. Callers hold
// s.mu and have purged first.
func (s *fakeStore) existsAny(key string) bool {
	if _, ok := s.values[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	if _, ok := s.lists[key]; ok {
		return true
	}
	if _, ok := s.zsets[key]; ok {
		return true
	}
	return false
}

// dropAll removes the key from every container. Callers hold s.mu.
func (s *fakeStore) dropAll(key string) {
	delete(s.values, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.zsets, key)
}

func (s *fakeStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin("ping")
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("get"); err != nil {
		return "", false, err
	}
	s.purge(key)
	e, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set"); err != nil {
		return err
	}
	s.dropAll(key)
	e := fakeEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.values[key] = e
	return nil
}

func (s *fakeStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("setnx"); err != nil {
		return false, err
	}
	s.purge(key)
	if s.existsAny(key) {
		return false, nil
	}
	e := fakeEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.values[key] = e
	return true, nil
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("del"); err != nil {
		return 0, err
	}
	var removed int64
	for _, key := range keys {
		s.purge(key)
		if s.existsAny(key) {
			s.dropAll(key)
			removed++
		}
	}
	return removed, nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("exists"); err != nil {
		return false, err
	}
	s.purge(key)
	return s.existsAny(key), nil
}

func (s *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("expire"); err != nil {
		return false, err
	}
	s.purge(key)
	if !s.existsAny(key) {
		return false, nil
	}
	if ttl <= 0 {
		s.dropAll(key)
		return true, nil
	}
	at := s.clock.Now().Add(ttl)
	if e, ok := s.values[key]; ok {
		e.expiresAt = at
		s.values[key] = e
	}
	if h, ok := s.hashes[key]; ok {
		h.expiresAt = at
	}
	if l, ok := s.lists[key]; ok {
		l.expiresAt = at
	}
	if z, ok := s.zsets[key]; ok {
		z.expiresAt = at
	}
	return true, nil
}

func (s *fakeStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("incr"); err != nil {
		return 0, err
	}
	s.purge(key)
	var cur int64
	e, ok := s.values[key]
	if ok {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		cur = n
	}
	cur++
	e.value = strconv.FormatInt(cur, 10)
	s.values[key] = e
	return cur, nil
}

func (s *fakeStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("ttl"); err != nil {
		return 0, err
	}
	s.purge(key)
	if !s.existsAny(key) {
		return time.Duration(-2), nil
	}
	at := s.expiryOf(key)
	if at.IsZero() {
		return time.Duration(-1), nil
	}
	return at.Sub(s.clock.Now()), nil
}

// expiryOf returns the key's expiry across containers. Callers hold s.mu.
func (s *fakeStore) expiryOf(key string) time.Time {
	if e, ok := s.values[key]; ok {
		return e.expiresAt
	}
	if h, ok := s.hashes[key]; ok {
		return h.expiresAt
	}
	if l, ok := s.lists[key]; ok {
		return l.expiresAt
	}
	if z, ok := s.zsets[key]; ok {
		return z.expiresAt
	}
	return time.Time{}
}

func (s *fakeStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("mget"); err != nil {
		return nil, err
	}
	out := make([]*string, len(keys))
	for i, key := range keys {
		s.purge(key)
		if e, ok := s.values[key]; ok {
			v := e.value
			out[i] = &v
		}
	}
	return out, nil
}

func (s *fakeStore) MSet(ctx context.Context, pairs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("mset"); err != nil {
		return err
	}
	for k, v := range pairs {
		s.dropAll(k)
		s.values[k] = fakeEntry{value: v}
	}
	return nil
}

// ensureHash returns the live hash at key, creating it if needed. Callers
// hold s.mu.
func (s *fakeStore) ensureHash(key string) *fakeHash {
	s.purge(key)
	h, ok := s.hashes[key]
	if !ok {
		h = &fakeHash{fields: make(map[string]string)}
		s.hashes[key] = h
	}
	return h
}

func (s *fakeStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hset"); err != nil {
		return err
	}
	h := s.ensureHash(key)
	for k, v := range fields {
		h.fields[k] = v
	}
	return nil
}

func (s *fakeStore) HSetExpire(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hsetexpire"); err != nil {
		return err
	}
	h := s.ensureHash(key)
	for k, v := range fields {
		h.fields[k] = v
	}
	if ttl > 0 {
		h.expiresAt = s.clock.Now().Add(ttl)
	}
	return nil
}

func (s *fakeStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hget"); err != nil {
		return "", false, err
	}
	s.purge(key)
	h, ok := s.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h.fields[field]
	return v, ok, nil
}

func (s *fakeStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hgetall"); err != nil {
		return nil, err
	}
	s.purge(key)
	out := make(map[string]string)
	if h, ok := s.hashes[key]; ok {
		for k, v := range h.fields {
			out[k] = v
		}
	}
	return out, nil
}

func (s *fakeStore) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hmget"); err != nil {
		return nil, err
	}
	s.purge(key)
	out := make([]*string, len(fields))
	h, ok := s.hashes[key]
	if !ok {
		return out, nil
	}
	for i, f := range fields {
		if v, ok := h.fields[f]; ok {
			val := v
			out[i] = &val
		}
	}
	return out, nil
}

func (s *fakeStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hincrby"); err != nil {
		return 0, err
	}
	h := s.ensureHash(key)
	var cur int64
	if v, ok := h.fields[field]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("hash value at %s/%s is not an integer", key, field)
		}
		cur = n
	}
	cur += delta
	h.fields[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (s *fakeStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("lpush"); err != nil {
		return 0, err
	}
	s.purge(key)
	l, ok := s.lists[key]
	if !ok {
		l = &fakeList{}
		s.lists[key] = l
	}
	for _, v := range values {
		l.items = append([]string{v}, l.items...)
	}
	return int64(len(l.items)), nil
}

func (s *fakeStore) RPop(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("rpop"); err != nil {
		return "", false, err
	}
	s.purge(key)
	l, ok := s.lists[key]
	if !ok || len(l.items) == 0 {
		return "", false, nil
	}
	last := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	if len(l.items) == 0 {
		delete(s.lists, key)
	}
	return last, true, nil
}

func (s *fakeStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("llen"); err != nil {
		return 0, err
	}
	s.purge(key)
	if l, ok := s.lists[key]; ok {
		return int64(len(l.items)), nil
	}
	return 0, nil
}

func (s *fakeStore) WindowPruneCount(ctx context.Context, key string, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("window_prune_count"); err != nil {
		return 0, err
	}
	s.purge(key)
	z, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	for member, score := range z.scores {
		if score < cutoff {
			delete(z.scores, member)
		}
	}
	if len(z.scores) == 0 {
		delete(s.zsets, key)
		return 0, nil
	}
	return int64(len(z.scores)), nil
}

func (s *fakeStore) WindowAdd(ctx context.Context, key string, score int64, member string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("window_add"); err != nil {
		return err
	}
	s.purge(key)
	z, ok := s.zsets[key]
	if !ok {
		z = &fakeZSet{scores: make(map[string]int64)}
		s.zsets[key] = z
	}
	z.scores[member] = score
	if ttl > 0 {
		z.expiresAt = s.clock.Now().Add(ttl)
	}
	return nil
}

func (s *fakeStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("scan"); err != nil {
		return nil, 0, err
	}
	var keys []string
	collect := func(key string) {
		s.purge(key)
		if s.existsAny(key) && matchesPattern(match, key) {
			keys = append(keys, key)
		}
	}
	for k := range s.values {
		collect(k)
	}
	for k := range s.hashes {
		collect(k)
	}
	for k := range s.lists {
		collect(k)
	}
	for k := range s.zsets {
		collect(k)
	}
	sort.Strings(keys)
	return keys, 0, nil
}

func matchesPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

func (s *fakeStore) Info(ctx context.Context, section string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("info"); err != nil {
		return "", err
	}
	return s.info, nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["close"]++
	s.closed = true
	return s.errs["close"]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClientConfig() ClientConfig {
	return ClientConfig{
		Host:            "localhost",
		Port:            6379,
		ConnectTimeout:  200 * time.Millisecond,
		CommandTimeout:  time.Second,
		ReadyTimeout:    300 * time.Millisecond,
		SlowOpThreshold: 250 * time.Millisecond,
	}
}

// newFakeClient builds a client wired to a fake store and clock without
// connecting. The clock is injected everywhere time is read so tests control
// TTLs, windows and uptime deterministically.
func newFakeClient(t *testing.T, cfg ClientConfig) (*CacheClient, *fakeStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := newFakeStore(clock)
	client, err := NewCacheClient(cfg, discardLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.nowFn = clock.Now
	client.metrics.nowFn = clock.Now
	client.health.nowFn = clock.Now
	client.openFn = func(ClientConfig, *Recorder) (Store, error) {
		store.mu.Lock()
		defer store.mu.Unlock()
		if store.dialErr != nil {
			return nil, store.dialErr
		}
		store.closed = false
		return store, nil
	}
	return client, store, clock
}

// newReadyClient is newFakeClient plus a successful Connect.
func newReadyClient(t *testing.T, cfg ClientConfig) (*CacheClient, *fakeStore, *fakeClock) {
	t.Helper()
	client, store, clock := newFakeClient(t, cfg)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !client.IsReady() {
		t.Fatalf("client not ready after connect, state %s", client.State())
	}
	return client, store, clock
}
