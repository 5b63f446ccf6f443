package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

func TestOperatorEntryLifecycle(t *testing.T) {
	t.Parallel()

	client, _, _ := newReadyClient(t, testClientConfig())
	op := NewOperator(client)
	ctx := context.Background()

	if err := op.Set(ctx, "user:1", "ada", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found, err := op.Get(ctx, "user:1")
	if err != nil || !found || got != "ada" {
		t.Fatalf("get = (%q, %v, %v), want (ada, true, nil)", got, found, err)
	}
	present, err := op.Exists(ctx, "user:1")
	if err != nil || !present {
		t.Fatalf("exists = (%v, %v), want (true, nil)", present, err)
	}
	ttl, err := op.TTL(ctx, "user:1")
	if err != nil || ttl != time.Minute {
		t.Fatalf("ttl = (%v, %v), want (1m, nil)", ttl, err)
	}

	removed, err := op.Del(ctx, "user:1", "user:absent")
	if err != nil {
		t.Fatalf("del: %v", err)
	}
	if removed != 1 {
		t.Fatalf("del removed %d keys, want 1", removed)
	}
	if _, found, err := op.Get(ctx, "user:1"); err != nil || found {
		t.Fatalf("deleted key still served: found=%v err=%v", found, err)
	}
}

func TestOperatorTTLSentinels(t *testing.T) {
	t.Parallel()

	client, _, _ := newReadyClient(t, testClientConfig())
	op := NewOperator(client)
	ctx := context.Background()

	ttl, err := op.TTL(ctx, "user:absent")
	if err != nil || ttl != domain.TTLKeyMissing {
		t.Fatalf("ttl on missing key = (%v, %v), want (%v, nil)", ttl, err, domain.TTLKeyMissing)
	}

	if err := op.Set(ctx, "user:pinned", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	ttl, err = op.TTL(ctx, "user:pinned")
	if err != nil || ttl != domain.TTLNoExpiry {
		t.Fatalf("ttl on pinned key = (%v, %v), want (%v, nil)", ttl, err, domain.TTLNoExpiry)
	}
}

func TestOperatorMapsOutagesToStoreUnavailable(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	op := NewOperator(client)
	ctx := context.Background()

	store.fail("get", &fakeNetError{timeout: true})
	if _, _, err := op.Get(ctx, "user:1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("timeout mapped to %v, want domain.ErrStoreUnavailable", err)
	}

	store.fail("set", &fakeNetError{})
	if err := op.Set(ctx, "user:1", "v", 0); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("network failure mapped to %v, want domain.ErrStoreUnavailable", err)
	}
}

func TestOperatorMapsNotReadyToStoreUnavailable(t *testing.T) {
	t.Parallel()

	// Never connected: every call must fail fast with the domain outage error.
	client, _, _ := newFakeClient(t, testClientConfig())
	op := NewOperator(client)
	ctx := context.Background()

	if _, _, err := op.Get(ctx, "user:1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("not-ready get = %v, want domain.ErrStoreUnavailable", err)
	}
	if _, err := op.FlushNamespace(ctx, "user"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("not-ready flush = %v, want domain.ErrStoreUnavailable", err)
	}
}

func TestOperatorKeepsStoreSideErrors(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	op := NewOperator(client)
	ctx := context.Background()

	store.fail("set", fakeRedisError("OOM command not allowed when used memory > 'maxmemory'"))
	err := op.Set(ctx, "user:1", "v", 0)
	if err == nil {
		t.Fatal("store-side failure returned nil error")
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("store-side failure mapped to outage: %v", err)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Kind != "oom" {
		t.Fatalf("err = %v, want CommandError with kind oom", err)
	}
}

func TestOperatorFlushNamespace(t *testing.T) {
	t.Parallel()

	client, _, _ := newReadyClient(t, testClientConfig())
	op := NewOperator(client)
	ctx := context.Background()

	seed := map[string]string{
		"session:a": "1",
		"session:b": "2",
		"feed:1":    "3",
	}
	for key, value := range seed {
		if err := op.Set(ctx, key, value, 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	removed, err := op.FlushNamespace(ctx, "session")
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if removed != 2 {
		t.Fatalf("flush removed %d keys, want 2", removed)
	}
	if _, found, _ := op.Get(ctx, "feed:1"); !found {
		t.Fatal("flush of session namespace removed feed:1")
	}
}
