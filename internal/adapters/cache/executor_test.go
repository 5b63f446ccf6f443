package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteFastFailsWhenNotReady(t *testing.T) {
	t.Parallel()

	client, store, _ := newFakeClient(t, testClientConfig())
	ctx := context.Background()

	_, _, err := client.Get(ctx, "user:1")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("get on disconnected client = %v, want ErrNotReady", err)
	}
	if got := store.callCount("get"); got != 0 {
		t.Fatalf("store reached %d times while not ready, want 0 (no queueing)", got)
	}

	snap := client.Snapshot()
	if snap.NotReadyRejects != 1 {
		t.Fatalf("not-ready rejections = %d, want 1", snap.NotReadyRejects)
	}
	if snap.PerError["not_ready"] != 1 {
		t.Fatalf("per-error[not_ready] = %d, want 1", snap.PerError["not_ready"])
	}
	if snap.Requests != 0 {
		t.Fatalf("rejected call counted as a request: %d", snap.Requests)
	}
}

func TestExecuteRecordsPerCommandTiming(t *testing.T) {
	t.Parallel()

	client, _, _ := newReadyClient(t, testClientConfig())
	ctx := context.Background()

	if err := client.Set(ctx, "user:1", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, _, err := client.Get(ctx, "user:1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	snap := client.Snapshot()
	if snap.Requests != 2 {
		t.Fatalf("requests = %d, want 2", snap.Requests)
	}
	if snap.PerCommand["set"] != 1 || snap.PerCommand["get"] != 1 {
		t.Fatalf("per-command table = %v, want one set and one get", snap.PerCommand)
	}
	if snap.Latency.Samples != 2 {
		t.Fatalf("latency samples = %d, want 2", snap.Latency.Samples)
	}
}

func TestExecuteWrapsFailuresWithKind(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	store.fail("get", &fakeNetError{})

	_, _, err := client.Get(context.Background(), "user:1")
	if err == nil {
		t.Fatalf("get succeeded although the store failed")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error %T does not carry the command classification", err)
	}
	if cmdErr.Command != "get" || cmdErr.Kind != "network" {
		t.Fatalf("classified as (%s, %s), want (get, network)", cmdErr.Command, cmdErr.Kind)
	}

	snap := client.Snapshot()
	if snap.Errors != 1 {
		t.Fatalf("errors = %d, want 1", snap.Errors)
	}
	if snap.PerError["network"] != 1 {
		t.Fatalf("per-error table = %v, want one network entry", snap.PerError)
	}
	// The failed call is still timed and counted.
	if snap.Requests != 1 || snap.PerCommand["get"] != 1 {
		t.Fatalf("failed command not counted: requests=%d per-command=%v", snap.Requests, snap.PerCommand)
	}
}

func TestExecuteNeverRetries(t *testing.T) {
	t.Parallel()

	client, store, _ := newReadyClient(t, testClientConfig())
	store.fail("incr", errors.New("LOADING Redis is loading the dataset in memory"))

	if _, err := client.Incr(context.Background(), "counter"); err == nil {
		t.Fatalf("incr succeeded although the store failed")
	}
	if got := store.callCount("incr"); got != 1 {
		t.Fatalf("store incr called %d times, want exactly 1 (no retries)", got)
	}
}

func TestExecuteFlagsSlowOperations(t *testing.T) {
	t.Parallel()

	cfg := testClientConfig()
	cfg.SlowOpThreshold = time.Millisecond
	client, store, _ := newReadyClient(t, cfg)

	store.mu.Lock()
	store.onCall = func(op string) {
		if op == "get" {
			time.Sleep(10 * time.Millisecond)
		}
	}
	store.mu.Unlock()

	if _, _, err := client.Get(context.Background(), "user:1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap := client.Snapshot(); snap.SlowOps != 1 {
		t.Fatalf("slow operations = %d, want 1", snap.SlowOps)
	}
}
