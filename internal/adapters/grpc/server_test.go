package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

type stubLimiter struct {
	next domain.Decision
	keys []string
}

func (s *stubLimiter) Check(ctx context.Context, key string) domain.Decision {
	s.keys = append(s.keys, key)
	return s.next
}

type stubDiagnostics struct {
	report domain.HealthReport
}

func (s *stubDiagnostics) IsReady() bool                     { return true }
func (s *stubDiagnostics) Snapshot() domain.MetricsSnapshot  { return domain.MetricsSnapshot{} }
func (s *stubDiagnostics) HealthReport() domain.HealthReport { return s.report }
func (s *stubDiagnostics) ResetMetrics()                     {}

func newTestServer(limiter *stubLimiter, diag *stubDiagnostics) *CacheInternalServer {
	svc := application.NewService(application.Dependencies{
		Diagnostics: diag,
		Limiters:    map[string]ports.RateLimiter{"api": limiter},
	})
	return NewCacheInternalServer(svc)
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

func TestCheckRateLimitRequiresScopeAndKey(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubLimiter{}, &stubDiagnostics{})

	cases := []map[string]any{
		{},
		{"scope": "api"},
		{"key": "u1"},
	}
	for _, fields := range cases {
		_, err := srv.CheckRateLimit(context.Background(), mustStruct(t, fields))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("fields %v: code = %v, want InvalidArgument", fields, status.Code(err))
		}
	}
}

func TestCheckRateLimitRejectsUnknownScope(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubLimiter{}, &stubDiagnostics{})

	_, err := srv.CheckRateLimit(context.Background(), mustStruct(t, map[string]any{
		"scope": "no-such-scope",
		"key":   "u1",
	}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestCheckRateLimitMapsDecision(t *testing.T) {
	t.Parallel()

	resetAt := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)
	limiter := &stubLimiter{next: domain.Decision{
		Allowed:    false,
		Limit:      100,
		Remaining:  0,
		RetryAfter: 30 * time.Second,
		ResetAt:    resetAt,
	}}
	srv := newTestServer(limiter, &stubDiagnostics{})

	resp, err := srv.CheckRateLimit(context.Background(), mustStruct(t, map[string]any{
		"scope":  "api",
		"key":    "u1",
		"caller": "svc-feed",
	}))
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	fields := resp.GetFields()
	if fields["allowed"].GetBoolValue() {
		t.Fatalf("allowed = true, want blocked")
	}
	if got := fields["limit"].GetNumberValue(); got != 100 {
		t.Fatalf("limit = %v", got)
	}
	if got := fields["remaining"].GetNumberValue(); got != 0 {
		t.Fatalf("remaining = %v", got)
	}
	if got := fields["retry_after_ms"].GetNumberValue(); got != 30000 {
		t.Fatalf("retry_after_ms = %v", got)
	}
	if got := fields["reset_at"].GetNumberValue(); int64(got) != resetAt.Unix() {
		t.Fatalf("reset_at = %v, want %d", got, resetAt.Unix())
	}
	if fields["failed_open"].GetBoolValue() {
		t.Fatalf("failed_open = true")
	}

	// The caller identity scopes the limiter key upstream, not here: the
	// raw key passes through untouched.
	if len(limiter.keys) != 1 || limiter.keys[0] != "u1" {
		t.Fatalf("limiter keys = %v", limiter.keys)
	}
}

func TestCheckRateLimitZeroResetAt(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{next: domain.Decision{Allowed: true, Limit: 10, Remaining: 9}}
	srv := newTestServer(limiter, &stubDiagnostics{})

	resp, err := srv.CheckRateLimit(context.Background(), mustStruct(t, map[string]any{
		"scope": "api",
		"key":   "u1",
	}))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got := resp.GetFields()["reset_at"].GetNumberValue(); got != 0 {
		t.Fatalf("reset_at = %v, want 0 when the window has no fixed end", got)
	}
}

func TestGetHealthPayload(t *testing.T) {
	t.Parallel()

	diag := &stubDiagnostics{report: domain.HealthReport{
		Status:        domain.HealthWarning,
		UptimeSeconds: 4242,
	}}
	srv := newTestServer(&stubLimiter{}, diag)

	resp, err := srv.GetHealth(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("get health: %v", err)
	}

	fields := resp.GetFields()
	if got := fields["status"].GetStringValue(); got != "WARNING" {
		t.Fatalf("status = %q", got)
	}
	if got := fields["uptime_seconds"].GetNumberValue(); got != 4242 {
		t.Fatalf("uptime_seconds = %v", got)
	}
	if got := fields["version"].GetStringValue(); got != "0.1.0" {
		t.Fatalf("version = %q", got)
	}
}
