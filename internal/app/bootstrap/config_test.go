package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load with no file: %v", err)
	}

	if cfg.ServiceID != "M18-Cache-State-Management" || cfg.Environment != "development" {
		t.Fatalf("identity = %q/%q", cfg.ServiceID, cfg.Environment)
	}
	if cfg.HTTPPort != 8080 || cfg.GRPCPort != 9090 {
		t.Fatalf("ports = %d/%d", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.RedisHost != "localhost" || cfg.RedisPort != 6379 || cfg.KeyPrefix != "m18" {
		t.Fatalf("redis defaults = %s:%d prefix %q", cfg.RedisHost, cfg.RedisPort, cfg.KeyPrefix)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.CommandTimeout != 2*time.Second || cfg.ReadyTimeout != 10*time.Second {
		t.Fatalf("timeouts = %v/%v/%v", cfg.ConnectTimeout, cfg.CommandTimeout, cfg.ReadyTimeout)
	}
	if !cfg.CompressionEnabled || cfg.CompressionThreshold != 1024 {
		t.Fatalf("compression = %v/%d", cfg.CompressionEnabled, cfg.CompressionThreshold)
	}
	if cfg.DefaultTTL != 15*time.Minute || !cfg.RefreshTTLOnRead {
		t.Fatalf("ttl defaults = %v refresh %v", cfg.DefaultTTL, cfg.RefreshTTLOnRead)
	}
	if cfg.TTLDefaults["user"] != time.Hour || cfg.TTLDefaults["feed"] != 5*time.Minute {
		t.Fatalf("namespace ttls = %v", cfg.TTLDefaults)
	}
	if cfg.HealthInterval != 30*time.Second || cfg.ReconnectBase != 500*time.Millisecond || cfg.ReconnectMax != 30*time.Second {
		t.Fatalf("health defaults = %v/%v/%v", cfg.HealthInterval, cfg.ReconnectBase, cfg.ReconnectMax)
	}
	if cfg.LockoutThreshold != 5 || cfg.LockoutWindow != 15*time.Minute || cfg.LockoutDuration != 30*time.Minute {
		t.Fatalf("lockout defaults = %d/%v/%v", cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration)
	}
	if cfg.OTPLength != 6 || cfg.OTPTTL != 5*time.Minute || cfg.OTPMaxAttempts != 5 {
		t.Fatalf("otp defaults = %d/%v/%d", cfg.OTPLength, cfg.OTPTTL, cfg.OTPMaxAttempts)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("idempotency ttl = %v", cfg.IdempotencyTTL)
	}
	if !cfg.AllowInsecureAuth {
		t.Fatalf("local default should not demand a JWT key")
	}
	if cfg.KafkaTopic != "platform.cache.events" {
		t.Fatalf("kafka topic = %q", cfg.KafkaTopic)
	}
	if cfg.EventRetryQueueKey != "events:retry" || cfg.EventRetryBatchSize != 100 || cfg.EventRetryMaxAttempts != 5 {
		t.Fatalf("event retry defaults = %q/%d/%d", cfg.EventRetryQueueKey, cfg.EventRetryBatchSize, cfg.EventRetryMaxAttempts)
	}
}

func TestDefaultScopesCoverEveryAlgorithm(t *testing.T) {
	t.Parallel()

	scopes := defaultRateLimitScopes()
	algorithms := make(map[string]bool, len(scopes))
	names := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		if names[scope.Name] {
			t.Fatalf("duplicate default scope %q", scope.Name)
		}
		names[scope.Name] = true
		algorithms[scope.Algorithm] = true
	}
	for _, alg := range []string{"fixed_window", "sliding_window", "dual_window", "adaptive"} {
		if !algorithms[alg] {
			t.Fatalf("no default scope exercises %s", alg)
		}
	}
	if !names["otp_issue_ip"] {
		t.Fatalf("default scopes lack the otp issue middleware scope")
	}
}

func TestLoadConfigAppliesFile(t *testing.T) {
	path := writeConfigFile(t, `
service:
  id: m18-staging
  environment: staging
  http_port: 8181
redis:
  host: cache.internal
  port: 6380
  key_prefix: m18s
  connect_timeout_ms: 250
serializer:
  compression_enabled: true
  compression_threshold_bytes: 2048
ttl:
  default_seconds: 600
  refresh_on_read: true
  namespaces:
    user: 120
health:
  interval_seconds: 10
rate_limits:
  - name: login
    algorithm: fixed_window
    max: 10
    window_ms: 60000
lockout:
  threshold: 3
otp:
  length: 8
auth:
  allow_insecure: true
events:
  brokers:
    - kafka-1:9092
    - kafka-2:9092
  topic: ops.cache
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ServiceID != "m18-staging" || cfg.Environment != "staging" || cfg.HTTPPort != 8181 {
		t.Fatalf("service section = %q/%q/%d", cfg.ServiceID, cfg.Environment, cfg.HTTPPort)
	}
	if cfg.GRPCPort != 9090 {
		t.Fatalf("grpc port = %d, want the untouched default", cfg.GRPCPort)
	}
	if cfg.RedisHost != "cache.internal" || cfg.RedisPort != 6380 || cfg.KeyPrefix != "m18s" {
		t.Fatalf("redis section = %s:%d prefix %q", cfg.RedisHost, cfg.RedisPort, cfg.KeyPrefix)
	}
	if cfg.ConnectTimeout != 250*time.Millisecond {
		t.Fatalf("connect timeout = %v", cfg.ConnectTimeout)
	}
	if cfg.CompressionThreshold != 2048 {
		t.Fatalf("compression threshold = %d", cfg.CompressionThreshold)
	}
	if cfg.DefaultTTL != 10*time.Minute {
		t.Fatalf("default ttl = %v", cfg.DefaultTTL)
	}
	// The file replaces the namespace table rather than merging into it.
	if len(cfg.TTLDefaults) != 1 || cfg.TTLDefaults["user"] != 2*time.Minute {
		t.Fatalf("namespace ttls = %v", cfg.TTLDefaults)
	}
	if cfg.HealthInterval != 10*time.Second {
		t.Fatalf("health interval = %v", cfg.HealthInterval)
	}
	if len(cfg.RateLimitScopes) != 1 {
		t.Fatalf("scopes = %+v, want the file's list verbatim", cfg.RateLimitScopes)
	}
	scope := cfg.RateLimitScopes[0]
	if scope.Name != "login" || scope.Algorithm != "fixed_window" || scope.Max != 10 || scope.Window != time.Minute {
		t.Fatalf("scope = %+v", scope)
	}
	if cfg.LockoutThreshold != 3 || cfg.OTPLength != 8 {
		t.Fatalf("lockout/otp = %d/%d", cfg.LockoutThreshold, cfg.OTPLength)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaTopic != "ops.cache" {
		t.Fatalf("events = %v/%q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  host: cache.internal
auth:
  allow_insecure: true
`)

	t.Setenv("REDIS_HOST", "cache.override")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("CACHE_DEFAULT_TTL_SECONDS", "60")
	t.Setenv("REDIS_CLUSTER_ENABLED", "yes")
	t.Setenv("REDIS_CLUSTER_NODES", "node-a:7000, node-b:7000, ")
	t.Setenv("CACHE_COMPRESSION_ENABLED", "not-a-bool")
	t.Setenv("LOCKOUT_THRESHOLD", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RedisHost != "cache.override" {
		t.Fatalf("redis host = %q, want the env value", cfg.RedisHost)
	}
	if cfg.HTTPPort != 9999 {
		t.Fatalf("http port = %d", cfg.HTTPPort)
	}
	if cfg.DefaultTTL != time.Minute {
		t.Fatalf("default ttl = %v", cfg.DefaultTTL)
	}
	if !cfg.RedisClusterEnabled {
		t.Fatalf("cluster flag ignored the env value")
	}
	if len(cfg.RedisClusterNodes) != 2 || cfg.RedisClusterNodes[0] != "node-a:7000" || cfg.RedisClusterNodes[1] != "node-b:7000" {
		t.Fatalf("cluster nodes = %v", cfg.RedisClusterNodes)
	}
	// Unparseable booleans keep the previous value instead of guessing.
	if cfg.CompressionEnabled {
		t.Fatalf("compression flag took a garbage env value")
	}
	if cfg.LockoutThreshold != 7 {
		t.Fatalf("lockout threshold = %d", cfg.LockoutThreshold)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "service: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name: "cluster without nodes",
			contents: `
redis:
  cluster_enabled: true
`,
			wantErr: "REDIS_CLUSTER_NODES",
		},
		{
			name: "encryption without secret",
			contents: `
serializer:
  encryption_enabled: true
`,
			wantErr: "CACHE_ENCRYPTION_SECRET",
		},
		{
			name: "strict auth without key",
			contents: `
auth:
  allow_insecure: false
`,
			wantErr: "JWT_PUBLIC_KEY_PEM",
		},
		{
			name: "duplicate scope names",
			contents: `
auth:
  allow_insecure: true
rate_limits:
  - name: login
    algorithm: fixed_window
    max: 5
    window_ms: 60000
  - name: login
    algorithm: sliding_window
    max: 10
    window_ms: 60000
`,
			wantErr: "duplicate rate limit scope",
		},
		{
			name: "scope without a name",
			contents: `
auth:
  allow_insecure: true
rate_limits:
  - algorithm: fixed_window
    max: 5
    window_ms: 60000
`,
			wantErr: "empty name",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.contents)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatalf("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}
