package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitScope declares one named limiter, reachable through the check
// API, the gRPC internal service and the HTTP middleware.
type RateLimitScope struct {
	Name         string
	Algorithm    string
	Max          int
	Window       time.Duration
	BurstMax     int
	BurstWindow  time.Duration
	SustainedMax int
}

// Config is the resolved runtime configuration for M18.
// It merges file defaults and environment overrides to support both local
// and deployed runs.
type Config struct {
	ServiceID   string
	Environment string
	Version     string

	HTTPPort int
	GRPCPort int

	RedisHost           string
	RedisPort           int
	RedisUsername       string
	RedisPassword       string
	RedisDB             int
	RedisClusterEnabled bool
	RedisClusterNodes   []string
	RedisTLSEnabled     bool
	RedisTLSInsecure    bool

	KeyPrefix       string
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration
	ReadyTimeout    time.Duration
	MaxRetries      int
	SlowOpThreshold time.Duration

	CompressionEnabled   bool
	CompressionThreshold int
	EncryptionEnabled    bool
	EncryptionSecret     string

	DefaultTTL       time.Duration
	RefreshTTLOnRead bool
	TTLDefaults      map[string]time.Duration

	HealthInterval       time.Duration
	HealthPingTimeout    time.Duration
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	ReconnectMaxAttempts int
	MemoryAlertPercent   float64
	LatencyAlertMs       int64
	ConnectionAlert      int64

	RateLimitScopes []RateLimitScope

	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int

	IdempotencyTTL time.Duration

	JWTIssuer         string
	JWTPublicKeyPEM   string
	AllowInsecureAuth bool

	AdminKeyHash string
	BcryptCost   int

	KafkaBrokers []string
	KafkaTopic   string

	EventRetryQueueKey    string
	EventRetryInterval    time.Duration
	EventRetryBatchSize   int
	EventRetryMaxAttempts int
	StatsReportInterval   time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay
// internal. Durations are plain integers in the unit named by the key.
type configFile struct {
	Service struct {
		ID          string `yaml:"id"`
		Environment string `yaml:"environment"`
		Version     string `yaml:"version"`
		HTTPPort    int    `yaml:"http_port"`
		GRPCPort    int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Redis struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		Username        string   `yaml:"username"`
		Password        string   `yaml:"password"`
		DB              int      `yaml:"db"`
		KeyPrefix       string   `yaml:"key_prefix"`
		ClusterEnabled  bool     `yaml:"cluster_enabled"`
		ClusterNodes    []string `yaml:"cluster_nodes"`
		TLSEnabled      bool     `yaml:"tls_enabled"`
		TLSInsecure     bool     `yaml:"tls_insecure_skip_verify"`
		ConnectTimeout  int      `yaml:"connect_timeout_ms"`
		CommandTimeout  int      `yaml:"command_timeout_ms"`
		ReadyTimeout    int      `yaml:"ready_timeout_ms"`
		MaxRetries      int      `yaml:"max_retries"`
		SlowOpThreshold int      `yaml:"slow_op_threshold_ms"`
	} `yaml:"redis"`
	Serializer struct {
		CompressionEnabled   bool   `yaml:"compression_enabled"`
		CompressionThreshold int    `yaml:"compression_threshold_bytes"`
		EncryptionEnabled    bool   `yaml:"encryption_enabled"`
		EncryptionSecret     string `yaml:"encryption_secret"`
	} `yaml:"serializer"`
	TTL struct {
		DefaultSeconds int            `yaml:"default_seconds"`
		RefreshOnRead  bool           `yaml:"refresh_on_read"`
		Namespaces     map[string]int `yaml:"namespaces"`
	} `yaml:"ttl"`
	Health struct {
		IntervalSeconds      int     `yaml:"interval_seconds"`
		PingTimeoutMs        int     `yaml:"ping_timeout_ms"`
		ReconnectBaseMs      int     `yaml:"reconnect_base_ms"`
		ReconnectMaxMs       int     `yaml:"reconnect_max_ms"`
		ReconnectMaxAttempts int     `yaml:"reconnect_max_attempts"`
		MemoryAlertPercent   float64 `yaml:"memory_alert_percent"`
		LatencyAlertMs       int64   `yaml:"latency_alert_ms"`
		ConnectionAlert      int64   `yaml:"connection_alert"`
	} `yaml:"health"`
	RateLimits []struct {
		Name          string `yaml:"name"`
		Algorithm     string `yaml:"algorithm"`
		Max           int    `yaml:"max"`
		WindowMs      int    `yaml:"window_ms"`
		BurstMax      int    `yaml:"burst_max"`
		BurstWindowMs int    `yaml:"burst_window_ms"`
		SustainedMax  int    `yaml:"sustained_max"`
	} `yaml:"rate_limits"`
	Lockout struct {
		Threshold       int `yaml:"threshold"`
		WindowSeconds   int `yaml:"window_seconds"`
		DurationSeconds int `yaml:"duration_seconds"`
	} `yaml:"lockout"`
	OTP struct {
		Length      int `yaml:"length"`
		TTLSeconds  int `yaml:"ttl_seconds"`
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"otp"`
	Idempotency struct {
		TTLHours int `yaml:"ttl_hours"`
	} `yaml:"idempotency"`
	Auth struct {
		JWTIssuer     string `yaml:"jwt_issuer"`
		JWTPublicKey  string `yaml:"jwt_public_key"`
		AllowInsecure bool   `yaml:"allow_insecure"`
	} `yaml:"auth"`
	Admin struct {
		KeyHash    string `yaml:"key_hash"`
		BcryptCost int    `yaml:"bcrypt_cost"`
	} `yaml:"admin"`
	Events struct {
		Brokers          []string `yaml:"brokers"`
		Topic            string   `yaml:"topic"`
		RetryQueueKey    string   `yaml:"retry_queue_key"`
		RetryIntervalSec int      `yaml:"retry_interval_seconds"`
		RetryBatchSize   int      `yaml:"retry_batch_size"`
		RetryMaxAttempts int      `yaml:"retry_max_attempts"`
		StatsIntervalSec int      `yaml:"stats_interval_seconds"`
	} `yaml:"events"`
}

// defaultRateLimitScopes covers the scopes the service itself consumes plus
// one example per algorithm so operators see every shape in default config.
func defaultRateLimitScopes() []RateLimitScope {
	return []RateLimitScope{
		{Name: "login", Algorithm: "fixed_window", Max: 5, Window: time.Minute},
		{Name: "otp_issue", Algorithm: "fixed_window", Max: 3, Window: 5 * time.Minute},
		{Name: "otp_issue_ip", Algorithm: "sliding_window", Max: 10, Window: time.Minute},
		{Name: "api_write", Algorithm: "dual_window", BurstMax: 10, BurstWindow: 10 * time.Second, SustainedMax: 100, Window: time.Minute},
		{Name: "api_read", Algorithm: "adaptive", Max: 1000, Window: time.Minute},
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file ->
// env. This order keeps local bootstrap simple while allowing
// environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:   "M18-Cache-State-Management",
		Environment: "development",
		Version:     "0.1.0",
		HTTPPort:    8080,
		GRPCPort:    9090,

		RedisHost: "localhost",
		RedisPort: 6379,

		KeyPrefix:       "m18",
		ConnectTimeout:  5 * time.Second,
		CommandTimeout:  2 * time.Second,
		ReadyTimeout:    10 * time.Second,
		MaxRetries:      0,
		SlowOpThreshold: 100 * time.Millisecond,

		CompressionEnabled:   true,
		CompressionThreshold: 1024,

		DefaultTTL:       15 * time.Minute,
		RefreshTTLOnRead: true,
		TTLDefaults: map[string]time.Duration{
			"user":    time.Hour,
			"session": 30 * time.Minute,
			"feed":    5 * time.Minute,
			"otp":     5 * time.Minute,
		},

		HealthInterval:       30 * time.Second,
		HealthPingTimeout:    2 * time.Second,
		ReconnectBase:        500 * time.Millisecond,
		ReconnectMax:         30 * time.Second,
		ReconnectMaxAttempts: 0,
		MemoryAlertPercent:   90,
		LatencyAlertMs:       2000,
		ConnectionAlert:      0,

		RateLimitScopes: defaultRateLimitScopes(),

		LockoutThreshold: 5,
		LockoutWindow:    15 * time.Minute,
		LockoutDuration:  30 * time.Minute,

		OTPLength:      6,
		OTPTTL:         5 * time.Minute,
		OTPMaxAttempts: 5,

		IdempotencyTTL: 24 * time.Hour,

		AllowInsecureAuth: true,
		BcryptCost:        12,

		KafkaTopic: "platform.cache.events",

		EventRetryQueueKey:    "events:retry",
		EventRetryInterval:    5 * time.Second,
		EventRetryBatchSize:   100,
		EventRetryMaxAttempts: 5,
		StatsReportInterval:   time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.Environment != "" {
		cfg.Environment = f.Service.Environment
	}
	if f.Service.Version != "" {
		cfg.Version = f.Service.Version
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}

	if f.Redis.Host != "" {
		cfg.RedisHost = f.Redis.Host
	}
	if f.Redis.Port > 0 {
		cfg.RedisPort = f.Redis.Port
	}
	if f.Redis.Username != "" {
		cfg.RedisUsername = f.Redis.Username
	}
	if f.Redis.Password != "" {
		cfg.RedisPassword = f.Redis.Password
	}
	if f.Redis.DB > 0 {
		cfg.RedisDB = f.Redis.DB
	}
	if f.Redis.KeyPrefix != "" {
		cfg.KeyPrefix = f.Redis.KeyPrefix
	}
	cfg.RedisClusterEnabled = f.Redis.ClusterEnabled
	if len(f.Redis.ClusterNodes) > 0 {
		cfg.RedisClusterNodes = f.Redis.ClusterNodes
	}
	cfg.RedisTLSEnabled = f.Redis.TLSEnabled
	cfg.RedisTLSInsecure = f.Redis.TLSInsecure
	if f.Redis.ConnectTimeout > 0 {
		cfg.ConnectTimeout = time.Duration(f.Redis.ConnectTimeout) * time.Millisecond
	}
	if f.Redis.CommandTimeout > 0 {
		cfg.CommandTimeout = time.Duration(f.Redis.CommandTimeout) * time.Millisecond
	}
	if f.Redis.ReadyTimeout > 0 {
		cfg.ReadyTimeout = time.Duration(f.Redis.ReadyTimeout) * time.Millisecond
	}
	if f.Redis.MaxRetries > 0 {
		cfg.MaxRetries = f.Redis.MaxRetries
	}
	if f.Redis.SlowOpThreshold > 0 {
		cfg.SlowOpThreshold = time.Duration(f.Redis.SlowOpThreshold) * time.Millisecond
	}

	cfg.CompressionEnabled = f.Serializer.CompressionEnabled
	if f.Serializer.CompressionThreshold > 0 {
		cfg.CompressionThreshold = f.Serializer.CompressionThreshold
	}
	cfg.EncryptionEnabled = f.Serializer.EncryptionEnabled
	if f.Serializer.EncryptionSecret != "" {
		cfg.EncryptionSecret = f.Serializer.EncryptionSecret
	}

	if f.TTL.DefaultSeconds > 0 {
		cfg.DefaultTTL = time.Duration(f.TTL.DefaultSeconds) * time.Second
	}
	cfg.RefreshTTLOnRead = f.TTL.RefreshOnRead
	if len(f.TTL.Namespaces) > 0 {
		cfg.TTLDefaults = make(map[string]time.Duration, len(f.TTL.Namespaces))
		for ns, seconds := range f.TTL.Namespaces {
			if seconds > 0 {
				cfg.TTLDefaults[ns] = time.Duration(seconds) * time.Second
			}
		}
	}

	if f.Health.IntervalSeconds > 0 {
		cfg.HealthInterval = time.Duration(f.Health.IntervalSeconds) * time.Second
	}
	if f.Health.PingTimeoutMs > 0 {
		cfg.HealthPingTimeout = time.Duration(f.Health.PingTimeoutMs) * time.Millisecond
	}
	if f.Health.ReconnectBaseMs > 0 {
		cfg.ReconnectBase = time.Duration(f.Health.ReconnectBaseMs) * time.Millisecond
	}
	if f.Health.ReconnectMaxMs > 0 {
		cfg.ReconnectMax = time.Duration(f.Health.ReconnectMaxMs) * time.Millisecond
	}
	if f.Health.ReconnectMaxAttempts > 0 {
		cfg.ReconnectMaxAttempts = f.Health.ReconnectMaxAttempts
	}
	if f.Health.MemoryAlertPercent > 0 {
		cfg.MemoryAlertPercent = f.Health.MemoryAlertPercent
	}
	if f.Health.LatencyAlertMs > 0 {
		cfg.LatencyAlertMs = f.Health.LatencyAlertMs
	}
	if f.Health.ConnectionAlert > 0 {
		cfg.ConnectionAlert = f.Health.ConnectionAlert
	}

	if len(f.RateLimits) > 0 {
		scopes := make([]RateLimitScope, 0, len(f.RateLimits))
		for _, rl := range f.RateLimits {
			scopes = append(scopes, RateLimitScope{
				Name:         rl.Name,
				Algorithm:    rl.Algorithm,
				Max:          rl.Max,
				Window:       time.Duration(rl.WindowMs) * time.Millisecond,
				BurstMax:     rl.BurstMax,
				BurstWindow:  time.Duration(rl.BurstWindowMs) * time.Millisecond,
				SustainedMax: rl.SustainedMax,
			})
		}
		cfg.RateLimitScopes = scopes
	}

	if f.Lockout.Threshold > 0 {
		cfg.LockoutThreshold = f.Lockout.Threshold
	}
	if f.Lockout.WindowSeconds > 0 {
		cfg.LockoutWindow = time.Duration(f.Lockout.WindowSeconds) * time.Second
	}
	if f.Lockout.DurationSeconds > 0 {
		cfg.LockoutDuration = time.Duration(f.Lockout.DurationSeconds) * time.Second
	}

	if f.OTP.Length > 0 {
		cfg.OTPLength = f.OTP.Length
	}
	if f.OTP.TTLSeconds > 0 {
		cfg.OTPTTL = time.Duration(f.OTP.TTLSeconds) * time.Second
	}
	if f.OTP.MaxAttempts > 0 {
		cfg.OTPMaxAttempts = f.OTP.MaxAttempts
	}

	if f.Idempotency.TTLHours > 0 {
		cfg.IdempotencyTTL = time.Duration(f.Idempotency.TTLHours) * time.Hour
	}

	if f.Auth.JWTIssuer != "" {
		cfg.JWTIssuer = f.Auth.JWTIssuer
	}
	if f.Auth.JWTPublicKey != "" {
		cfg.JWTPublicKeyPEM = f.Auth.JWTPublicKey
	}
	cfg.AllowInsecureAuth = f.Auth.AllowInsecure

	if f.Admin.KeyHash != "" {
		cfg.AdminKeyHash = f.Admin.KeyHash
	}
	if f.Admin.BcryptCost > 0 {
		cfg.BcryptCost = f.Admin.BcryptCost
	}

	if len(f.Events.Brokers) > 0 {
		cfg.KafkaBrokers = f.Events.Brokers
	}
	if f.Events.Topic != "" {
		cfg.KafkaTopic = f.Events.Topic
	}
	if f.Events.RetryQueueKey != "" {
		cfg.EventRetryQueueKey = f.Events.RetryQueueKey
	}
	if f.Events.RetryIntervalSec > 0 {
		cfg.EventRetryInterval = time.Duration(f.Events.RetryIntervalSec) * time.Second
	}
	if f.Events.RetryBatchSize > 0 {
		cfg.EventRetryBatchSize = f.Events.RetryBatchSize
	}
	if f.Events.RetryMaxAttempts > 0 {
		cfg.EventRetryMaxAttempts = f.Events.RetryMaxAttempts
	}
	if f.Events.StatsIntervalSec > 0 {
		cfg.StatsReportInterval = time.Duration(f.Events.StatsIntervalSec) * time.Second
	}
}

func applyEnv(cfg *Config) {
	cfg.Environment = envOrDefault("ENVIRONMENT", cfg.Environment)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)

	cfg.RedisHost = envOrDefault("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = envInt("REDIS_PORT", cfg.RedisPort)
	cfg.RedisUsername = envOrDefault("REDIS_USERNAME", cfg.RedisUsername)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisClusterEnabled = envBool("REDIS_CLUSTER_ENABLED", cfg.RedisClusterEnabled)
	cfg.RedisClusterNodes = envCSV("REDIS_CLUSTER_NODES", cfg.RedisClusterNodes)
	cfg.RedisTLSEnabled = envBool("REDIS_TLS_ENABLED", cfg.RedisTLSEnabled)
	cfg.RedisTLSInsecure = envBool("REDIS_TLS_INSECURE_SKIP_VERIFY", cfg.RedisTLSInsecure)
	cfg.KeyPrefix = envOrDefault("CACHE_KEY_PREFIX", cfg.KeyPrefix)

	cfg.ConnectTimeout = time.Duration(envInt("CACHE_CONNECT_TIMEOUT_MS", int(cfg.ConnectTimeout.Milliseconds()))) * time.Millisecond
	cfg.CommandTimeout = time.Duration(envInt("CACHE_COMMAND_TIMEOUT_MS", int(cfg.CommandTimeout.Milliseconds()))) * time.Millisecond
	cfg.ReadyTimeout = time.Duration(envInt("CACHE_READY_TIMEOUT_MS", int(cfg.ReadyTimeout.Milliseconds()))) * time.Millisecond
	cfg.SlowOpThreshold = time.Duration(envInt("CACHE_SLOW_OP_THRESHOLD_MS", int(cfg.SlowOpThreshold.Milliseconds()))) * time.Millisecond

	cfg.CompressionEnabled = envBool("CACHE_COMPRESSION_ENABLED", cfg.CompressionEnabled)
	cfg.CompressionThreshold = envInt("CACHE_COMPRESSION_THRESHOLD_BYTES", cfg.CompressionThreshold)
	cfg.EncryptionEnabled = envBool("CACHE_ENCRYPTION_ENABLED", cfg.EncryptionEnabled)
	cfg.EncryptionSecret = envOrDefault("CACHE_ENCRYPTION_SECRET", cfg.EncryptionSecret)

	cfg.DefaultTTL = time.Duration(envInt("CACHE_DEFAULT_TTL_SECONDS", int(cfg.DefaultTTL.Seconds()))) * time.Second
	cfg.RefreshTTLOnRead = envBool("CACHE_REFRESH_TTL_ON_READ", cfg.RefreshTTLOnRead)

	cfg.HealthInterval = time.Duration(envInt("HEALTH_INTERVAL_SECONDS", int(cfg.HealthInterval.Seconds()))) * time.Second
	cfg.HealthPingTimeout = time.Duration(envInt("HEALTH_PING_TIMEOUT_MS", int(cfg.HealthPingTimeout.Milliseconds()))) * time.Millisecond
	cfg.ReconnectBase = time.Duration(envInt("RECONNECT_BASE_MS", int(cfg.ReconnectBase.Milliseconds()))) * time.Millisecond
	cfg.ReconnectMax = time.Duration(envInt("RECONNECT_MAX_MS", int(cfg.ReconnectMax.Milliseconds()))) * time.Millisecond
	cfg.ReconnectMaxAttempts = envInt("RECONNECT_MAX_ATTEMPTS", cfg.ReconnectMaxAttempts)

	cfg.LockoutThreshold = envInt("LOCKOUT_THRESHOLD", cfg.LockoutThreshold)
	cfg.LockoutWindow = time.Duration(envInt("LOCKOUT_WINDOW_SECONDS", int(cfg.LockoutWindow.Seconds()))) * time.Second
	cfg.LockoutDuration = time.Duration(envInt("LOCKOUT_DURATION_SECONDS", int(cfg.LockoutDuration.Seconds()))) * time.Second

	cfg.OTPLength = envInt("OTP_LENGTH", cfg.OTPLength)
	cfg.OTPTTL = time.Duration(envInt("OTP_TTL_SECONDS", int(cfg.OTPTTL.Seconds()))) * time.Second
	cfg.OTPMaxAttempts = envInt("OTP_MAX_ATTEMPTS", cfg.OTPMaxAttempts)

	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour

	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.AllowInsecureAuth = envBool("AUTH_ALLOW_INSECURE", cfg.AllowInsecureAuth)

	cfg.AdminKeyHash = envOrDefault("ADMIN_KEY_HASH", cfg.AdminKeyHash)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)

	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.EventRetryInterval = time.Duration(envInt("EVENT_RETRY_INTERVAL_SECONDS", int(cfg.EventRetryInterval.Seconds()))) * time.Second
	cfg.EventRetryBatchSize = envInt("EVENT_RETRY_BATCH_SIZE", cfg.EventRetryBatchSize)
	cfg.EventRetryMaxAttempts = envInt("EVENT_RETRY_MAX_ATTEMPTS", cfg.EventRetryMaxAttempts)
	cfg.StatsReportInterval = time.Duration(envInt("STATS_REPORT_INTERVAL_SECONDS", int(cfg.StatsReportInterval.Seconds()))) * time.Second
}

func (cfg Config) validate() error {
	if cfg.RedisClusterEnabled {
		if len(cfg.RedisClusterNodes) == 0 {
			return fmt.Errorf("missing REDIS_CLUSTER_NODES for cluster mode")
		}
	} else if cfg.RedisHost == "" {
		return fmt.Errorf("missing REDIS_HOST")
	}
	if cfg.EncryptionEnabled && cfg.EncryptionSecret == "" {
		return fmt.Errorf("missing CACHE_ENCRYPTION_SECRET with encryption enabled")
	}
	if !cfg.AllowInsecureAuth && cfg.JWTPublicKeyPEM == "" {
		return fmt.Errorf("missing JWT_PUBLIC_KEY_PEM (or set AUTH_ALLOW_INSECURE for local runs)")
	}
	seen := make(map[string]bool, len(cfg.RateLimitScopes))
	for _, scope := range cfg.RateLimitScopes {
		if scope.Name == "" {
			return fmt.Errorf("rate limit scope with empty name")
		}
		if seen[scope.Name] {
			return fmt.Errorf("duplicate rate limit scope %q", scope.Name)
		}
		seen[scope.Name] = true
	}
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
