package application

import "time"

type Config struct {
	ServiceName string
	Version     string

	// DefaultTTL applies to management PUTs that omit ttl_seconds.
	DefaultTTL     time.Duration
	IdempotencyTTL time.Duration

	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

// Actor is the authenticated caller extracted by the transport layer.
type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

// CacheEntryView is the management-surface projection of one cache entry.
// TTLSeconds is -1 for entries without an expiry.
type CacheEntryView struct {
	Key        string
	Value      string
	TTLSeconds int64
}
