package domain

import "time"

// TTL sentinels mirror the store's TTL reply convention: a key that exists
// without an expiry reports TTLNoExpiry, a missing key reports TTLKeyMissing.
// Both compare directly against the duration returned by TTL lookups.
const (
	TTLNoExpiry   time.Duration = -1
	TTLKeyMissing time.Duration = -2
)
