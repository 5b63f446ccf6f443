package domain

import "time"

// Decision is the outcome of a rate-limit check.
// FailedOpen marks decisions produced while the store was unavailable;
// those are always Allowed and carry no quota hints.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	FailedOpen bool
}
