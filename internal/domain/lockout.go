package domain

import "time"

// LockoutStatus is the current lockout envelope for a login identifier.
// It is cache-backed to avoid hot writes on every failed login.
type LockoutStatus struct {
	Identifier  string     `json:"identifier"`
	FailedCount int        `json:"failed_count"`
	Remaining   int        `json:"remaining_attempts"`
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}
