package domain

import "time"

// OTPChallenge is a temporary one-time-code envelope.
// Only the sha256 of the code is stored, never the code itself.
type OTPChallenge struct {
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Purpose   string    `json:"purpose"`
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"attempts"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OTPIssued is what issuance returns to the transport layer.
// Code is present so the calling service can deliver it; it is never logged.
type OTPIssued struct {
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
