package ports

import "time"

// AuthClaims is the identity extracted from a verified access token.
// Tokens are minted upstream by the authentication service; this module
// only verifies and never signs.
type AuthClaims struct {
	SubjectID string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenVerifier interface {
	Verify(token string) (AuthClaims, error)
}

// KeyHasher compares operator-supplied admin keys against a stored hash.
type KeyHasher interface {
	Hash(key string) (string, error)
	Compare(hash, key string) error
}
