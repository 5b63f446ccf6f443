package security

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptKeyHasher hashes and compares admin API keys via bcrypt.
// Operators store only the hash in config; the raw key travels in a header.
type BcryptKeyHasher struct {
	cost int
}

// NewBcryptKeyHasher creates a bcrypt-based hasher with default fallback cost.
func NewBcryptKeyHasher(cost int) *BcryptKeyHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptKeyHasher{cost: cost}
}

func (h *BcryptKeyHasher) Hash(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptKeyHasher) Compare(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}
