package application

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

const maxCacheKeyLength = 512

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if strings.ToUpper(strings.TrimSpace(actor.Role)) != "ADMIN" {
		return fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return nil
}

// normalizeKey validates a caller-supplied logical cache key.
func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: key is required", domain.ErrInvalidInput)
	}
	if len(key) > maxCacheKeyLength {
		return "", fmt.Errorf("%w: key exceeds %d bytes", domain.ErrInvalidInput, maxCacheKeyLength)
	}
	if strings.ContainsAny(key, " \t\n") {
		return "", fmt.Errorf("%w: key must not contain whitespace", domain.ErrInvalidInput)
	}
	return key, nil
}

// normalizeIdentifier canonicalizes identifiers (emails, usernames) used as
// lockout and OTP subjects so lookups are case- and whitespace-insensitive.
func normalizeIdentifier(identifier string) (string, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return "", fmt.Errorf("%w: identifier is required", domain.ErrInvalidInput)
	}
	return identifier, nil
}

// hashRequest computes a deterministic request fingerprint for idempotency
// conflict detection.
func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// hashToken stores one-way code fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomDigits returns a zero-padded random numeric code.
func randomDigits(size int) string {
	if size <= 0 {
		size = 6
	}
	max := 1
	for i := 0; i < size; i++ {
		max *= 10
	}
	nRaw := make([]byte, 8)
	_, _ = rand.Read(nRaw)
	n := int(nRaw[0])<<24 | int(nRaw[1])<<16 | int(nRaw[2])<<8 | int(nRaw[3])
	if n < 0 {
		n = -n
	}
	value := n % max
	return fmt.Sprintf("%0*d", size, value)
}
