package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// OTPStore keeps one-time-passcode challenges as enveloped JSON values whose
// store TTL tracks the challenge expiry, so revocation-by-time needs no
// sweeper. Codes are hashed before they get here.
type OTPStore struct {
	client *CacheClient
	nowFn  func() time.Time
}

func NewOTPStore(client *CacheClient) *OTPStore {
	return &OTPStore{client: client, nowFn: client.nowFn}
}

func otpKey(recipient, purpose string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, recipient)
}

func (s *OTPStore) Save(ctx context.Context, challenge domain.OTPChallenge) error {
	ttl := challenge.ExpiresAt.Sub(s.nowFn())
	if ttl <= 0 {
		return fmt.Errorf("otp save: %w: challenge already expired", domain.ErrInvalidInput)
	}
	key := otpKey(challenge.Recipient, challenge.Purpose)
	if err := s.client.SetJSON(ctx, key, challenge, ttl); err != nil {
		return mapStoreErr("otp save", err)
	}
	return nil
}

func (s *OTPStore) Load(ctx context.Context, recipient, purpose string) (domain.OTPChallenge, bool, error) {
	var challenge domain.OTPChallenge
	found, err := s.client.GetJSON(ctx, otpKey(recipient, purpose), &challenge)
	if err != nil {
		return domain.OTPChallenge{}, false, mapStoreErr("otp load", err)
	}
	return challenge, found, nil
}

func (s *OTPStore) Delete(ctx context.Context, recipient, purpose string) error {
	if _, err := s.client.Del(ctx, otpKey(recipient, purpose)); err != nil {
		return mapStoreErr("otp delete", err)
	}
	return nil
}
