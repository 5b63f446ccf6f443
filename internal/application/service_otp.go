package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// scopeOTPIssue is the limiter scope guarding per-recipient issuance.
const scopeOTPIssue = "otp_issue"

var otpChannels = map[string]bool{"sms": true, "email": true}

// IssueOTP generates a one-time code, stores its hash with a short TTL and
// returns the code to the calling service for delivery. Issuance is
// rate-limited per recipient so a stolen session cannot flood someone's phone.
func (s *Service) IssueOTP(ctx context.Context, actor Actor, recipient, channel, purpose string) (domain.OTPIssued, error) {
	if err := requireActor(actor); err != nil {
		return domain.OTPIssued{}, err
	}
	recipient, err := normalizeIdentifier(recipient)
	if err != nil {
		return domain.OTPIssued{}, err
	}
	channel = strings.ToLower(strings.TrimSpace(channel))
	if !otpChannels[channel] {
		return domain.OTPIssued{}, fmt.Errorf("%w: unsupported channel %q", domain.ErrInvalidInput, channel)
	}
	purpose = strings.ToLower(strings.TrimSpace(purpose))
	if purpose == "" {
		return domain.OTPIssued{}, fmt.Errorf("%w: purpose is required", domain.ErrInvalidInput)
	}

	if limiter, ok := s.limiters[scopeOTPIssue]; ok {
		decision := limiter.Check(ctx, scopeOTPIssue+":"+recipient)
		if !decision.Allowed {
			return domain.OTPIssued{}, fmt.Errorf("%w: retry in %ds", domain.ErrRateLimited, ceilSeconds(decision.RetryAfter))
		}
	}

	now := s.nowFn()
	code := randomDigits(s.cfg.OTPLength)
	challenge := domain.OTPChallenge{
		Recipient: recipient,
		Channel:   channel,
		Purpose:   purpose,
		CodeHash:  hashToken(code),
		Attempts:  0,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
	}
	if err := s.otps.Save(ctx, challenge); err != nil {
		return domain.OTPIssued{}, err
	}

	s.publishEvent(ctx, eventTypeOTPIssued, recipient, map[string]any{
		"recipient":  recipient,
		"channel":    channel,
		"purpose":    purpose,
		"expires_at": challenge.ExpiresAt,
	})
	return domain.OTPIssued{
		Recipient: recipient,
		Channel:   channel,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// VerifyOTP consumes a challenge on success. Wrong codes burn an attempt;
// once attempts run out the challenge is destroyed so brute force cannot
// continue against it.
func (s *Service) VerifyOTP(ctx context.Context, actor Actor, recipient, purpose, code string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	recipient, err := normalizeIdentifier(recipient)
	if err != nil {
		return err
	}
	purpose = strings.ToLower(strings.TrimSpace(purpose))
	code = strings.TrimSpace(code)
	if purpose == "" || code == "" {
		return fmt.Errorf("%w: purpose and code are required", domain.ErrInvalidInput)
	}

	challenge, found, err := s.otps.Load(ctx, recipient, purpose)
	if err != nil {
		return err
	}
	if !found || s.nowFn().After(challenge.ExpiresAt) {
		return domain.ErrOTPExpired
	}

	if hashToken(code) != challenge.CodeHash {
		challenge.Attempts++
		if challenge.Attempts >= s.cfg.OTPMaxAttempts {
			if err := s.otps.Delete(ctx, recipient, purpose); err != nil {
				s.logWarn(ctx, "verify_otp", "challenge cleanup failed", err)
			}
			return domain.ErrOTPAttemptsExceeded
		}
		if err := s.otps.Save(ctx, challenge); err != nil {
			s.logWarn(ctx, "verify_otp", "attempt count persist failed", err)
		}
		return domain.ErrOTPInvalid
	}

	if err := s.otps.Delete(ctx, recipient, purpose); err != nil {
		// The code was right; a failed cleanup must not flip the outcome.
		// TTL removes the challenge shortly anyway.
		s.logWarn(ctx, "verify_otp", "challenge cleanup failed", err)
	}
	return nil
}

func (s *Service) logWarn(ctx context.Context, operation, msg string, err error) {
	slog.Default().WarnContext(ctx, msg,
		"service", s.cfg.ServiceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", "warning",
		"error", err,
	)
}
