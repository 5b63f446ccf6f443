package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// profileFieldSet lists the hash fields a caller may select. Unknown names
// are rejected up front so typos read as errors instead of silent misses.
var profileFieldSet = map[string]bool{
	"user_id":        true,
	"username":       true,
	"display_name":   true,
	"bio":            true,
	"avatar_url":     true,
	"follower_count": true,
	"verified":       true,
	"updated_at":     true,
}

func normalizeProfileFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !profileFieldSet[f] {
			return nil, fmt.Errorf("%w: unknown profile field %q", domain.ErrInvalidInput, f)
		}
		out = append(out, f)
	}
	return out, nil
}

// PutProfile caches a profile projection, optionally restricted to a field
// subset. A zero TTL defers to the profile namespace default.
func (s *Service) PutProfile(ctx context.Context, actor Actor, profile domain.Profile, fields []string, ttlSeconds int) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	profile.UserID = strings.TrimSpace(profile.UserID)
	if profile.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if ttlSeconds < 0 {
		return fmt.Errorf("%w: ttl_seconds must not be negative", domain.ErrInvalidInput)
	}
	normalized, err := normalizeProfileFields(fields)
	if err != nil {
		return err
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = s.nowFn()
	}
	return s.profiles.Put(ctx, profile, normalized, time.Duration(ttlSeconds)*time.Second)
}

func (s *Service) GetProfile(ctx context.Context, actor Actor, userID string, fields []string) (domain.Profile, error) {
	if err := requireActor(actor); err != nil {
		return domain.Profile{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	normalized, err := normalizeProfileFields(fields)
	if err != nil {
		return domain.Profile{}, err
	}
	profile, found, err := s.profiles.Get(ctx, userID, normalized)
	if err != nil {
		return domain.Profile{}, err
	}
	if !found {
		return domain.Profile{}, fmt.Errorf("%w: profile %q not cached", domain.ErrNotFound, userID)
	}
	return profile, nil
}

func (s *Service) DeleteProfile(ctx context.Context, actor Actor, userID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	return s.profiles.Delete(ctx, userID)
}
