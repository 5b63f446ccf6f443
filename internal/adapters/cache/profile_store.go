package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// ProfileStore caches rendered user profiles as hashes so readers can pull
// only the fields they render. Writes go through the partial-hash helper,
// which picks up the "user" namespace TTL; reads refresh that TTL when the
// client is configured to.
type ProfileStore struct {
	client *CacheClient
}

func NewProfileStore(client *CacheClient) *ProfileStore {
	return &ProfileStore{client: client}
}

func profileKey(userID string) string {
	return "user:profile:" + userID
}

func (s *ProfileStore) Put(ctx context.Context, profile domain.Profile, fields []string, ttl time.Duration) error {
	if profile.UserID == "" {
		return fmt.Errorf("profile put: %w: user id is required", domain.ErrInvalidInput)
	}
	err := s.client.CachePartialHash(ctx, profileKey(profile.UserID), profileFields(profile), fields, ttl)
	if err != nil {
		return mapStoreErr("profile put", err)
	}
	return nil
}

func (s *ProfileStore) Get(ctx context.Context, userID string, fields []string) (domain.Profile, bool, error) {
	values, found, err := s.client.GetPartialHash(ctx, profileKey(userID), fields)
	if err != nil {
		return domain.Profile{}, false, mapStoreErr("profile get", err)
	}
	if !found {
		return domain.Profile{}, false, nil
	}
	return profileFromFields(userID, values), true, nil
}

func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.client.Del(ctx, profileKey(userID)); err != nil {
		return mapStoreErr("profile delete", err)
	}
	return nil
}

func profileFields(p domain.Profile) map[string]any {
	return map[string]any{
		"user_id":        p.UserID,
		"username":       p.Username,
		"display_name":   p.DisplayName,
		"bio":            p.Bio,
		"avatar_url":     p.AvatarURL,
		"follower_count": p.FollowerCount,
		"verified":       p.Verified,
		"updated_at":     p.UpdatedAt,
	}
}

// profileFromFields rebuilds a profile from whichever fields were cached.
// Values come back as generic JSON types, so numbers arrive as float64 and
// timestamps as RFC 3339 strings.
func profileFromFields(userID string, fields map[string]any) domain.Profile {
	p := domain.Profile{UserID: userID}
	if v, ok := fields["user_id"].(string); ok && v != "" {
		p.UserID = v
	}
	if v, ok := fields["username"].(string); ok {
		p.Username = v
	}
	if v, ok := fields["display_name"].(string); ok {
		p.DisplayName = v
	}
	if v, ok := fields["bio"].(string); ok {
		p.Bio = v
	}
	if v, ok := fields["avatar_url"].(string); ok {
		p.AvatarURL = v
	}
	if v, ok := fields["follower_count"].(float64); ok {
		p.FollowerCount = int64(v)
	}
	if v, ok := fields["verified"].(bool); ok {
		p.Verified = v
	}
	if v, ok := fields["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.UpdatedAt = t
		}
	}
	return p
}
