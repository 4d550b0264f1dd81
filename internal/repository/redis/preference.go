package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

const localeKeyPrefix = "language:"

// PreferenceRepository stores owner preferences in Redis without expiry.
type PreferenceRepository struct {
	client redis.UniversalClient
}

// NewPreferenceRepository creates a new Redis-backed preference repository.
func NewPreferenceRepository(client redis.UniversalClient) *PreferenceRepository {
	return &PreferenceRepository{client: client}
}

// GetLocale returns the stored locale.
func (r *PreferenceRepository) GetLocale(ctx context.Context, owner string) (string, error) {
	locale, err := r.client.Get(ctx, localeKeyPrefix+owner).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFound("locale preference", owner)
		}
		return "", fmt.Errorf("redis get locale: %w", err)
	}
	return locale, nil
}

// SetLocale stores locale.
func (r *PreferenceRepository) SetLocale(ctx context.Context, owner, locale string) error {
	if err := r.client.Set(ctx, localeKeyPrefix+owner, locale, 0).Err(); err != nil {
		return fmt.Errorf("redis set locale: %w", err)
	}
	return nil
}
