package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const wishlistKeyPrefix = "angie_wishlist:"

// WishlistRepository keeps each owner's wishlist in a sorted set scored by
// the time the product was added.
type WishlistRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewWishlistRepository creates a new Redis-backed wishlist repository.
func NewWishlistRepository(client redis.UniversalClient) *WishlistRepository {
	return &WishlistRepository{client: client, now: time.Now}
}

// List returns product ids oldest first.
func (r *WishlistRepository) List(ctx context.Context, owner string) ([]string, error) {
	ids, err := r.client.ZRange(ctx, wishlistKeyPrefix+owner, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange wishlist: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Add saves productID unless it is already present.
func (r *WishlistRepository) Add(ctx context.Context, owner, productID string) (bool, error) {
	n, err := r.client.ZAddNX(ctx, wishlistKeyPrefix+owner, redis.Z{
		Score:  float64(r.now().UnixNano()),
		Member: productID,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("redis zadd wishlist: %w", err)
	}
	return n == 1, nil
}

// Remove deletes productID.
func (r *WishlistRepository) Remove(ctx context.Context, owner, productID string) (bool, error) {
	n, err := r.client.ZRem(ctx, wishlistKeyPrefix+owner, productID).Result()
	if err != nil {
		return false, fmt.Errorf("redis zrem wishlist: %w", err)
	}
	return n == 1, nil
}

// Contains reports whether productID is saved.
func (r *WishlistRepository) Contains(ctx context.Context, owner, productID string) (bool, error) {
	_, err := r.client.ZScore(ctx, wishlistKeyPrefix+owner, productID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis zscore wishlist: %w", err)
	}
	return true, nil
}
