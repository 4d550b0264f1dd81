package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/repository"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

const cartKeyPrefix = "angie_cart:"

// CartRepository implements repository.CartRepository using Redis.
type CartRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository.
func NewCartRepository(client redis.UniversalClient, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the owner's cart snapshot from Redis.
func (r *CartRepository) Get(ctx context.Context, owner string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+owner).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", owner)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w: %w", repository.ErrCorruptSnapshot, err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	return &cart, nil
}

// Save persists a cart snapshot with the configured TTL.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, cartKeyPrefix+cart.Owner, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

// Delete removes the owner's cart snapshot.
func (r *CartRepository) Delete(ctx context.Context, owner string) error {
	if err := r.client.Del(ctx, cartKeyPrefix+owner).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}

	return nil
}
