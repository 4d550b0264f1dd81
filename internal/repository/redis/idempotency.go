package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedKeyPrefix = "angie_event:"

// IdempotencyStore records processed event ids with SET NX so redelivered
// Kafka messages are handled once across replicas.
type IdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose marks expire after ttl.
func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// MarkProcessed reports true the first time id is seen.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SetNX(ctx, processedKeyPrefix+id, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx event: %w", err)
	}
	return ok, nil
}

// Forget clears the mark so a failed event can be retried.
func (s *IdempotencyStore) Forget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, processedKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del event: %w", err)
	}
	return nil
}
