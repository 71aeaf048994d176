package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCartTTL      = 15 * time.Minute
	defaultDismissalTTL = 7 * 24 * time.Hour
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:       client,
		baseTTL:      defaultCartTTL,
		dismissalTTL: defaultDismissalTTL,
	}
}

type RedisCache struct {
	client       *redis.Client
	baseTTL      time.Duration
	dismissalTTL time.Duration
}

// WithTTL overrides the base cart TTL. Jitter of up to five minutes is
// always added on top.
func (r *RedisCache) WithTTL(ttl time.Duration) *RedisCache {
	if ttl > 0 {
		r.baseTTL = ttl
	}
	return r
}

func (r *RedisCache) Load(ctx context.Context, session string, scope domain.Scope) ([]domain.CartLineItem, error) {
	data, err := r.client.Get(ctx, cartKey(session, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []domain.CartLineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, nil
}

func (r *RedisCache) Save(ctx context.Context, session string, scope domain.Scope, items []domain.CartLineItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cartKey(session, scope), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, session string, scope domain.Scope) error {
	if err := r.client.Del(ctx, cartKey(session, scope)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) IsDismissed(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	n, err := r.client.Exists(ctx, dismissalKey(orderID, status)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisCache) Dismiss(ctx context.Context, orderID string, status domain.OrderStatus) error {
	if err := r.client.Set(ctx, dismissalKey(orderID, status), "true", r.dismissalTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cartKey(session string, scope domain.Scope) string {
	return fmt.Sprintf("cart:%s:%s", session, scope)
}

func dismissalKey(orderID string, status domain.OrderStatus) string {
	return fmt.Sprintf("dismissed_%s_%s", orderID, status.Normalize())
}
