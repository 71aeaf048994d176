package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func sampleItems() []domain.CartLineItem {
	return []domain.CartLineItem{
		{ID: "p1", Name: "Milk", ServiceType: domain.ServiceProduct, Quantity: 2, SellingPrice: decimal.NewFromInt(30)},
		{ID: "s1", ServiceType: domain.ServicePrintout, SellingPrice: decimal.NewFromInt(15), Details: &domain.DocumentPrintDetails{
			NumberOfPages: 4,
			Copies:        "2",
			Documents:     []domain.UploadedFile{{ID: "d1", CloudURL: "https://cdn/doc.pdf"}},
		}},
	}
}

func TestLoad_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	raw, err := json.Marshal(sampleItems())
	require.NoError(t, err)
	require.NoError(t, mr.Set(cartKey("dev1", domain.ScopeGuest), string(raw)))

	items, err := cache.Load(context.Background(), "dev1", domain.ScopeGuest)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)

	doc, ok := items[1].Details.(*domain.DocumentPrintDetails)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/doc.pdf", doc.Documents[0].CloudURL)
}

func TestLoad_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	items, err := cache.Load(context.Background(), "nobody", domain.ScopeUser)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, items)
}

func TestLoad_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set(cartKey("dev1", domain.ScopeUser), `[{"id":`))

	_, err := cache.Load(context.Background(), "dev1", domain.ScopeUser)
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSave_ScopesAreSeparate(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cache.Save(ctx, "dev1", domain.ScopeGuest, sampleItems()))

	assert.True(t, mr.Exists("cart:dev1:guest"))
	assert.False(t, mr.Exists("cart:dev1:user"))

	items, err := cache.Load(ctx, "dev1", domain.ScopeGuest)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSave_WithTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Save(context.Background(), "dev2", domain.ScopeUser, sampleItems()))

	ttl := mr.TTL(cartKey("dev2", domain.ScopeUser))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestDelete_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cache.Save(ctx, "dev3", domain.ScopeGuest, sampleItems()))
	require.True(t, mr.Exists(cartKey("dev3", domain.ScopeGuest)))

	require.NoError(t, cache.Delete(ctx, "dev3", domain.ScopeGuest))
	assert.False(t, mr.Exists(cartKey("dev3", domain.ScopeGuest)))

	// Deleting a missing key is fine.
	assert.NoError(t, cache.Delete(ctx, "dev3", domain.ScopeGuest))
}

func TestDismissal(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	dismissed, err := cache.IsDismissed(ctx, "ord_1", domain.OrderStatusAssigned)
	require.NoError(t, err)
	assert.False(t, dismissed)

	require.NoError(t, cache.Dismiss(ctx, "ord_1", "Assigned"))
	assert.True(t, mr.Exists("dismissed_ord_1_assigned"))

	dismissed, err = cache.IsDismissed(ctx, "ord_1", domain.OrderStatusAssigned)
	require.NoError(t, err)
	assert.True(t, dismissed)

	dismissed, err = cache.IsDismissed(ctx, "ord_1", domain.OrderStatusOutForDelivery)
	require.NoError(t, err)
	assert.False(t, dismissed, "a new status shows the banner again")
}

func TestRedisDown(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	_, err := cache.Load(context.Background(), "dev1", domain.ScopeGuest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "cart:abc:guest", cartKey("abc", domain.ScopeGuest))
	assert.Equal(t, "dismissed_o1_out_for_delivery", dismissalKey("o1", "OUT_FOR_DELIVERY"))
}
