package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/order-engine/internal/domain"
)

// CartStore keeps per-scope cart snapshots of a device session.
type CartStore interface {
	Load(ctx context.Context, session string, scope domain.Scope) ([]domain.CartLineItem, error)
	Save(ctx context.Context, session string, scope domain.Scope, items []domain.CartLineItem) error
	Delete(ctx context.Context, session string, scope domain.Scope) error
}

// DismissalStore remembers banners the user closed for an (order, status) pair.
type DismissalStore interface {
	IsDismissed(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error)
	Dismiss(ctx context.Context, orderID string, status domain.OrderStatus) error
}

var ErrCacheMiss = errors.New("cache miss")
