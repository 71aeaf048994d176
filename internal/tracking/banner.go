package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/cache"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"go.uber.org/zap"
)

const DefaultBannerInterval = 15 * time.Second

var ErrBannerOrderUnknown = errors.New("order is not on the banner")

var bannerProgress = map[domain.OrderStatus]int{
	domain.OrderStatusConfirmed:      14,
	domain.OrderStatusPreparing:      28,
	domain.OrderStatusAssigning:      42,
	domain.OrderStatusAssigned:       57,
	domain.OrderStatusOutForDelivery: 71,
	domain.OrderStatusArrived:        85,
	domain.OrderStatusDelivered:      100,
}

type ActiveOrderLister interface {
	ActiveOrders(ctx context.Context) ([]domain.ActiveOrder, error)
}

type BannerItem struct {
	OrderID       string             `json:"order_id"`
	Status        domain.OrderStatus `json:"order_status"`
	StatusMessage string             `json:"status_message"`
	Label         string             `json:"label"`
	Progress      int                `json:"progress"`
	TotalAmount   string             `json:"total_amount"`
}

func bannerItem(o domain.ActiveOrder) BannerItem {
	item := BannerItem{
		OrderID:       o.ID,
		Status:        o.OrderStatus,
		StatusMessage: o.StatusMessage,
		Label:         "Processing",
		Progress:      20,
		TotalAmount:   o.TotalAmount.StringFixed(2),
	}
	if idx, ok := StepIndex(o.OrderStatus); ok {
		item.Label = Steps[idx].Label
		item.Progress = bannerProgress[Steps[idx].Status]
	}
	return item
}

// Banner lists the user's undelivered orders, minus the ones dismissed at
// their current status.
type Banner struct {
	api      ActiveOrderLister
	store    cache.DismissalStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	items     []BannerItem
	refreshed time.Time
}

func NewBanner(api ActiveOrderLister, store cache.DismissalStore, interval time.Duration, logger *zap.Logger) *Banner {
	if interval <= 0 {
		interval = DefaultBannerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Banner{api: api, store: store, interval: interval, logger: logger, now: time.Now}
}

// Current returns the banner, refetching when the last fetch is older than
// the refresh interval.
func (b *Banner) Current(ctx context.Context) ([]BannerItem, error) {
	b.mu.Lock()
	fresh := !b.refreshed.IsZero() && b.now().Sub(b.refreshed) < b.interval
	b.mu.Unlock()
	if fresh {
		return b.Items(), nil
	}
	return b.Refresh(ctx)
}

// Refresh refetches active orders. A failed fetch hides the banner.
func (b *Banner) Refresh(ctx context.Context) ([]BannerItem, error) {
	orders, err := b.api.ActiveOrders(ctx)
	if err != nil {
		b.set(nil)
		b.logger.Warn("failed to fetch active orders", zap.Error(err))
		return nil, err
	}

	items := make([]BannerItem, 0, len(orders))
	for _, o := range orders {
		if o.OrderStatus.Normalize() == domain.OrderStatusDelivered {
			continue
		}
		if b.store != nil {
			dismissed, err := b.store.IsDismissed(ctx, o.ID, o.OrderStatus)
			if err != nil {
				b.logger.Warn("dismissal lookup failed", zap.String("order_id", o.ID), zap.Error(err))
			}
			if dismissed {
				continue
			}
		}
		items = append(items, bannerItem(o))
	}
	b.set(items)
	return items, nil
}

// Dismiss hides orderID until its status changes. An empty status uses the
// status last shown for that order.
func (b *Banner) Dismiss(ctx context.Context, orderID string, status domain.OrderStatus) error {
	b.mu.Lock()
	idx := -1
	for i, item := range b.items {
		if item.OrderID == orderID {
			idx = i
			break
		}
	}
	if status == "" {
		if idx < 0 {
			b.mu.Unlock()
			return ErrBannerOrderUnknown
		}
		status = b.items[idx].Status
	}
	if idx >= 0 {
		b.items = append(b.items[:idx:idx], b.items[idx+1:]...)
	}
	b.mu.Unlock()

	if b.store == nil {
		return nil
	}
	return b.store.Dismiss(ctx, orderID, status)
}

func (b *Banner) Items() []BannerItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BannerItem, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Banner) set(items []BannerItem) {
	b.mu.Lock()
	b.items = items
	b.refreshed = b.now()
	b.mu.Unlock()
}
