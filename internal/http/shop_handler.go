package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
)

type ShopStatusProvider interface {
	ShopStatus(ctx context.Context) (*domain.ShopStatus, error)
}

type ShopHandler struct {
	shop    ShopStatusProvider
	timeout time.Duration
}

func NewShopHandler(shop ShopStatusProvider, timeout time.Duration) *ShopHandler {
	return &ShopHandler{shop: shop, timeout: timeout}
}

// GET /api/v1/shop/status
func (h *ShopHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	status, err := h.shop.ShopStatus(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, status)
}
