package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/cart"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	timeout time.Duration
}

func NewCartHandler(timeout time.Duration) *CartHandler {
	return &CartHandler{timeout: timeout}
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Scope     domain.Scope          `json:"scope"`
	Products  []domain.CartLineItem `json:"products"`
	Services  []domain.CartLineItem `json:"services"`
	Subtotal  decimal.Decimal       `json:"subtotal"`
	ItemCount int                   `json:"item_count"`
}

func cartResponse(c *cart.Cart) CartResponseDTO {
	products, services := c.Partition()
	if products == nil {
		products = []domain.CartLineItem{}
	}
	if services == nil {
		services = []domain.CartLineItem{}
	}
	return CartResponseDTO{
		Scope:     c.Scope(),
		Products:  products,
		Services:  services,
		Subtotal:  c.Subtotal(),
		ItemCount: c.ItemCount(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, cartResponse(sessionFrom(r.Context()).Cart))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item domain.CartLineItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c := sessionFrom(r.Context()).Cart
	if err := c.AddItem(r.Context(), item); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, cartResponse(c))
}

// PUT /api/v1/cart/items/{item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	c := sessionFrom(r.Context()).Cart
	if err := c.SetQuantity(r.Context(), chi.URLParam(r, "item_id"), req.Quantity); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}

// DELETE /api/v1/cart/items/{item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	if err := c.RemoveItem(r.Context(), chi.URLParam(r, "item_id")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}

// DELETE /api/v1/cart
//
// The optional scope query parameter selects guest or user; it defaults to
// the scope of the request.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	scope := c.Scope()
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scope = domain.Scope(raw)
		if scope != domain.ScopeGuest && scope != domain.ScopeUser {
			respondError(w, r, http.StatusBadRequest, "invalid_scope", "scope must be guest or user")
			return
		}
		if scope == domain.ScopeUser && !isAuthenticated(r.Context()) {
			respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
	}

	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	if err := c.Clear(ctx, scope); err != nil {
		respondErrorDetails(w, r, http.StatusBadGateway, "clear_failed", "Failed to clear cart", err)
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}
