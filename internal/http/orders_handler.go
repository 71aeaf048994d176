package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/internal/tracking"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	timeout time.Duration
}

func NewOrdersHandler(timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{timeout: timeout}
}

// TipRequestDTO carries either a preset amount or the text of a custom tip.
type TipRequestDTO struct {
	TipAmount    *int   `json:"tip_amount"`
	CustomAmount string `json:"custom_amount"`
}

type RatingRequestDTO struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

type DismissRequestDTO struct {
	OrderStatus domain.OrderStatus `json:"order_status"`
}

func orderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "order_id")
	if id == "" {
		respondError(w, r, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return "", false
	}
	return id, true
}

func respondView(w http.ResponseWriter, r *http.Request, status int, t *tracking.Tracker) {
	v := t.View()
	if v.NotFound {
		respondError(w, r, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	respondJSON(w, r, status, v)
}

// POST /api/v1/orders/{order_id}/tracking
func (h *OrdersHandler) StartTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	t, err := sessionFrom(r.Context()).Track(ctx, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondView(w, r, http.StatusCreated, t)
}

// GET /api/v1/orders/{order_id}/tracking
func (h *OrdersHandler) GetTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	t, err := sessionFrom(r.Context()).Tracker(id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondView(w, r, http.StatusOK, t)
}

// DELETE /api/v1/orders/{order_id}/tracking
func (h *OrdersHandler) StopTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := sessionFrom(r.Context()).StopTracking(id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/orders/{order_id}/tip
func (h *OrdersHandler) AddTip(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req TipRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	t, err := sessionFrom(r.Context()).Tracker(id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	switch {
	case req.TipAmount != nil:
		err = t.AddTip(ctx, *req.TipAmount)
	default:
		_, err = t.AddTipInput(ctx, req.CustomAmount)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondView(w, r, http.StatusOK, t)
}

// POST /api/v1/orders/{order_id}/rating
func (h *OrdersHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req RatingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	t, err := sessionFrom(r.Context()).Tracker(id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	if err := t.SubmitRating(ctx, req.Rating, req.Review); err != nil {
		handleError(w, r, err)
		return
	}
	respondView(w, r, http.StatusOK, t)
}

// DELETE /api/v1/orders/{order_id}/rating
func (h *OrdersHandler) DismissRating(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	t, err := sessionFrom(r.Context()).Tracker(id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	t.DismissRating()
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/orders/active/banner
func (h *OrdersHandler) GetBanner(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	// A failed fetch hides the banner.
	items, err := sessionFrom(r.Context()).Banner.Current(ctx)
	if err != nil || items == nil {
		items = []tracking.BannerItem{}
	}
	respondJSON(w, r, http.StatusOK, items)
}

// POST /api/v1/orders/{order_id}/banner/dismiss
func (h *OrdersHandler) DismissBanner(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req DismissRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	if err := sessionFrom(r.Context()).Banner.Dismiss(ctx, id, req.OrderStatus); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
