package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/fjod/go_cart/order-engine/internal/cart"
	"github.com/fjod/go_cart/order-engine/internal/checkout"
	"github.com/fjod/go_cart/order-engine/internal/engine"
	"github.com/fjod/go_cart/order-engine/internal/orderitem"
	"github.com/fjod/go_cart/order-engine/internal/tracking"
	"github.com/fjod/go_cart/order-engine/pkg/circuitbreaker"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		loggerFrom(r.Context()).Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	respondJSON(w, r, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: err.Error(),
	})
}

// handleError maps engine errors to HTTP status codes.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *checkout.ValidationError
		buildErr        *orderitem.BuildError
		negotiationErr  *checkout.NegotiationError
		confirmationErr *checkout.ConfirmationError
		tipErr          *tracking.TipRangeError
		ratingErr       *tracking.RatingError
		actionErr       *tracking.ActionError
		apiErr          *backend.APIError
	)

	switch {
	case errors.As(err, &validationErr):
		respondError(w, r, http.StatusUnprocessableEntity, string(validationErr.Rule), validationErr.Message)
	case errors.As(err, &buildErr):
		respondErrorDetails(w, r, http.StatusUnprocessableEntity, "no_valid_items", "No valid items found in cart", err)
	case errors.As(err, &tipErr):
		respondError(w, r, http.StatusUnprocessableEntity, "invalid_tip", tipErr.Error())
	case errors.As(err, &ratingErr):
		respondError(w, r, http.StatusUnprocessableEntity, "invalid_rating", ratingErr.Message)

	case errors.Is(err, checkout.ErrInFlight), errors.Is(err, tracking.ErrInFlight):
		respondError(w, r, http.StatusConflict, "in_flight", "request already in progress")
	case errors.Is(err, checkout.ErrNoPendingDraft):
		respondError(w, r, http.StatusConflict, "no_pending_draft", "there is no draft order to confirm")
	case errors.Is(err, checkout.ErrDraftExpired):
		respondError(w, r, http.StatusGone, "draft_expired", "the draft order has expired, place the order again")
	case errors.Is(err, tracking.ErrTipNotAllowed):
		respondError(w, r, http.StatusConflict, "tip_not_allowed", "tip cannot be added to this order")
	case errors.Is(err, tracking.ErrRatingNotAllowed):
		respondError(w, r, http.StatusConflict, "rating_not_allowed", "this order cannot be rated")
	case errors.Is(err, tracking.ErrStopped):
		respondError(w, r, http.StatusGone, "tracking_stopped", "tracking has ended for this order")

	case errors.Is(err, tracking.ErrOrderNotFound):
		respondError(w, r, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, engine.ErrTrackerNotFound):
		respondError(w, r, http.StatusNotFound, "not_tracking", err.Error())
	case errors.Is(err, tracking.ErrBannerOrderUnknown):
		respondError(w, r, http.StatusNotFound, "not_on_banner", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, r, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, cart.ErrInvalidItem), errors.Is(err, cart.ErrQuantityNotTracked):
		respondError(w, r, http.StatusBadRequest, "invalid_item", err.Error())

	case errors.As(err, &negotiationErr):
		respondErrorDetails(w, r, http.StatusBadGateway, "negotiation_failed", negotiationErr.Message(), err)
	case errors.As(err, &confirmationErr):
		respondErrorDetails(w, r, http.StatusBadGateway, "confirmation_failed", confirmationErr.Message(), err)
	case errors.As(err, &actionErr):
		respondErrorDetails(w, r, http.StatusBadGateway, "action_failed", actionErr.Message(), err)

	case circuitbreaker.IsOpen(err):
		respondError(w, r, http.StatusServiceUnavailable, "service_unavailable", "backend temporarily unavailable")
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		respondError(w, r, status, "backend_error", backend.DetailOr(err, http.StatusText(apiErr.StatusCode)))
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, engine.ErrClosed):
		respondError(w, r, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		loggerFrom(r.Context()).Error("unhandled error", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
