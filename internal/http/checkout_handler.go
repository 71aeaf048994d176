package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/checkout"
)

type CheckoutHandler struct {
	timeout time.Duration
}

func NewCheckoutHandler(timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{timeout: timeout}
}

// OutcomeResponseDTO is a checkout outcome plus the figures now on display.
type OutcomeResponseDTO struct {
	*checkout.Outcome
	NoticeMessage string           `json:"notice_message,omitempty"`
	Display       checkout.Display `json:"display"`
}

func outcomeResponse(s *checkout.Session, out *checkout.Outcome) OutcomeResponseDTO {
	resp := OutcomeResponseDTO{Outcome: out, Display: s.Display()}
	if out.Notice != nil {
		resp.NoticeMessage = out.Notice.Message()
	}
	return resp
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, sessionFrom(r.Context()).Checkout.Snapshot())
}

// PUT /api/v1/checkout
func (h *CheckoutHandler) UpdateInputs(w http.ResponseWriter, r *http.Request) {
	var in checkout.Inputs
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := sessionFrom(r.Context()).Checkout
	if err := s.SetInputs(in); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_inputs", err.Error())
		return
	}
	respondJSON(w, r, http.StatusOK, s.Snapshot())
}

// POST /api/v1/checkout/place
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	s := sessionFrom(r.Context()).Checkout
	out, err := s.PlaceOrder(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, statusFor(out), outcomeResponse(s, out))
}

// POST /api/v1/checkout/accept
func (h *CheckoutHandler) AcceptPrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	s := sessionFrom(r.Context()).Checkout
	out, err := s.AcceptPrice(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, statusFor(out), outcomeResponse(s, out))
}

// POST /api/v1/checkout/confirm
func (h *CheckoutHandler) RetryConfirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	s := sessionFrom(r.Context()).Checkout
	out, err := s.RetryConfirm(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, statusFor(out), outcomeResponse(s, out))
}

// POST /api/v1/checkout/decline
func (h *CheckoutHandler) DeclinePrice(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context()).Checkout
	if err := s.DeclinePrice(r.Context()); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, s.Snapshot())
}

func statusFor(out *checkout.Outcome) int {
	if out.State == checkout.StateConfirmed {
		return http.StatusCreated
	}
	return http.StatusOK
}
