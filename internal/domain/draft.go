package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// DraftRequest is the body of POST /orders/draft.
type DraftRequest struct {
	Items           []OrderItemPayload `json:"items"`
	DeliveryAddress *Address           `json:"delivery_address"`
	TipAmount       float64            `json:"tip_amount"`
	PromoCode       *string            `json:"promo_code"`
}

// DraftOrder is a server-computed pricing proposal. The signature binds the
// totals and must be echoed back unmodified at confirmation.
type DraftOrder struct {
	DraftOrderID string          `json:"draft_order_id"`
	Signature    string          `json:"signature"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	AppFee       decimal.Decimal `json:"app_fee"`
	TipAmount    decimal.Decimal `json:"tip_amount"`
	Discount     decimal.Decimal `json:"discount"`
	ExpiresAt    Timestamp       `json:"expires_at"`
}

// Expired reports whether the draft is past its expiry. Drafts without an
// expiry never expire on the client side.
func (d *DraftOrder) Expired(now time.Time) bool {
	if d.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(d.ExpiresAt.Time)
}

// ConfirmRequest is the body of POST /orders/confirm.
type ConfirmRequest struct {
	DraftOrderID  string        `json:"draft_order_id"`
	Signature     string        `json:"signature"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}
