package checkout

import (
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StateSubmitted     State = "submitted"
	StateAccepted      State = "accepted"
	StatePriceMismatch State = "price_mismatch"
	StateFailed        State = "failed"
	StateConfirmed     State = "confirmed"
)

// IsTerminal reports whether the attempt has finished. A new PlaceOrder may
// start from any terminal state.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed
}

func (s State) String() string {
	return string(s)
}

// Display is the order summary shown to the user. Server figures from the
// current draft win over client estimates field by field.
type Display struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	AppFee      decimal.Decimal `json:"app_fee"`
	Tip         decimal.Decimal `json:"tip_amount"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total_amount"`
	FromServer  bool            `json:"from_server"`
}

// serverFigures are the draft-derived values. Nil means "use the estimate".
type serverFigures struct {
	subtotal    *decimal.Decimal
	deliveryFee *decimal.Decimal
	appFee      *decimal.Decimal
	discount    *decimal.Decimal
	total       *decimal.Decimal
}

func figuresFrom(d *domain.DraftOrder) serverFigures {
	return serverFigures{
		subtotal:    ptr(d.Subtotal),
		deliveryFee: ptr(d.DeliveryFee),
		appFee:      ptr(d.AppFee),
		discount:    ptr(d.Discount),
		total:       ptr(d.TotalAmount),
	}
}

func ptr(v decimal.Decimal) *decimal.Decimal {
	return &v
}

func valueOr(v *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if v == nil {
		return fallback
	}
	return *v
}

// Inputs are the user choices a checkout is placed with.
type Inputs struct {
	Address       *domain.Address      `json:"delivery_address"`
	Tip           decimal.Decimal      `json:"tip_amount"`
	PromoCode     *string              `json:"promo_code"`
	Discount      decimal.Decimal      `json:"discount"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

// Outcome describes where a checkout call left the attempt.
type Outcome struct {
	State   State                `json:"state"`
	Draft   *domain.DraftOrder   `json:"draft,omitempty"`
	Notice  *PriceMismatchNotice `json:"price_mismatch,omitempty"`
	Message string               `json:"message,omitempty"`
	OrderID string               `json:"order_id,omitempty"`
}

// Snapshot is a point-in-time view of a checkout session.
type Snapshot struct {
	State   State              `json:"state"`
	Inputs  Inputs             `json:"inputs"`
	Display Display            `json:"display"`
	Draft   *domain.DraftOrder `json:"draft,omitempty"`
	Busy    bool               `json:"busy"`
}
