// Package pricing computes the provisional client-side fee estimate shown
// before the backend returns an authoritative draft.
package pricing

import "github.com/shopspring/decimal"

// DefaultAppFee is charged on any non-empty cart when an app fee is configured.
var DefaultAppFee = decimal.NewFromInt(5)

type DeliveryFeeConfig struct {
	BaseFee               decimal.Decimal `json:"base_fee"`
	MinFee                decimal.Decimal `json:"min_fee"`
	FreeDeliveryThreshold decimal.Decimal `json:"free_delivery_threshold"`
}

type AppFeeConfig struct {
	FlatFee decimal.Decimal `json:"flat_fee"`
}

// FeeConfig is the fee configuration for a checkout. A nil section means the
// fee is not charged.
type FeeConfig struct {
	Delivery *DeliveryFeeConfig `json:"delivery_fee,omitempty"`
	App      *AppFeeConfig      `json:"app_fee,omitempty"`
}

// Estimate is the client-side breakdown of an order total.
type Estimate struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	AppFee      decimal.Decimal `json:"app_fee"`
	Tip         decimal.Decimal `json:"tip_amount"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total_amount"`
}

func DeliveryFee(subtotal decimal.Decimal, cfg *DeliveryFeeConfig) decimal.Decimal {
	if cfg == nil {
		return decimal.Zero
	}
	if subtotal.GreaterThanOrEqual(cfg.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return decimal.Max(cfg.BaseFee, cfg.MinFee)
}

func AppFee(subtotal decimal.Decimal, cfg *AppFeeConfig) decimal.Decimal {
	if cfg == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	if cfg.FlatFee.IsZero() {
		return DefaultAppFee
	}
	return cfg.FlatFee
}

// Estimate computes subtotal + delivery fee + app fee + tip - discount.
func (c FeeConfig) Estimate(subtotal, tip, discount decimal.Decimal) Estimate {
	e := Estimate{
		Subtotal:    subtotal,
		DeliveryFee: DeliveryFee(subtotal, c.Delivery),
		AppFee:      AppFee(subtotal, c.App),
		Tip:         tip,
		Discount:    discount,
	}
	e.Total = e.Subtotal.Add(e.DeliveryFee).Add(e.AppFee).Add(e.Tip).Sub(e.Discount)
	return e
}
