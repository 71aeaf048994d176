package checkout

import (
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/shopspring/decimal"
)

var maxOrderTotal = decimal.NewFromInt(100000)

// validate checks an attempt before any network call. total is the figure
// currently displayed to the user.
func validate(address *domain.Address, items []domain.CartLineItem, subtotal, total decimal.Decimal) *ValidationError {
	if address == nil {
		return &ValidationError{Rule: RuleAddressRequired, Message: "Please select a delivery address"}
	}
	if len(items) == 0 {
		return &ValidationError{Rule: RuleCartEmpty, Message: "Your cart is empty"}
	}
	if !subtotal.IsPositive() {
		return &ValidationError{Rule: RuleInvalidSubtotal, Message: "Invalid cart amount"}
	}
	if !total.IsPositive() || total.GreaterThan(maxOrderTotal) {
		return &ValidationError{Rule: RuleInvalidTotal, Message: "Invalid order amount"}
	}
	for _, item := range items {
		if item.ID == "" || !item.SellingPrice.IsPositive() || item.LineQuantity() <= 0 {
			return &ValidationError{Rule: RuleInvalidItems, Message: "Some items in your cart are invalid"}
		}
	}
	return nil
}
