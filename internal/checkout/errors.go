package checkout

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/shopspring/decimal"
)

const (
	GenericFailureMessage = "Failed to place order. Please try again."
	OnlinePaymentNotice   = "Online payment integration pending. Please use COD."
)

var (
	ErrInFlight       = errors.New("checkout already in progress")
	ErrNoPendingDraft = errors.New("no pending draft order")
	ErrDraftExpired   = errors.New("draft order expired")
)

type Rule string

const (
	RuleAddressRequired Rule = "address_required"
	RuleCartEmpty       Rule = "cart_empty"
	RuleInvalidSubtotal Rule = "invalid_subtotal"
	RuleInvalidTotal    Rule = "invalid_total"
	RuleInvalidItems    Rule = "invalid_items"
)

// ValidationError names the first pre-flight rule an attempt violated.
type ValidationError struct {
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout validation failed (%s): %s", e.Rule, e.Message)
}

// NegotiationError is a failed or malformed draft request.
type NegotiationError struct {
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("draft negotiation failed: %v", e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user.
func (e *NegotiationError) Message() string {
	return backend.DetailOr(e.Err, GenericFailureMessage)
}

// ConfirmationError is a failed finalize call. Err is the backend error as
// returned.
type ConfirmationError struct {
	DraftOrderID string
	Err          error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirm draft %s: %v", e.DraftOrderID, e.Err)
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

func (e *ConfirmationError) Message() string {
	return backend.DetailOr(e.Err, GenericFailureMessage)
}

// PriceMismatchNotice asks the user to accept or decline a server total that
// differs from the estimate. It is not an error.
type PriceMismatchNotice struct {
	ClientTotal decimal.Decimal `json:"client_total"`
	ServerTotal decimal.Decimal `json:"server_total"`
}

func (n PriceMismatchNotice) Message() string {
	return fmt.Sprintf("The order total has been updated from ₹%s to ₹%s. Please review and confirm.",
		n.ClientTotal.StringFixed(2), n.ServerTotal.StringFixed(2))
}
