package tracking

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/order-engine/internal/backend"
)

var (
	ErrTipNotAllowed    = errors.New("tip not allowed for this order")
	ErrRatingNotAllowed = errors.New("rating not allowed for this order")
	ErrInFlight         = errors.New("request already in progress")
	ErrStopped          = errors.New("tracking stopped")
	ErrOrderNotFound    = errors.New("order not found")
)

// TipRangeError rejects a tip outside [MinTip, MaxTip] before any network call.
type TipRangeError struct {
	Input string
}

func (e *TipRangeError) Error() string {
	return fmt.Sprintf("Tip must be between ₹%d and ₹%d", MinTip, MaxTip)
}

// RatingError rejects a rating before any network call.
type RatingError struct {
	Message string
}

func (e *RatingError) Error() string {
	return e.Message
}

// ActionError is a failed tip or rating submission.
type ActionError struct {
	Action   string
	Err      error
	fallback string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func (e *ActionError) Message() string {
	return backend.DetailOr(e.Err, e.fallback)
}
