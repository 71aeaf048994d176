package tracking

import (
	"fmt"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
)

// DeliveryWindow is the promised delivery time counted from assignment.
const DeliveryWindow = 30 * time.Minute

const urgentBelow = 5 * time.Minute

type TimerStatus string

const (
	TimerWaiting  TimerStatus = "waiting"
	TimerActive   TimerStatus = "active"
	TimerOvertime TimerStatus = "overtime"
	TimerStopped  TimerStatus = "stopped"
)

// Countdown is the derived delivery timer. Remaining is nil while waiting
// and once stopped.
type Countdown struct {
	Status    TimerStatus
	Remaining *time.Duration
}

func countingStatus(s domain.OrderStatus) bool {
	switch s.Normalize() {
	case domain.OrderStatusAssigned, domain.OrderStatusOutForDelivery, domain.OrderStatusArrived:
		return true
	}
	return false
}

// ComputeCountdown derives the timer from the order status and its anchor
// time. It has no side effects.
func ComputeCountdown(status domain.OrderStatus, createdAt time.Time, assignedAt *time.Time, now time.Time) Countdown {
	if status.Normalize() == domain.OrderStatusDelivered {
		return Countdown{Status: TimerStopped}
	}
	if !countingStatus(status) {
		return Countdown{Status: TimerWaiting}
	}

	anchor := createdAt
	if assignedAt != nil && !assignedAt.IsZero() {
		anchor = *assignedAt
	}
	remaining := anchor.Add(DeliveryWindow).Sub(now)
	if remaining <= 0 {
		zero := time.Duration(0)
		return Countdown{Status: TimerOvertime, Remaining: &zero}
	}
	remaining = remaining.Truncate(time.Second)
	return Countdown{Status: TimerActive, Remaining: &remaining}
}

// Display renders the remaining time as MM:SS.
func (c Countdown) Display() string {
	if c.Status == TimerOvertime {
		return "Soon"
	}
	if c.Remaining == nil {
		return "Waiting..."
	}
	secs := int(c.Remaining.Seconds())
	if secs <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func (c Countdown) Label() string {
	switch c.Status {
	case TimerWaiting:
		return "Waiting for Assignment"
	case TimerStopped:
		return "Delivered"
	case TimerOvertime:
		return "Delivering Soon"
	}
	return "Estimated Delivery"
}

// Urgent is true during the last five minutes of an active countdown.
func (c Countdown) Urgent() bool {
	return c.Status == TimerActive && c.Remaining != nil && *c.Remaining < urgentBelow
}

type TimerView struct {
	Status  TimerStatus `json:"status"`
	Seconds *int        `json:"seconds"`
	Display string      `json:"display"`
	Label   string      `json:"label"`
	Urgent  bool        `json:"urgent"`
	Notice  string      `json:"notice,omitempty"`
}

func (c Countdown) View() TimerView {
	v := TimerView{
		Status:  c.Status,
		Display: c.Display(),
		Label:   c.Label(),
		Urgent:  c.Urgent(),
	}
	if c.Remaining != nil {
		secs := int(c.Remaining.Seconds())
		v.Seconds = &secs
	}
	if c.Status == TimerOvertime {
		v.Notice = "Taking a bit longer than expected. Delivering soon!"
	}
	return v
}
