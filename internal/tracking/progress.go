// Package tracking follows a placed order through delivery: status polling,
// step progress, the delivery countdown and the tip and rating side-flows.
package tracking

import "github.com/fjod/go_cart/order-engine/internal/domain"

type Step struct {
	Status domain.OrderStatus `json:"status"`
	Label  string             `json:"label"`
}

// Steps is the ordered delivery state machine.
var Steps = []Step{
	{domain.OrderStatusConfirmed, "Confirmed"},
	{domain.OrderStatusPreparing, "Preparing"},
	{domain.OrderStatusAssigning, "Finding Partner"},
	{domain.OrderStatusAssigned, "Assigned"},
	{domain.OrderStatusOutForDelivery, "On the Way"},
	{domain.OrderStatusArrived, "Arrived"},
	{domain.OrderStatusDelivered, "Delivered"},
}

// StepIndex finds status in Steps, ignoring case.
func StepIndex(status domain.OrderStatus) (int, bool) {
	n := status.Normalize()
	for i, s := range Steps {
		if s.Status == n {
			return i, true
		}
	}
	return 0, false
}

type Progress struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Fraction float64 `json:"fraction"`
	Known    bool    `json:"known"`
}

// ProgressFor maps a status to its step. Unknown statuses sit on the first
// step and keep the raw status as label.
func ProgressFor(status domain.OrderStatus) Progress {
	idx, ok := StepIndex(status)
	label := string(status)
	if ok {
		label = Steps[idx].Label
	}
	return Progress{
		Index:    idx,
		Label:    label,
		Fraction: float64(idx+1) / float64(len(Steps)),
		Known:    ok,
	}
}
