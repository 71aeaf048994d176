package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusAssigning      OrderStatus = "assigning"
	OrderStatusAssigned       OrderStatus = "assigned"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusArrived        OrderStatus = "arrived"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Normalize lower-cases and trims a raw status string from the backend.
func (s OrderStatus) Normalize() OrderStatus {
	return OrderStatus(strings.ToLower(strings.TrimSpace(string(s))))
}

func (s OrderStatus) IsTerminal() bool {
	n := s.Normalize()
	return n == OrderStatusDelivered || n == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type DeliveryPartner struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Rating     float64 `json:"rating"`
	Deliveries int     `json:"deliveries"`
}

// ActiveOrder is a backend snapshot of a placed order. It is only ever
// replaced wholesale by a fresh fetch.
type ActiveOrder struct {
	ID                    string           `json:"id"`
	OrderStatus           OrderStatus      `json:"order_status"`
	StatusMessage         string           `json:"status_message"`
	Items                 []OrderItem      `json:"items"`
	TotalAmount           decimal.Decimal  `json:"total_amount"`
	DeliveryAddress       *Address         `json:"delivery_address,omitempty"`
	DeliveryPartner       *DeliveryPartner `json:"delivery_partner,omitempty"`
	CreatedAt             Timestamp        `json:"created_at"`
	AssignedAt            *Timestamp       `json:"assigned_at,omitempty"`
	EstimatedDeliveryTime *int             `json:"estimated_delivery_time,omitempty"`
	TipAmount             decimal.Decimal  `json:"tip_amount"`
	Rating                int              `json:"rating,omitempty"`
	Review                string           `json:"review,omitempty"`
}

func (o *ActiveOrder) HasTip() bool {
	return o.TipAmount.IsPositive()
}

func (o *ActiveOrder) HasRating() bool {
	return o.Rating > 0
}

// AddTipRequest is the body of POST /orders/{id}/add-tip.
type AddTipRequest struct {
	TipAmount int    `json:"tip_amount"`
	OrderID   string `json:"order_id"`
}

// RatingRequest is the body of POST /orders/{id}/rate. An empty review is
// omitted from the payload.
type RatingRequest struct {
	Rating  int    `json:"rating"`
	Review  string `json:"review,omitempty"`
	OrderID string `json:"order_id"`
}

type ShopStatus struct {
	IsOpen     bool       `json:"is_open"`
	ReopenTime *Timestamp `json:"reopen_time"`
	Reason     *string    `json:"reason"`
}

// Timestamp accepts RFC3339 as well as zone-less ISO-8601 values, which are
// read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func ParseTimestamp(val string) (Timestamp, bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return Timestamp{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, val); err == nil {
			return Timestamp{ts.UTC()}, true
		}
	}
	return Timestamp{}, false
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*t = Timestamp{}
		return nil
	}
	ts, ok := ParseTimestamp(raw)
	if !ok {
		return &time.ParseError{Layout: time.RFC3339, Value: raw, Message: ": unsupported timestamp"}
	}
	*t = ts
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
