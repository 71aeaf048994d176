// Package events publishes checkout and tracking lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeDraftCreated   Type = "draft_created"
	TypePriceMismatch  Type = "price_mismatch"
	TypeDraftDeclined  Type = "draft_declined"
	TypeOrderConfirmed Type = "order_confirmed"
	TypeCheckoutFailed Type = "checkout_failed"
	TypeTipAdded       Type = "tip_added"
	TypeOrderRated     Type = "order_rated"
)

// Event is one lifecycle fact. AggregateID is the draft or order id and is
// used as the message key.
type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"event_type"`
	AggregateID string         `json:"aggregate_id"`
	SessionID   string         `json:"session_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func New(typ Type, aggregateID, sessionID string, payload map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        typ,
		AggregateID: aggregateID,
		SessionID:   sessionID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Publisher accepts events without blocking the caller on delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
