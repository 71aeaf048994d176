// Package checkout runs the draft-order handshake and order confirmation for
// one device session.
package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/internal/events"
	"github.com/fjod/go_cart/order-engine/internal/orderitem"
	"github.com/fjod/go_cart/order-engine/internal/pricing"
	"github.com/fjod/go_cart/order-engine/pkg/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tolerance is the largest client/server total difference accepted without
// asking the user.
var Tolerance = decimal.RequireFromString("0.01")

var tracer = otel.Tracer("github.com/fjod/go_cart/order-engine/internal/checkout")

type Backend interface {
	CreateDraft(ctx context.Context, req domain.DraftRequest) (*domain.DraftOrder, error)
	ConfirmOrder(ctx context.Context, req domain.ConfirmRequest) (*backend.ConfirmResult, error)
}

type Cart interface {
	Items() []domain.CartLineItem
	Subtotal() decimal.Decimal
	ClearLocal(ctx context.Context, scope domain.Scope)
}

type Session struct {
	id        string
	backend   Backend
	cart      Cart
	builder   *orderitem.Builder
	fees      pricing.FeeConfig
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       State
	inputs      Inputs
	userTip     decimal.Decimal
	server      serverFigures
	draft       *domain.DraftOrder
	negotiating bool
	confirming  bool
}

type Option func(*Session)

func WithPublisher(p events.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func NewSession(id string, b Backend, c Cart, fees pricing.FeeConfig, opts ...Option) *Session {
	s := &Session{
		id:        id,
		backend:   b,
		cart:      c,
		fees:      fees,
		publisher: events.Nop{},
		logger:    zap.NewNop(),
		now:       time.Now,
		state:     StateIdle,
		inputs:    Inputs{PaymentMethod: domain.PaymentCOD},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", id))
	s.builder = orderitem.NewBuilder(s.logger)
	return s
}

// SetInputs replaces the user choices. Server figures from an earlier draft
// stay on display until the next response replaces them.
func (s *Session) SetInputs(in Inputs) error {
	if in.Tip.IsNegative() {
		return fmt.Errorf("tip must not be negative")
	}
	if in.Discount.IsNegative() {
		return fmt.Errorf("discount must not be negative")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentCOD
	}
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("unknown payment method %q", in.PaymentMethod)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = in
	s.userTip = in.Tip
	return nil
}

func (s *Session) Snapshot() Snapshot {
	subtotal := s.cart.Subtotal()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:   s.state,
		Inputs:  s.inputs,
		Display: s.displayLocked(subtotal),
		Draft:   s.draft,
		Busy:    s.negotiating || s.confirming,
	}
}

func (s *Session) Display() Display {
	subtotal := s.cart.Subtotal()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayLocked(subtotal)
}

func (s *Session) displayLocked(subtotal decimal.Decimal) Display {
	est := s.fees.Estimate(subtotal, s.inputs.Tip, s.inputs.Discount)
	return Display{
		Subtotal:    valueOr(s.server.subtotal, est.Subtotal),
		DeliveryFee: valueOr(s.server.deliveryFee, est.DeliveryFee),
		AppFee:      valueOr(s.server.appFee, est.AppFee),
		Tip:         s.inputs.Tip,
		Discount:    valueOr(s.server.discount, est.Discount),
		Total:       valueOr(s.server.total, est.Total),
		FromServer:  s.server.total != nil,
	}
}

// PlaceOrder validates the cart, negotiates a draft and confirms it when the
// server total matches the estimate. A call made while another is pending
// returns ErrInFlight and does nothing.
func (s *Session) PlaceOrder(ctx context.Context) (*Outcome, error) {
	items := s.cart.Items()
	subtotal := s.cart.Subtotal()

	s.mu.Lock()
	if s.negotiating || s.confirming {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	s.negotiating = true
	s.state = StateValidating
	inputs := s.inputs
	displayed := s.displayLocked(subtotal).Total
	estimate := s.fees.Estimate(subtotal, inputs.Tip, inputs.Discount)
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "checkout.place_order", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("cart.items", len(items)),
		attribute.String("payment.method", string(inputs.PaymentMethod)),
	))
	defer span.End()
	log := logger.WithTrace(ctx, s.logger)

	if verr := validate(inputs.Address, items, subtotal, displayed); verr != nil {
		s.finish(StateIdle)
		span.SetStatus(codes.Error, string(verr.Rule))
		log.Info("checkout validation failed", zap.String("rule", string(verr.Rule)))
		return nil, verr
	}

	payload, err := s.builder.Build(items)
	if err != nil {
		s.finish(StateIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "build order items")
		return nil, err
	}

	s.mu.Lock()
	s.state = StateSubmitted
	s.draft = nil
	s.mu.Unlock()

	draft, err := s.backend.CreateDraft(ctx, domain.DraftRequest{
		Items:           payload,
		DeliveryAddress: inputs.Address,
		TipAmount:       inputs.Tip.InexactFloat64(),
		PromoCode:       inputs.PromoCode,
	})
	if err != nil {
		s.mu.Lock()
		s.server = serverFigures{}
		s.negotiating = false
		s.state = StateFailed
		s.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, "create draft")
		log.Warn("draft negotiation failed", zap.Error(err))
		s.publish(ctx, events.TypeCheckoutFailed, "", map[string]any{"stage": "draft", "error": err.Error()})
		return nil, &NegotiationError{Err: err}
	}

	span.SetAttributes(attribute.String("draft.id", draft.DraftOrderID))
	diff := draft.TotalAmount.Sub(estimate.Total).Abs()

	s.mu.Lock()
	s.server = figuresFrom(draft)
	s.inputs.Tip = draft.TipAmount
	s.draft = draft
	s.mu.Unlock()

	s.publish(ctx, events.TypeDraftCreated, draft.DraftOrderID, map[string]any{
		"total_amount": draft.TotalAmount.String(),
		"client_total": estimate.Total.String(),
	})

	if diff.GreaterThan(Tolerance) {
		notice := &PriceMismatchNotice{ClientTotal: estimate.Total, ServerTotal: draft.TotalAmount}
		s.finish(StatePriceMismatch)
		log.Warn("price mismatch detected",
			zap.String("draft_order_id", draft.DraftOrderID),
			zap.String("client_total", estimate.Total.String()),
			zap.String("server_total", draft.TotalAmount.String()))
		s.publish(ctx, events.TypePriceMismatch, draft.DraftOrderID, map[string]any{
			"client_total": estimate.Total.String(),
			"server_total": draft.TotalAmount.String(),
		})
		return &Outcome{State: StatePriceMismatch, Draft: draft, Notice: notice}, nil
	}

	s.mu.Lock()
	s.state = StateAccepted
	s.mu.Unlock()

	if inputs.PaymentMethod == domain.PaymentOnline {
		s.finish(StateAccepted)
		return &Outcome{State: StateAccepted, Draft: draft, Message: OnlinePaymentNotice}, nil
	}

	s.mu.Lock()
	s.confirming = true
	s.mu.Unlock()

	return s.confirm(ctx, draft, inputs.PaymentMethod)
}

// AcceptPrice confirms the draft the user was shown after a price mismatch.
func (s *Session) AcceptPrice(ctx context.Context) (*Outcome, error) {
	return s.confirmPending(ctx, StatePriceMismatch)
}

// RetryConfirm confirms the kept draft again after a failed confirmation or
// an online-payment notice.
func (s *Session) RetryConfirm(ctx context.Context) (*Outcome, error) {
	return s.confirmPending(ctx, StateFailed, StateAccepted)
}

// DeclinePrice discards the mismatched draft and falls back to estimates,
// restoring the tip the user entered.
func (s *Session) DeclinePrice(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StatePriceMismatch || s.draft == nil {
		s.mu.Unlock()
		return ErrNoPendingDraft
	}
	if s.confirming {
		s.mu.Unlock()
		return ErrInFlight
	}
	draftID := s.draft.DraftOrderID
	s.draft = nil
	s.server = serverFigures{}
	s.inputs.Tip = s.userTip
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("draft declined", zap.String("draft_order_id", draftID))
	s.publish(ctx, events.TypeDraftDeclined, draftID, nil)
	return nil
}

func (s *Session) confirmPending(ctx context.Context, allowed ...State) (*Outcome, error) {
	s.mu.Lock()
	if s.negotiating || s.confirming {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	if s.draft == nil || !stateIn(s.state, allowed) {
		s.mu.Unlock()
		return nil, ErrNoPendingDraft
	}
	draft := s.draft
	method := s.inputs.PaymentMethod
	if draft.Expired(s.now()) {
		s.mu.Unlock()
		return nil, ErrDraftExpired
	}
	if method == domain.PaymentOnline {
		s.state = StateAccepted
		s.mu.Unlock()
		return &Outcome{State: StateAccepted, Draft: draft, Message: OnlinePaymentNotice}, nil
	}
	s.confirming = true
	s.state = StateAccepted
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "checkout.confirm_pending", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("draft.id", draft.DraftOrderID),
	))
	defer span.End()

	return s.confirm(ctx, draft, method)
}

// confirm finalizes draft. The caller must have set s.confirming.
func (s *Session) confirm(ctx context.Context, draft *domain.DraftOrder, method domain.PaymentMethod) (*Outcome, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("draft_order_id", draft.DraftOrderID))
	span := trace.SpanFromContext(ctx)

	res, err := s.backend.ConfirmOrder(ctx, domain.ConfirmRequest{
		DraftOrderID:  draft.DraftOrderID,
		Signature:     draft.Signature,
		PaymentMethod: method,
	})
	if err != nil {
		s.mu.Lock()
		s.server = serverFigures{}
		s.state = StateFailed
		s.negotiating = false
		s.confirming = false
		s.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm order")
		log.Warn("order confirmation failed", zap.Error(err))
		s.publish(ctx, events.TypeCheckoutFailed, draft.DraftOrderID, map[string]any{"stage": "confirm", "error": err.Error()})
		return nil, &ConfirmationError{DraftOrderID: draft.DraftOrderID, Err: err}
	}

	s.cart.ClearLocal(ctx, domain.ScopeUser)
	s.cart.ClearLocal(ctx, domain.ScopeGuest)

	s.mu.Lock()
	s.draft = nil
	s.state = StateConfirmed
	s.negotiating = false
	s.confirming = false
	s.mu.Unlock()

	orderID := res.Reference()
	log.Info("order confirmed", zap.String("order_id", orderID))
	s.publish(ctx, events.TypeOrderConfirmed, draft.DraftOrderID, map[string]any{
		"order_id":       orderID,
		"total_amount":   draft.TotalAmount.String(),
		"payment_method": string(method),
	})
	return &Outcome{State: StateConfirmed, Draft: draft, OrderID: orderID}, nil
}

func (s *Session) finish(state State) {
	s.mu.Lock()
	s.state = state
	s.negotiating = false
	s.mu.Unlock()
}

func (s *Session) publish(ctx context.Context, typ events.Type, aggregateID string, payload map[string]any) {
	if aggregateID == "" {
		aggregateID = s.id
	}
	s.publisher.Publish(ctx, events.New(typ, aggregateID, s.id, payload))
}

func stateIn(s State, allowed []State) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
