// Package engine keeps the per-device sessions: cart, checkout attempt,
// active-order banner and order trackers.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/cache"
	"github.com/fjod/go_cart/order-engine/internal/cart"
	"github.com/fjod/go_cart/order-engine/internal/checkout"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/internal/events"
	"github.com/fjod/go_cart/order-engine/internal/pricing"
	"github.com/fjod/go_cart/order-engine/internal/tracking"
	"go.uber.org/zap"
)

const (
	DefaultIdleTTL  = 2 * time.Hour
	CleanupInterval = time.Minute
)

var (
	ErrClosed          = errors.New("engine is shut down")
	ErrEmptySessionID  = errors.New("session id is required")
	ErrTrackerNotFound = errors.New("order is not being tracked")
)

// Backend is everything a session needs from the commerce backend.
type Backend interface {
	checkout.Backend
	tracking.OrderAPI
	tracking.ActiveOrderLister
	cart.Remote
}

type Config struct {
	Fees           pricing.FeeConfig
	Tracking       tracking.Config
	BannerInterval time.Duration
	IdleTTL        time.Duration
}

type Engine struct {
	backend    Backend
	carts      cache.CartStore
	dismissals cache.DismissalStore
	publisher  events.Publisher
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

type Option func(*Engine)

func WithCartStore(s cache.CartStore) Option {
	return func(e *Engine) { e.carts = s }
}

func WithDismissalStore(s cache.DismissalStore) Option {
	return func(e *Engine) { e.dismissals = s }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(b Backend, cfg Config, opts ...Option) *Engine {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	e := &Engine{
		backend:   b,
		cfg:       cfg,
		publisher: events.Nop{},
		logger:    zap.NewNop(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the session for id, creating it on first use. A new
// session restores its cart from the cart store.
func (e *Engine) Session(ctx context.Context, id string, authenticated bool) (*Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := e.sessions[id]
	if !ok {
		s = e.newSession(id)
		e.sessions[id] = s
	}
	e.mu.Unlock()

	if !ok {
		if err := s.Cart.Restore(ctx); err != nil {
			s.logger.Warn("cart restore incomplete", zap.Error(err))
		}
		s.logger.Debug("session created")
	}
	s.Cart.SetAuthenticated(authenticated)
	s.touch(e.now())
	return s, nil
}

// Lookup returns an existing session without creating one.
func (e *Engine) Lookup(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

func (e *Engine) newSession(id string) *Session {
	log := e.logger.With(zap.String("session_id", id))

	c := cart.New(id, e.backend, e.carts, e.logger).WithClock(e.now)
	return &Session{
		ID:   id,
		Cart: c,
		Checkout: checkout.NewSession(id, e.backend, c, e.cfg.Fees,
			checkout.WithPublisher(e.publisher),
			checkout.WithLogger(e.logger)),
		Banner:    tracking.NewBanner(e.backend, e.dismissals, e.cfg.BannerInterval, log),
		api:       e.backend,
		trackCfg:  e.cfg.Tracking,
		publisher: e.publisher,
		logger:    log,
		trackers:  make(map[string]*tracking.Tracker),
	}
}

// Reap drops sessions idle for longer than the idle TTL and stops their
// trackers. It returns the number of sessions dropped.
func (e *Engine) Reap(now time.Time) int {
	e.mu.Lock()
	var idle []*Session
	for id, s := range e.sessions {
		if now.Sub(s.LastSeen()) > e.cfg.IdleTTL {
			idle = append(idle, s)
			delete(e.sessions, id)
		}
	}
	e.mu.Unlock()

	for _, s := range idle {
		s.stopAll()
	}
	if len(idle) > 0 {
		e.logger.Info("reaped idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run reaps idle sessions every CleanupInterval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Reap(e.now())
		}
	}
}

// HandleEvent applies lifecycle events from the event stream, including this
// instance's own. A confirmed order empties the cart scopes of its session
// that have not changed since the order was confirmed.
func (e *Engine) HandleEvent(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TypeOrderConfirmed || ev.SessionID == "" {
		return nil
	}
	s, ok := e.Lookup(ev.SessionID)
	if !ok {
		return nil
	}
	for _, scope := range []domain.Scope{domain.ScopeUser, domain.ScopeGuest} {
		if !s.Cart.ClearLocalUnchangedSince(ctx, scope, ev.OccurredAt) {
			s.logger.Debug("cart changed after confirmed order, keeping it",
				zap.String("event_id", ev.ID),
				zap.String("scope", string(scope)))
		}
	}
	return nil
}

// Close stops every tracker and refuses new sessions.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*Session)
	e.mu.Unlock()

	for _, s := range sessions {
		s.stopAll()
	}
}
