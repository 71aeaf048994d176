package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/cart"
	"github.com/fjod/go_cart/order-engine/internal/checkout"
	"github.com/fjod/go_cart/order-engine/internal/events"
	"github.com/fjod/go_cart/order-engine/internal/tracking"
	"go.uber.org/zap"
)

// Session is the state of one device.
type Session struct {
	ID       string
	Cart     *cart.Cart
	Checkout *checkout.Session
	Banner   *tracking.Banner

	api       tracking.OrderAPI
	trackCfg  tracking.Config
	publisher events.Publisher
	logger    *zap.Logger

	mu       sync.Mutex
	lastSeen time.Time
	trackers map[string]*tracking.Tracker
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Track returns the running tracker for orderID, starting one when none is
// active. A running tracker refetches the order. The tracker keeps the values
// of ctx, such as the bearer token, for its background polling.
func (s *Session) Track(ctx context.Context, orderID string) (*tracking.Tracker, error) {
	s.mu.Lock()
	if t, ok := s.trackers[orderID]; ok && !finished(t) {
		s.mu.Unlock()
		if err := t.Refresh(ctx); err != nil {
			if errors.Is(err, tracking.ErrOrderNotFound) {
				return nil, err
			}
			s.logger.Debug("refetch of tracked order failed", zap.String("order_id", orderID), zap.Error(err))
		}
		return t, nil
	}
	t := tracking.NewTracker(orderID, s.api, s.trackCfg,
		tracking.WithPublisher(s.publisher),
		tracking.WithLogger(s.logger))
	s.trackers[orderID] = t
	s.mu.Unlock()

	if err := t.Start(ctx); err != nil {
		s.mu.Lock()
		if s.trackers[orderID] == t {
			delete(s.trackers, orderID)
		}
		s.mu.Unlock()
		t.Stop()
		return nil, err
	}
	return t, nil
}

// Tracker returns the tracker for orderID. A session that ended on its own
// (order not found) is still returned so callers can read its final view.
func (s *Session) Tracker(orderID string) (*tracking.Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[orderID]
	if !ok {
		return nil, ErrTrackerNotFound
	}
	return t, nil
}

// StopTracking ends the tracker for orderID.
func (s *Session) StopTracking(orderID string) error {
	s.mu.Lock()
	t, ok := s.trackers[orderID]
	delete(s.trackers, orderID)
	s.mu.Unlock()

	if !ok {
		return ErrTrackerNotFound
	}
	t.Stop()
	return nil
}

func (s *Session) stopAll() {
	s.mu.Lock()
	trackers := s.trackers
	s.trackers = make(map[string]*tracking.Tracker)
	s.mu.Unlock()

	for _, t := range trackers {
		t.Stop()
	}
}

func finished(t *tracking.Tracker) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}
