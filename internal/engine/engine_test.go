package engine

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/fjod/go_cart/order-engine/internal/cache"
	"github.com/fjod/go_cart/order-engine/internal/checkout"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/internal/events"
	"github.com/fjod/go_cart/order-engine/internal/tracking"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	orders  map[string]domain.ActiveOrder
	draft   domain.DraftOrder
	cleared int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{orders: make(map[string]domain.ActiveOrder)}
}

func (f *fakeBackend) CreateDraft(context.Context, domain.DraftRequest) (*domain.DraftOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	return &d, nil
}

func (f *fakeBackend) ConfirmOrder(_ context.Context, req domain.ConfirmRequest) (*backend.ConfirmResult, error) {
	return &backend.ConfirmResult{OrderID: "ord_" + req.DraftOrderID}, nil
}

func (f *fakeBackend) GetOrder(_ context.Context, id string) (*domain.ActiveOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, &backend.APIError{StatusCode: http.StatusNotFound, Detail: "Order not found"}
	}
	return &o, nil
}

func (f *fakeBackend) AddTip(context.Context, string, int) error { return nil }

func (f *fakeBackend) RateOrder(context.Context, string, int, string) error { return nil }

func (f *fakeBackend) ActiveOrders(context.Context) ([]domain.ActiveOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ActiveOrder, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeBackend) ClearCart(context.Context) error {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
	return nil
}

func setupTestRedis(t *testing.T) *cache.RedisCache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCache(client)
}

func slowTracking() tracking.Config {
	return tracking.Config{PollInterval: time.Hour, TickInterval: time.Hour}
}

func product(id string) domain.CartLineItem {
	return domain.CartLineItem{
		ID:           id,
		ServiceType:  domain.ServiceProduct,
		Quantity:     1,
		SellingPrice: decimal.NewFromInt(100),
	}
}

func TestSession_CreatedOnceAndRestored(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	first := New(newFakeBackend(), Config{}, WithCartStore(store))
	s, err := first.Session(ctx, "dev1", false)
	require.NoError(t, err)
	require.NoError(t, s.Cart.AddItem(ctx, product("p1")))

	again, err := first.Session(ctx, "dev1", false)
	require.NoError(t, err)
	assert.Same(t, s, again)

	second := New(newFakeBackend(), Config{}, WithCartStore(store))
	restored, err := second.Session(ctx, "dev1", false)
	require.NoError(t, err)
	assert.Len(t, restored.Cart.Items(), 1)

	_, err = second.Session(ctx, "", false)
	assert.ErrorIs(t, err, ErrEmptySessionID)
}

func TestSession_AuthenticationSelectsScope(t *testing.T) {
	e := New(newFakeBackend(), Config{})
	ctx := context.Background()

	s, err := e.Session(ctx, "dev1", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeUser, s.Cart.Scope())

	s, err = e.Session(ctx, "dev1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeGuest, s.Cart.Scope())
}

func TestCheckoutThroughSession(t *testing.T) {
	b := newFakeBackend()
	b.draft = domain.DraftOrder{
		DraftOrderID: "d1",
		Signature:    "sig",
		Subtotal:     decimal.NewFromInt(100),
		TotalAmount:  decimal.NewFromInt(100),
	}
	pub := &recordingPublisher{}
	e := New(b, Config{}, WithPublisher(pub))
	ctx := context.Background()

	s, err := e.Session(ctx, "dev1", false)
	require.NoError(t, err)
	require.NoError(t, s.Cart.AddItem(ctx, product("p1")))
	require.NoError(t, s.Checkout.SetInputs(checkout.Inputs{Address: &domain.Address{ID: "a1"}}))

	out, err := s.Checkout.PlaceOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateConfirmed, out.State)
	assert.Equal(t, "ord_d1", out.OrderID)
	assert.Empty(t, s.Cart.Items())
	assert.Contains(t, pub.types(), events.TypeOrderConfirmed)
}

func TestTrack_ReusesRunningTracker(t *testing.T) {
	b := newFakeBackend()
	b.orders["o1"] = domain.ActiveOrder{ID: "o1", OrderStatus: domain.OrderStatusPreparing}
	e := New(b, Config{Tracking: slowTracking()})
	ctx := context.Background()
	s, err := e.Session(ctx, "dev1", true)
	require.NoError(t, err)

	t1, err := s.Track(ctx, "o1")
	require.NoError(t, err)
	t2, err := s.Track(ctx, "o1")
	require.NoError(t, err)
	assert.Same(t, t1, t2)

	got, err := s.Tracker("o1")
	require.NoError(t, err)
	assert.Same(t, t1, got)

	require.NoError(t, s.StopTracking("o1"))
	<-t1.Done()
	_, err = s.Tracker("o1")
	assert.ErrorIs(t, err, ErrTrackerNotFound)
	assert.ErrorIs(t, s.StopTracking("o1"), ErrTrackerNotFound)
}

func TestTrack_UnknownOrder(t *testing.T) {
	e := New(newFakeBackend(), Config{Tracking: slowTracking()})
	ctx := context.Background()
	s, err := e.Session(ctx, "dev1", true)
	require.NoError(t, err)

	_, err = s.Track(ctx, "missing")
	assert.ErrorIs(t, err, tracking.ErrOrderNotFound)
	_, err = s.Tracker("missing")
	assert.ErrorIs(t, err, ErrTrackerNotFound)
}

func TestReap_DropsIdleSessions(t *testing.T) {
	b := newFakeBackend()
	b.orders["o1"] = domain.ActiveOrder{ID: "o1", OrderStatus: domain.OrderStatusAssigned}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := New(b, Config{Tracking: slowTracking(), IdleTTL: time.Hour}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	s, err := e.Session(ctx, "dev1", true)
	require.NoError(t, err)
	tr, err := s.Track(ctx, "o1")
	require.NoError(t, err)

	assert.Zero(t, e.Reap(now.Add(30*time.Minute)))
	assert.Equal(t, 1, e.Reap(now.Add(2*time.Hour)))

	_, ok := e.Lookup("dev1")
	assert.False(t, ok)
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("tracker not stopped")
	}
}

func TestHandleEvent_ClearsConfirmedSessionCart(t *testing.T) {
	e := New(newFakeBackend(), Config{})
	ctx := context.Background()
	s, err := e.Session(ctx, "dev1", false)
	require.NoError(t, err)
	require.NoError(t, s.Cart.AddItem(ctx, product("p1")))

	require.NoError(t, e.HandleEvent(ctx, events.New(events.TypeDraftCreated, "d1", "dev1", nil)))
	assert.Len(t, s.Cart.Items(), 1)

	require.NoError(t, e.HandleEvent(ctx, events.New(events.TypeOrderConfirmed, "d1", "dev1", nil)))
	assert.Empty(t, s.Cart.Items())

	assert.NoError(t, e.HandleEvent(ctx, events.New(events.TypeOrderConfirmed, "d2", "unknown", nil)))
}

func TestHandleEvent_KeepsItemsAddedAfterConfirmation(t *testing.T) {
	b := newFakeBackend()
	b.draft = domain.DraftOrder{
		DraftOrderID: "d1",
		Signature:    "sig",
		Subtotal:     decimal.NewFromInt(100),
		TotalAmount:  decimal.NewFromInt(100),
	}
	pub := &recordingPublisher{}
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	e := New(b, Config{}, WithPublisher(pub), WithClock(clock))
	ctx := context.Background()

	s, err := e.Session(ctx, "dev1", false)
	require.NoError(t, err)
	require.NoError(t, s.Cart.AddItem(ctx, product("p1")))
	require.NoError(t, s.Checkout.SetInputs(checkout.Inputs{Address: &domain.Address{ID: "a1"}}))
	_, err = s.Checkout.PlaceOrder(ctx)
	require.NoError(t, err)
	require.Empty(t, s.Cart.Items())

	confirmed, ok := pub.last(events.TypeOrderConfirmed)
	require.True(t, ok)

	mu.Lock()
	now = confirmed.OccurredAt.Add(time.Second)
	mu.Unlock()
	require.NoError(t, s.Cart.AddItem(ctx, product("p2")))

	// The instance consumes its own event after the user started a new cart.
	require.NoError(t, e.HandleEvent(ctx, confirmed))
	items := s.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].ID)
}

func TestClose_RefusesNewSessions(t *testing.T) {
	e := New(newFakeBackend(), Config{})
	e.Close()
	_, err := e.Session(context.Background(), "dev1", false)
	assert.ErrorIs(t, err, ErrClosed)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) last(typ events.Type) (events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return events.Event{}, false
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
