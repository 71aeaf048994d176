package tracking

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/internal/events"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultTickInterval = time.Second

	MinTip          = 1
	MaxTip          = 500
	MaxReviewLength = 200
)

// TipPresets are the one-tap tip amounts.
var TipPresets = []int{20, 30, 50}

type OrderAPI interface {
	GetOrder(ctx context.Context, orderID string) (*domain.ActiveOrder, error)
	AddTip(ctx context.Context, orderID string, amount int) error
	RateOrder(ctx context.Context, orderID string, rating int, review string) error
}

type Config struct {
	PollInterval time.Duration
	TickInterval time.Duration
}

// Tracker is one tracking session for one order. Start launches the poll
// and countdown loops; Stop cancels both and discards late responses.
type Tracker struct {
	orderID   string
	api       OrderAPI
	cfg       Config
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	sf       singleflight.Group
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once

	mu            sync.Mutex
	cancel        context.CancelFunc
	started       bool
	closed        bool
	notFound      bool
	order         *domain.ActiveOrder
	countdown     Countdown
	overtime      bool
	ratingOffered bool
	ratingOpen    bool
	tipping       bool
	rating        bool
	lastFetch     time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func NewTracker(orderID string, api OrderAPI, cfg Config, opts ...Option) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	t := &Tracker{
		orderID:   orderID,
		api:       api,
		cfg:       cfg,
		publisher: events.Nop{},
		logger:    zap.NewNop(),
		now:       time.Now,
		done:      make(chan struct{}),
		countdown: Countdown{Status: TimerWaiting},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("order_id", orderID))
	return t
}

func (t *Tracker) OrderID() string {
	return t.orderID
}

// Start fetches the order once and launches the loops. The loops run on a
// context derived from ctx that outlives the caller's cancellation; Stop
// ends them. A missing order ends the session with ErrOrderNotFound.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrStopped
	}
	if t.started {
		t.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.started = true
	t.mu.Unlock()

	if err := t.Refresh(loopCtx); err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrStopped) {
			return err
		}
		t.logger.Warn("initial order fetch failed, will retry", zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStopped
	}
	t.wg.Add(2)
	go t.pollLoop(loopCtx)
	go t.tickLoop(loopCtx)
	return nil
}

// Stop ends the session. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.closed = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	t.doneOnce.Do(func() { close(t.done) })
}

// Done is closed when the session ends, by Stop or because the order no
// longer exists.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) pollLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.terminal() {
				t.logger.Debug("order reached terminal status, polling stopped")
				return
			}
			if err := t.Refresh(ctx); err != nil {
				if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrStopped) {
					return
				}
				t.logger.Debug("order poll failed", zap.Error(err))
			}
		}
	}
}

func (t *Tracker) tickLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			t.recomputeLocked()
			stopped := t.countdown.Status == TimerStopped || (t.order != nil && t.order.OrderStatus.IsTerminal())
			t.mu.Unlock()
			if stopped {
				return
			}
		}
	}
}

// Refresh fetches the order now. Concurrent calls share one request.
// Results arriving after Stop are dropped.
func (t *Tracker) Refresh(ctx context.Context) error {
	v, err, _ := t.sf.Do(t.orderID, func() (any, error) {
		return t.api.GetOrder(ctx, t.orderID)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStopped
	}
	if err != nil {
		if backend.IsNotFound(err) {
			t.notFound = true
			t.closed = true
			if t.cancel != nil {
				t.cancel()
			}
			t.doneOnce.Do(func() { close(t.done) })
			t.logger.Info("order not found, tracking ended")
			return ErrOrderNotFound
		}
		return err
	}

	order := v.(*domain.ActiveOrder)
	t.order = order
	t.lastFetch = t.now()
	t.recomputeLocked()
	if order.OrderStatus.Normalize() == domain.OrderStatusDelivered && !order.HasRating() && !t.ratingOffered {
		t.ratingOffered = true
		t.ratingOpen = true
	}
	return nil
}

func (t *Tracker) terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order != nil && t.order.OrderStatus.IsTerminal()
}

// recomputeLocked refreshes the countdown. Overtime holds until delivery.
func (t *Tracker) recomputeLocked() {
	if t.order == nil {
		t.countdown = Countdown{Status: TimerWaiting}
		return
	}
	var assigned *time.Time
	if t.order.AssignedAt != nil {
		assigned = &t.order.AssignedAt.Time
	}
	c := ComputeCountdown(t.order.OrderStatus, t.order.CreatedAt.Time, assigned, t.now())
	switch {
	case c.Status == TimerStopped:
		t.overtime = false
	case c.Status == TimerOvertime:
		t.overtime = true
	case t.overtime:
		zero := time.Duration(0)
		c = Countdown{Status: TimerOvertime, Remaining: &zero}
	}
	t.countdown = c
}

func canTip(o *domain.ActiveOrder) bool {
	if o == nil || o.HasTip() {
		return false
	}
	switch o.OrderStatus.Normalize() {
	case domain.OrderStatusAssigned, domain.OrderStatusOutForDelivery:
		return true
	}
	return false
}

// ParseTip reads a custom tip amount typed by the user.
func ParseTip(input string) (int, error) {
	amount, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || amount < MinTip || amount > MaxTip {
		return 0, &TipRangeError{Input: input}
	}
	return amount, nil
}

// AddTipInput validates a typed tip and submits it.
func (t *Tracker) AddTipInput(ctx context.Context, input string) (int, error) {
	amount, err := ParseTip(input)
	if err != nil {
		return 0, err
	}
	return amount, t.AddTip(ctx, amount)
}

// AddTip records a tip on the server and refetches the order. The local
// snapshot is never changed optimistically.
func (t *Tracker) AddTip(ctx context.Context, amount int) error {
	if amount < MinTip || amount > MaxTip {
		return &TipRangeError{Input: strconv.Itoa(amount)}
	}

	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrStopped
	case !canTip(t.order):
		t.mu.Unlock()
		return ErrTipNotAllowed
	case t.tipping:
		t.mu.Unlock()
		return ErrInFlight
	}
	t.tipping = true
	t.mu.Unlock()

	err := t.api.AddTip(ctx, t.orderID, amount)

	t.mu.Lock()
	t.tipping = false
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("add tip failed", zap.Int("amount", amount), zap.Error(err))
		return &ActionError{Action: "add tip", Err: err, fallback: "Failed to add tip"}
	}

	t.publisher.Publish(ctx, events.New(events.TypeTipAdded, t.orderID, "", map[string]any{"tip_amount": amount}))
	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("refetch after tip failed", zap.Error(err))
	}
	return nil
}

// SubmitRating rates a delivered order. On failure the prompt stays open.
func (t *Tracker) SubmitRating(ctx context.Context, stars int, review string) error {
	if stars < 1 || stars > 5 {
		return &RatingError{Message: "Please select a rating"}
	}
	review = strings.TrimSpace(review)
	if utf8.RuneCountInString(review) > MaxReviewLength {
		return &RatingError{Message: "Review must be at most 200 characters"}
	}

	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrStopped
	case t.order == nil || t.order.OrderStatus.Normalize() != domain.OrderStatusDelivered || t.order.HasRating():
		t.mu.Unlock()
		return ErrRatingNotAllowed
	case t.rating:
		t.mu.Unlock()
		return ErrInFlight
	}
	t.rating = true
	t.mu.Unlock()

	err := t.api.RateOrder(ctx, t.orderID, stars, review)

	t.mu.Lock()
	t.rating = false
	if err == nil {
		t.ratingOpen = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("submit rating failed", zap.Int("rating", stars), zap.Error(err))
		return &ActionError{Action: "submit rating", Err: err, fallback: "Failed to submit rating"}
	}

	t.publisher.Publish(ctx, events.New(events.TypeOrderRated, t.orderID, "", map[string]any{"rating": stars}))
	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("refetch after rating failed", zap.Error(err))
	}
	return nil
}

// DismissRating closes the rating prompt without rating. It is not offered
// again in this session.
func (t *Tracker) DismissRating() {
	t.mu.Lock()
	t.ratingOpen = false
	t.mu.Unlock()
}

type View struct {
	OrderID      string              `json:"order_id"`
	Order        *domain.ActiveOrder `json:"order,omitempty"`
	Progress     Progress            `json:"progress"`
	Steps        []Step              `json:"steps"`
	Timer        TimerView           `json:"timer"`
	CanTip       bool                `json:"can_tip"`
	TipPresets   []int               `json:"tip_presets,omitempty"`
	RatingPrompt bool                `json:"rating_prompt"`
	NotFound     bool                `json:"not_found"`
	Polling      bool                `json:"polling"`
	LastFetch    *time.Time          `json:"last_fetch,omitempty"`
}

func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := View{
		OrderID:      t.orderID,
		Order:        t.order,
		Steps:        Steps,
		Timer:        t.countdown.View(),
		CanTip:       !t.closed && canTip(t.order),
		RatingPrompt: t.ratingOpen,
		NotFound:     t.notFound,
		Polling:      t.started && !t.closed && (t.order == nil || !t.order.OrderStatus.IsTerminal()),
	}
	if t.order != nil {
		v.Progress = ProgressFor(t.order.OrderStatus)
	} else {
		v.Progress = ProgressFor(domain.OrderStatusConfirmed)
	}
	if v.CanTip {
		v.TipPresets = TipPresets
	}
	if !t.lastFetch.IsZero() {
		last := t.lastFetch
		v.LastFetch = &last
	}
	return v
}
