package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/cache"
	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const persistTimeout = time.Second

var (
	ErrItemNotFound       = errors.New("item not found in cart")
	ErrInvalidItem        = errors.New("invalid cart item")
	ErrQuantityNotTracked = errors.New("quantity is not tracked for service items")
)

// Persister stores scope snapshots. Load returns cache.ErrCacheMiss when
// nothing was saved.
type Persister interface {
	Load(ctx context.Context, session string, scope domain.Scope) ([]domain.CartLineItem, error)
	Save(ctx context.Context, session string, scope domain.Scope, items []domain.CartLineItem) error
	Delete(ctx context.Context, session string, scope domain.Scope) error
}

// Remote is the server-side cart of an authenticated user.
type Remote interface {
	ClearCart(ctx context.Context) error
}

// Cart holds the guest and user carts of one device session. Mutations
// apply to the scope selected by SetAuthenticated.
type Cart struct {
	session string
	remote  Remote
	store   Persister
	logger  *zap.Logger
	now     func() time.Time

	mu            sync.RWMutex
	authenticated bool
	scopes        map[domain.Scope][]domain.CartLineItem
	seq           map[domain.Scope]uint64
	changed       map[domain.Scope]time.Time

	persistMu sync.Mutex
	savedSeq  map[domain.Scope]uint64
}

func New(session string, remote Remote, store Persister, logger *zap.Logger) *Cart {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cart{
		session:  session,
		remote:   remote,
		store:    store,
		logger:   logger.With(zap.String("session_id", session)),
		now:      time.Now,
		scopes:   make(map[domain.Scope][]domain.CartLineItem),
		seq:      make(map[domain.Scope]uint64),
		changed:  make(map[domain.Scope]time.Time),
		savedSeq: make(map[domain.Scope]uint64),
	}
}

// WithClock sets the clock used to stamp mutations.
func (c *Cart) WithClock(now func() time.Time) *Cart {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *Cart) SetAuthenticated(authenticated bool) {
	c.mu.Lock()
	c.authenticated = authenticated
	c.mu.Unlock()
}

// Scope returns the scope mutations and views currently target.
func (c *Cart) Scope() domain.Scope {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeScope()
}

func (c *Cart) activeScope() domain.Scope {
	if c.authenticated {
		return domain.ScopeUser
	}
	return domain.ScopeGuest
}

func validate(item domain.CartLineItem) error {
	switch {
	case item.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidItem)
	case !item.ServiceType.Valid():
		return fmt.Errorf("%w: unknown service type %q", ErrInvalidItem, item.ServiceType)
	case item.SellingPrice.IsNegative():
		return fmt.Errorf("%w: negative price", ErrInvalidItem)
	case !item.DetailsMatch():
		return fmt.Errorf("%w: details do not match service type %q", ErrInvalidItem, item.ServiceType)
	}
	return nil
}

// AddItem inserts an item. Re-adding a product increases its quantity;
// re-adding a service replaces the existing entry.
func (c *Cart) AddItem(ctx context.Context, item domain.CartLineItem) error {
	if err := validate(item); err != nil {
		return err
	}
	if item.ServiceType == domain.ServiceProduct && item.Quantity <= 0 {
		item.Quantity = 1
	}

	c.mu.Lock()
	scope := c.activeScope()
	items := c.scopes[scope]
	idx := indexOf(items, item.ID)
	switch {
	case idx < 0:
		items = append(items, item)
	case item.ServiceType == domain.ServiceProduct && items[idx].ServiceType == domain.ServiceProduct:
		items[idx].Quantity += item.Quantity
	default:
		items[idx] = item
	}
	c.scopes[scope] = items
	snapshot, seq := c.snapshotLocked(scope)
	c.mu.Unlock()

	c.persist(ctx, scope, snapshot, seq)
	return nil
}

func (c *Cart) RemoveItem(ctx context.Context, id string) error {
	c.mu.Lock()
	scope := c.activeScope()
	items := c.scopes[scope]
	idx := indexOf(items, id)
	if idx < 0 {
		c.mu.Unlock()
		return ErrItemNotFound
	}
	c.scopes[scope] = append(items[:idx:idx], items[idx+1:]...)
	snapshot, seq := c.snapshotLocked(scope)
	c.mu.Unlock()

	c.persist(ctx, scope, snapshot, seq)
	return nil
}

// SetQuantity changes the quantity of a product line. Quantity must be at
// least 1; use RemoveItem to drop a line.
func (c *Cart) SetQuantity(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
	}

	c.mu.Lock()
	scope := c.activeScope()
	items := c.scopes[scope]
	idx := indexOf(items, id)
	if idx < 0 {
		c.mu.Unlock()
		return ErrItemNotFound
	}
	if items[idx].ServiceType != domain.ServiceProduct {
		c.mu.Unlock()
		return ErrQuantityNotTracked
	}
	items[idx].Quantity = qty
	snapshot, seq := c.snapshotLocked(scope)
	c.mu.Unlock()

	c.persist(ctx, scope, snapshot, seq)
	return nil
}

// Clear empties a scope. The user scope is cleared on the server first and
// stays untouched locally when that fails.
func (c *Cart) Clear(ctx context.Context, scope domain.Scope) error {
	if scope == domain.ScopeUser && c.remote != nil {
		if err := c.remote.ClearCart(ctx); err != nil {
			c.logger.Warn("remote cart clear failed", zap.Error(err))
			return fmt.Errorf("clear remote cart: %w", err)
		}
	}
	c.ClearLocal(ctx, scope)
	return nil
}

// ClearLocal empties a scope without contacting the server. Clearing an
// empty scope does nothing.
func (c *Cart) ClearLocal(ctx context.Context, scope domain.Scope) {
	c.mu.Lock()
	c.clearLocked(ctx, scope)
}

// ClearLocalUnchangedSince empties a scope only when it was not modified
// after since. It reports false when the scope was kept.
func (c *Cart) ClearLocalUnchangedSince(ctx context.Context, scope domain.Scope, since time.Time) bool {
	c.mu.Lock()
	if c.changed[scope].After(since) {
		c.mu.Unlock()
		return false
	}
	c.clearLocked(ctx, scope)
	return true
}

// clearLocked must be called with mu held and releases it.
func (c *Cart) clearLocked(ctx context.Context, scope domain.Scope) {
	if len(c.scopes[scope]) == 0 {
		c.mu.Unlock()
		return
	}
	c.scopes[scope] = nil
	snapshot, seq := c.snapshotLocked(scope)
	c.mu.Unlock()

	c.persist(ctx, scope, snapshot, seq)
}

func (c *Cart) Items() []domain.CartLineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.scopes[c.activeScope()])
}

// Partition splits the active scope into product and service groups,
// keeping insertion order within each group.
func (c *Cart) Partition() (products, services []domain.CartLineItem) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.scopes[c.activeScope()] {
		if item.ServiceType == domain.ServiceProduct {
			products = append(products, item)
		} else {
			services = append(services, item)
		}
	}
	return products, services
}

func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Subtotal(c.scopes[c.activeScope()])
}

func (c *Cart) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ItemCount(c.scopes[c.activeScope()])
}

// Restore reloads both scopes from the persister. A scope with no saved
// snapshot is left empty, and a scope already modified in this session keeps
// its newer contents.
func (c *Cart) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var errs []error
	for _, scope := range []domain.Scope{domain.ScopeGuest, domain.ScopeUser} {
		items, err := c.store.Load(ctx, c.session, scope)
		if errors.Is(err, cache.ErrCacheMiss) {
			continue
		}
		if err != nil {
			c.logger.Warn("cart restore failed", zap.String("scope", string(scope)), zap.Error(err))
			errs = append(errs, fmt.Errorf("restore %s cart: %w", scope, err))
			continue
		}

		kept := items[:0]
		for _, item := range items {
			if validate(item) != nil {
				c.logger.Warn("dropping invalid persisted item", zap.String("item_id", item.ID))
				continue
			}
			kept = append(kept, item)
		}

		c.mu.Lock()
		if c.seq[scope] > 0 {
			c.mu.Unlock()
			c.logger.Debug("skipping restore of modified cart", zap.String("scope", string(scope)))
			continue
		}
		c.scopes[scope] = kept
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (c *Cart) snapshotLocked(scope domain.Scope) ([]domain.CartLineItem, uint64) {
	c.seq[scope]++
	c.changed[scope] = c.now()
	return clone(c.scopes[scope]), c.seq[scope]
}

// persist saves a snapshot unless a newer one has already been written.
// Failures are logged and never surface to the caller.
func (c *Cart) persist(ctx context.Context, scope domain.Scope, items []domain.CartLineItem, seq uint64) {
	if c.store == nil {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if seq <= c.savedSeq[scope] {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var err error
	if len(items) == 0 {
		err = c.store.Delete(ctx, c.session, scope)
	} else {
		err = c.store.Save(ctx, c.session, scope, items)
	}
	if err != nil {
		c.logger.Warn("cart persist failed", zap.String("scope", string(scope)), zap.Error(err))
		return
	}
	c.savedSeq[scope] = seq
}

// Subtotal sums unit price times line quantity.
func Subtotal(items []domain.CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func ItemCount(items []domain.CartLineItem) int {
	n := 0
	for _, item := range items {
		n += item.LineQuantity()
	}
	return n
}

func indexOf(items []domain.CartLineItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func clone(items []domain.CartLineItem) []domain.CartLineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.CartLineItem, len(items))
	copy(out, items)
	return out
}
