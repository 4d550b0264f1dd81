package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/pricing"
	"github.com/angiebeauty/storefront/internal/promo"
	"github.com/angiebeauty/storefront/internal/repository"
	"github.com/angiebeauty/storefront/internal/shipping"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
	"github.com/angiebeauty/storefront/pkg/validator"
)

// CartOptions configures pricing and catalogs for every cart store.
type CartOptions struct {
	Rules    *pricing.Rules
	Promos   *promo.Catalog
	Shipping *shipping.Catalog
	Currency string
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// CartSessions keeps one CartStore per owner for as long as the owner's
// session is open.
type CartSessions struct {
	env *cartEnv

	mu     sync.RWMutex
	stores map[string]*CartStore
	sfg    singleflight.Group
}

// NewCartSessions creates an empty session registry.
func NewCartSessions(repo repository.CartRepository, events CartEventPublisher, opts CartOptions, logger *slog.Logger) *CartSessions {
	if opts.Rules == nil {
		opts.Rules = pricing.DefaultRules()
	}
	if opts.Promos == nil {
		opts.Promos = promo.NewCatalog()
	}
	if opts.Shipping == nil {
		opts.Shipping = shipping.NewCatalog()
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CartSessions{
		env: &cartEnv{
			repo:     repo,
			events:   events,
			rules:    opts.Rules,
			promos:   opts.Promos,
			shipping: opts.Shipping,
			currency: opts.Currency,
			logger:   logger,
			now:      opts.Now,
		},
		stores: make(map[string]*CartStore),
	}
}

// Open returns the owner's store, restoring it from its snapshot on first use.
// Concurrent opens for the same owner share one restore.
func (m *CartSessions) Open(ctx context.Context, owner string) (*CartStore, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("cart owner is required")
	}
	if store, ok := m.Get(owner); ok {
		return store, nil
	}

	v, err, _ := m.sfg.Do(owner, func() (any, error) {
		if store, ok := m.Get(owner); ok {
			return store, nil
		}
		cart, err := m.restore(ctx, owner)
		if err != nil {
			return nil, err
		}
		store := newCartStore(m.env, owner, cart)

		m.mu.Lock()
		m.stores[owner] = store
		m.mu.Unlock()
		openCarts.Inc()
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CartStore), nil
}

// restore loads the owner's snapshot. A missing or undecodable snapshot gives
// an empty cart; any other storage failure is returned so that a good snapshot
// is never overwritten by an empty cart.
func (m *CartSessions) restore(ctx context.Context, owner string) (*domain.Cart, error) {
	cart, err := m.env.repo.Get(ctx, owner)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		return domain.NewCart(uuid.New().String(), owner, m.env.currency), nil
	case errors.Is(err, repository.ErrCorruptSnapshot):
		m.env.logger.WarnContext(ctx, "discarding corrupt cart snapshot",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		return domain.NewCart(uuid.New().String(), owner, m.env.currency), nil
	default:
		m.env.logger.ErrorContext(ctx, "failed to restore cart",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("cart is temporarily unavailable, please try again")
	}

	if dropped := sanitizeItems(cart); dropped > 0 {
		m.env.logger.WarnContext(ctx, "dropped invalid items from cart snapshot",
			slog.String("owner", owner),
			slog.Int("dropped", dropped),
		)
	}
	if cart.ID == "" {
		cart.ID = uuid.New().String()
	}
	cart.Owner = owner
	if cart.Currency == "" {
		cart.Currency = m.env.currency
	}
	m.env.recompute(cart)
	return cart, nil
}

// Get returns the open store of owner.
func (m *CartSessions) Get(owner string) (*CartStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.stores[owner]
	return store, ok
}

// Close tears down the owner's store. The persisted snapshot is kept. It
// reports whether a store was open.
func (m *CartSessions) Close(owner string) bool {
	m.mu.Lock()
	store, ok := m.stores[owner]
	delete(m.stores, owner)
	m.mu.Unlock()

	if !ok {
		return false
	}
	store.close()
	openCarts.Dec()
	return true
}

// Len returns the number of open stores.
func (m *CartSessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

// ApplyStock caps every open cart to the new stock level of productID and
// returns how many carts changed.
func (m *CartSessions) ApplyStock(ctx context.Context, productID string, available int) (int, error) {
	var (
		changed int
		errs    []error
	)
	for _, store := range m.snapshot() {
		ok, err := store.ApplyStock(ctx, productID, available)
		if err != nil {
			if errors.Is(err, errSessionClosed) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if ok {
			changed++
		}
	}
	stockAdjustmentsTotal.Add(float64(changed))
	return changed, errors.Join(errs...)
}

// EvictIdle closes stores untouched for longer than idle. Stores with live
// subscribers are kept. It returns the number of stores closed.
func (m *CartSessions) EvictIdle(idle time.Duration) int {
	cutoff := m.env.now().Add(-idle)
	evicted := 0
	for _, store := range m.snapshot() {
		last, watched := store.idleSince()
		if watched || last.After(cutoff) {
			continue
		}
		m.mu.Lock()
		current, ok := m.stores[store.owner]
		if ok && current == store {
			delete(m.stores, store.owner)
		}
		m.mu.Unlock()
		if ok && current == store {
			store.close()
			openCarts.Dec()
			evicted++
		}
	}
	return evicted
}

// CloseAll tears down every store.
func (m *CartSessions) CloseAll() {
	m.mu.Lock()
	stores := m.stores
	m.stores = make(map[string]*CartStore)
	m.mu.Unlock()

	for _, store := range stores {
		store.close()
	}
	openCarts.Sub(float64(len(stores)))
}

// WaitEvents blocks until every queued cart event was handed to the
// publisher or ctx is done.
func (m *CartSessions) WaitEvents(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.env.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shipping returns the shipping catalog the stores price with.
func (m *CartSessions) Shipping() *shipping.Catalog {
	return m.env.shipping
}

// Promos returns the promo catalog the stores price with.
func (m *CartSessions) Promos() *promo.Catalog {
	return m.env.promos
}

// sanitizeItems enforces the item invariants on a restored cart. Quantities
// above the stock cap are clamped; lines that still fail validation, repeat
// an id or exceed MaxItemsPerCart are dropped. It returns the number dropped.
func sanitizeItems(cart *domain.Cart) int {
	kept := make([]domain.CartItem, 0, len(cart.Items))
	seen := make(map[string]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		if item.MaxQuantity >= 1 && item.Quantity > item.MaxQuantity {
			item.Quantity = item.MaxQuantity
		}
		if _, dup := seen[item.ID]; dup || len(kept) >= MaxItemsPerCart {
			continue
		}
		if err := validator.Validate(item); err != nil {
			continue
		}
		seen[item.ID] = struct{}{}
		kept = append(kept, item)
	}
	dropped := len(cart.Items) - len(kept)
	cart.Items = kept
	return dropped
}

func (m *CartSessions) snapshot() []*CartStore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*CartStore, 0, len(m.stores))
	for _, store := range m.stores {
		out = append(out, store)
	}
	return out
}
