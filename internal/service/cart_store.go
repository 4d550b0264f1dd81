package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/pricing"
	"github.com/angiebeauty/storefront/internal/promo"
	"github.com/angiebeauty/storefront/internal/repository"
	"github.com/angiebeauty/storefront/internal/shipping"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
	"github.com/angiebeauty/storefront/pkg/validator"
)

// MaxItemsPerCart is the maximum number of distinct lines in a cart.
const MaxItemsPerCart = 50

// Cart operation names used in logs and metrics.
const (
	opAddItem        = "add_item"
	opRemoveItem     = "remove_item"
	opUpdateQuantity = "update_quantity"
	opClear          = "clear"
	opSelectShipping = "select_shipping"
	opApplyPromo     = "apply_promo"
	opRemovePromo    = "remove_promo"
	opApplyStock     = "apply_stock"
)

var errSessionClosed = apperrors.ServiceUnavailable("cart session was closed, please retry")

// cartEnv holds the collaborators shared by every store of a CartSessions.
type cartEnv struct {
	repo     repository.CartRepository
	events   CartEventPublisher
	rules    *pricing.Rules
	promos   *promo.Catalog
	shipping *shipping.Catalog
	currency string
	logger   *slog.Logger
	now      func() time.Time

	// inflight counts running event drains.
	inflight sync.WaitGroup
}

// recompute refreshes the derived amounts of cart from its items, shipping
// selection and promo code.
func (e *cartEnv) recompute(cart *domain.Cart) {
	var option *domain.ShippingOption
	if cart.ShippingOptionID != "" {
		if o, ok := e.shipping.Find(cart.ShippingOptionID); ok {
			option = o
		} else {
			cart.ShippingOptionID = ""
		}
	}

	var code *domain.PromoCode
	if cart.PromoCode != "" {
		if p, ok := e.promos.FindByCode(cart.PromoCode); ok {
			code = &p
		} else {
			cart.PromoCode = ""
		}
	}

	e.rules.Apply(cart, option, code)
}

// CartStore holds one owner's cart. Mutations are serialized; each one works
// on a copy that replaces the published cart only after it was persisted.
// Domain events leave the store in mutation order from a background drain, so
// a slow broker never holds the store lock.
type CartStore struct {
	env   *cartEnv
	owner string

	mu         sync.Mutex
	cart       *domain.Cart
	subs       map[int]chan *domain.Cart
	nextSubID  int
	closed     bool
	lastAccess time.Time

	pending  []cartEvent
	draining bool
}

// cartEvent is a queued domain event for one applied mutation.
type cartEvent struct {
	ctx  context.Context
	op   string
	cart *domain.Cart
}

func newCartStore(env *cartEnv, owner string, cart *domain.Cart) *CartStore {
	return &CartStore{
		env:        env,
		owner:      owner,
		cart:       cart,
		subs:       make(map[int]chan *domain.Cart),
		lastAccess: env.now(),
	}
}

// Owner returns the owner key of the store.
func (s *CartStore) Owner() string {
	return s.owner
}

// Current returns a copy of the latest cart.
func (s *CartStore) Current() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = s.env.now()
	return s.cart.Clone()
}

// AddItem appends item, or merges it into the line with the same id by
// summing quantities. The merged line takes the incoming name, prices and
// stock cap.
func (s *CartStore) AddItem(ctx context.Context, item domain.CartItem) (*domain.Cart, error) {
	if err := validator.Validate(item); err != nil {
		return nil, err
	}

	return s.mutate(ctx, opAddItem, func(c *domain.Cart) (bool, error) {
		idx := c.FindItemIndex(item.ID)
		if idx < 0 {
			if item.Quantity > item.MaxQuantity {
				return false, domain.ErrInsufficientStock(item.ID, item.Quantity, item.MaxQuantity)
			}
			if len(c.Items) >= MaxItemsPerCart {
				return false, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
			}
			item.Variations = maps.Clone(item.Variations)
			c.Items = append(c.Items, item)
			return true, nil
		}

		merged := c.Items[idx].Quantity + item.Quantity
		if merged > item.MaxQuantity {
			return false, domain.ErrInsufficientStock(item.ID, merged, item.MaxQuantity)
		}
		item.Quantity = merged
		item.Variations = maps.Clone(item.Variations)
		c.Items[idx] = item
		return true, nil
	})
}

// RemoveItem drops the line with id. Removing an absent id is a no-op.
func (s *CartStore) RemoveItem(ctx context.Context, id string) (*domain.Cart, error) {
	return s.mutate(ctx, opRemoveItem, func(c *domain.Cart) (bool, error) {
		idx := c.FindItemIndex(id)
		if idx < 0 {
			return false, nil
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return true, nil
	})
}

// UpdateQuantity sets the quantity of the line with id. A quantity of zero or
// less removes the line like RemoveItem, so an absent id is then a no-op.
func (s *CartStore) UpdateQuantity(ctx context.Context, id string, quantity int) (*domain.Cart, error) {
	return s.mutate(ctx, opUpdateQuantity, func(c *domain.Cart) (bool, error) {
		idx := c.FindItemIndex(id)
		if quantity <= 0 {
			if idx < 0 {
				return false, nil
			}
			c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
			return true, nil
		}
		if idx < 0 {
			return false, apperrors.NotFound("cart item", id)
		}
		if quantity > c.Items[idx].MaxQuantity {
			return false, domain.ErrInsufficientStock(id, quantity, c.Items[idx].MaxQuantity)
		}
		if c.Items[idx].Quantity == quantity {
			return false, nil
		}
		c.Items[idx].Quantity = quantity
		return true, nil
	})
}

// Clear empties the cart and drops the shipping selection and promo code.
// The cart keeps its id while the store is open; the stored snapshot is
// deleted, so a later restore starts a new cart.
func (s *CartStore) Clear(ctx context.Context) (*domain.Cart, error) {
	return s.mutate(ctx, opClear, func(c *domain.Cart) (bool, error) {
		if c.IsEmpty() && c.ShippingOptionID == "" && c.PromoCode == "" {
			return false, nil
		}
		c.Items = []domain.CartItem{}
		c.ShippingOptionID = ""
		c.PromoCode = ""
		return true, nil
	})
}

// SelectShipping sets the shipping option used for pricing.
func (s *CartStore) SelectShipping(ctx context.Context, optionID string) (*domain.Cart, error) {
	option, ok := s.env.shipping.Find(optionID)
	if !ok {
		return nil, domain.ErrInvalidShippingOption(optionID)
	}
	return s.mutate(ctx, opSelectShipping, func(c *domain.Cart) (bool, error) {
		if c.ShippingOptionID == option.ID {
			return false, nil
		}
		c.ShippingOptionID = option.ID
		return true, nil
	})
}

// restoreShipping puts back a previous shipping selection, including none.
func (s *CartStore) restoreShipping(ctx context.Context, optionID string) error {
	_, err := s.mutate(ctx, opSelectShipping, func(c *domain.Cart) (bool, error) {
		if c.ShippingOptionID == optionID {
			return false, nil
		}
		c.ShippingOptionID = optionID
		return true, nil
	})
	return err
}

// ApplyPromoCode validates code against the current subtotal and applies it,
// replacing any code already applied. A rejected code leaves the cart as is.
func (s *CartStore) ApplyPromoCode(ctx context.Context, code string) (*domain.Cart, error) {
	cart, err := s.mutate(ctx, opApplyPromo, func(c *domain.Cart) (bool, error) {
		p, err := s.env.promos.Validate(code, c.SubtotalAmount())
		if err != nil {
			return false, err
		}
		if c.PromoCode == p.Code {
			return false, nil
		}
		c.PromoCode = p.Code
		return true, nil
	})
	switch {
	case err == nil:
		promoApplicationsTotal.WithLabelValues("applied").Inc()
	case domain.HasCode(err, domain.CodeInvalidPromoCode):
		promoApplicationsTotal.WithLabelValues("invalid").Inc()
	case domain.HasCode(err, domain.CodePromoMinimumNotMet):
		promoApplicationsTotal.WithLabelValues("minimum_not_met").Inc()
	}
	return cart, err
}

// PromoPreview is the effect a promo code would have on the current cart.
type PromoPreview struct {
	Promo  domain.PromoCode `json:"promo"`
	Totals pricing.Totals   `json:"totals"`
}

// PreviewPromoCode validates code against the current cart and prices the
// cart as if it were applied. The cart is not changed.
func (s *CartStore) PreviewPromoCode(code string) (*PromoPreview, error) {
	cart := s.Current()
	p, err := s.env.promos.Validate(code, cart.SubtotalAmount())
	if err != nil {
		return nil, err
	}
	var option *domain.ShippingOption
	if o, ok := s.env.shipping.Find(cart.ShippingOptionID); ok {
		option = o
	}
	return &PromoPreview{
		Promo:  p,
		Totals: s.env.rules.Calculate(cart.Items, option, &p),
	}, nil
}

// RemovePromoCode clears the applied promo code.
func (s *CartStore) RemovePromoCode(ctx context.Context) (*domain.Cart, error) {
	return s.mutate(ctx, opRemovePromo, func(c *domain.Cart) (bool, error) {
		if c.PromoCode == "" {
			return false, nil
		}
		c.PromoCode = ""
		return true, nil
	})
}

// ApplyStock caps product lines with productID to available units. Lines
// above the cap are clamped; lines of a sold out product are removed. It
// reports whether the cart changed. The cap never exceeds
// domain.MaxItemQuantity.
func (s *CartStore) ApplyStock(ctx context.Context, productID string, available int) (bool, error) {
	available = min(available, domain.MaxItemQuantity)
	changed := false
	_, err := s.mutate(ctx, opApplyStock, func(c *domain.Cart) (bool, error) {
		kept := c.Items[:0]
		for _, item := range c.Items {
			if item.ID != productID || item.Type != domain.ItemTypeProduct {
				kept = append(kept, item)
				continue
			}
			if available <= 0 {
				changed = true
				continue
			}
			if item.MaxQuantity != available {
				item.MaxQuantity = available
				changed = true
			}
			if item.Quantity > available {
				item.Quantity = available
			}
			kept = append(kept, item)
		}
		c.Items = kept
		return changed, nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Subscribe returns a channel that receives the current cart immediately and
// every later state. A slow reader only sees the latest state; writers never
// block on it. The channel is closed by cancel or when the store closes.
func (s *CartStore) Subscribe() (<-chan *domain.Cart, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *domain.Cart, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	ch <- s.cart.Clone()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// mutate runs fn on a copy of the cart. When fn reports a change, the copy is
// recomputed, persisted and then published to subscribers. A persist failure
// keeps the prior cart. A cleared cart deletes its snapshot instead of
// saving an empty one.
func (s *CartStore) mutate(ctx context.Context, op string, fn func(*domain.Cart) (bool, error)) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errSessionClosed
	}
	now := s.env.now()
	s.lastAccess = now

	next := s.cart.Clone()
	changed, err := fn(next)
	if err != nil {
		cartMutationsTotal.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}
	if !changed {
		cartMutationsTotal.WithLabelValues(op, "unchanged").Inc()
		return s.cart.Clone(), nil
	}

	s.env.recompute(next)
	next.Version++
	next.UpdatedAt = now.UTC()

	if err := s.persist(ctx, op, next); err != nil {
		cartMutationsTotal.WithLabelValues(op, "error").Inc()
		s.env.logger.ErrorContext(ctx, "failed to persist cart",
			slog.String("owner", s.owner),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("cart could not be saved, please try again")
	}

	s.cart = next
	cartMutationsTotal.WithLabelValues(op, "ok").Inc()
	for _, ch := range s.subs {
		offer(ch, next.Clone())
	}
	s.enqueue(ctx, op, next.Clone())

	return next.Clone(), nil
}

func (s *CartStore) persist(ctx context.Context, op string, cart *domain.Cart) error {
	if op == opClear {
		return s.env.repo.Delete(ctx, s.owner)
	}
	return s.env.repo.Save(ctx, cart)
}

// enqueue queues the event of an applied mutation and starts a drain when
// none is running. Callers hold s.mu.
func (s *CartStore) enqueue(ctx context.Context, op string, cart *domain.Cart) {
	if s.env.events == nil {
		return
	}
	s.pending = append(s.pending, cartEvent{ctx: context.WithoutCancel(ctx), op: op, cart: cart})
	if s.draining {
		return
	}
	s.draining = true
	s.env.inflight.Add(1)
	go s.drain()
}

// drain publishes queued events one at a time until the queue is empty.
func (s *CartStore) drain() {
	defer s.env.inflight.Done()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		ev := s.pending[0]
		s.pending[0] = cartEvent{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.publish(ev.ctx, ev.op, ev.cart)
	}
}

func (s *CartStore) publish(ctx context.Context, op string, cart *domain.Cart) {
	var err error
	if op == opClear {
		err = s.env.events.PublishCartCleared(ctx, cart.Owner, cart.ID)
	} else {
		err = s.env.events.PublishCartUpdated(ctx, cart)
	}
	if err != nil {
		s.env.logger.ErrorContext(ctx, "failed to publish cart event",
			slog.String("owner", s.owner),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

// close detaches every subscriber. Later mutations fail with errSessionClosed.
func (s *CartStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// idleSince reports the last access time and whether anyone is subscribed.
func (s *CartStore) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess, len(s.subs) > 0
}

// offer replaces whatever is buffered in ch with cart.
func offer(ch chan *domain.Cart, cart *domain.Cart) {
	select {
	case ch <- cart:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cart:
	default:
	}
}
