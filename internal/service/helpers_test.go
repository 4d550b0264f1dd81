package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/pricing"
	"github.com/angiebeauty/storefront/internal/promo"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

// --- Mock Repository ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, owner string) (*domain.Cart, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) Delete(ctx context.Context, owner string) error {
	args := m.Called(ctx, owner)
	return args.Error(0)
}

// --- Fake publishers ---

type recordingPublisher struct {
	mu        sync.Mutex
	updated   []*domain.Cart
	cleared   []string
	submitted []string
}

func (p *recordingPublisher) PublishCartUpdated(_ context.Context, cart *domain.Cart) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, cart)
	return nil
}

func (p *recordingPublisher) PublishCartCleared(_ context.Context, _ string, cartID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, cartID)
	return nil
}

func (p *recordingPublisher) PublishOrderSubmitted(_ context.Context, _ string, orderID string, _ *domain.OrderRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, orderID)
	return nil
}

func (p *recordingPublisher) updatedCarts() []*domain.Cart {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.updated)
}

func (p *recordingPublisher) clearedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.cleared)
}

// blockingPublisher holds every cart event until release is closed.
type blockingPublisher struct {
	recordingPublisher
	entered chan struct{}
	release chan struct{}
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (p *blockingPublisher) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	p.entered <- struct{}{}
	<-p.release
	return p.recordingPublisher.PublishCartUpdated(ctx, cart)
}

// flushEvents waits until the store handed every queued event to its
// publisher.
func flushEvents(store *CartStore) {
	store.env.inflight.Wait()
}

// --- Mock collaborators ---

type mockOrderCreator struct {
	mock.Mock
}

func (m *mockOrderCreator) CreateOrder(ctx context.Context, req *domain.OrderRequest, key string) (*domain.OrderResult, error) {
	args := m.Called(ctx, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderResult), args.Error(1)
}

type mockPaymentCreator struct {
	mock.Mock
}

func (m *mockPaymentCreator) CreatePaymentIntent(ctx context.Context, amount int64, currency, description, key string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency, description, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

// --- In-memory checkout repository ---

type memoryCheckoutRepository struct {
	mu        sync.Mutex
	sessions  map[string]*domain.CheckoutSession
	updateErr error
}

func newMemoryCheckoutRepository() *memoryCheckoutRepository {
	return &memoryCheckoutRepository{sessions: make(map[string]*domain.CheckoutSession)}
}

func (r *memoryCheckoutRepository) Create(_ context.Context, s *domain.CheckoutSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *memoryCheckoutRepository) GetByID(_ context.Context, id string) (*domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("checkout session", id)
	}
	return s.Clone(), nil
}

func (r *memoryCheckoutRepository) Update(_ context.Context, s *domain.CheckoutSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.sessions[s.ID]; !ok {
		return apperrors.NotFound("checkout session", s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *memoryCheckoutRepository) GetActiveByOwner(_ context.Context, owner string) (*domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.CheckoutSession
	for _, s := range r.sessions {
		if s.Owner == owner && !s.IsCompleted() && (latest == nil || s.CreatedAt.After(latest.CreatedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, apperrors.NotFound("checkout session", owner)
	}
	return latest.Clone(), nil
}

// --- Test Helpers ---

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSessions(repo *mockCartRepository, events CartEventPublisher) *CartSessions {
	clock := func() time.Time { return testNow }
	return NewCartSessions(repo, events, CartOptions{
		Rules:    pricing.DefaultRules().WithClock(clock),
		Promos:   promo.NewCatalog(),
		Currency: "USD",
		Now:      clock,
	}, newTestLogger())
}

func lipstick(qty int) domain.CartItem {
	return domain.CartItem{
		ID:            "prod-lipstick",
		Type:          domain.ItemTypeProduct,
		Name:          "Velvet Lipstick",
		Price:         5000,
		OriginalPrice: 6000,
		Quantity:      qty,
		MaxQuantity:   5,
	}
}

func facial() domain.CartItem {
	return domain.CartItem{
		ID:          "svc-facial",
		Type:        domain.ItemTypeService,
		Name:        "Hydrating Facial",
		Price:       3000,
		Quantity:    1,
		MaxQuantity: 1,
	}
}
