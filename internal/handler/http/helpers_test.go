package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angiebeauty/storefront/internal/domain"
	redisrepo "github.com/angiebeauty/storefront/internal/repository/redis"
	"github.com/angiebeauty/storefront/internal/service"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
	"github.com/angiebeauty/storefront/pkg/health"
	"github.com/angiebeauty/storefront/pkg/httputil"
	"github.com/angiebeauty/storefront/pkg/middleware"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeOrders struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeOrders) CreateOrder(_ context.Context, _ *domain.OrderRequest, key string) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.OrderResult{OrderID: "ord-1", Status: "pending"}, nil
}

type fakePayments struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakePayments) CreatePaymentIntent(_ context.Context, amount int64, currency, _, key string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return &domain.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: amount, Currency: currency}, nil
}

type memoryCheckoutRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.CheckoutSession
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
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *memoryCheckoutRepository) GetActiveByOwner(_ context.Context, owner string) (*domain.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Owner == owner && !s.IsCompleted() {
			return s.Clone(), nil
		}
	}
	return nil, apperrors.NotFound("checkout session", owner)
}

// ============================================================================
// Test helpers
// ============================================================================

const testGuestID = "guest-browser-01"

type testEnv struct {
	router   http.Handler
	sessions *service.CartSessions
	orders   *fakeOrders
	payments *fakePayments
	redis    *miniredis.Miniredis
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the production router over miniredis and in-memory
// collaborators.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	sessions := service.NewCartSessions(redisrepo.NewCartRepository(client, time.Hour), nil, service.CartOptions{}, logger)
	t.Cleanup(sessions.CloseAll)

	orders := &fakeOrders{}
	payments := &fakePayments{}
	checkouts := &memoryCheckoutRepository{sessions: make(map[string]*domain.CheckoutSession)}
	submitter := service.NewOrderSubmitter(orders, nil, logger)
	checkoutSvc := service.NewCheckoutService(checkouts, sessions, payments, submitter, logger)
	wishlist := service.NewWishlistService(redisrepo.NewWishlistRepository(client), logger)
	locales := service.NewLocaleService(redisrepo.NewPreferenceRepository(client), []string{"en", "tr", "de"}, "en", logger)

	router := NewRouter(
		NewCartHandler(sessions, logger),
		NewCheckoutHandler(checkoutSvc, logger),
		NewPreferenceHandler(wishlist, locales, sessions.Shipping(), logger),
		health.NewHandler(),
		RouterConfig{},
		logger,
	)
	return &testEnv{router: router, sessions: sessions, orders: orders, payments: payments, redis: mr}
}

// do sends body as JSON with the identity headers. A nil identity sends none.
func (e *testEnv) do(t *testing.T, method, path string, body any, identity http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range identity {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func asGuest() http.Header {
	return http.Header{middleware.GuestIDHeader: []string{testGuestID}}
}

func asUser(id string) http.Header {
	return http.Header{middleware.UserIDHeader: []string{id}}
}

type envelope[T any] struct {
	Data  T                       `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

// decodeData reads the response body into the standard envelope with a typed
// data field.
func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var resp envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func lipstickRequest(qty int) AddItemRequest {
	return AddItemRequest{
		ID:            "prod-lipstick",
		Type:          domain.ItemTypeProduct,
		Name:          "Velvet Lipstick",
		Price:         5000,
		OriginalPrice: 6000,
		Quantity:      qty,
		MaxQuantity:   5,
	}
}
