package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angiebeauty/storefront/internal/domain"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
	"github.com/angiebeauty/storefront/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHTTPClient(retries int) *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = retries
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 2 * time.Millisecond
	return httpclient.New(cfg)
}

func sampleOrder() *domain.OrderRequest {
	cart := &domain.Cart{
		Currency: "USD",
		Total:    11800,
		Items: []domain.CartItem{
			{ID: "serum", Type: domain.ItemTypeProduct, Quantity: 2},
			{ID: "facial", Type: domain.ItemTypeService, Quantity: 1},
		},
	}
	addr := domain.Address{FullName: "Ana Ruiz", AddressLine: "Calle Mayor 1", City: "Madrid", PostalCode: "28013", Country: "ES"}
	return domain.NewOrderRequest(cart, addr, "standard", "user-1", "pi_1")
}

// ---------------------------------------------------------------------------
// OrderClient
// ---------------------------------------------------------------------------

func TestOrderClient_CreateOrder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/orders", r.URL.Path)
		assert.Equal(t, "chk-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, "pi_1", body["payment_intent_id"])
		assert.Len(t, body["items"], 1)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord-42","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewOrderClient(testHTTPClient(0), srv.URL, time.Second, testLogger())
	res, err := c.CreateOrder(context.Background(), sampleOrder(), "chk-1")

	require.NoError(t, err)
	assert.Equal(t, "ord-42", res.OrderID)
	assert.Equal(t, "pending", res.Status)
}

func TestOrderClient_CreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantSent   error
		retryable  bool
		wantStatus int
	}{
		{
			name:       "unavailable",
			status:     http.StatusServiceUnavailable,
			body:       `{"error":{"code":"SERVICE_UNAVAILABLE","message":"maintenance"}}`,
			wantSent:   apperrors.ErrServiceUnavail,
			retryable:  true,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       `boom`,
			wantSent:   apperrors.ErrUpstream,
			retryable:  true,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "rejected",
			status:     http.StatusUnprocessableEntity,
			body:       `{"error":{"code":"PAYMENT_FAILED","message":"intent not confirmed"}}`,
			wantSent:   apperrors.ErrPaymentFailed,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOrderClient(testHTTPClient(0), srv.URL, time.Second, testLogger())
			_, err := c.CreateOrder(context.Background(), sampleOrder(), "chk-1")

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantSent)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
			assert.Equal(t, tt.wantStatus, apperrors.HTTPStatus(err))
		})
	}
}

func TestOrderClient_RetriesWithIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ord-1","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewOrderClient(testHTTPClient(2), srv.URL, time.Second, testLogger())
	res, err := c.CreateOrder(context.Background(), sampleOrder(), "chk-1")

	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOrderClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cbCfg := httpclient.DefaultCircuitBreakerConfig("order-test")
	cbCfg.MinRequests = 2
	cbCfg.FailureRatio = 0.5
	cb := httpclient.NewCircuitBreakerClient(testHTTPClient(0), cbCfg, testLogger())
	c := NewOrderClient(cb, srv.URL, time.Second, testLogger())

	for range 2 {
		_, err := c.CreateOrder(context.Background(), sampleOrder(), "")
		assert.ErrorIs(t, err, apperrors.ErrUpstream)
	}

	_, err := c.CreateOrder(context.Background(), sampleOrder(), "")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, int32(2), calls.Load(), "open breaker does not reach the server")
}

func TestOrderClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewOrderClient(testHTTPClient(0), srv.URL, 20*time.Millisecond, testLogger())
	_, err := c.CreateOrder(context.Background(), sampleOrder(), "")

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

// ---------------------------------------------------------------------------
// PaymentClient
// ---------------------------------------------------------------------------

func TestPaymentClient_CreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payment-intents", r.URL.Path)
		assert.Equal(t, "chk-1:11800", r.Header.Get("Idempotency-Key"))

		var body createIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(11800), body.Amount)
		assert.Equal(t, "USD", body.Currency)
		assert.Equal(t, "Order for checkout chk-1", body.Description)

		_, _ = w.Write([]byte(`{"id":"pi_9","client_secret":"pi_9_secret","amount":11800,"currency":"USD"}`))
	}))
	defer srv.Close()

	c := NewPaymentClient(testHTTPClient(0), srv.URL, time.Second, testLogger())
	intent, err := c.CreatePaymentIntent(context.Background(), 11800, "USD", "Order for checkout chk-1", "chk-1:11800")

	require.NoError(t, err)
	assert.Equal(t, "pi_9", intent.ID)
	assert.Equal(t, "pi_9_secret", intent.ClientSecret)
}

func TestPaymentClient_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	c := NewPaymentClient(testHTTPClient(0), srv.URL, time.Second, testLogger())
	_, err := c.CreatePaymentIntent(context.Background(), 100, "USD", "x", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}
