package client

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/pkg/httpclient"
	"github.com/angiebeauty/storefront/pkg/tracing"
)

const paymentServiceName = "payment service"

// PaymentClient creates payment intents with the payment service. The client
// confirms the intent with the payment SDK and returns its id to checkout.
type PaymentClient struct {
	doer    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPaymentClient creates a client for the payment service at baseURL.
func NewPaymentClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *PaymentClient {
	return &PaymentClient{doer: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

type createIntentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// CreatePaymentIntent requests an intent for amount and returns its client
// secret.
func (c *PaymentClient) CreatePaymentIntent(ctx context.Context, amount int64, currency, description, idempotencyKey string) (_ *domain.PaymentIntent, err error) {
	ctx, span := tracing.Start(ctx, "payment.create_intent",
		attribute.Int64("payment.amount", amount),
		attribute.String("payment.currency", currency),
	)
	defer func() {
		err = tracing.RecordError(span, err)
		span.End()
	}()

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := newJSONRequest(ctx, c.baseURL+"/api/v1/payment-intents", createIntentRequest{
		Amount:      amount,
		Currency:    currency,
		Description: description,
	}, idempotencyKey)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(ctx, httpReq)
	if err != nil {
		return nil, httpclient.TranslateError(err, paymentServiceName)
	}

	var intent domain.PaymentIntent
	if err := httpclient.DecodeJSON(resp, &intent, paymentServiceName); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "payment intent created",
		slog.String("payment_intent_id", intent.ID),
		slog.Int64("amount", amount),
	)
	return &intent, nil
}
