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

const orderServiceName = "order service"

// OrderClient places orders with the order service.
type OrderClient struct {
	doer    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOrderClient creates a client for the order service at baseURL.
func NewOrderClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *OrderClient {
	return &OrderClient{doer: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// CreateOrder submits req. The idempotency key lets the order service
// deduplicate a retried submission of the same checkout.
func (c *OrderClient) CreateOrder(ctx context.Context, req *domain.OrderRequest, idempotencyKey string) (_ *domain.OrderResult, err error) {
	ctx, span := tracing.Start(ctx, "order.create",
		attribute.Int("order.lines", len(req.Lines())),
		attribute.String("order.shipping_method", req.ShippingMethodID()),
	)
	defer func() {
		err = tracing.RecordError(span, err)
		span.End()
	}()

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := newJSONRequest(ctx, c.baseURL+"/api/v1/orders", req, idempotencyKey)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(ctx, httpReq)
	if err != nil {
		return nil, httpclient.TranslateError(err, orderServiceName)
	}

	var result domain.OrderResult
	if err := httpclient.DecodeJSON(resp, &result, orderServiceName); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", result.OrderID))
	c.logger.InfoContext(ctx, "order created",
		slog.String("order_id", result.OrderID),
		slog.String("status", result.Status),
	)
	return &result, nil
}
