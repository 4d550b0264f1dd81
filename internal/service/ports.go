package service

import (
	"context"

	"github.com/angiebeauty/storefront/internal/domain"
)

// CartEventPublisher emits cart lifecycle events.
type CartEventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context, owner, cartID string) error
}

// OrderEventPublisher emits an event once an order was placed.
type OrderEventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, checkoutID, orderID string, req *domain.OrderRequest) error
}

// OrderCreator places orders with the order collaborator.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req *domain.OrderRequest, idempotencyKey string) (*domain.OrderResult, error)
}

// PaymentIntentCreator opens payment intents with the payment collaborator.
type PaymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency, description, idempotencyKey string) (*domain.PaymentIntent, error)
}
